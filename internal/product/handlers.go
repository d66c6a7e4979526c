package product

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MikeMC777/ecom-backend/internal/auth"
	"github.com/MikeMC777/ecom-backend/internal/blob"
)

const imagePresignTTL = time.Hour

func validPrice(s string) bool {
	d, err := decimal.NewFromString(s)
	return err == nil && !d.IsNegative()
}

func CreateHandler(repo Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)
		var req CreateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, HTTPError{Error: "invalid json"})
			return
		}
		if req.Name == "" || !validPrice(req.Price) || req.Stock < 0 {
			c.JSON(http.StatusBadRequest, HTTPError{Error: "name, non-negative price and non-negative stock are required"})
			return
		}
		p := &Product{
			ID:          uuid.NewString(),
			OwnerID:     u.ID,
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			Stock:       req.Stock,
			IsActive:    true,
		}
		if err := repo.Create(c.Request.Context(), p); err != nil {
			c.JSON(http.StatusInternalServerError, HTTPError{Error: err.Error()})
			return
		}
		c.JSON(http.StatusCreated, p)
	}
}

func ListHandler(repo Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		items, err := repo.List(c.Request.Context(), Query{OnlyActive: true, Q: c.Query("q"), Limit: limit, Offset: offset})
		if err != nil {
			c.JSON(http.StatusInternalServerError, HTTPError{Error: err.Error()})
			return
		}
		if items == nil {
			items = []Product{}
		}
		c.JSON(http.StatusOK, ListResponse{Limit: limit, Offset: offset, Items: items})
	}
}

func GetHandler(repo Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := repo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, HTTPError{Error: "product not found"})
			return
		}
		c.JSON(http.StatusOK, p)
	}
}

// ownedProduct loads the product and enforces owner-or-admin, writing the
// response itself on failure.
func ownedProduct(c *gin.Context, repo Repository) *Product {
	p, err := repo.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, HTTPError{Error: "product not found"})
		return nil
	}
	u := auth.CurrentUser(c)
	if p.OwnerID != u.ID && !u.IsSuperuser {
		c.JSON(http.StatusForbidden, HTTPError{Error: "not authorized"})
		return nil
	}
	return p
}

func UpdateHandler(repo Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := ownedProduct(c, repo)
		if p == nil {
			return
		}
		var req UpdateProductRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, HTTPError{Error: "invalid json"})
			return
		}
		if req.Price != nil && !validPrice(*req.Price) {
			c.JSON(http.StatusBadRequest, HTTPError{Error: "price must be a non-negative number"})
			return
		}
		if req.Stock != nil && *req.Stock < 0 {
			c.JSON(http.StatusBadRequest, HTTPError{Error: "stock must be non-negative"})
			return
		}
		updated, err := repo.Update(c.Request.Context(), p.ID, Patch{
			Name:        req.Name,
			Description: req.Description,
			Price:       req.Price,
			Stock:       req.Stock,
			IsActive:    req.IsActive,
		})
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				c.JSON(http.StatusNotFound, HTTPError{Error: "product not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, HTTPError{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

func DeleteHandler(repo Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := ownedProduct(c, repo)
		if p == nil {
			return
		}
		ok, err := repo.Delete(c.Request.Context(), p.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, HTTPError{Error: err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, HTTPError{Error: "product not found"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func UploadImageHandler(repo Repository, store blob.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := ownedProduct(c, repo)
		if p == nil {
			return
		}
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, HTTPError{Error: "file is required"})
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, HTTPError{Error: err.Error()})
			return
		}
		key, err := store.Put(c.Request.Context(), data, header.Filename,
			header.Header.Get("Content-Type"), auth.CurrentUser(c).ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, HTTPError{Error: err.Error()})
			return
		}
		updated, err := repo.Update(c.Request.Context(), p.ID, Patch{ImageKey: &key})
		if err != nil {
			c.JSON(http.StatusInternalServerError, HTTPError{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

func ImageURLHandler(repo Repository, store blob.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, err := repo.GetByID(c.Request.Context(), c.Param("id"))
		if err != nil || p.ImageKey == "" {
			c.JSON(http.StatusNotFound, HTTPError{Error: "image not found"})
			return
		}
		url, err := store.PresignGet(c.Request.Context(), p.ImageKey, imagePresignTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, HTTPError{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": url})
	}
}
