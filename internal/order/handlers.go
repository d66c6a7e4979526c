package order

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/ecom-backend/internal/auth"
	"github.com/MikeMC777/ecom-backend/internal/redisx"
)

func pageParams(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}

func writeWorkflowError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrProductUnavailable):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ErrInsufficientStock), errors.Is(err, ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, ErrLockTimeout):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func CreateHandler(repo Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)
		var req CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		if len(req.Items) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "items are required"})
			return
		}
		lines := make([]Line, 0, len(req.Items))
		for _, it := range req.Items {
			if it.ProductID == "" || it.Quantity <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "every item needs a product_id and a positive quantity"})
				return
			}
			lines = append(lines, Line{ProductID: it.ProductID, Quantity: it.Quantity})
		}
		o, items, err := repo.Place(c.Request.Context(), u.ID, lines)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		c.JSON(http.StatusCreated, OrderOut{Order: *o, Items: items})
	}
}

// GetHandler serves one order to its owner or an admin, reading through the
// cache when possible.
func GetHandler(repo Repository, cache *redisx.OrderCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)
		id := c.Param("id")

		if b, ok := cache.Get(c.Request.Context(), id); ok {
			var out OrderOut
			if json.Unmarshal(b, &out) == nil {
				if out.UserID != u.ID && !u.IsSuperuser {
					c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
					return
				}
				c.JSON(http.StatusOK, out)
				return
			}
		}

		o, items, err := repo.GetByID(c.Request.Context(), id)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		if o.UserID != u.ID && !u.IsSuperuser {
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
			return
		}
		out := OrderOut{Order: *o, Items: items}
		if b, err := json.Marshal(out); err == nil {
			cache.Set(c.Request.Context(), id, b)
		}
		c.JSON(http.StatusOK, out)
	}
}

func CancelHandler(repo Repository, cache *redisx.OrderCache) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)
		id := c.Param("id")

		o, _, err := repo.GetByID(c.Request.Context(), id)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		if o.UserID != u.ID && !u.IsSuperuser {
			c.JSON(http.StatusForbidden, gin.H{"error": "not authorized"})
			return
		}
		// status is re-checked under the row lock inside Cancel
		updated, items, err := repo.Cancel(c.Request.Context(), id)
		if err != nil {
			writeWorkflowError(c, err)
			return
		}
		cache.Invalidate(c.Request.Context(), id)
		c.JSON(http.StatusOK, OrderOut{Order: *updated, Items: items})
	}
}

func ListMineHandler(repo Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)
		limit, offset := pageParams(c)
		orders, err := repo.ListByUser(c.Request.Context(), u.ID, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if orders == nil {
			orders = []Order{}
		}
		c.JSON(http.StatusOK, orders)
	}
}

func ListAllHandler(repo Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := pageParams(c)
		orders, err := repo.ListAll(c.Request.Context(), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if orders == nil {
			orders = []Order{}
		}
		c.JSON(http.StatusOK, orders)
	}
}
