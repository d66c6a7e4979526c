package user

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// CurrentFromContext decouples this package from the auth middleware: the
// router passes auth.CurrentUser here.
type CurrentFromContext func(*gin.Context) *User

// Hasher hashes a plaintext password; wired to auth.HashPassword.
type Hasher func(string) (string, error)

func MeHandler(current CurrentFromContext) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, current(c))
	}
}

func UpdateMeHandler(repo Repository, current CurrentFromContext, hash Hasher) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := current(c)
		var req UpdateMeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
		p := Patch{Email: req.Email, IsActive: req.IsActive}
		if req.Password != nil {
			h, err := hash(*req.Password)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "hash error"})
				return
			}
			p.PasswordHash = &h
		}
		updated, err := repo.Update(c.Request.Context(), u.ID, p)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, updated)
	}
}

func ListHandler(repo Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		users, err := repo.List(c.Request.Context(), limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if users == nil {
			users = []User{}
		}
		c.JSON(http.StatusOK, users)
	}
}

// CreateHandler is the admin path; it creates superusers, open registration
// lives under /auth/register.
func CreateHandler(repo Repository, hash Hasher, newID func() string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
			return
		}
		if _, err := repo.GetByEmail(c.Request.Context(), req.Email); err == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email already registered"})
			return
		}
		h, err := hash(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "hash error"})
			return
		}
		u := &User{ID: newID(), Email: req.Email, PasswordHash: h, IsActive: true, IsSuperuser: true}
		if err := repo.Create(c.Request.Context(), u); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email already registered"})
			return
		}
		c.JSON(http.StatusCreated, u)
	}
}

func DeleteHandler(repo Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := repo.Delete(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
