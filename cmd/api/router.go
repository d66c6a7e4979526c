package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/MikeMC777/ecom-backend/internal/auth"
	"github.com/MikeMC777/ecom-backend/internal/blob"
	"github.com/MikeMC777/ecom-backend/internal/httpx"
	"github.com/MikeMC777/ecom-backend/internal/mail"
	"github.com/MikeMC777/ecom-backend/internal/order"
	"github.com/MikeMC777/ecom-backend/internal/product"
	"github.com/MikeMC777/ecom-backend/internal/redisx"
	"github.com/MikeMC777/ecom-backend/internal/user"
)

type deps struct {
	users    user.Repository
	products product.Repository
	orders   order.Repository

	tokens  *auth.Tokens
	revoked auth.TokenStore
	otps    auth.OTPStore

	cache  *redisx.OrderCache
	blobs  blob.Store
	mailer mail.Mailer

	corsOrigins []string
}

func newRouter(d deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpx.RequestID(), httpx.Logger(), httpx.CORS(d.corsOrigins))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	requireUser := auth.RequireUser(d.tokens, d.users, d.revoked)
	requireAdmin := auth.RequireAdmin()

	v1 := r.Group("/api/v1")

	a := v1.Group("/auth")
	{
		a.POST("/register", auth.RegisterHandler(d.users))
		a.POST("/login", auth.LoginHandler(d.users, d.tokens))
		a.POST("/logout", auth.LogoutHandler(d.tokens, d.revoked))
		a.POST("/refresh", auth.RefreshHandler(d.tokens, d.revoked))
		a.POST("/password-reset/request", auth.PasswordResetRequestHandler(d.otps, d.mailer))
		a.POST("/password-reset/verify", auth.PasswordResetVerifyHandler(d.otps, d.users))
	}

	us := v1.Group("/users")
	us.Use(requireUser)
	{
		us.GET("/me", user.MeHandler(auth.CurrentUser))
		us.PUT("/me", user.UpdateMeHandler(d.users, auth.CurrentUser, auth.HashPassword))
		us.GET("", requireAdmin, user.ListHandler(d.users))
		us.POST("", requireAdmin, user.CreateHandler(d.users, auth.HashPassword, uuid.NewString))
		us.DELETE("/:id", requireAdmin, user.DeleteHandler(d.users))
	}

	ps := v1.Group("/products")
	{
		ps.GET("", product.ListHandler(d.products))
		ps.GET("/:id", product.GetHandler(d.products))
		ps.GET("/:id/image-url", product.ImageURLHandler(d.products, d.blobs))
		ps.POST("", requireUser, requireAdmin, product.CreateHandler(d.products))
		ps.PUT("/:id", requireUser, product.UpdateHandler(d.products))
		ps.DELETE("/:id", requireUser, product.DeleteHandler(d.products))
		ps.POST("/:id/image", requireUser, product.UploadImageHandler(d.products, d.blobs))
	}

	os := v1.Group("/orders")
	os.Use(requireUser)
	{
		os.POST("", order.CreateHandler(d.orders))
		os.GET("", order.ListMineHandler(d.orders))
		os.GET("/:id", order.GetHandler(d.orders, d.cache))
		os.POST("/:id/cancel", order.CancelHandler(d.orders, d.cache))
	}

	// admin listing lives outside /orders: a static segment cannot share a
	// level with the :id parameter in gin's route tree
	v1.GET("/admin/orders", requireUser, requireAdmin, order.ListAllHandler(d.orders))

	fs := v1.Group("/files")
	fs.Use(requireUser)
	{
		fs.POST("/upload", blob.UploadHandler(d.blobs))
		fs.GET("/file/*key", blob.GetURLHandler(d.blobs))
		fs.DELETE("/file/*key", blob.DeleteHandler(d.blobs))
	}

	return r
}
