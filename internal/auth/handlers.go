package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/MikeMC777/ecom-backend/internal/mail"
	"github.com/MikeMC777/ecom-backend/internal/user"
)

const (
	otpTTL         = 5 * time.Minute
	logoutBlackTTL = time.Hour
)

// RegisterRequest payload of open registration.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a freshly issued token pair.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func RegisterHandler(users user.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
			return
		}
		if _, err := users.GetByEmail(c.Request.Context(), req.Email); err == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email already registered"})
			return
		}
		hash, err := HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "hash error"})
			return
		}
		u := &user.User{ID: uuid.NewString(), Email: req.Email, PasswordHash: hash, IsActive: true}
		if err := users.Create(c.Request.Context(), u); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email already registered"})
			return
		}
		c.JSON(http.StatusCreated, u)
	}
}

func LoginHandler(users user.Repository, tokens *Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email and password are required"})
			return
		}
		u, err := users.GetByEmail(c.Request.Context(), req.Email)
		if err != nil || !CheckPassword(u.PasswordHash, req.Password) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		access, err := tokens.Issue(KindAccess, u.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
			return
		}
		refresh, err := tokens.Issue(KindRefresh, u.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
			return
		}
		c.JSON(http.StatusOK, TokenResponse{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"})
	}
}

// LogoutHandler revokes the presented access token by blacklisting its jti.
func LogoutHandler(tokens *Tokens, revoked TokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c)
		if raw == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
			return
		}
		claims, err := tokens.Parse(raw)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if err := revoked.BlacklistToken(c.Request.Context(), claims.JTI, logoutBlackTTL); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "auth backend error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"msg": "logged out"})
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshHandler rotates a refresh token: the old one is revoked and a new
// pair is issued.
func RefreshHandler(tokens *Tokens, revoked TokenStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refreshRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
			return
		}
		claims, err := tokens.Parse(req.RefreshToken)
		if err != nil || claims.Kind != KindRefresh {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}
		if black, err := revoked.IsTokenBlacklisted(c.Request.Context(), claims.JTI); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "auth backend error"})
			return
		} else if black {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
			return
		}
		if err := revoked.BlacklistToken(c.Request.Context(), claims.JTI, tokens.RefreshTTL()); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "auth backend error"})
			return
		}
		access, err := tokens.Issue(KindAccess, claims.Subject)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
			return
		}
		refresh, err := tokens.Issue(KindRefresh, claims.Subject)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
			return
		}
		c.JSON(http.StatusOK, TokenResponse{AccessToken: access, RefreshToken: refresh, TokenType: "bearer"})
	}
}

func newOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

type resetRequestBody struct {
	Email string `json:"email"`
}

// PasswordResetRequestHandler mails a one-time code. The response does not
// reveal whether the address is registered.
func PasswordResetRequestHandler(otps OTPStore, mailer mail.Mailer) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resetRequestBody
		if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
			return
		}
		otp, err := newOTP()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "otp error"})
			return
		}
		if err := otps.StoreOTP(c.Request.Context(), req.Email, otp, otpTTL); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "otp error"})
			return
		}
		if err := mailer.Send(req.Email, "Password Reset OTP", "Your OTP is: "+otp); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "mail error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"msg": "OTP sent to email"})
	}
}

type resetVerifyBody struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"new_password"`
}

func PasswordResetVerifyHandler(otps OTPStore, users user.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req resetVerifyBody
		if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.OTP == "" || req.NewPassword == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email, otp and new_password are required"})
			return
		}
		ok, err := otps.VerifyOTP(c.Request.Context(), req.Email, req.OTP)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "otp error"})
			return
		}
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or expired OTP"})
			return
		}
		u, err := users.GetByEmail(c.Request.Context(), req.Email)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		hash, err := HashPassword(req.NewPassword)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "hash error"})
			return
		}
		if _, err := users.Update(c.Request.Context(), u.ID, user.Patch{PasswordHash: &hash}); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "update error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"msg": "password reset successful"})
	}
}
