package blob

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/ecom-backend/internal/auth"
)

const presignTTL = time.Hour

// UploadHandler proxies a multipart upload into the blob store and returns
// the key plus a presigned download URL.
func UploadHandler(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := auth.CurrentUser(c)
		file, header, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		key, err := store.Put(c.Request.Context(), data, header.Filename,
			header.Header.Get("Content-Type"), u.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		url, err := store.PresignGet(c.Request.Context(), key, presignTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"file_key": key, "download_url": url})
	}
}

func GetURLHandler(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		if key == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing file key"})
			return
		}
		url, err := store.PresignGet(c.Request.Context(), key, presignTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"file_key": key, "download_url": url})
	}
}

func DeleteHandler(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimPrefix(c.Param("key"), "/")
		if key == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing file key"})
			return
		}
		if err := store.Delete(c.Request.Context(), key); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"file_key": key, "message": "file deleted successfully"})
	}
}
