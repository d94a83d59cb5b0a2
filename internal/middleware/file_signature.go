package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"codechat/internal/utils"
)

// FileSignature 是一個 Gin 中間件，驗證附件連結上的 sig 參數是否對應路徑中的附件 ID
func FileSignature(signer *utils.FileSigner) gin.HandlerFunc {
	return func(c *gin.Context) {
		sig := c.Query("sig")
		if sig == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "missing file signature"})
			return
		}

		claims, err := signer.ParseFileToken(sig)
		if err != nil || claims.FileID != c.Param("id") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid file signature"})
			return
		}

		c.Set("fileID", claims.FileID)
		c.Next()
	}
}
