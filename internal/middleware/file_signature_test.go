package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codechat/internal/utils"
)

func newSignedRouter(signer *utils.FileSigner) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/files/:id", FileSignature(signer), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("fileID"))
	})
	return r
}

func TestFileSignature(t *testing.T) {
	signer := utils.NewFileSigner("secret")
	r := newSignedRouter(signer)

	token, err := signer.GenerateFileToken("abc")
	require.NoError(t, err)
	other, err := signer.GenerateFileToken("xyz")
	require.NoError(t, err)

	tests := []struct {
		name string
		url  string
		code int
	}{
		{"valid", "/files/abc?sig=" + token, http.StatusOK},
		{"missing", "/files/abc", http.StatusForbidden},
		{"other file", "/files/abc?sig=" + other, http.StatusForbidden},
		{"garbage", "/files/abc?sig=garbage", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.url, nil))
			assert.Equal(t, tt.code, w.Code)
			if tt.code == http.StatusOK {
				assert.Equal(t, "abc", w.Body.String())
			}
		})
	}
}
