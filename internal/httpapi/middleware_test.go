package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(APIKeyAuth("correct-key"))
	router.GET("/ping", func(c *gin.Context) { RespondOK(c, gin.H{"pong": true}) })
	return router
}

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
	}{
		{name: "valid key header", header: HeaderAPIKey, value: "correct-key", wantStatus: http.StatusOK},
		{name: "valid bearer token", header: "Authorization", value: "Bearer correct-key", wantStatus: http.StatusOK},
		{name: "wrong key", header: HeaderAPIKey, value: "wrong-key", wantStatus: http.StatusUnauthorized},
		{name: "missing key", wantStatus: http.StatusUnauthorized},
	}

	router := newAuthRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}
