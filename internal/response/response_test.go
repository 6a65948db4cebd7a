package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestFailWithRedirectEnvelope(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware(zerolog.Nop()))
	r.GET("/x", func(c *gin.Context) {
		FailWithRedirect(c, http.StatusNotFound, ErrQuizNotFound, "/quizzes")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-ID", "not-a-uuid")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var body Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == nil || body.Error.Code != ErrQuizNotFound || body.Error.Redirect != "/quizzes" {
		t.Fatalf("unexpected error body: %+v", body.Error)
	}
	if body.Metadata.RequestID == "not-a-uuid" || body.Metadata.RequestID != w.Header().Get("X-Request-ID") {
		t.Fatalf("request id not regenerated: %q", body.Metadata.RequestID)
	}
}
