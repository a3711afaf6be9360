package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestCorrelationIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	serve := func(header string) (*httptest.ResponseRecorder, string, string) {
		router := gin.New()
		router.Use(CorrelationID())
		var fromGin, fromCtx string
		router.GET("/test", func(c *gin.Context) {
			fromGin = GetCorrelationID(c)
			fromCtx = CorrelationIDFromContext(c.Request.Context())
			c.Status(http.StatusOK)
		})

		req, _ := http.NewRequest(http.MethodGet, "/test", nil)
		if header != "" {
			req.Header.Set(CorrelationIDHeader, header)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr, fromGin, fromCtx
	}

	t.Run("GeneratesCorrelationIDIfNotProvided", func(t *testing.T) {
		rr, fromGin, fromCtx := serve("")

		respHeaderID := rr.Header().Get(CorrelationIDHeader)
		_, err := uuid.Parse(respHeaderID)
		assert.NoError(t, err, "generated id should be a UUID")
		assert.Equal(t, respHeaderID, fromGin)
		assert.Equal(t, respHeaderID, fromCtx)
	})

	t.Run("UsesCorrelationIDIfProvided", func(t *testing.T) {
		rr, fromGin, fromCtx := serve("bot-session-42")

		assert.Equal(t, "bot-session-42", rr.Header().Get(CorrelationIDHeader))
		assert.Equal(t, "bot-session-42", fromGin)
		assert.Equal(t, "bot-session-42", fromCtx)
	})

	t.Run("ReplacesOversizedCorrelationID", func(t *testing.T) {
		rr, fromGin, _ := serve(strings.Repeat("x", 200))

		assert.NotEqual(t, strings.Repeat("x", 200), fromGin)
		_, err := uuid.Parse(rr.Header().Get(CorrelationIDHeader))
		assert.NoError(t, err)
	})
}

func TestGetCorrelationID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetCorrelationID(c))

	c.Set(CorrelationIDKey, 12345)
	assert.Empty(t, GetCorrelationID(c), "non-string values are ignored")

	c.Set(CorrelationIDKey, "abc")
	assert.Equal(t, "abc", GetCorrelationID(c))
}
