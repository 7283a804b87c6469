package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRouter(logger *logrus.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID(), RequestLogger(logger))
	router.GET("/trains/:id", func(c *gin.Context) {
		if c.Param("id") == "missing" {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"train_id": c.Param("id")})
	})
	router.GET("/boom", func(c *gin.Context) {
		c.Status(http.StatusInternalServerError)
	})
	return router
}

func TestRequestLogger(t *testing.T) {
	logger, hook := test.NewNullLogger()
	router := setupRouter(logger)

	t.Run("Success", func(t *testing.T) {
		hook.Reset()
		req := httptest.NewRequest("GET", "/trains/G1?date=2024-06-01", nil)
		req.Header.Set("User-Agent", "curl/8.4.0")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		entry := hook.LastEntry()
		require.NotNil(t, entry)
		assert.Equal(t, logrus.InfoLevel, entry.Level)
		assert.Equal(t, 200, entry.Data["status"])
		assert.Equal(t, "/trains/:id", entry.Data["route"])
		assert.Equal(t, "date=2024-06-01", entry.Data["query"])
		assert.Equal(t, "cli", entry.Data["platform"])
		assert.Equal(t, w.Header().Get(RequestIDHeader), entry.Data[RequestIDKey])
	})

	t.Run("Client Error", func(t *testing.T) {
		hook.Reset()
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/trains/missing", nil))

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	})

	t.Run("Server Error", func(t *testing.T) {
		hook.Reset()
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("GET", "/boom", nil))

		assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	})
}

func TestRequestID(t *testing.T) {
	logger, _ := test.NewNullLogger()
	router := setupRouter(logger)

	t.Run("Keeps Valid Header", func(t *testing.T) {
		id := uuid.NewString()
		req := httptest.NewRequest("GET", "/trains/G1", nil)
		req.Header.Set(RequestIDHeader, id)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, id, w.Header().Get(RequestIDHeader))
	})

	t.Run("Replaces Invalid Header", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/trains/G1", nil)
		req.Header.Set(RequestIDHeader, "<script>")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		got := w.Header().Get(RequestIDHeader)
		assert.NotEqual(t, "<script>", got)
		_, err := uuid.Parse(got)
		assert.NoError(t, err)
	})
}
