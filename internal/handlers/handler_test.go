package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-ticket-engine/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	t      *testing.T
	router *gin.Engine
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := services.DefaultEngineConfig()
	cfg.Accounts.BcryptCost = bcrypt.MinCost
	engine := services.NewEngine(cfg, logger)

	router := gin.New()
	v1 := router.Group("/api/v1")
	NewUserHandler(engine, 10, logger).RegisterRoutes(v1)
	NewTrainHandler(engine, logger).RegisterRoutes(v1)
	NewOrderHandler(engine, logger).RegisterRoutes(v1)
	NewAdminHandler(engine, nil, "test", logger).RegisterRoutes(v1)
	return &testServer{t: t, router: router}
}

func (s *testServer) do(method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	}
	return w, decoded
}

func (s *testServer) setup() {
	s.t.Helper()
	w, _ := s.do("POST", "/api/v1/users", gin.H{
		"username": "root", "password": "root-pw", "name": "Root", "mail": "root@example.com",
	})
	require.Equal(s.t, http.StatusCreated, w.Code)
	w, _ = s.do("POST", "/api/v1/sessions", gin.H{"username": "root", "password": "root-pw"})
	require.Equal(s.t, http.StatusCreated, w.Code)
	w, _ = s.do("POST", "/api/v1/trains", trainBody())
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	w, _ = s.do("POST", "/api/v1/trains/T1/release", nil)
	require.Equal(s.t, http.StatusOK, w.Code)
}

func trainBody() gin.H {
	return gin.H{
		"train_id":       "T1",
		"station_num":    3,
		"seat_num":       2,
		"stations":       []string{"A", "B", "C"},
		"prices":         []int{10, 20},
		"start_time":     "08:00",
		"travel_times":   []int{60, 80},
		"stopover_times": []int{10},
		"sale_date":      []string{"2024-06-01", "2024-06-03"},
		"type":           "G",
	}
}

func buyBody(seats int, queue bool) gin.H {
	return gin.H{
		"username": "root",
		"train_id": "T1",
		"date":     "2024-06-01",
		"from":     "A",
		"to":       "C",
		"seats":    seats,
		"queue":    queue,
	}
}

func TestUserRoutes(t *testing.T) {
	s := newTestServer(t)

	w, body := s.do("POST", "/api/v1/users", gin.H{
		"username": "root", "password": "root-pw", "name": "Root", "mail": "root@example.com",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, float64(10), body["privilege"], "blank privilege takes the default")
	assert.NotContains(t, body, "password_hash")

	t.Run("Duplicate", func(t *testing.T) {
		w, body := s.do("POST", "/api/v1/users", gin.H{
			"caller": "root", "username": "root", "password": "x12345", "name": "R", "mail": "r@example.com", "privilege": 1,
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "DUPLICATE", body["code"])
	})

	t.Run("Missing Fields", func(t *testing.T) {
		w, body := s.do("POST", "/api/v1/users", gin.H{"username": "bob"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "validation_error", body["error"])
	})

	t.Run("Bad Credential", func(t *testing.T) {
		w, body := s.do("POST", "/api/v1/sessions", gin.H{"username": "root", "password": "wrong-pw"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "BAD_CREDENTIAL", body["code"])
	})

	t.Run("Login Twice", func(t *testing.T) {
		w, _ := s.do("POST", "/api/v1/sessions", gin.H{"username": "root", "password": "root-pw"})
		require.Equal(t, http.StatusCreated, w.Code)
		w, body := s.do("POST", "/api/v1/sessions", gin.H{"username": "root", "password": "root-pw"})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "ALREADY_LOGGED_IN", body["code"])
	})

	t.Run("Profile", func(t *testing.T) {
		w, body := s.do("GET", "/api/v1/users/root?caller=root", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "root@example.com", body["mail"])

		w, _ = s.do("GET", "/api/v1/users/root", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w, body = s.do("PATCH", "/api/v1/users/root", gin.H{"caller": "root", "name": "Station Master"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "Station Master", body["name"])

		w, body = s.do("GET", "/api/v1/users/nobody?caller=root", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "NOT_FOUND", body["code"])
	})

	t.Run("Logout", func(t *testing.T) {
		w, _ := s.do("DELETE", "/api/v1/sessions/root", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		w, body := s.do("DELETE", "/api/v1/sessions/root", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "NOT_LOGGED_IN", body["code"])
	})
}

func TestTrainRoutes(t *testing.T) {
	s := newTestServer(t)
	s.setup()

	t.Run("Release Twice", func(t *testing.T) {
		w, body := s.do("POST", "/api/v1/trains/T1/release", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "ALREADY_RELEASED", body["code"])

		w, _ = s.do("DELETE", "/api/v1/trains/T1", nil)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("Malformed Train", func(t *testing.T) {
		bad := trainBody()
		bad["train_id"] = "T2"
		bad["station_num"] = 4
		w, _ := s.do("POST", "/api/v1/trains", bad)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Schedule", func(t *testing.T) {
		w, body := s.do("GET", "/api/v1/trains/T1?date=2024-06-02", nil)
		require.Equal(t, http.StatusOK, w.Code)
		stops := body["stops"].([]interface{})
		assert.Len(t, stops, 3)

		w, _ = s.do("GET", "/api/v1/trains/T1", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w, _ = s.do("GET", "/api/v1/trains/T1?date=2024-07-01", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("Tickets", func(t *testing.T) {
		w, body := s.do("GET", "/api/v1/tickets?from=A&to=C&date=2024-06-01&sort=cost", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(1), body["count"])

		w, body = s.do("GET", "/api/v1/tickets?from=C&to=A&date=2024-06-01", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []interface{}{}, body["results"])

		w, body = s.do("GET", "/api/v1/tickets?from=A&to=A&date=2024-06-01", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(0), body["count"])

		w, _ = s.do("GET", "/api/v1/tickets?from=A&to=C&date=2024-06-01&sort=fastest", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)

		w, _ = s.do("GET", "/api/v1/tickets?from=A&date=2024-06-01", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("Transfers", func(t *testing.T) {
		w, body := s.do("GET", "/api/v1/transfers?from=A&to=C&date=2024-06-01", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(0), body["count"], "a single train is never a transfer")
	})
}

func TestOrderRoutes(t *testing.T) {
	s := newTestServer(t)
	s.setup()

	w, body := s.do("POST", "/api/v1/orders", buyBody(2, false))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "purchased", body["outcome"])
	assert.Equal(t, float64(60), body["price"])

	w, body = s.do("POST", "/api/v1/orders", buyBody(1, false))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SOLD_OUT", body["code"])

	w, body = s.do("POST", "/api/v1/orders", buyBody(1, true))
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "queued", body["outcome"])
	assert.Equal(t, float64(0), body["price"], "a queued order is not charged")
	assert.Equal(t, float64(30), body["order"].(map[string]interface{})["price"])

	w, body = s.do("GET", "/api/v1/users/root/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	orders := body["orders"].([]interface{})
	require.Len(t, orders, 2)
	assert.Equal(t, "pending", orders[0].(map[string]interface{})["status"], "newest first")

	w, body = s.do("POST", "/api/v1/users/root/orders/1/refund", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE", body["code"])

	w, body = s.do("POST", "/api/v1/users/root/orders/2/refund", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "refunded", body["status"])

	_, body = s.do("GET", "/api/v1/users/root/orders", nil)
	orders = body["orders"].([]interface{})
	assert.Equal(t, "success", orders[0].(map[string]interface{})["status"], "queued order promoted by the refund")

	for _, path := range []string{
		"/api/v1/users/root/orders/0/refund",
		"/api/v1/users/root/orders/abc/withdraw",
	} {
		w, _ = s.do("POST", path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}

	w, _ = s.do("POST", "/api/v1/users/root/orders/9/withdraw", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	t.Run("Not Logged In", func(t *testing.T) {
		body := buyBody(1, false)
		body["username"] = "ghost"
		w, _ := s.do("POST", "/api/v1/orders", body)
		assert.Contains(t, []int{http.StatusUnauthorized, http.StatusNotFound}, w.Code)
	})
}

func TestAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	s.setup()

	w, body := s.do("GET", "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "disabled", body["database"])
	engine := body["engine"].(map[string]interface{})
	assert.Equal(t, float64(1), engine["trains"])

	w, _ = s.do("POST", "/api/v1/admin/clean", nil)
	require.Equal(t, http.StatusOK, w.Code)

	_, body = s.do("GET", "/api/v1/health", nil)
	engine = body["engine"].(map[string]interface{})
	assert.Equal(t, float64(0), engine["trains"])
	assert.Equal(t, float64(0), engine["users"])
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrDuplicate, http.StatusConflict},
		{services.ErrAlreadyReleased, http.StatusConflict},
		{services.ErrAlreadyLoggedIn, http.StatusConflict},
		{services.ErrInvalidState, http.StatusConflict},
		{services.ErrSoldOut, http.StatusConflict},
		{services.ErrPrivilegeDenied, http.StatusForbidden},
		{services.ErrBadCredential, http.StatusUnauthorized},
		{services.ErrNotLoggedIn, http.StatusUnauthorized},
		{services.ErrInvalidArgument, http.StatusBadRequest},
		{services.ErrStorage, http.StatusInternalServerError},
		{fmt.Errorf("unexpected"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, errorStatus(fmt.Errorf("wrapped: %w", tt.err)))
		})
	}
}
