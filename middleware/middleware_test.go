package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"loopfan-backend/apperrors"
	"loopfan-backend/auth"
	"loopfan-backend/models"
	"loopfan-backend/store"
)

func init() {
	gin.SetMode(gin.TestMode)
	UseJSONFieldNames()
}

type envelope struct {
	Success bool `json:"success"`
	Error   struct {
		Message string                 `json:"message"`
		Details []apperrors.FieldError `json:"details"`
		Stack   string                 `json:"stack"`
	} `json:"error"`
}

func newEngine(production bool) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), ErrorHandler(zap.NewNop(), production), Recovery(zap.NewNop()))
	r.NoRoute(NoRoute)
	return r
}

func do(r http.Handler, method, path, body string, header map[string]string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

func TestErrorHandlerValidation(t *testing.T) {
	r := newEngine(true)
	r.POST("/nonce", func(c *gin.Context) {
		var req models.NonceRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(err)
			return
		}
		c.Status(http.StatusOK)
	})

	w, env := do(r, http.MethodPost, "/nonce", `{"address":"nope"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "Validation failed", env.Error.Message)
	require.Len(t, env.Error.Details, 1)
	assert.Equal(t, "address", env.Error.Details[0].Field)
	assert.Equal(t, "Invalid Ethereum address", env.Error.Details[0].Message)
}

func TestErrorHandlerInternal(t *testing.T) {
	cause := errors.New("connection refused")

	t.Run("production hides the cause", func(t *testing.T) {
		r := newEngine(true)
		r.GET("/boom", func(c *gin.Context) { _ = c.Error(apperrors.Internal("Failed to get tips", cause)) })

		w, env := do(r, http.MethodGet, "/boom", "", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Failed to get tips", env.Error.Message)
		assert.Empty(t, env.Error.Stack)
		assert.NotContains(t, w.Body.String(), "connection refused")
	})

	t.Run("development shows the cause", func(t *testing.T) {
		r := newEngine(false)
		r.GET("/boom", func(c *gin.Context) { _ = c.Error(apperrors.Internal("Failed to get tips", cause)) })

		_, env := do(r, http.MethodGet, "/boom", "", nil)
		assert.Equal(t, "connection refused", env.Error.Stack)
	})

	t.Run("unknown errors are generic", func(t *testing.T) {
		r := newEngine(true)
		r.GET("/boom", func(c *gin.Context) { _ = c.Error(cause) })

		w, env := do(r, http.MethodGet, "/boom", "", nil)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "Internal Server Error", env.Error.Message)
	})
}

func TestRecoveryAndNoRoute(t *testing.T) {
	r := newEngine(true)
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })

	w, env := do(r, http.MethodGet, "/panic", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal Server Error", env.Error.Message)

	w, env = do(r, http.MethodGet, "/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Route not found", env.Error.Message)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

type fakeUsers map[string]*models.User

func (f fakeUsers) FindUser(_ context.Context, address string) (*models.User, error) {
	if u, ok := f[address]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

type brokenUsers struct{}

func (brokenUsers) FindUser(context.Context, string) (*models.User, error) {
	return nil, errors.New("dial tcp 127.0.0.1:5432: connection refused")
}

func TestAuthRejectsUniformly(t *testing.T) {
	tokens := auth.NewTokens([]byte("secret"), time.Hour)
	users := fakeUsers{"0xcreator": {Address: "0xcreator", IsCreator: true}}

	r := newEngine(true)
	r.GET("/me", Auth(tokens, users, zap.NewNop()), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"address": CurrentAddress(c), "isCreator": IsCreator(c)})
	})

	valid, err := tokens.Issue("0xCREATOR")
	require.NoError(t, err)
	unknown, err := tokens.Issue("0xghost")
	require.NoError(t, err)
	expired, err := auth.NewTokens([]byte("secret"), -time.Minute).Issue("0xcreator")
	require.NoError(t, err)
	forged, err := auth.NewTokens([]byte("other"), time.Hour).Issue("0xcreator")
	require.NoError(t, err)

	cases := map[string]string{
		"missing header": "",
		"wrong scheme":   "Basic " + valid,
		"empty token":    "Bearer ",
		"garbage":        "Bearer not.a.jwt",
		"expired":        "Bearer " + expired,
		"wrong secret":   "Bearer " + forged,
		"unknown user":   "Bearer " + unknown,
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			w, env := do(r, http.MethodGet, "/me", "", map[string]string{"Authorization": header})
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Invalid token.", env.Error.Message)
		})
	}

	w, _ := do(r, http.MethodGet, "/me", "", map[string]string{"Authorization": "Bearer " + valid})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"address":"0xcreator","isCreator":true}`, w.Body.String())
}

func TestAuthLookupFailureIsServerError(t *testing.T) {
	tokens := auth.NewTokens([]byte("secret"), time.Hour)
	reached := false

	r := newEngine(true)
	r.GET("/me", Auth(tokens, brokenUsers{}, zap.NewNop()), func(c *gin.Context) {
		reached = true
	})

	valid, err := tokens.Issue("0xcreator")
	require.NoError(t, err)
	w, env := do(r, http.MethodGet, "/me", "", map[string]string{"Authorization": "Bearer " + valid})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Authentication failed", env.Error.Message)
	assert.NotContains(t, w.Body.String(), "connection refused")
	assert.False(t, reached)
}
