package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAuth() *Service {
	svc := NewService("test-secret")
	svc.RegisterAPICredentials("key", "secret")
	return svc
}

func TestGenerateToken(t *testing.T) {
	svc := newTestAuth()

	resp, err := svc.GenerateToken(Credentials{APIKey: "key", APISecret: "secret"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), resp.Expiration, time.Minute)

	// The token carries the client id and verifies against the secret.
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(resp.Token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.True(t, parsed.Valid)
	assert.Equal(t, "key", claims.ClientID)
}

func TestGenerateToken_InvalidCredentials(t *testing.T) {
	svc := newTestAuth()

	_, err := svc.GenerateToken(Credentials{APIKey: "key", APISecret: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.GenerateToken(Credentials{APIKey: "unknown", APISecret: "secret"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestGenerateTokenHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/token", NewGinHandlers(newTestAuth()).GenerateTokenHandler())

	post := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("valid credentials", func(t *testing.T) {
		w := post(`{"api_key":"key","api_secret":"secret"}`)
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, w.Body.String(), "jwt_token")
	})

	t.Run("bad credentials", func(t *testing.T) {
		w := post(`{"api_key":"key","api_secret":"nope"}`)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		w := post(`{`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
