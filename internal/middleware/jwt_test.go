package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-for-unit-tests"

func init() {
	gin.SetMode(gin.TestMode)
}

func newProtectedRouter() *gin.Engine {
	r := gin.New()
	r.Use(JWTAuth(testSecret))
	r.GET("/protected", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("subject"))
	})
	return r
}

func request(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestGenerateToken(t *testing.T) {
	before := time.Now()
	tokenString, err := GenerateToken(testSecret, "owner@example.com", time.Hour)
	require.NoError(t, err)

	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(testSecret), nil
	})
	require.NoError(t, err)
	assert.True(t, token.Valid)
	assert.Equal(t, "owner@example.com", claims.Subject)
	assert.Equal(t, "label-notifier", claims.Issuer)
	assert.WithinDuration(t, before.Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestJWTAuth(t *testing.T) {
	r := newProtectedRouter()

	valid, err := GenerateToken(testSecret, "owner@example.com", time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken(testSecret, "owner@example.com", -time.Hour)
	require.NoError(t, err)
	wrongSecret, err := GenerateToken("another-secret", "owner@example.com", time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name          string
		authorization string
		status        int
	}{
		{"valid token", "Bearer " + valid, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"not a bearer token", "Basic dXNlcjpwYXNz", http.StatusUnauthorized},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + wrongSecret, http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := request(r, tc.authorization)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "owner@example.com", w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"error":"unauthorized"`)
			}
		})
	}
}
