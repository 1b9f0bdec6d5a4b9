package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "middleware-secret"

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return tok
}

func newRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", AuthMiddleware(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetUserID(c), "role": GetUserRole(c)})
	})
	r.GET("/admin", AuthMiddleware(secret), AdminOnly(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	r.GET("/maybe", OptionalAuth(secret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"id": GetUserID(c)})
	})
	return r
}

func get(r *gin.Engine, path, tok string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter()
	userID := uuid.New()
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{"valid", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": userID.String(), "role": "user", "exp": exp}), http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong secret", sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": userID.String(), "exp": exp}), http.StatusUnauthorized},
		{"wrong algorithm", sign(t, jwt.SigningMethodHS512, []byte(secret), jwt.MapClaims{"sub": userID.String(), "exp": exp}), http.StatusUnauthorized},
		{"expired", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": userID.String(), "exp": time.Now().Add(-time.Minute).Unix()}), http.StatusUnauthorized},
		{"bad subject", sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": "nobody", "exp": exp}), http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(r, "/me", tt.token)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"id":"`+userID.String()+`","role":"user"}`, w.Body.String())
			}
		})
	}
}

func TestAdminOnly(t *testing.T) {
	r := newRouter()
	exp := time.Now().Add(time.Hour).Unix()

	user := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": uuid.NewString(), "role": "user", "exp": exp})
	admin := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": uuid.NewString(), "role": "admin", "exp": exp})

	assert.Equal(t, http.StatusForbidden, get(r, "/admin", user).Code)
	assert.Equal(t, http.StatusNoContent, get(r, "/admin", admin).Code)
}

func TestOptionalAuth(t *testing.T) {
	r := newRouter()
	userID := uuid.New()
	exp := time.Now().Add(time.Hour).Unix()

	valid := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": userID.String(), "role": "user", "exp": exp})
	w := get(r, "/maybe", valid)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"`+userID.String()+`"}`, w.Body.String())

	anonymous := `{"id":"` + uuid.Nil.String() + `"}`
	w = get(r, "/maybe", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, anonymous, w.Body.String())

	expired := sign(t, jwt.SigningMethodHS256, []byte(secret), jwt.MapClaims{"sub": userID.String(), "exp": time.Now().Add(-time.Minute).Unix()})
	w = get(r, "/maybe", expired)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, anonymous, w.Body.String())
}

func TestRegisterValidators(t *testing.T) {
	require.NoError(t, RegisterValidators())

	type form struct {
		Pincode string `json:"pincode" binding:"pincode"`
	}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/", func(c *gin.Context) {
		var f form
		if err := c.ShouldBindJSON(&f); err != nil {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	for body, want := range map[string]int{`{"pincode":"560001"}`: http.StatusOK, `{"pincode":"060001"}`: http.StatusBadRequest} {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, body)
	}
}
