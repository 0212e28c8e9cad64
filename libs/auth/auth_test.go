package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHS256RoundTrip(t *testing.T) {
	now := time.Now()
	claims := Claims{Sub: "prov-1", Role: RoleProvider, Iat: now.Unix(), Exp: now.Add(time.Hour).Unix()}

	token, err := SignHS256(claims, "test-secret")
	require.NoError(t, err)

	parsed, err := VerifyHS256(token, "test-secret", now)
	require.NoError(t, err)
	assert.Equal(t, claims, *parsed)

	_, err = VerifyHS256(token, "wrong-secret", now)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = VerifyHS256(token, "test-secret", now.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyHS256_RejectsMalformed(t *testing.T) {
	for _, token := range []string{"", "a.b", "a.b.c", "eyJhbGciOiJub25lIn0.e30."} {
		_, err := VerifyHS256(token, "s", time.Now())
		assert.ErrorIs(t, err, ErrInvalidToken, token)
	}
}

func TestCanManageProvider(t *testing.T) {
	assert.True(t, Claims{Sub: "p1", Role: RoleProvider}.CanManageProvider("p1"))
	assert.False(t, Claims{Sub: "p1", Role: RoleProvider}.CanManageProvider("p2"))
	assert.True(t, Claims{Sub: "ops", Role: RoleAdmin}.CanManageProvider("p2"))
	assert.False(t, Claims{Sub: "p1", Role: "client"}.CanManageProvider("p1"))
}

func TestRequireBearer(t *testing.T) {
	var seen *Claims
	h := RequireBearer("secret", http.MethodPut)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Nil(t, seen)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/", strings.NewReader("{}")))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := SignHS256(Claims{Sub: "prov-1", Role: RoleProvider}, "secret")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader("{}"))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "prov-1", seen.Sub)
}
