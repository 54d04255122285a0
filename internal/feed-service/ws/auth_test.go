package ws

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_IssueAndValidate(t *testing.T) {
	a := NewAuthenticator("s3cret")
	tok, err := a.Issue("user-1", time.Minute)
	require.NoError(t, err)

	uid, err := a.Validate(tok)
	require.NoError(t, err)
	assert.Equal(t, "user-1", uid)
}

func TestAuthenticator_RejectsBadTokens(t *testing.T) {
	a := NewAuthenticator("s3cret")
	other := NewAuthenticator("other")

	expired, err := a.Issue("user-1", -time.Minute)
	require.NoError(t, err)
	foreign, err := other.Issue("user-1", time.Minute)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: "user-1",
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"garbage":    "not-a-jwt",
		"expired":    expired,
		"signature":  foreign,
		"no subject": noSubject,
		"no expiry":  noExpiry,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := a.Validate(tok)
			assert.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestNewAuthenticator_EmptySecretDisablesAuth(t *testing.T) {
	assert.Nil(t, NewAuthenticator(""))
}

func TestTokenFromRequest_Precedence(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	r.Header.Set("Authorization", "Bearer from-header")
	r.AddCookie(&http.Cookie{Name: "access_token", Value: "from-cookie"})
	assert.Equal(t, "from-header", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	r.AddCookie(&http.Cookie{Name: "access_token", Value: "from-cookie"})
	assert.Equal(t, "from-query", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.AddCookie(&http.Cookie{Name: "access_token", Value: "from-cookie"})
	assert.Equal(t, "from-cookie", TokenFromRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, TokenFromRequest(r))
}

func TestTokenFromRequest_BearerSchemeIgnoresCase(t *testing.T) {
	for _, h := range []string{"bearer tok-1", "BEARER tok-1", "Bearer   tok-1 "} {
		r := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
		r.Header.Set("Authorization", h)
		assert.Equal(t, "tok-1", TokenFromRequest(r), h)
	}

	r := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	r.Header.Set("Authorization", "Bearer ")
	assert.Equal(t, "from-query", TokenFromRequest(r), "empty bearer falls through")
}
