package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outsourcehub/Dbotx-Telegram-Contract-Scraper-AutoBuy/internal/utils"
)

func signToken(t *testing.T, key *rsa.PrivateKey, method jwt.SigningMethod, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func adminClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":  "ops-1",
		"role": "admin",
		"iss":  TokenIssuer,
		"exp":  time.Now().Add(time.Hour).Unix(),
	}
}

func TestAdminAuthMiddleware(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var seenAdmin string
	handler := AdminAuthMiddleware(&key.PublicKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenAdmin = AdminID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	with := func(mutate func(jwt.MapClaims)) jwt.MapClaims {
		c := adminClaims()
		mutate(c)
		return c
	}

	cases := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"valid", "Bearer " + signToken(t, key, jwt.SigningMethodRS256, adminClaims()), http.StatusNoContent, ""},
		{"missing header", "", http.StatusUnauthorized, utils.ErrCodeUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized, utils.ErrCodeUnauthorized},
		{"wrong key", "Bearer " + signToken(t, otherKey, jwt.SigningMethodRS256, adminClaims()), http.StatusUnauthorized, utils.ErrCodeUnauthorized},
		{"expired", "Bearer " + signToken(t, key, jwt.SigningMethodRS256, with(func(c jwt.MapClaims) {
			c["exp"] = time.Now().Add(-time.Minute).Unix()
		})), http.StatusUnauthorized, utils.ErrCodeTokenExpired},
		{"wrong issuer", "Bearer " + signToken(t, key, jwt.SigningMethodRS256, with(func(c jwt.MapClaims) {
			c["iss"] = "someone-else"
		})), http.StatusUnauthorized, utils.ErrCodeUnauthorized},
		{"missing exp", "Bearer " + signToken(t, key, jwt.SigningMethodRS256, with(func(c jwt.MapClaims) {
			delete(c, "exp")
		})), http.StatusUnauthorized, utils.ErrCodeUnauthorized},
		{"missing subject", "Bearer " + signToken(t, key, jwt.SigningMethodRS256, with(func(c jwt.MapClaims) {
			delete(c, "sub")
		})), http.StatusUnauthorized, utils.ErrCodeUnauthorized},
		{"not admin", "Bearer " + signToken(t, key, jwt.SigningMethodRS256, with(func(c jwt.MapClaims) {
			c["role"] = "user"
		})), http.StatusForbidden, utils.ErrCodeForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seenAdmin = ""
			req := httptest.NewRequest(http.MethodPost, "/verify/v1/admin/cleanup", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			require.Equal(t, tc.status, rr.Code)
			if tc.code == "" {
				assert.Equal(t, "ops-1", seenAdmin)
				return
			}
			assert.Empty(t, seenAdmin)
			var body utils.ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, tc.code, body.Code)
		})
	}
}

func TestValidateTokenRejectsHMAC(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, adminClaims()).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = ValidateToken(hs, &key.PublicKey)
	assert.Error(t, err)
}
