package esi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nurpe/freight/internal/model"
	"github.com/nurpe/freight/internal/service"
)

type memTokens struct {
	mu     sync.Mutex
	tokens map[int64]model.Token
	saved  int
}

func (m *memTokens) GetToken(_ context.Context, characterID int64) (*model.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[characterID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &token, nil
}

func (m *memTokens) SaveToken(_ context.Context, token model.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.CharacterID] = token
	m.saved++
	return nil
}

var scopes = []string{"esi-contracts.read_corporation_contracts.v1", "esi-universe.read_structures.v1"}

func accessToken(t *testing.T, subject string, granted []string, expires time.Time) string {
	t.Helper()
	claims := ssoClaims{
		Scopes: granted,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("sso"))
	require.NoError(t, err)
	return raw
}

func ssoServer(t *testing.T, status int, body map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "client", user)
		assert.Equal(t, "secret", pass)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func newProvider(server *httptest.Server, store TokenStore) *TokenProvider {
	return NewTokenProvider(store, SSOConfig{TokenURL: server.URL, ClientID: "client", ClientSecret: "secret"}, server.Client(), zerolog.Nop())
}

func TestTokenProvider_ReusesValidToken(t *testing.T) {
	store := &memTokens{tokens: map[int64]model.Token{
		90000001: {CharacterID: 90000001, RefreshToken: "refresh", AccessToken: "cached", ExpiresAt: time.Now().Add(10 * time.Minute), Scopes: scopes},
	}}
	server := ssoServer(t, http.StatusInternalServerError, nil)

	token, err := newProvider(server, store).GetValidToken(context.Background(), 90000001, scopes)
	require.NoError(t, err)
	assert.Equal(t, "cached", token)
	assert.Zero(t, store.saved)
}

func TestTokenProvider_Refresh(t *testing.T) {
	store := &memTokens{tokens: map[int64]model.Token{
		90000001: {CharacterID: 90000001, RefreshToken: "refresh"},
	}}
	access := accessToken(t, "CHARACTER:EVE:90000001", scopes, time.Now().Add(20*time.Minute))
	server := ssoServer(t, http.StatusOK, map[string]any{"access_token": access, "expires_in": 1199, "refresh_token": "rotated"})

	token, err := newProvider(server, store).GetValidToken(context.Background(), 90000001, scopes)
	require.NoError(t, err)
	assert.Equal(t, access, token)
	assert.Equal(t, "rotated", store.tokens[90000001].RefreshToken)
	assert.Equal(t, scopes, store.tokens[90000001].Scopes)
}

func TestTokenProvider_Errors(t *testing.T) {
	valid := time.Now().Add(20 * time.Minute)
	tests := []struct {
		name   string
		stored map[int64]model.Token
		status int
		body   map[string]any
		want   error
	}{
		{
			name:   "no token stored",
			stored: map[int64]model.Token{},
			status: http.StatusOK,
			want:   service.ErrNoToken,
		},
		{
			name:   "refresh rejected",
			stored: map[int64]model.Token{90000001: {CharacterID: 90000001, RefreshToken: "refresh"}},
			status: http.StatusBadRequest,
			body:   map[string]any{"error": "invalid_grant"},
			want:   service.ErrTokenExpired,
		},
		{
			name:   "sso down",
			stored: map[int64]model.Token{90000001: {CharacterID: 90000001, RefreshToken: "refresh"}},
			status: http.StatusServiceUnavailable,
			want:   service.ErrUnavailable,
		},
		{
			name:   "missing scope",
			stored: map[int64]model.Token{90000001: {CharacterID: 90000001, RefreshToken: "refresh"}},
			status: http.StatusOK,
			body:   map[string]any{"access_token": accessToken(t, "CHARACTER:EVE:90000001", scopes[:1], valid)},
			want:   service.ErrInsufficientPermissions,
		},
		{
			name:   "foreign character",
			stored: map[int64]model.Token{90000001: {CharacterID: 90000001, RefreshToken: "refresh"}},
			status: http.StatusOK,
			body:   map[string]any{"access_token": accessToken(t, "CHARACTER:EVE:90000009", scopes, valid)},
			want:   service.ErrTokenInvalid,
		},
		{
			name:   "garbage token",
			stored: map[int64]model.Token{90000001: {CharacterID: 90000001, RefreshToken: "refresh"}},
			status: http.StatusOK,
			body:   map[string]any{"access_token": "not-a-jwt"},
			want:   service.ErrTokenInvalid,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memTokens{tokens: tt.stored}
			server := ssoServer(t, tt.status, tt.body)
			_, err := newProvider(server, store).GetValidToken(context.Background(), 90000001, scopes)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
