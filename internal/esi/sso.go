package esi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/nurpe/freight/internal/model"
	"github.com/nurpe/freight/internal/service"
)

// tokenSkew is subtracted from the access token expiry before it is reused.
const tokenSkew = time.Minute

type TokenStore interface {
	GetToken(ctx context.Context, characterID int64) (*model.Token, error)
	SaveToken(ctx context.Context, token model.Token) error
}

type SSOConfig struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// TokenProvider hands out access tokens for stored characters, refreshing
// them against the SSO when needed.
type TokenProvider struct {
	store TokenStore
	cfg   SSOConfig
	http  *http.Client
	now   func() time.Time
	log   zerolog.Logger
}

func NewTokenProvider(store TokenStore, cfg SSOConfig, httpClient *http.Client, log zerolog.Logger) *TokenProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &TokenProvider{
		store: store,
		cfg:   cfg,
		http:  httpClient,
		now:   time.Now,
		log:   log.With().Str("component", "sso").Logger(),
	}
}

// ssoClaims are the claims read from an SSO access token. Signatures are
// not verified.
type ssoClaims struct {
	Scopes jwt.ClaimStrings `json:"scp"`
	jwt.RegisteredClaims
}

type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Error        string `json:"error"`
}

func (p *TokenProvider) GetValidToken(ctx context.Context, characterID int64, scopes []string) (string, error) {
	stored, err := p.store.GetToken(ctx, characterID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: character %d", service.ErrNoToken, characterID)
		}
		return "", err
	}

	now := p.now()
	if stored.Valid(now.Add(tokenSkew), scopes) {
		return stored.AccessToken, nil
	}
	if stored.RefreshToken == "" {
		return "", fmt.Errorf("%w: character %d has no refresh token", service.ErrNoToken, characterID)
	}

	refreshed, err := p.refresh(ctx, stored.RefreshToken)
	if err != nil {
		return "", err
	}

	claims, err := parseAccessToken(refreshed.AccessToken)
	if err != nil {
		return "", err
	}
	if claims.ExpiresAt == nil || !now.Before(claims.ExpiresAt.Time) {
		return "", fmt.Errorf("%w: access token for character %d", service.ErrTokenExpired, characterID)
	}
	if subject := characterFromSubject(claims.Subject); subject != characterID {
		return "", fmt.Errorf("%w: token subject %q does not match character %d", service.ErrTokenInvalid, claims.Subject, characterID)
	}
	granted := []string(claims.Scopes)
	if !model.HasScopes(granted, scopes) {
		return "", fmt.Errorf("%w: character %d lacks %s", service.ErrInsufficientPermissions, characterID, strings.Join(scopes, " "))
	}

	token := model.Token{
		CharacterID:  characterID,
		RefreshToken: stored.RefreshToken,
		AccessToken:  refreshed.AccessToken,
		ExpiresAt:    claims.ExpiresAt.Time,
		Scopes:       granted,
		UpdatedAt:    now.UTC(),
	}
	if refreshed.RefreshToken != "" {
		token.RefreshToken = refreshed.RefreshToken
	}
	if err := p.store.SaveToken(ctx, token); err != nil {
		p.log.Warn().Err(err).Int64("character_id", characterID).Msg("failed to persist refreshed token")
	}
	return token.AccessToken, nil
}

func (p *TokenProvider) refresh(ctx context.Context, refreshToken string) (*refreshResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := p.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: sso: %v", service.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var body refreshResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch {
	case resp.StatusCode == http.StatusOK && body.AccessToken != "":
		return &body, nil
	case resp.StatusCode == http.StatusBadRequest && body.Error == "invalid_grant":
		return nil, fmt.Errorf("%w: refresh token rejected", service.ErrTokenExpired)
	case resp.StatusCode == http.StatusBadRequest, resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: sso responded %d %s", service.ErrTokenInvalid, resp.StatusCode, body.Error)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: sso responded %d", service.ErrUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("sso responded %d", resp.StatusCode)
	}
}

func parseAccessToken(raw string) (*ssoClaims, error) {
	claims := &ssoClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrTokenInvalid, err)
	}
	return claims, nil
}

// characterFromSubject parses subjects of the form CHARACTER:EVE:<id>.
func characterFromSubject(subject string) int64 {
	idx := strings.LastIndex(subject, ":")
	id, err := strconv.ParseInt(subject[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
