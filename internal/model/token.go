package model

import "time"

// Token is the stored SSO credential of a character.
type Token struct {
	CharacterID  int64     `json:"character_id"`
	RefreshToken string    `json:"-"`
	AccessToken  string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scopes       []string  `json:"scopes"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Valid reports whether the access token is usable at now for all scopes.
func (t Token) Valid(now time.Time, scopes []string) bool {
	if t.AccessToken == "" || !now.Before(t.ExpiresAt) {
		return false
	}
	return HasScopes(t.Scopes, scopes)
}

func HasScopes(granted, required []string) bool {
	set := make(map[string]struct{}, len(granted))
	for _, scope := range granted {
		set[scope] = struct{}{}
	}
	for _, scope := range required {
		if _, ok := set[scope]; !ok {
			return false
		}
	}
	return true
}
