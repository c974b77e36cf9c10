package esi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/nurpe/freight/internal/model"
	"github.com/nurpe/freight/internal/service"
)

const userAgent = "freight-service"

// Client talks to the game's public API.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(baseURL string, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: baseURL,
		http:    httpClient,
		log:     log.With().Str("component", "esi").Logger(),
	}
}

// GetContracts returns one page of the corporation's contracts. The page
// count is read from the X-Pages header.
func (c *Client) GetContracts(ctx context.Context, token string, corporationID int64, page int) (model.ContractPage, error) {
	path := fmt.Sprintf("/corporations/%d/contracts/", corporationID)
	query := url.Values{"page": {strconv.Itoa(page)}}

	var contracts []model.RawContract
	header, err := c.get(ctx, path, query, token, &contracts)
	if err != nil {
		return model.ContractPage{}, contractError(err)
	}

	pages, err := strconv.Atoi(header.Get("X-Pages"))
	if err != nil || pages < 1 {
		pages = 1
	}

	c.fillAcceptorCorporations(ctx, contracts)
	return model.ContractPage{Contracts: contracts, Pages: pages}, nil
}

type affiliation struct {
	CharacterID   int64 `json:"character_id"`
	CorporationID int64 `json:"corporation_id"`
}

// fillAcceptorCorporations resolves the corporation of every acceptor. A
// failing lookup leaves the corporation unset.
func (c *Client) fillAcceptorCorporations(ctx context.Context, contracts []model.RawContract) {
	seen := make(map[int64]struct{})
	var ids []int64
	for _, contract := range contracts {
		if contract.AcceptorID == 0 {
			continue
		}
		if _, ok := seen[contract.AcceptorID]; ok {
			continue
		}
		seen[contract.AcceptorID] = struct{}{}
		ids = append(ids, contract.AcceptorID)
	}
	if len(ids) == 0 {
		return
	}

	var affiliations []affiliation
	if err := c.post(ctx, "/characters/affiliation/", ids, &affiliations); err != nil {
		c.log.Warn().Err(err).Int("acceptors", len(ids)).Msg("acceptor affiliation lookup failed")
		return
	}
	corporations := make(map[int64]int64, len(affiliations))
	for _, a := range affiliations {
		corporations[a.CharacterID] = a.CorporationID
	}
	for i := range contracts {
		contracts[i].AcceptorCorporationID = corporations[contracts[i].AcceptorID]
	}
}

// statusError is a non-2xx response.
type statusError struct {
	Status int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("esi responded %d: %s", e.Status, e.Body)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, token string, dest any) (http.Header, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(req, dest)
}

func (c *Client) post(ctx context.Context, path string, payload, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req, dest)
	return err
}

func (c *Client) do(req *http.Request, dest any) (http.Header, error) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", service.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &statusError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}
	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return nil, fmt.Errorf("decode %s: %w", req.URL.Path, err)
		}
	}
	return resp.Header, nil
}

func contractError(err error) error {
	var se *statusError
	if !errors.As(err, &se) {
		return err
	}
	switch {
	case se.Status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", service.ErrTokenInvalid, se)
	case se.Status == http.StatusForbidden:
		return fmt.Errorf("%w: %v", service.ErrInsufficientPermissions, se)
	case se.Status >= 500:
		return fmt.Errorf("%w: %v", service.ErrUnavailable, se)
	default:
		return err
	}
}
