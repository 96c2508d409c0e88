// Package crm talks to the external CRM that owns the contact records. Only
// one capability is consumed here: resolving a phone number to a contact.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"gitlab.com/kantoorbase/api/call-events-service/internal/apperrors"
	"gitlab.com/kantoorbase/api/call-events-service/internal/config"
	"gitlab.com/kantoorbase/api/call-events-service/internal/phone"
	"gitlab.com/kantoorbase/api/call-events-service/pkg/logger"
)

// Contact is the subset of a CRM contact record this service cares about.
type Contact struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone,omitempty"`
	Mobile string `json:"mobile,omitempty"`
}

type searchFilter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

type searchRequest struct {
	Filters []searchFilter `json:"filters"`
	Match   string         `json:"match"`
	Limit   int            `json:"limit"`
}

type searchResponse struct {
	Items []Contact `json:"items"`
}

// Client is the HTTP client for the CRM API.
type Client struct {
	baseURL    string
	tokens     *TokenCache
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient builds a CRM client from config. The HTTP timeout doubles as the
// hard upper bound on one contact lookup, so a stuck CRM cannot hang a
// webhook response.
func NewClient(cfg config.CRMConfig, log *zap.Logger) *Client {
	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	return &Client{
		baseURL:    cfg.BaseURL,
		tokens:     NewTokenCache(cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, cfg.Username, cfg.Password, httpClient),
		httpClient: httpClient,
		logger:     log,
	}
}

// ResolveByPhone searches the CRM for a contact whose phone or mobile field
// equals any of the canonical formats. Returns (nil, nil) when no contact
// matches; transport failures are wrapped in apperrors.ErrUnavailable. When
// several contacts share a number the first one in the CRM result order wins.
func (c *Client) ResolveByPhone(ctx context.Context, formats phone.Formats) (*Contact, error) {
	filters := make([]searchFilter, 0, 6)
	for _, field := range []string{"phone", "mobile"} {
		for _, value := range formats.All() {
			filters = append(filters, searchFilter{Field: field, Operator: "eq", Value: value})
		}
	}

	items, err := c.searchContacts(ctx, searchRequest{Filters: filters, Match: "any", Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (c *Client) searchContacts(ctx context.Context, search searchRequest) ([]Contact, error) {
	resp, err := c.doSearch(ctx, search)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		// Cached token rejected; renew once and retry.
		resp.Body.Close()
		c.tokens.Invalidate()
		resp, err = c.doSearch(ctx, search)
		if err != nil {
			return nil, err
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: contact search returned status %d", apperrors.ErrUnavailable, resp.StatusCode)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: failed to decode contact search response: %w", apperrors.ErrUnavailable, err)
	}
	return out.Items, nil
}

func (c *Client) doSearch(ctx context.Context, search searchRequest) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(search)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encode contact search: %w", apperrors.ErrInternal, err)
	}

	url := c.baseURL + "/api/v1/contacts/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to build contact search request: %w", apperrors.ErrInternal, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.FromContext(ctx).Warn("CRM contact search failed", zap.Error(err))
		return nil, fmt.Errorf("%w: contact search unreachable: %w", apperrors.ErrUnavailable, err)
	}
	return resp, nil
}
