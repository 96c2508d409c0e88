package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"gitlab.com/kantoorbase/api/call-events-service/internal/apperrors"
	"gitlab.com/kantoorbase/api/call-events-service/pkg/logger"
	"gitlab.com/kantoorbase/api/call-events-service/pkg/utils"
	"go.uber.org/zap"
)

// expirySlack is subtracted from the reported lifetime so a token is renewed
// before it actually lapses mid-request.
const expirySlack = 30 * time.Second

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// TokenCache holds the CRM OAuth tokens behind its own lock. Acquiring a token
// is a two-step strategy: refresh with the stored refresh token when possible,
// else re-authenticate from scratch with the configured credentials.
type TokenCache struct {
	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time

	tokenURL     string
	clientID     string
	clientSecret string
	username     string
	password     string
	httpClient   *http.Client
}

// NewTokenCache creates a token cache for the given OAuth endpoint.
func NewTokenCache(tokenURL, clientID, clientSecret, username, password string, httpClient *http.Client) *TokenCache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &TokenCache{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		username:     username,
		password:     password,
		httpClient:   httpClient,
	}
}

// Token returns a valid access token, renewing it when needed. Safe for
// concurrent use; only one renewal runs at a time.
func (t *TokenCache) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.accessToken != "" && utils.Now().Before(t.expiresAt.Add(-expirySlack)) {
		return t.accessToken, nil
	}

	if t.refreshToken != "" {
		if err := t.exchange(ctx, map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": t.refreshToken,
		}); err == nil {
			return t.accessToken, nil
		}
		logger.FromContext(ctx).Warn("CRM token refresh failed, re-authenticating from scratch")
		t.refreshToken = ""
	}

	if err := t.exchange(ctx, map[string]string{
		"grant_type": "password",
		"username":   t.username,
		"password":   t.password,
	}); err != nil {
		return "", err
	}
	return t.accessToken, nil
}

// Invalidate forgets the cached access token so the next Token call renews.
// Called when the CRM answers 401 despite a cached token.
func (t *TokenCache) Invalidate() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accessToken = ""
	t.expiresAt = time.Time{}
}

// exchange performs one grant request. Caller must hold t.mu.
func (t *TokenCache) exchange(ctx context.Context, params map[string]string) error {
	params["client_id"] = t.clientID
	params["client_secret"] = t.clientSecret

	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("%w: failed to encode token request: %w", apperrors.ErrInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tokenURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to build token request: %w", apperrors.ErrInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: token endpoint unreachable: %w", apperrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: token endpoint returned status %d", apperrors.ErrUnavailable, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("%w: failed to decode token response: %w", apperrors.ErrUnavailable, err)
	}
	if tr.AccessToken == "" {
		return fmt.Errorf("%w: token response carried no access token", apperrors.ErrUnavailable)
	}

	t.accessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		t.refreshToken = tr.RefreshToken
	}
	t.expiresAt = utils.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)

	logger.FromContext(ctx).Debug("CRM token renewed",
		zap.String("grant_type", params["grant_type"]),
		zap.Time("expires_at", t.expiresAt),
	)
	return nil
}
