// Package catalog looks up fiscal codes in the product catalog service. It
// authenticates with an OAuth2 client-credentials token that is cached and
// refreshed by a single caller at a time.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"ms-payments/internal/apperr"
	"ms-payments/internal/config"
	"ms-payments/internal/logger"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type fiscalResponse struct {
	FiscalCode  string `json:"fiscal_code"`
	PackageCode string `json:"package_code"`
}

type Client struct {
	cfg     config.CatalogConfig
	http    *http.Client
	tokens  TokenStore
	limiter *rate.Limiter
	group   singleflight.Group
	log     *logger.Logger
	now     func() time.Time
}

// NewClient uses an in-memory token store when tokens is nil.
func NewClient(cfg config.CatalogConfig, tokens TokenStore, log *logger.Logger) *Client {
	if tokens == nil {
		tokens = &MemoryTokenStore{}
	}
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		tokens:  tokens,
		limiter: rate.NewLimiter(limit, 1),
		log:     log,
		now:     time.Now,
	}
}

// FiscalCode returns the fiscal and package codes of a product. A product the
// catalog does not know yields an apperr.NotFoundError.
func (c *Client) FiscalCode(ctx context.Context, productID string) (string, string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", "", fmt.Errorf("catalog rate limit: %w", err)
	}

	token, err := c.token(ctx)
	if err != nil {
		return "", "", err
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/products/" + url.PathEscape(productID) + "/fiscal"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("catalog request for %s: %w", productID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", "", apperr.NotFound("catalog product", productID)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", "", fmt.Errorf("catalog returned %s for %s: %s", resp.Status, productID, body)
	}

	var out fiscalResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("decode catalog response: %w", err)
	}
	if out.FiscalCode == "" {
		return "", "", apperr.NotFound("fiscal code for product", productID)
	}
	return out.FiscalCode, out.PackageCode, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if tc, err := c.tokens.Get(ctx); err != nil {
		c.log.Warn("CATALOG", fmt.Sprintf("Token cache read failed: %v", err))
	} else if tc.IsValid(c.now()) {
		return tc.Token, nil
	}

	v, err, _ := c.group.Do("token", func() (interface{}, error) {
		tc, err := c.fetchToken(ctx)
		if err != nil {
			return "", err
		}
		if err := c.tokens.Set(ctx, tc); err != nil {
			c.log.Warn("CATALOG", fmt.Sprintf("Token cache write failed: %v", err))
		}
		return tc.Token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) fetchToken(ctx context.Context) (*TokenCache, error) {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", c.cfg.ClientID)
	data.Set("client_secret", c.cfg.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	c.log.Debug("CATALOG", "Requesting catalog token for client_id "+c.cfg.ClientID)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get token, status: %s", resp.Status)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("token response without access_token")
	}
	return &TokenCache{
		Token:     tr.AccessToken,
		ExpiresAt: c.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}
