package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/retailpoint/pos/internal/domain"
)

const (
	loginPath   = "/api/v1/auth/login"
	refreshPath = "/api/v1/auth/refresh"

	defaultTimeout = 30 * time.Second
)

// errRefreshRejected marks a refresh the server explicitly turned down, as
// opposed to a transport failure where the session may still be valid.
var errRefreshRejected = errors.New("refresh rejected")

// Request describes one authenticated API call. Body, when non-nil, is
// marshalled as JSON.
type Request struct {
	Method string
	Path   string
	Body   any
}

// Response is the raw outcome of a call. Statuses other than 401 are handed
// back to the caller untouched; interpreting them is the caller's concern.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client issues API calls with the current access token attached as a
// bearer credential. On a 401 it refreshes the pair exactly once per
// original call and retries; concurrent calls that observe the same stale
// token share a single refresh request.
type Client struct {
	http    *http.Client
	baseURL string
	tokens  *Store
	log     *zap.Logger
	sfg     singleflight.Group
}

// NewClient wraps httpClient (nil for a sensible default with an
// instrumented transport) around the token store.
func NewClient(baseURL string, tokens *Store, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		http:    httpClient,
		baseURL: baseURL,
		tokens:  tokens,
		log:     log,
	}
}

// Do runs the request with bearer authentication.
//
// A non-401 response is returned unchanged. On 401 the client refreshes the
// token pair once and reissues the request; if the retry is also rejected
// the store is cleared and ErrUnauthenticated returned. A failed refresh
// clears the store and returns ErrSessionExpired. Ordinary success or
// failure responses never mutate the store.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	pair, ok := c.tokens.Get()
	if !ok {
		return nil, ErrUnauthenticated
	}

	resp, err := c.send(ctx, req, pair.AccessToken)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	refreshed, err := c.refresh(ctx, pair.AccessToken)
	if err != nil {
		return nil, err
	}

	retried, err := c.send(ctx, req, refreshed.AccessToken)
	if err != nil {
		return nil, err
	}
	if retried.StatusCode == http.StatusUnauthorized {
		// A token the server just issued is already rejected; nothing a
		// second refresh could fix.
		c.log.Warn("request rejected after refresh", zap.String("path", req.Path))
		c.tokens.Clear()
		return nil, ErrUnauthenticated
	}
	return retried, nil
}

// Login exchanges credentials for a token pair and installs it in the store.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	resp, err := c.sendUnauthenticated(ctx, loginPath, body)
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrInvalidCredentials
	default:
		return fmt.Errorf("login: unexpected status %d", resp.StatusCode)
	}

	pair, err := decodeTokenPair(resp.Body, "")
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	c.tokens.Replace(pair)
	return nil
}

// Logout clears the stored pair.
func (c *Client) Logout() {
	c.tokens.Clear()
}

// refresh exchanges the refresh token for a new pair. It is single-flight:
// concurrent 401s produce one refresh request, keyed on the stale access
// token each caller observed, and all callers share the outcome.
func (c *Client) refresh(ctx context.Context, staleAccess string) (domain.TokenPair, error) {
	v, err, _ := c.sfg.Do("token-refresh", func() (any, error) {
		current, ok := c.tokens.Get()
		if !ok {
			return domain.TokenPair{}, ErrSessionExpired
		}
		if current.AccessToken != staleAccess {
			// A sibling call already refreshed; reuse its pair.
			return current, nil
		}
		if current.RefreshToken == "" {
			// Terminal: rejected access token and nothing to exchange.
			c.tokens.Clear()
			return domain.TokenPair{}, ErrSessionExpired
		}

		pair, err := c.exchangeRefresh(ctx, current.RefreshToken)
		if errors.Is(err, errRefreshRejected) {
			c.tokens.Clear()
			return domain.TokenPair{}, ErrSessionExpired
		}
		if err != nil {
			// Transport-level failure: the session may still be valid, so
			// the store is left alone and the error surfaces as-is.
			return domain.TokenPair{}, err
		}
		c.log.Debug("token pair refreshed")
		c.tokens.Replace(pair)
		return pair, nil
	})
	if err != nil {
		return domain.TokenPair{}, err
	}
	return v.(domain.TokenPair), nil
}

func (c *Client) exchangeRefresh(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	resp, err := c.sendUnauthenticated(ctx, refreshPath, map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("refresh request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.TokenPair{}, fmt.Errorf("%w: status %d", errRefreshRejected, resp.StatusCode)
	}
	pair, err := decodeTokenPair(resp.Body, refreshToken)
	if err != nil {
		return domain.TokenPair{}, fmt.Errorf("refresh: %w", err)
	}
	return pair, nil
}

func (c *Client) send(ctx context.Context, req Request, accessToken string) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		body = bytes.NewReader(b)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	return c.roundTrip(httpReq)
}

func (c *Client) sendUnauthenticated(ctx context.Context, path string, body any) (*Response, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	return c.roundTrip(httpReq)
}

func (c *Client) roundTrip(httpReq *http.Request) (*Response, error) {
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", httpReq.Method, httpReq.URL.Path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: b}, nil
}

// decodeTokenPair parses a login or refresh response. A response that omits
// the refresh token keeps previousRefresh; a missing expiry is backfilled
// from the access token's exp claim when one is readable.
func decodeTokenPair(body []byte, previousRefresh string) (domain.TokenPair, error) {
	var pair domain.TokenPair
	if err := json.Unmarshal(body, &pair); err != nil {
		return domain.TokenPair{}, fmt.Errorf("decode token response: %w", err)
	}
	if pair.AccessToken == "" {
		return domain.TokenPair{}, errors.New("token response missing access_token")
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = previousRefresh
	}
	if pair.ExpiresAt.IsZero() {
		pair.ExpiresAt = accessTokenExpiry(pair.AccessToken)
	}
	return pair, nil
}

// accessTokenExpiry pulls the exp claim out of a JWT access token without
// verifying the signature; the client holds no signing key and only needs
// the expiry hint. Returns the zero time for opaque tokens.
func accessTokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
