package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pointsarcade/internal/logger"
	"pointsarcade/internal/models"
)

// PointsProvider is the external ledger that owns balances of users with a
// linked Kick account.
type PointsProvider interface {
	GetViewerPoints(ctx context.Context, channelID, username string) (int64, error)
	AddPoints(ctx context.Context, channelID, username string, points int64) error
	RemovePoints(ctx context.Context, channelID, username string, points int64) error
	SetPoints(ctx context.Context, channelID, username string, points int64) error
}

type KickletConfig struct {
	BaseURL string
	Token   string

	// MaxRetries is how many times a 403 or transport failure is retried
	// after the first attempt. Defaults to 3.
	MaxRetries int

	// BaseRetryDelay is the delay before the first retry; it doubles after each.
	// Defaults to 1 second.
	BaseRetryDelay time.Duration

	HTTPClient *http.Client
}

type KickletClient struct {
	config KickletConfig
	http   *http.Client
}

func NewKickletClient(cfg KickletConfig) *KickletClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://kicklet.app/api"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseRetryDelay == 0 {
		cfg.BaseRetryDelay = time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &KickletClient{config: cfg, http: httpClient}
}

// ProviderError is a failed Kicklet call. StatusCode is 0 for transport failures.
type ProviderError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("kicklet: request failed: %v", e.Err)
	}
	return fmt.Sprintf("kicklet: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable is true for 403 responses and transport failures.
func (e *ProviderError) IsRetryable() bool {
	return e.StatusCode == 0 || e.StatusCode == http.StatusForbidden
}

type kickletViewer struct {
	ViewerKickUserID   int64  `json:"viewerKickUserID"`
	ViewerKickUsername string `json:"viewerKickUsername"`
	Points             int64  `json:"points"`
}

type kickletRanking struct {
	Count   int             `json:"count"`
	Ranking []kickletViewer `json:"ranking"`
}

// GetViewerPoints returns the viewer's points on channelID, or 0 when the
// viewer is not in the ranking.
func (c *KickletClient) GetViewerPoints(ctx context.Context, channelID, username string) (int64, error) {
	q := url.Values{}
	q.Set("page", "1")
	q.Set("pageSize", "50")
	q.Set("orderBy", "watchtime")
	q.Set("order", "desc")
	q.Set("search", username)
	path := fmt.Sprintf("/stats/%s/viewer/ranking?%s", url.PathEscape(channelID), q.Encode())

	body, err := c.doWithRetry(ctx, http.MethodGet, path)
	if err != nil {
		return 0, err
	}

	var ranking kickletRanking
	if err := json.Unmarshal(body, &ranking); err != nil {
		return 0, &ProviderError{StatusCode: http.StatusOK, Body: "malformed ranking", Err: err}
	}

	for _, v := range ranking.Ranking {
		if strings.EqualFold(v.ViewerKickUsername, username) {
			return v.Points, nil
		}
	}
	return 0, nil
}

func (c *KickletClient) AddPoints(ctx context.Context, channelID, username string, points int64) error {
	if points <= 0 {
		return models.ValidationError("points must be greater than 0")
	}
	return c.patchPoints(ctx, channelID, username, "add", points)
}

func (c *KickletClient) RemovePoints(ctx context.Context, channelID, username string, points int64) error {
	if points <= 0 {
		return models.ValidationError("points must be greater than 0")
	}
	return c.patchPoints(ctx, channelID, username, "remove", points)
}

func (c *KickletClient) SetPoints(ctx context.Context, channelID, username string, points int64) error {
	if points < 0 {
		return models.ValidationError("points cannot be negative")
	}
	return c.patchPoints(ctx, channelID, username, "set", points)
}

func (c *KickletClient) patchPoints(ctx context.Context, channelID, username, op string, points int64) error {
	path := fmt.Sprintf("/stats/%s/points/%s/%s/%d", url.PathEscape(channelID), url.PathEscape(username), op, points)
	_, err := c.doWithRetry(ctx, http.MethodPatch, path)
	return err
}

func (c *KickletClient) doWithRetry(ctx context.Context, method, path string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay(attempt)
			logger.Warn(ctx).
				Err(lastErr).
				Str("path", path).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("kicklet request failed, retrying")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		body, err := c.do(ctx, method, path)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var perr *ProviderError
		if errors.As(err, &perr) && perr.IsRetryable() {
			continue
		}
		return nil, err
	}

	return nil, lastErr
}

func (c *KickletClient) retryDelay(attempt int) time.Duration {
	return c.config.BaseRetryDelay * time.Duration(math.Pow(2, float64(attempt-1)))
}

func (c *KickletClient) do(ctx context.Context, method, path string) ([]byte, error) {
	endpoint := strings.TrimRight(c.config.BaseURL, "/") + path

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("kicklet: create request: %w", err)
	}
	req.Header.Set("Authorization", "apitoken "+strings.TrimSpace(c.config.Token))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text := string(body)
		if len(text) > 200 {
			text = text[:200]
		}
		return nil, &ProviderError{StatusCode: resp.StatusCode, Body: text}
	}
	return body, nil
}
