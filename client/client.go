// Package client talks to the duel API and tracks one player's duel session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"bubbles-duel/models"
)

// APIError is a non-2xx response from the duel API.
type APIError struct {
	StatusCode  int
	Message     string
	RemainingMs int64
}

func (e *APIError) Error() string {
	if e.RemainingMs > 0 {
		return fmt.Sprintf("duel api %d: %s (%dms remaining)", e.StatusCode, e.Message, e.RemainingMs)
	}
	return fmt.Sprintf("duel api %d: %s", e.StatusCode, e.Message)
}

// Cooldown reports a 429 from create or submit.
func (e *APIError) Cooldown() bool { return e.StatusCode == http.StatusTooManyRequests }

// Expired reports a 410 from join.
func (e *APIError) Expired() bool { return e.StatusCode == http.StatusGone }

// AlreadySubmitted reports a 409 from submit: the server already holds picks
// for this player.
func (e *APIError) AlreadySubmitted() bool {
	return e.StatusCode == http.StatusConflict && e.Message == "Already submitted"
}

// IsTerminal reports whether err should end the current attempt without a retry.
func IsTerminal(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && (apiErr.Cooldown() || apiErr.Expired())
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type CreateResponse struct {
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expiresAt"`
}

type SubmitResponse struct {
	OK     bool    `json:"ok"`
	Total  int     `json:"total"`
	Status string  `json:"status"`
	Winner *string `json:"winner"`
}

func (c *Client) CreateDuel(ctx context.Context, userID, username string) (*CreateResponse, error) {
	var out CreateResponse
	err := c.do(ctx, http.MethodPost, "/api/duels", map[string]string{
		"userId":   userID,
		"username": username,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetDuel(ctx context.Context, id string) (*models.Duel, error) {
	var out models.Duel
	if err := c.do(ctx, http.MethodGet, "/api/duels/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) JoinDuel(ctx context.Context, id, userID, username string) error {
	return c.do(ctx, http.MethodPost, "/api/duels/"+url.PathEscape(id)+"/join", map[string]string{
		"userId":   userID,
		"username": username,
	}, nil)
}

func (c *Client) SubmitDuel(ctx context.Context, id, userID string, poppedIndices []int) (*SubmitResponse, error) {
	var out SubmitResponse
	err := c.do(ctx, http.MethodPost, "/api/duels/"+url.PathEscape(id)+"/submit", map[string]any{
		"userId":        userID,
		"poppedIndices": poppedIndices,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Cooldown returns how long userID must wait before starting another duel.
func (c *Client) Cooldown(ctx context.Context, userID string) (time.Duration, error) {
	var out struct {
		RemainingMs int64 `json:"remainingMs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/duels/cooldowns/"+url.PathEscape(userID), nil, &out); err != nil {
		return 0, err
	}
	return time.Duration(out.RemainingMs) * time.Millisecond, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call duel api: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read duel api response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload struct {
			Error       string `json:"error"`
			RemainingMs int64  `json:"remainingMs"`
		}
		if json.Unmarshal(raw, &payload) == nil {
			apiErr.Message = payload.Error
			apiErr.RemainingMs = payload.RemainingMs
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode duel api response: %w", err)
	}
	return nil
}
