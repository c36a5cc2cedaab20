package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"example.com/shiftsync/internal/domain"
)

// Client calls the shiftsync server's clock actions and classifies outcomes.
// A nil error is success; a domain.RejectionError is a terminal application
// refusal; anything else is a network-class failure the engine may retry.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient constructs a Client. baseURL has no trailing slash.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ClockIn replays a clock-in with the captured event time.
func (c *Client) ClockIn(ctx context.Context, clientTimestamp string) error {
	return c.postClock(ctx, "/v1/shifts/clock-in", clientTimestamp)
}

// ClockOut replays a clock-out with the captured event time.
func (c *Client) ClockOut(ctx context.Context, clientTimestamp string) error {
	return c.postClock(ctx, "/v1/shifts/clock-out", clientTimestamp)
}

// Shift is the server's view of a shift, as the agent needs it.
type Shift struct {
	ShiftID          string     `json:"shift_id"`
	TrainerName      string     `json:"trainer_name"`
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time"`
	AutoEnded        bool       `json:"auto_ended"`
	FlaggedForReview bool       `json:"flagged_for_review"`
}

// ActiveShift fetches the trainer's open shift, nil when there is none.
func (c *Client) ActiveShift(ctx context.Context) (*Shift, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/shifts/active", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("active shift: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Shift *Shift `json:"shift"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Shift, nil
}

// CheckAutoEnd asks the server to close an over-long shift. Returns whether
// a shift was auto-ended and the still-active shift, if any.
func (c *Client) CheckAutoEnd(ctx context.Context) (bool, *Shift, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/v1/shifts/auto-end", nil)
	if err != nil {
		return false, nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil, fmt.Errorf("auto-end: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		AutoEnded   bool   `json:"auto_ended"`
		ActiveShift *Shift `json:"active_shift"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, nil, err
	}
	return payload.AutoEnded, payload.ActiveShift, nil
}

func (c *Client) postClock(ctx context.Context, path, clientTimestamp string) error {
	body, err := json.Marshal(map[string]string{"client_timestamp": clientTimestamp})
	if err != nil {
		return err
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport-level failure: timeout, refused, DNS. Retryable.
		return err
	}
	defer resp.Body.Close()

	return classifyStatus(resp)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return req, nil
}

// classifyStatus maps an HTTP response onto the engine's error taxonomy.
// 4xx means the server understood and refused: terminal, surfaced verbatim.
// 5xx means the server is unwell: retryable like any network failure.
func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return domain.Reject(rejectionDetail(resp))
	default:
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
}

func rejectionDetail(resp *http.Response) string {
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	return fmt.Sprintf("request rejected with status %d", resp.StatusCode)
}
