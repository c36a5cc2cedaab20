// Package beacon performs the last-gasp queue flush when the agent is being
// suspended or torn down. The flush is fire-and-forget: a short bounded POST
// whose response body is never inspected.
package beacon

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"example.com/shiftsync/internal/queue"
)

const defaultTimeout = 2 * time.Second

// Sender posts pending actions to the server's batch endpoint on teardown.
type Sender struct {
	url        string
	token      string
	httpClient *http.Client
	logger     *log.Logger
}

// NewSender constructs a Sender targeting the batch sync endpoint.
func NewSender(baseURL, token string, logger *log.Logger) *Sender {
	if logger == nil {
		logger = log.Default()
	}
	return &Sender{
		url:        baseURL + "/v1/sync",
		token:      token,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

type flushAction struct {
	Type            string `json:"type"`
	ClientTimestamp string `json:"client_timestamp"`
}

type flushRequest struct {
	Actions []flushAction `json:"actions"`
}

// Flush hands the pending actions to the server in one request. It reports
// whether the request was accepted for transmission; per-action outcomes are
// the server's business, the caller is shutting down and cannot react.
func (s *Sender) Flush(actions []queue.QueuedAction) bool {
	if len(actions) == 0 {
		return true
	}

	payload := flushRequest{Actions: make([]flushAction, 0, len(actions))}
	for _, action := range actions {
		payload.Actions = append(payload.Actions, flushAction{
			Type:            string(action.Type),
			ClientTimestamp: action.ClientTimestamp,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		s.logger.Printf("beacon: encoding flush payload: %v", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		s.logger.Printf("beacon: building flush request: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Printf("beacon: flush failed: %v", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
