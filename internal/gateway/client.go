package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrUnreachable indicates the gateway could not be reached at all.
	ErrUnreachable = errors.New("gateway unreachable")
	// ErrTimeout indicates the gateway did not answer within the client timeout.
	ErrTimeout = errors.New("gateway timeout")
)

// RejectedError indicates the gateway answered with a non-success status.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("gateway rejected request: status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the WhatsApp gateway that hosts the shared instances.
// Every instance carries its own host and API key, so the client is
// configured per call rather than per process.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a gateway client with the default 15s timeout.
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Target identifies one gateway instance for a call.
type Target struct {
	Host       string
	APIKey     string
	InstanceID string
}

// ConnectResponse is the gateway answer when a connection attempt starts.
type ConnectResponse struct {
	PairingCode string `json:"pairingCode,omitempty"`
	Code        string `json:"code,omitempty"`
	Base64      string `json:"base64,omitempty"`
}

// SendTextRequest is the payload for a text message send.
type SendTextRequest struct {
	Number      string          `json:"number"`
	TextMessage TextMessageBody `json:"textMessage"`
	Options     SendOptions     `json:"options"`
}

// TextMessageBody carries the message text.
type TextMessageBody struct {
	Text string `json:"text"`
}

// SendOptions controls gateway-side sending behavior.
type SendOptions struct {
	Delay       int    `json:"delay"`
	Presence    string `json:"presence"`
	LinkPreview bool   `json:"linkPreview"`
}

// SendTextResponse is the gateway answer for a message send.
type SendTextResponse struct {
	Key struct {
		ID        string `json:"id"`
		RemoteJid string `json:"remoteJid"`
	} `json:"key"`
	Status string `json:"status"`
}

// StateResponse is the gateway answer for a connection state query.
type StateResponse struct {
	Instance struct {
		InstanceName string `json:"instanceName"`
		State        string `json:"state"`
	} `json:"instance"`
}

// Gateway connection states.
const (
	StateOpen       = "open"
	StateConnecting = "connecting"
	StateClose      = "close"
)

// RequestQRCode starts a connection attempt and returns the base64 QR code
// the user must scan.
func (c *Client) RequestQRCode(ctx context.Context, target Target) (string, error) {
	var resp ConnectResponse
	if err := c.do(ctx, http.MethodGet, target, "/instance/connect/"+url.PathEscape(target.InstanceID), nil, &resp, false); err != nil {
		return "", err
	}
	if resp.Base64 == "" {
		return "", fmt.Errorf("gateway returned no QR code for instance %s", target.InstanceID)
	}
	return resp.Base64, nil
}

// RequestPairingCode starts a connection attempt for the given phone number
// and returns a pairing code instead of a QR image.
func (c *Client) RequestPairingCode(ctx context.Context, target Target, number string) (string, error) {
	var resp ConnectResponse
	path := "/instance/connect/" + url.PathEscape(target.InstanceID) + "?number=" + url.QueryEscape(number)
	if err := c.do(ctx, http.MethodGet, target, path, nil, &resp, false); err != nil {
		return "", err
	}
	code := resp.PairingCode
	if code == "" {
		code = resp.Code
	}
	if code == "" {
		return "", fmt.Errorf("gateway returned no pairing code for instance %s", target.InstanceID)
	}
	return code, nil
}

// SendText sends a text message through the instance. delayMs is forwarded
// to the gateway so the typing presence lasts that long before delivery.
func (c *Client) SendText(ctx context.Context, target Target, number, text string, delayMs int) (*SendTextResponse, error) {
	req := SendTextRequest{
		Number:      number,
		TextMessage: TextMessageBody{Text: text},
		Options: SendOptions{
			Delay:       delayMs,
			Presence:    "composing",
			LinkPreview: false,
		},
	}
	var resp SendTextResponse
	path := "/message/sendText/" + url.PathEscape(target.InstanceID)
	if err := c.do(ctx, http.MethodPost, target, path, req, &resp, false); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout tears down the WhatsApp session on the gateway side.
func (c *Client) Logout(ctx context.Context, target Target) error {
	return c.do(ctx, http.MethodDelete, target, "/instance/logout/"+url.PathEscape(target.InstanceID), nil, nil, false)
}

// RegisterWebhook points the instance webhook at our callback URL.
func (c *Client) RegisterWebhook(ctx context.Context, target Target, callbackURL string, events []string) error {
	payload := map[string]interface{}{
		"url":      callbackURL,
		"enabled":  true,
		"events":   events,
		"base64":   false,
		"byEvents": false,
	}
	return c.do(ctx, http.MethodPost, target, "/webhook/set/"+url.PathEscape(target.InstanceID), payload, nil, false)
}

// ConnectionState queries the current state of the instance. The call is
// read-only so transient failures are retried.
func (c *Client) ConnectionState(ctx context.Context, target Target) (string, error) {
	var resp StateResponse
	if err := c.do(ctx, http.MethodGet, target, "/instance/connectionState/"+url.PathEscape(target.InstanceID), nil, &resp, true); err != nil {
		return "", err
	}
	return resp.Instance.State, nil
}

const maxAttempts = 3

// do performs one gateway call, optionally retrying transient failures.
// Retries are only enabled for read-only calls so a send is never duplicated.
func (c *Client) do(ctx context.Context, method string, target Target, path string, body, out interface{}, retry bool) error {
	attempts := 1
	if retry {
		attempts = maxAttempts
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}
		lastErr = c.doOnce(ctx, method, target, path, body, out)
		if lastErr == nil || !shouldRetry(lastErr) {
			return lastErr
		}
		log.Warn().
			Err(lastErr).
			Str("instance_id", target.InstanceID).
			Int("attempt", attempt).
			Msg("gateway call failed, retrying")
	}
	return lastErr
}

func (c *Client) doOnce(ctx context.Context, method string, target Target, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("error encoding gateway request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.Host+path, reader)
	if err != nil {
		return fmt.Errorf("error creating gateway request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+target.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %s %s", ErrTimeout, method, path)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading gateway response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &RejectedError{StatusCode: resp.StatusCode, Body: truncate(string(data), 512)}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("error decoding gateway response: %w", err)
		}
	}
	return nil
}

// shouldRetry reports whether the call may be safely retried. Timeouts,
// connection failures, 429 and 5xx answers qualify.
func shouldRetry(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrUnreachable) {
		return true
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		return rejected.StatusCode == http.StatusTooManyRequests || rejected.StatusCode >= 500
	}
	return false
}

func backoff(attempt int) time.Duration {
	return time.Duration(attempt-1) * 500 * time.Millisecond
}

func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
