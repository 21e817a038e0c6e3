// Package gateway implements a client for a Fonnte-compatible WhatsApp
// delivery API: a form-encoded send endpoint authenticated with an API
// token, returning a JSON body whose boolean status field reports whether
// the message was accepted.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SendResult is the gateway's verdict on one send attempt. OK mirrors the
// status field of the response; Raw keeps the full body for the message log.
type SendResult struct {
	OK     bool
	Reason string
	Raw    string
}

// Send delivers one message to the target phone. A non-nil error means the
// gateway could not be reached at all (transport failure); an explicit
// rejection comes back as OK=false with a nil error.
func (c *Client) Send(ctx context.Context, target, message string) (*SendResult, error) {
	form := url.Values{}
	form.Set("target", target)
	form.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", c.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	result := &SendResult{Raw: string(body)}

	var parsed struct {
		Status bool   `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		// An unparseable body counts as an explicit rejection, not a
		// transport error: the gateway answered, just not with success.
		result.Reason = fmt.Sprintf("HTTP %d: unparseable response", resp.StatusCode)
		return result, nil
	}

	result.OK = parsed.Status && resp.StatusCode < 400
	result.Reason = parsed.Reason
	return result, nil
}
