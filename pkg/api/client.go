// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prebid/openrtb/v20/openrtb2"

	"github.com/luxfi/vastplayer/pkg/monitor"
	"github.com/luxfi/vastplayer/pkg/vast"
)

// Client talks to a vast player service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	dialer     *websocket.Dialer
}

// NewClient creates a client for the service at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		dialer: websocket.DefaultDialer,
	}
}

// WithHTTPClient replaces the client's HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// APIError is a non-success response from the service.
type APIError struct {
	Status int
	ErrorResponse
}

func (e *APIError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("api: %d %s (%s): %s", e.Status, http.StatusText(e.Status), e.Kind, e.ErrorResponse.Error)
	}
	return fmt.Sprintf("api: %d %s: %s", e.Status, http.StatusText(e.Status), e.ErrorResponse.Error)
}

// Resolution is a resolved ad with its server side tracking session.
type Resolution struct {
	SessionID uuid.UUID
	Media     vast.MediaFile
	Model     *vast.Model
}

// Resolve resolves the ad at tagURL. A nil video uses the server's
// default capabilities.
func (c *Client) Resolve(ctx context.Context, tagURL string, video *openrtb2.Video) (*Resolution, error) {
	var res struct {
		SessionID uuid.UUID      `json:"session_id"`
		Media     vast.MediaFile `json:"media"`
		Model     vast.ModelData `json:"model"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/vast/resolve", ResolveRequest{URL: tagURL, Video: video}, &res)
	if err != nil {
		return nil, err
	}
	return &Resolution{
		SessionID: res.SessionID,
		Media:     res.Media,
		Model:     vast.NewModel(res.Model),
	}, nil
}

// Track reports a lifecycle event to a session.
func (c *Client) Track(ctx context.Context, id uuid.UUID, event vast.Event) (*EventResponse, error) {
	return c.event(ctx, id, EventRequest{Event: event.String()})
}

// Progress reports the playback position of a session.
func (c *Client) Progress(ctx context.Context, id uuid.UUID, position, duration time.Duration) (*EventResponse, error) {
	return c.event(ctx, id, EventRequest{Position: position.Seconds(), Duration: duration.Seconds()})
}

// TrackError reports a VAST error code to a session.
func (c *Client) TrackError(ctx context.Context, id uuid.UUID, code int) error {
	_, err := c.event(ctx, id, EventRequest{ErrorCode: code})
	return err
}

func (c *Client) event(ctx context.Context, id uuid.UUID, req EventRequest) (*EventResponse, error) {
	var res EventResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+id.String()+"/events", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Click fires click tracking and returns the click-through URL, if the ad
// has one.
func (c *Client) Click(ctx context.Context, id uuid.UUID) (string, bool, error) {
	var res struct {
		ClickThrough string `json:"click_through"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+id.String()+"/click", nil, &res); err != nil {
		return "", false, err
	}
	return res.ClickThrough, res.ClickThrough != "", nil
}

// Close ends a session.
func (c *Client) Close(ctx context.Context, id uuid.UUID) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+id.String(), nil, nil)
}

// Monitor streams every tracking URL the service dispatches until ctx ends
// or the connection drops.
func (c *Client) Monitor(ctx context.Context) (<-chan monitor.Record, error) {
	u, err := url.Parse(c.baseURL + "/api/v1/monitor")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	conn, _, err := c.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("monitor dial: %w", err)
	}

	records := make(chan monitor.Record)
	go func() {
		<-ctx.Done()
		conn.Close()
	}()
	go func() {
		defer close(records)
		for {
			var rec monitor.Record
			if err := conn.ReadJSON(&rec); err != nil {
				return
			}
			select {
			case records <- rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return records, nil
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

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr.ErrorResponse)
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
