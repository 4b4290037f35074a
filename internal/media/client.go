// Package media implements the media provider client (OpenTok-compatible
// REST API). Every request is authenticated with a short-lived project JWT
// and retried through the shared bounded retry helper; 4xx responses are
// treated as permanent.
package media

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

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-live-presence/internal/domain"
	"github.com/tbourn/go-live-presence/internal/retry"
)

// DefaultBaseURL is the provider's public REST endpoint.
const DefaultBaseURL = "https://api.opentok.com"

// ErrNotFound is returned when the provider reports 404 for a resource.
var ErrNotFound = errors.New("media resource not found")

// APIError is a non-2xx provider response.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("media api %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Transient reports whether the failure is worth retrying (5xx or 429).
func (e *APIError) Transient() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// Config holds provider credentials and transport settings.
type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Timeout   time.Duration
	Retry     retry.Policy
}

// Client talks to the media provider. It is safe for concurrent use and is
// meant to be constructed once per process and injected.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

// NewClient builds a provider client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient, now: time.Now}
}

// BroadcastOptions configures StartBroadcast.
type BroadcastOptions struct {
	Layout     string
	Resolution string
	Outputs    []domain.RTMPTarget
}

// OptionsFor builds broadcast options targeting a single destination.
func OptionsFor(dst domain.BroadcastDestination) BroadcastOptions {
	return BroadcastOptions{
		Layout:     dst.Layout,
		Resolution: dst.Resolution,
		Outputs: []domain.RTMPTarget{{
			ID:         uuid.NewString(),
			ServerURL:  dst.ServerURL,
			StreamName: dst.StreamName,
		}},
	}
}

type startBroadcastRequest struct {
	SessionID string `json:"sessionId"`
	Layout    struct {
		Type string `json:"type"`
	} `json:"layout"`
	Outputs struct {
		RTMP []domain.RTMPTarget `json:"rtmp"`
	} `json:"outputs"`
	Resolution string `json:"resolution"`
}

// CreateSession creates a routed session with manual archiving.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("archiveMode", "manual")
	form.Set("p2p.preference", "disabled")

	var out []struct {
		SessionID string `json:"session_id"`
	}
	err := c.call(ctx, http.MethodPost, "/session/create", "application/x-www-form-urlencoded", []byte(form.Encode()), &out)
	if err != nil {
		return "", err
	}
	if len(out) == 0 || out[0].SessionID == "" {
		return "", fmt.Errorf("media api: create session returned no session id")
	}
	return out[0].SessionID, nil
}

// StartBroadcast starts a live broadcast of sessionID to the given outputs.
func (c *Client) StartBroadcast(ctx context.Context, sessionID string, opts BroadcastOptions) (domain.Broadcast, error) {
	var req startBroadcastRequest
	req.SessionID = sessionID
	req.Layout.Type = opts.Layout
	req.Outputs.RTMP = opts.Outputs
	req.Resolution = opts.Resolution

	body, err := json.Marshal(req)
	if err != nil {
		return domain.Broadcast{}, err
	}
	var out domain.Broadcast
	err = c.call(ctx, http.MethodPost, c.projectPath("/broadcast"), "application/json", body, &out)
	return out, err
}

// StopBroadcast stops a broadcast. Stopping an unknown broadcast is a no-op.
func (c *Client) StopBroadcast(ctx context.Context, broadcastID string) error {
	err := c.call(ctx, http.MethodPost, c.projectPath("/broadcast/"+url.PathEscape(broadcastID)+"/stop"), "application/json", nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// SetBroadcastLayout re-applies a predefined layout type to a live broadcast.
func (c *Client) SetBroadcastLayout(ctx context.Context, broadcastID, layout string) error {
	body, err := json.Marshal(map[string]string{"type": layout})
	if err != nil {
		return err
	}
	return c.call(ctx, http.MethodPut, c.projectPath("/broadcast/"+url.PathEscape(broadcastID)+"/layout"), "application/json", body, nil)
}

// ListBroadcasts returns every broadcast the provider knows for sessionID.
func (c *Client) ListBroadcasts(ctx context.Context, sessionID string) ([]domain.Broadcast, error) {
	var out struct {
		Count int                `json:"count"`
		Items []domain.Broadcast `json:"items"`
	}
	path := c.projectPath("/broadcast") + "?sessionId=" + url.QueryEscape(sessionID)
	if err := c.call(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// ForceDisconnect drops a client connection. A connection that is already
// gone is not an error.
func (c *Client) ForceDisconnect(ctx context.Context, sessionID, connectionID string) error {
	path := c.projectPath("/session/" + url.PathEscape(sessionID) + "/connection/" + url.PathEscape(connectionID))
	err := c.call(ctx, http.MethodDelete, path, "", nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (c *Client) projectPath(suffix string) string {
	return "/v2/project/" + url.PathEscape(c.cfg.APIKey) + suffix
}

// call performs one logical request under the retry policy and decodes a
// JSON response into out (when non-nil).
func (c *Client) call(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	tr := otel.Tracer("media/Client")
	ctx, span := tr.Start(ctx, method+" "+strings.SplitN(path, "?", 2)[0],
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.method", method)),
	)
	defer span.End()

	_, err := retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.once(ctx, method, path, contentType, body, out)
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (c *Client) once(ctx context.Context, method, path, contentType string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, rdr)
	if err != nil {
		return retry.Permanent(err)
	}
	tok, err := c.projectToken()
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("X-OPENTOK-AUTH", tok)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusNotFound {
		return retry.Permanent(ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: method, Path: path, Status: resp.StatusCode, Body: string(raw)}
		if apiErr.Transient() {
			return apiErr
		}
		return retry.Permanent(apiErr)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return retry.Permanent(fmt.Errorf("media api %s %s: decode: %w", method, path, err))
	}
	return nil
}
