// Package upload is the client for the external video host that finished
// recordings are exported to. Videos are created with the host's "pull"
// approach: the host fetches the recording from blob storage itself, so no
// media bytes pass through this service.
package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/go-live-presence/internal/retry"
)

// DefaultBaseURL is the video host's public REST endpoint.
const DefaultBaseURL = "https://api.vimeo.com"

var (
	// ErrMissingSource is returned when a video or caption has no blob key.
	ErrMissingSource = errors.New("upload source is empty")
	// ErrNoUploadLink is returned when the host does not hand back a caption upload link.
	ErrNoUploadLink = errors.New("video host returned no upload link")
)

// APIError is a non-2xx response from the video host.
type APIError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("video host %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Transient reports whether the failure is worth retrying.
func (e *APIError) Transient() bool {
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// Config holds the host credentials and the blob base URL recordings are
// served from.
type Config struct {
	BaseURL     string
	Token       string
	BlobBaseURL string
	Timeout     time.Duration
	Retry       retry.Policy
}

// VideoRequest describes a video to create from a blob.
type VideoRequest struct {
	BlobKey     string
	Name        string
	Description string
}

// Video is the host's handle for a created video.
type Video struct {
	URI  string `json:"uri"`
	Link string `json:"link"`
}

// Client is safe for concurrent use.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient builds a video host client. httpClient may be nil.
func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.Attempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// BlobURL resolves an opaque blob key against the configured base URL.
func (c *Client) BlobURL(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", ErrMissingSource
	}
	if strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://") {
		return key, nil
	}
	return url.JoinPath(c.cfg.BlobBaseURL, key)
}

type createVideoRequest struct {
	Upload struct {
		Approach string `json:"approach"`
		Link     string `json:"link"`
	} `json:"upload"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Upload creates a video the host pulls from req.BlobKey.
func (c *Client) Upload(ctx context.Context, req VideoRequest) (Video, error) {
	link, err := c.BlobURL(req.BlobKey)
	if err != nil {
		return Video{}, err
	}
	var body createVideoRequest
	body.Upload.Approach = "pull"
	body.Upload.Link = link
	body.Name = req.Name
	body.Description = req.Description

	raw, err := json.Marshal(body)
	if err != nil {
		return Video{}, err
	}
	var out Video
	if err := c.call(ctx, http.MethodPost, c.cfg.BaseURL+"/me/videos", "application/json", raw, &out); err != nil {
		return Video{}, err
	}
	if out.URI == "" {
		return Video{}, fmt.Errorf("video host: create video returned no uri")
	}
	return out, nil
}

// AddToFolder files the video under folderID.
func (c *Client) AddToFolder(ctx context.Context, folderID, videoURI string) error {
	id := path.Base(videoURI)
	u := c.cfg.BaseURL + "/me/projects/" + url.PathEscape(folderID) + "/videos/" + url.PathEscape(id)
	return c.call(ctx, http.MethodPut, u, "", nil, nil)
}

// UploadCaptions attaches a WebVTT caption track fetched from captionsKey.
// The host first issues an upload link for the track, then receives the file.
func (c *Client) UploadCaptions(ctx context.Context, videoURI, captionsKey, language string) error {
	src, err := c.BlobURL(captionsKey)
	if err != nil {
		return err
	}
	if language == "" {
		language = "en"
	}
	meta, err := json.Marshal(map[string]string{
		"type":     "captions",
		"language": language,
		"name":     path.Base(captionsKey),
	})
	if err != nil {
		return err
	}
	var track struct {
		URI  string `json:"uri"`
		Link string `json:"link"`
	}
	if err := c.call(ctx, http.MethodPost, c.cfg.BaseURL+videoURI+"/texttracks", "application/json", meta, &track); err != nil {
		return err
	}
	if track.Link == "" {
		return ErrNoUploadLink
	}

	vtt, err := c.fetch(ctx, src)
	if err != nil {
		return err
	}
	return c.call(ctx, http.MethodPut, track.Link, "text/vtt", vtt, nil)
}

func (c *Client) fetch(ctx context.Context, src string) ([]byte, error) {
	return retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return nil, retry.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := &APIError{Method: http.MethodGet, Path: src, Status: resp.StatusCode}
			if apiErr.Transient() {
				return nil, apiErr
			}
			return nil, retry.Permanent(apiErr)
		}
		return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	})
}

func (c *Client) call(ctx context.Context, method, target, contentType string, body []byte, out any) error {
	ctx, span := otel.Tracer("upload/Client").Start(ctx, method+" video-host",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.method", method)),
	)
	defer span.End()

	_, err := retry.Do(ctx, c.cfg.Retry, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.once(ctx, method, target, contentType, body, out)
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (c *Client) once(ctx context.Context, method, target, contentType string, body []byte, out any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Accept", "application/vnd.vimeo.*+json;version=3.4")
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
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Method: method, Path: req.URL.Path, Status: resp.StatusCode, Body: string(raw)}
		if apiErr.Transient() {
			return apiErr
		}
		return retry.Permanent(apiErr)
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return retry.Permanent(fmt.Errorf("video host %s: decode: %w", method, err))
	}
	return nil
}
