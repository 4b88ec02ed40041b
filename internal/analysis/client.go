// Package analysis is the HTTP transport to the CV analysis service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/kalambet/cvsift/internal/match"
	"github.com/kalambet/cvsift/internal/stream"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	defaultTimeout = 60 * time.Second
	maxRetries     = 3
	initialBackoff = 500 * time.Millisecond
)

// ErrDocumentNotFound is returned when the service has no document for a file ID.
var ErrDocumentNotFound = errors.New("document not found")

// StatusError is a non-2xx response from the service.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("unexpected status %d", e.Code)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Detail)
}

// rateLimitError is returned on HTTP 429.
type rateLimitError struct {
	status int
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited (HTTP %d)", e.status)
}

func isRateLimit(err error) bool {
	var rl *rateLimitError
	return errors.As(err, &rl)
}

// Client talks to the analysis service.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	backoff    time.Duration
}

// NewClient creates a client for the service at baseURL. apiKey may be empty.
func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		// No client-wide timeout: a stream stays open as long as the
		// service keeps it open.
		httpClient: &http.Client{},
		timeout:    defaultTimeout,
		backoff:    initialBackoff,
	}
}

// SetTimeout bounds every request except the streaming read. Zero or
// negative restores the default.
func (c *Client) SetTimeout(d time.Duration) {
	if d <= 0 {
		d = defaultTimeout
	}
	c.timeout = d
}

// BaseURL returns the service root the client was built with.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Stream submits sub and returns the open event stream. The caller must close
// the body; cancelling ctx also closes it.
func (c *Client) Stream(ctx context.Context, sub match.Submission) (io.ReadCloser, error) {
	body, contentType, err := encodeSubmission(sub)
	if err != nil {
		return nil, err
	}
	return c.upload(ctx, body, contentType, "text/event-stream", 0)
}

// Submit sends sub without streaming and returns the full result set.
func (c *Client) Submit(ctx context.Context, sub match.Submission) ([]match.MatchResult, error) {
	body, contentType, err := encodeSubmission(sub)
	if err != nil {
		return nil, err
	}
	rc, err := c.upload(ctx, body, contentType, "application/json", c.timeout)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var p stream.ResultsPayload
	if err := json.NewDecoder(rc).Decode(&p); err != nil {
		return nil, fmt.Errorf("decoding results: %w", err)
	}
	if p.Results == nil {
		p.Results = []match.MatchResult{}
	}
	return p.Results, nil
}

// upload posts the multipart body, retrying only while the service answers
// 429. A zero timeout leaves the response open until ctx ends.
func (c *Client) upload(ctx context.Context, body []byte, contentType, accept string, timeout time.Duration) (io.ReadCloser, error) {
	var lastErr error
	for attempt := range maxRetries {
		rc, err := c.doUpload(ctx, body, contentType, accept, timeout)
		if err == nil {
			return rc, nil
		}
		if !isRateLimit(err) {
			return nil, err
		}

		lastErr = err
		if attempt < maxRetries-1 {
			backoff := time.Duration(float64(c.backoff) * math.Pow(2, float64(attempt)))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return nil, fmt.Errorf("rate limited after %d retries: %w", maxRetries, lastErr)
}

func (c *Client) doUpload(ctx context.Context, body []byte, contentType, accept string, timeout time.Duration) (io.ReadCloser, error) {
	var (
		reqCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		reqCtx, cancel = context.WithCancel(ctx)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL+"/api/upload", bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("executing request: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		cancel()
		return nil, &rateLimitError{status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		err := statusError(resp)
		resp.Body.Close()
		cancel()
		return nil, err
	}

	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

// cancelOnClose wraps a ReadCloser and cancels a context on Close.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

// FetchDocument downloads the stored document with the given file ID and
// returns its bytes and content type.
func (c *Client) FetchDocument(ctx context.Context, fileID string) ([]byte, string, error) {
	if strings.TrimSpace(fileID) == "" {
		return nil, "", errors.New("file id is required")
	}
	resp, err := c.get(ctx, "/api/file/"+url.PathEscape(fileID))
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", fmt.Errorf("%s: %w", fileID, ErrDocumentNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", statusError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading document: %w", err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// Health is the service's answer to a health probe.
type Health struct {
	Status string `json:"status"`
}

// Health probes the service.
func (c *Client) Health(ctx context.Context) (Health, error) {
	resp, err := c.get(ctx, "/api/health")
	if err != nil {
		return Health{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Health{}, statusError(resp)
	}
	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return Health{}, fmt.Errorf("decoding health: %w", err)
	}
	return h, nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

func (c *Client) setHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("User-Agent", "cvsift")
}

// statusError reads the FastAPI-style {"detail": ...} body when present.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var body struct {
		Detail any `json:"detail"`
	}
	detail := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &body) == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			detail = s
		} else if b, err := json.Marshal(body.Detail); err == nil {
			detail = string(b)
		}
	}
	return &StatusError{Code: resp.StatusCode, Detail: detail}
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// encodeSubmission renders sub as the multipart form the service expects:
// one requirements field and one files part per document.
func encodeSubmission(sub match.Submission) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("requirements", sub.Criteria); err != nil {
		return nil, "", fmt.Errorf("writing requirements: %w", err)
	}
	for _, d := range sub.Documents {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, quoteEscaper.Replace(d.Name)))
		mediaType := d.MediaType
		if mediaType == "" {
			mediaType = "application/octet-stream"
		}
		h.Set("Content-Type", mediaType)
		pw, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("creating part for %s: %w", d.Name, err)
		}
		if _, err := pw.Write(d.Data); err != nil {
			return nil, "", fmt.Errorf("writing %s: %w", d.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}
