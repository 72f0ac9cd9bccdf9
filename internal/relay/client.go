// Package relay retrieves pages for the scraper, either through a
// CORS-bypassing fetch relay or directly over HTTP.
package relay

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
)

// Page is the retrieved markup plus the URL the fetch ultimately landed on.
type Page struct {
	HTML     []byte
	FinalURL string
	Status   int
}

// Client retrieves a single page. Implementations must surface every failure
// as a *FetchError so the pipeline can classify it as per-item recoverable.
type Client interface {
	Fetch(ctx context.Context, targetURL string) (*Page, error)
}

// FetchError is the only error kind the scraper surfaces for page retrieval.
type FetchError struct {
	URL     string
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Message, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Message)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrRelayUnreachable reports that the relay itself could not be reached.
var ErrRelayUnreachable = errors.New("fetch relay unreachable")

// Options controls HTTP behaviour shared by the relay and direct clients.
type Options struct {
	Endpoint     string
	UserAgent    string
	Timeout      time.Duration
	MaxBodyBytes int64
}

func (o *Options) fill() {
	if o.Timeout <= 0 {
		o.Timeout = 20 * time.Second
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = 6 * 1024 * 1024
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return errors.New("stopped after 5 redirects")
			}
			return nil
		},
	}
}

// RelayClient speaks the fetch-relay JSON contract: the target URL goes out as
// a request body and the relay performs the real GET on our behalf.
type RelayClient struct {
	endpoint     string
	client       *http.Client
	maxBodyBytes int64
}

// NewRelayClient constructs a client for the given relay endpoint.
func NewRelayClient(opts Options) (*RelayClient, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, errors.New("relay endpoint is empty")
	}
	opts.fill()
	return &RelayClient{
		endpoint:     opts.Endpoint,
		client:       newHTTPClient(opts.Timeout),
		maxBodyBytes: opts.MaxBodyBytes,
	}, nil
}

type relayRequest struct {
	URL string `json:"url"`
}

type relayResponse struct {
	Success  bool   `json:"success"`
	HTML     string `json:"html"`
	FinalURL string `json:"finalUrl"`
	Status   int    `json:"status"`
	Error    string `json:"error"`
}

// Fetch sends the target URL through the relay and decodes the envelope.
func (c *RelayClient) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	payload, err := json.Marshal(relayRequest{URL: targetURL})
	if err != nil {
		return nil, &FetchError{URL: targetURL, Message: "encode relay request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &FetchError{URL: targetURL, Message: "build relay request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: targetURL, Message: ErrRelayUnreachable.Error(), Err: errors.Join(ErrRelayUnreachable, err)}
	}

	body, err := readBody(resp, c.maxBodyBytes)
	if err != nil {
		return nil, &FetchError{URL: targetURL, Message: "read relay response", Err: err}
	}

	if resp.StatusCode == http.StatusNotImplemented {
		return nil, &FetchError{URL: targetURL, Message: ErrRelayUnreachable.Error(), Err: ErrRelayUnreachable}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: targetURL, Message: fmt.Sprintf("relay returned status %d", resp.StatusCode)}
	}

	var envelope relayResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &FetchError{URL: targetURL, Message: "decode relay response", Err: err}
	}
	if !envelope.Success {
		msg := envelope.Error
		if msg == "" {
			msg = "relay reported failure"
		}
		return nil, &FetchError{URL: targetURL, Message: msg}
	}

	finalURL := envelope.FinalURL
	if finalURL == "" {
		finalURL = targetURL
	}
	return &Page{
		HTML:     []byte(envelope.HTML),
		FinalURL: finalURL,
		Status:   envelope.Status,
	}, nil
}

// DirectClient fetches pages without an intermediary, using the same fixed
// mobile identification the relay sends.
type DirectClient struct {
	client       *http.Client
	userAgent    string
	maxBodyBytes int64
}

// NewDirectClient constructs a relay-less page client.
func NewDirectClient(opts Options) *DirectClient {
	opts.fill()
	return &DirectClient{
		client:       newHTTPClient(opts.Timeout),
		userAgent:    opts.UserAgent,
		maxBodyBytes: opts.MaxBodyBytes,
	}
}

// Fetch downloads the target URL with a plain GET.
func (c *DirectClient) Fetch(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, &FetchError{URL: targetURL, Message: "build request", Err: err}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: targetURL, Message: "http fetch failed", Err: err}
	}

	body, err := readBody(resp, c.maxBodyBytes)
	if err != nil {
		return nil, &FetchError{URL: targetURL, Message: "read body", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: targetURL, Message: fmt.Sprintf("source returned status %d", resp.StatusCode)}
	}

	finalURL := targetURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &Page{
		HTML:     body,
		FinalURL: finalURL,
		Status:   resp.StatusCode,
	}, nil
}

func readBody(resp *http.Response, maxBodyBytes int64) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	limited := io.LimitReader(reader, maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", maxBodyBytes)
	}
	return body, nil
}
