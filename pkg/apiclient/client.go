package apiclient

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config holds outbound backend client configuration.
type Config struct {
	BaseURL         string
	Timeout         time.Duration // per-request deadline
	SlowTimeout     time.Duration // deadline for known slow endpoints
	MaxConnsPerHost int
}

// DefaultConfig returns the standard client configuration for the given
// backend base URL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:         baseURL,
		Timeout:         30 * time.Second,
		SlowTimeout:     120 * time.Second,
		MaxConnsPerHost: 100,
	}
}

// slowEndpoints lists URL substrings backed by operations that routinely
// exceed the default deadline (document chat answers, chat history loads,
// full lawyer/client listings, admin user listing).
var slowEndpoints = []string{
	"/documents/query",
	"/chat/sessions",
	"/support/chat",
	"/lawyer/all",
	"/lawyer/portfolio",
	"/client/all",
	"/admin/users",
}

// RequestInterceptor inspects and may mutate an outbound request before it
// is sent. Returning an error aborts the request before it reaches the
// network.
type RequestInterceptor func(req *http.Request) error

// ResponseInterceptor observes every completed call: the outbound request,
// the response (nil on transport failure), and the transport error. The
// returned error replaces err for the caller; interceptors that only perform
// side effects return err unchanged.
type ResponseInterceptor func(req *http.Request, resp *http.Response, err error) error

var (
	outboundRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "apiclient_requests_total",
			Help: "Total outbound backend requests by method and status",
		},
		[]string{"method", "status"},
	)

	identifierRejectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "apiclient_identifier_rejections_total",
			Help: "Outbound requests rejected for a malformed path identifier",
		},
	)
)

// Client is the single outbound HTTP client every backend call goes
// through. It resolves paths against the configured base URL, applies the
// default JSON content type, runs the registered interceptor chains, and
// enforces per-request deadlines.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	cfg        Config

	onRequest  []RequestInterceptor
	onResponse []ResponseInterceptor
}

// New creates a backend client from cfg.
func New(cfg Config) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL %q must be absolute", cfg.BaseURL)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		baseURL: base,
		// Deadlines are applied per request via context, not on the
		// http.Client, because slow endpoints get a longer budget.
		httpClient: &http.Client{Transport: transport},
		cfg:        cfg,
	}, nil
}

// OnRequest appends an interceptor to the before-send chain.
func (c *Client) OnRequest(i RequestInterceptor) {
	c.onRequest = append(c.onRequest, i)
}

// OnResponse appends an interceptor to the after-receive chain.
func (c *Client) OnResponse(i ResponseInterceptor) {
	c.onResponse = append(c.onResponse, i)
}

// NewRequest builds a request for path (resolved against the base URL) with
// the default JSON content type.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("parse request path %q: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.ResolveReference(ref).String(), body)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Do runs the request through the interceptor chains. A request interceptor
// error aborts the call before transmission; the error is returned to the
// caller and no response interceptor runs. Response interceptors run on
// every completed call, transport failures included, and the original
// failure always propagates to the caller after their side effects.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	for _, intercept := range c.onRequest {
		if err := intercept(req); err != nil {
			if IsIdentifierError(err) {
				identifierRejectionsTotal.Inc()
			}
			return nil, err
		}
	}

	ctx, cancel := context.WithTimeout(req.Context(), c.timeoutFor(req.URL))
	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		cancel()
	} else {
		// Hold the deadline open until the caller closes the body.
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	}

	outboundRequestsTotal.WithLabelValues(req.Method, statusLabel(resp, err)).Inc()

	for _, intercept := range c.onResponse {
		err = intercept(req, resp, err)
	}
	return resp, err
}

// Get issues a GET against path.
func (c *Client) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, path, http.NoBody)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Post issues a POST against path with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body io.Reader) (*http.Response, error) {
	req, err := c.NewRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// timeoutFor picks the per-request deadline: the long budget for known slow
// operations, the default for everything else.
func (c *Client) timeoutFor(u *url.URL) time.Duration {
	for _, s := range slowEndpoints {
		if strings.Contains(u.Path, s) {
			return c.cfg.SlowTimeout
		}
	}
	return c.cfg.Timeout
}

func statusLabel(resp *http.Response, err error) string {
	if err != nil || resp == nil {
		return "error"
	}
	return strconv.Itoa(resp.StatusCode)
}

// cancelOnClose releases the request's deadline timer when the response
// body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	c.cancel()
	return c.ReadCloser.Close()
}
