// Package dist opens runtime distribution archives as live byte streams.
//
// Archives are never written to disk: Open hands the response body to the
// caller, who feeds it straight into an archive reader. Only opening the
// stream is retried; once a body is handed out a failure belongs to the
// consumer.
package dist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/ZebulonRouseFrantzich/seapack/internal/logging"
	"github.com/ZebulonRouseFrantzich/seapack/internal/platform"
)

const (
	// DefaultMirror is the official Node.js distribution host.
	DefaultMirror = "https://nodejs.org"
	// DefaultConnectTimeout bounds dialing and waiting for the first response byte.
	DefaultConnectTimeout = 15 * time.Second
	// DefaultAttempts is the default number of attempts to open a stream.
	DefaultAttempts = 3
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "seapack/1.0"

	// maxAuxiliarySize caps checksum and signature files fetched with Fetch.
	maxAuxiliarySize = 1 << 20
)

var versionPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+\.[0-9]+$`)

// DownloadError is returned when a distribution file cannot be fetched.
// StatusCode is zero for transport failures.
type DownloadError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: HTTP %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("download %s: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// Temporary reports whether retrying the request may succeed.
func (e *DownloadError) Temporary() bool {
	if e.StatusCode == 0 {
		return true
	}
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Stream is an open distribution archive body.
type Stream struct {
	io.ReadCloser
	URL           string
	Name          string
	ContentLength int64
}

// Client fetches runtime distribution files.
type Client struct {
	httpClient *http.Client
	mirror     string
	userAgent  string
	attempts   uint
	newBackOff func() backoff.BackOff
	logger     logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithMirror sets the distribution host, e.g. "https://nodejs.org".
func WithMirror(mirror string) Option {
	return func(c *Client) {
		if mirror != "" {
			c.mirror = strings.TrimRight(mirror, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAttempts sets how many times opening a stream is attempted.
func WithAttempts(n uint) Option {
	return func(c *Client) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithBackOff sets the retry delay policy. The function is called once per
// Open so stateful policies start fresh.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = fn }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client with a keep-alive transport. Dialing and the
// wait for response headers are bounded by DefaultConnectTimeout; reading
// the body is not, since archives are large.
func NewClient(opts ...Option) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   DefaultConnectTimeout,
			KeepAlive: 5 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   DefaultConnectTimeout,
		ResponseHeaderTimeout: DefaultConnectTimeout,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		mirror:    DefaultMirror,
		userAgent: DefaultUserAgent,
		attempts:  DefaultAttempts,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			return b
		},
		logger: logging.Nop(),
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateVersion checks that version is a dotted numeric runtime version.
func ValidateVersion(version string) error {
	if !versionPattern.MatchString(version) {
		return fmt.Errorf("invalid runtime version %q (expected MAJOR.MINOR.PATCH)", version)
	}
	return nil
}

// NormalizeVersion strips a leading "v" from version.
func NormalizeVersion(version string) string {
	return strings.TrimPrefix(strings.TrimSpace(version), "v")
}

// ArchiveName returns the distribution file name for target and version.
// Pattern: node-v{version}-{platform}-{arch}.{zip|tar.xz}
func ArchiveName(target platform.Target, version string) string {
	return fmt.Sprintf("node-v%s-%s.%s", version, target, target.Platform.ArchiveExt())
}

// VersionURL returns the distribution directory URL for version.
func (c *Client) VersionURL(version string) string {
	return fmt.Sprintf("%s/dist/v%s", c.mirror, version)
}

// URL returns the archive URL for target and version.
func (c *Client) URL(target platform.Target, version string) string {
	return c.VersionURL(version) + "/" + ArchiveName(target, version)
}

// acceptHeader returns the Accept header matching the archive format.
func acceptHeader(p platform.Platform) string {
	if p == platform.Windows {
		return "application/zip, */*"
	}
	return "application/x-xz, application/x-xz-compressed-tar, */*"
}

// Open starts downloading the archive for target and returns its body as a
// stream. The caller must close the stream.
func (c *Client) Open(ctx context.Context, target platform.Target, version string) (*Stream, error) {
	if err := ValidateVersion(version); err != nil {
		return nil, err
	}

	url := c.URL(target, version)
	c.logger.Info("retrieving archive", "url", url)

	resp, err := c.getWithRetry(ctx, url, acceptHeader(target.Platform))
	if err != nil {
		return nil, err
	}

	return &Stream{
		ReadCloser:    resp.Body,
		URL:           url,
		Name:          ArchiveName(target, version),
		ContentLength: resp.ContentLength,
	}, nil
}

// Fetch downloads a small file from the version directory, such as
// SHASUMS256.txt.
func (c *Client) Fetch(ctx context.Context, version, name string) ([]byte, error) {
	if err := ValidateVersion(version); err != nil {
		return nil, err
	}

	url := c.VersionURL(version) + "/" + name
	resp, err := c.getWithRetry(ctx, url, "text/plain, */*")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAuxiliarySize+1))
	if err != nil {
		return nil, &DownloadError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if len(data) > maxAuxiliarySize {
		return nil, &DownloadError{URL: url, Err: fmt.Errorf("file exceeds %d bytes", maxAuxiliarySize)}
	}
	return data, nil
}

func (c *Client) getWithRetry(ctx context.Context, url, accept string) (*http.Response, error) {
	operation := func() (*http.Response, error) {
		resp, err := c.get(ctx, url, accept)
		if err != nil {
			var dlErr *DownloadError
			if ctx.Err() != nil || (errors.As(err, &dlErr) && !dlErr.Temporary()) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return resp, nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("download attempt failed, retrying", "url", url, "error", err, "wait", wait)
	}

	resp, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(c.attempts),
		backoff.WithNotify(notify),
	)
	if err != nil {
		var dlErr *DownloadError
		if errors.As(err, &dlErr) {
			return nil, err
		}
		return nil, &DownloadError{URL: url, Err: err}
	}
	return resp, nil
}

// get performs a single request attempt.
func (c *Client) get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", accept)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DownloadError{URL: url, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &DownloadError{URL: url, StatusCode: resp.StatusCode}
	}

	return resp, nil
}
