// Package github talks to the hosted repository API: folder listings
// (flat paginated contents or recursive git trees), raw content
// downloads, and the latest-release feed.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	apperrors "github.com/darkmatro/modsync/internal/errors"
)

// TransientError wraps an error that is likely temporary (network
// failure, remote hiccup). The orchestrator uses it to word the failure
// as a connectivity problem rather than a bug.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or any error in its chain) is a
// TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

const defaultBaseURL = "https://api.github.com"

const (
	// httpClientTimeout bounds listing and metadata requests when no
	// custom client is provided. Content downloads use a separate
	// client without a total timeout, since large assets on slow links
	// legitimately take minutes.
	httpClientTimeout = 30 * time.Second

	// maxListingResponseBytes caps listing/metadata body reads so a
	// misbehaving server cannot consume unbounded memory. Tree listings
	// of the largest folder stay well under this.
	maxListingResponseBytes = 32 * 1024 * 1024

	// rateLimitMaxAttempts is the ceiling on rate-limited fetch retries.
	// Exhausting it is a fatal connectivity error: silently skipping a
	// required listing would desynchronize the local tree.
	rateLimitMaxAttempts = 3

	// rateLimitDefaultDelay is slept between rate-limited attempts when
	// the server does not suggest a Retry-After interval.
	rateLimitDefaultDelay = 2 * time.Second

	// rateLimitMaxDelay caps a server-suggested Retry-After so a hostile
	// or confused server cannot park the session for hours.
	rateLimitMaxDelay = 5 * time.Minute

	// downloadChunkSize is the copy buffer for content downloads. Small
	// on purpose: progress reporting stays smooth and peak memory per
	// concurrent download is bounded.
	downloadChunkSize = 1024
)

// errAbsent marks a 404/401 listing outcome. Internal only: the listing
// functions translate it to an empty result, because a folder that does
// not exist upstream is a normal state, not a failure.
var errAbsent = errors.New("remote path absent")

// Client is a hosted-repository API client. Safe for concurrent use.
type Client struct {
	httpClient     *http.Client
	downloadClient *http.Client
	baseURL        string
	token          string
	logger         *slog.Logger

	// retrySleep is swappable in tests to avoid real sleeps.
	retrySleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates an API client. token may be empty (unauthenticated
// rate limits apply). If httpClient is nil a client with a 30-second
// timeout is used for metadata requests.
func NewClient(httpClient *http.Client, token string, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpClientTimeout}
	}

	return &Client{
		httpClient:     httpClient,
		downloadClient: &http.Client{},
		baseURL:        defaultBaseURL,
		token:          token,
		logger:         logger,
		retrySleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (c *Client) newRequest(ctx context.Context, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	return req, nil
}

// getJSON fetches url with the retry/backoff policy:
//   - 200: body returned
//   - 404: errAbsent (callers yield an empty listing)
//   - 401: logged, errAbsent (a bad token must not kill the session)
//   - 429, or 403 that mentions rate limiting: sleep Retry-After
//     (default 2s) and retry, up to rateLimitMaxAttempts
//   - anything else: fatal ErrUnexpectedStatus
func (c *Client) getJSON(ctx context.Context, url string) ([]byte, error) {
	for attempt := 1; attempt <= rateLimitMaxAttempts; attempt++ {
		body, retryAfter, err := c.getOnce(ctx, url)
		if err == nil {
			return body, nil
		}

		if !errors.Is(err, errRateLimited) {
			return nil, err
		}

		if attempt == rateLimitMaxAttempts {
			break
		}

		c.logger.Warn("rate limited, backing off",
			slog.String("url", url),
			slog.Duration("retry_after", retryAfter),
			slog.Int("attempt", attempt),
		)

		if err := c.retrySleep(ctx, retryAfter); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("fetching %s after %d attempts: %w", url, rateLimitMaxAttempts, apperrors.ErrRateLimited)
}

// errRateLimited is the per-attempt signal that triggers backoff.
var errRateLimited = errors.New("rate limited")

func (c *Client) getOnce(ctx context.Context, url string) ([]byte, time.Duration, error) {
	req, err := c.newRequest(ctx, url)
	if err != nil {
		return nil, 0, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &TransientError{Err: fmt.Errorf("fetching %s: %w", url, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingResponseBytes))
	if err != nil {
		return nil, 0, &TransientError{Err: fmt.Errorf("reading response from %s: %w", url, err)}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, 0, nil

	case resp.StatusCode == http.StatusNotFound:
		return nil, 0, errAbsent

	case resp.StatusCode == http.StatusUnauthorized:
		c.logger.Error("unauthorized, check the configured token", slog.String("url", url))
		return nil, 0, errAbsent

	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusForbidden && mentionsRateLimit(body):
		return nil, retryAfterDelay(resp.Header.Get("Retry-After")), errRateLimited

	default:
		return nil, 0, fmt.Errorf("%w: %s returned %d: %s",
			apperrors.ErrUnexpectedStatus, url, resp.StatusCode, sanitizeResponseBody(body))
	}
}

// mentionsRateLimit checks whether a 403 body is a rate-limit rejection
// rather than a permission problem. The API reports the reason in a
// JSON "message" field; fall back to a raw substring check for
// non-JSON bodies.
func mentionsRateLimit(body []byte) bool {
	if msg := gjson.GetBytes(body, "message"); msg.Exists() {
		return strings.Contains(strings.ToLower(msg.String()), "rate limit")
	}

	return strings.Contains(strings.ToLower(string(body)), "rate limit")
}

func retryAfterDelay(header string) time.Duration {
	if header == "" {
		return rateLimitDefaultDelay
	}

	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return rateLimitDefaultDelay
	}

	d := time.Duration(secs) * time.Second
	if d > rateLimitMaxDelay {
		return rateLimitMaxDelay
	}

	return d
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages: capped at 256 bytes, control characters
// replaced so an error line cannot inject into logs.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// Download streams the content at url to w in fixed-size chunks,
// invoking report with the byte count of each chunk written. The chunked
// copy bounds peak memory on large assets and keeps aggregate progress
// smooth across concurrent downloads.
func (c *Client) Download(ctx context.Context, url string, w io.Writer, report func(n int)) error {
	req, err := c.newRequest(ctx, url)
	if err != nil {
		return err
	}

	resp, err := c.downloadClient.Do(req)
	if err != nil {
		return &TransientError{Err: fmt.Errorf("downloading %s: %w", url, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%w: download %s returned %d: %s",
			apperrors.ErrUnexpectedStatus, url, resp.StatusCode, sanitizeResponseBody(body))
	}

	buf := make([]byte, downloadChunkSize)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return fmt.Errorf("writing chunk: %w", err)
			}

			if report != nil {
				report(n)
			}
		}

		if readErr == io.EOF {
			return nil
		}

		if readErr != nil {
			return &TransientError{Err: fmt.Errorf("reading %s: %w", url, readErr)}
		}
	}
}

// RawFile fetches a small raw file (the README used for version
// extraction). Not subject to the listing retry policy: a version
// banner is cosmetic next to a sync.
func (c *Client) RawFile(ctx context.Context, url string) ([]byte, error) {
	req, err := c.newRequest(ctx, url)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("fetching %s: %w", url, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned %d", apperrors.ErrUnexpectedStatus, url, resp.StatusCode)
	}

	const maxRawBytes = 1024 * 1024

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRawBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}

	return body, nil
}
