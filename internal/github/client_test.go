package github

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/darkmatro/modsync/internal/errors"
)

// newTestClient returns a client pointed at server with sleeps recorded
// instead of executed.
func newTestClient(server *httptest.Server) (*Client, *[]time.Duration) {
	c := NewClient(server.Client(), "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.baseURL = server.URL

	var slept []time.Duration

	c.retrySleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	return c, &slept
}

func TestGetJSONRetriesRateLimit(t *testing.T) {
	var calls int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	c, slept := newTestClient(server)

	body, err := c.getJSON(context.Background(), server.URL+"/anything")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{7 * time.Second, 7 * time.Second}, *slept)
}

func TestGetJSONRateLimitExhaustion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// A 403 whose body mentions rate limiting counts as rate
		// limiting, matching the API's secondary-limit responses.
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"API rate limit exceeded for 1.2.3.4"}`))
	}))
	defer server.Close()

	c, slept := newTestClient(server)

	_, err := c.getJSON(context.Background(), server.URL+"/anything")
	require.ErrorIs(t, err, apperrors.ErrRateLimited)
	// Default delay applies when Retry-After is missing.
	assert.Equal(t, []time.Duration{rateLimitDefaultDelay, rateLimitDefaultDelay}, *slept)
}

func TestGetJSONForbiddenWithoutRateLimitIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"Repository access blocked"}`))
	}))
	defer server.Close()

	c, slept := newTestClient(server)

	_, err := c.getJSON(context.Background(), server.URL+"/anything")
	require.ErrorIs(t, err, apperrors.ErrUnexpectedStatus)
	assert.Empty(t, *slept)
}

func TestGetJSONUnexpectedStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	c, _ := newTestClient(server)

	_, err := c.getJSON(context.Background(), server.URL+"/anything")
	assert.ErrorIs(t, err, apperrors.ErrUnexpectedStatus)
}

func TestGetJSONSendsToken(t *testing.T) {
	var got string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c, _ := newTestClient(server)
	c.token = "secret123"

	_, err := c.getJSON(context.Background(), server.URL+"/anything")
	require.NoError(t, err)
	assert.Equal(t, "token secret123", got)
}

func TestRetryAfterDelay(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"missing header", "", rateLimitDefaultDelay},
		{"valid seconds", "30", 30 * time.Second},
		{"garbage", "soon", rateLimitDefaultDelay},
		{"negative", "-5", rateLimitDefaultDelay},
		{"capped", "86400", rateLimitMaxDelay},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryAfterDelay(tt.header))
		})
	}
}

func TestDownloadStreamsChunksWithProgress(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 3000)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	c, _ := newTestClient(server)

	var out bytes.Buffer

	var reported int

	err := c.Download(context.Background(), server.URL+"/file.bin", &out, func(n int) {
		reported += n
		// Chunked copy: no single report exceeds the chunk size.
		assert.LessOrEqual(t, n, downloadChunkSize)
	})
	require.NoError(t, err)
	assert.Equal(t, payload, out.Bytes())
	assert.Equal(t, len(payload), reported)
}

func TestDownloadNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	c, _ := newTestClient(server)
	c.downloadClient = server.Client()

	err := c.Download(context.Background(), server.URL+"/file.bin", &bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, apperrors.ErrUnexpectedStatus)
}

func TestSanitizeResponseBody(t *testing.T) {
	assert.Equal(t, "plain text", sanitizeResponseBody([]byte("plain text")))
	assert.Equal(t, "a?b", sanitizeResponseBody([]byte("a\x00b")))
	assert.Len(t, sanitizeResponseBody(bytes.Repeat([]byte("z"), 1000)), 256)
}
