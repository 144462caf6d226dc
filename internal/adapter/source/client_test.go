package source

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/aq-dashboard-service/internal/domain"
	"github.com/couchcryptid/aq-dashboard-service/internal/observability"
)

const countyCSV = "County Code,County,Pollutant_A\n35001,Bernalillo,.\n35003,Catron,1.5\n"

func testClient(timeout time.Duration) *Client {
	return NewClient(timeout, 0, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
}

func TestClient_FetchHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/conreport2001.csv", r.URL.Path)
		w.Header().Set("Content-Type", "text/csv")
		_, _ = io.WriteString(w, countyCSV)
	}))
	defer srv.Close()

	raw, err := testClient(5*time.Second).Fetch(context.Background(), domain.SourceDescriptor{
		ID: "conreport-2001", Location: srv.URL + "/conreport2001.csv",
	})
	require.NoError(t, err)

	assert.Equal(t, "conreport-2001", raw.SourceID)
	assert.Equal(t, []string{"County Code", "County", "Pollutant_A"}, raw.Header)
	assert.Equal(t, [][]string{{"35001", "Bernalillo", "."}, {"35003", "Catron", "1.5"}}, raw.Rows)
}

func TestClient_FetchHTTPErrors(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := testClient(5*time.Second).Fetch(context.Background(), domain.SourceDescriptor{ID: "a", Location: srv.URL})
		var su *domain.SourceUnavailableError
		require.ErrorAs(t, err, &su)
		assert.Equal(t, "a", su.Source)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("timeout", func(t *testing.T) {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			select {
			case <-release:
			case <-r.Context().Done():
			}
		}))
		defer srv.Close()
		defer close(release)

		_, err := testClient(50*time.Millisecond).Fetch(context.Background(), domain.SourceDescriptor{ID: "slow", Location: srv.URL})
		assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := testClient(5*time.Second).Fetch(ctx, domain.SourceDescriptor{ID: "c", Location: "http://127.0.0.1:1/x.csv"})
		assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	})
}

func TestClient_FetchRetries(t *testing.T) {
	newClient := func(retries int) *Client {
		c := NewClient(time.Second, retries, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
		c.backoff = time.Millisecond
		return c
	}

	t.Run("recovers after 503", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if calls.Add(1) < 3 {
				http.Error(w, "busy", http.StatusServiceUnavailable)
				return
			}
			_, _ = io.WriteString(w, countyCSV)
		}))
		defer srv.Close()

		raw, err := newClient(2).Fetch(context.Background(), domain.SourceDescriptor{ID: "flaky", Location: srv.URL})
		require.NoError(t, err)
		assert.Len(t, raw.Rows, 2)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("gives up after retries", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			http.Error(w, "down", http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := newClient(1).Fetch(context.Background(), domain.SourceDescriptor{ID: "down", Location: srv.URL})
		assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("404 is not retried", func(t *testing.T) {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.NotFound(w, r)
		}))
		defer srv.Close()

		_, err := newClient(3).Fetch(context.Background(), domain.SourceDescriptor{ID: "gone", Location: srv.URL})
		assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestClient_FetchFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "county.csv")
	require.NoError(t, os.WriteFile(path, []byte(countyCSV), 0o600))

	c := testClient(time.Second)
	raw, err := c.Fetch(context.Background(), domain.SourceDescriptor{ID: "local", Location: path})
	require.NoError(t, err)
	assert.Len(t, raw.Rows, 2)

	_, err = c.Fetch(context.Background(), domain.SourceDescriptor{ID: "missing", Location: filepath.Join(dir, "nope.csv")})
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestClient_FetchOversized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, countyCSV)
	}))
	defer srv.Close()

	c := testClient(5 * time.Second)
	src := domain.SourceDescriptor{ID: "big", Location: srv.URL}

	t.Run("over the cap fails loudly", func(t *testing.T) {
		c.maxBody = int64(len(countyCSV)) - 1
		raw, err := c.Fetch(context.Background(), src)
		var su *domain.SourceUnavailableError
		require.ErrorAs(t, err, &su)
		assert.Equal(t, "big", su.Source)
		assert.Contains(t, err.Error(), "exceeds")
		assert.Empty(t, raw.Rows)
	})

	t.Run("exactly the cap is read whole", func(t *testing.T) {
		c.maxBody = int64(len(countyCSV))
		raw, err := c.Fetch(context.Background(), src)
		require.NoError(t, err)
		assert.Len(t, raw.Rows, 2)
	})
}

func TestReadCSV(t *testing.T) {
	t.Run("ragged rows and blank lines", func(t *testing.T) {
		raw, err := ReadCSV("s", strings.NewReader("A,B,C\n1,2\n,,\n\"x, y\",2,3\n"))
		require.NoError(t, err)
		assert.Equal(t, [][]string{{"1", "2"}, {"x, y", "2", "3"}}, raw.Rows)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := ReadCSV("s", strings.NewReader(""))
		assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
	})

	t.Run("header only", func(t *testing.T) {
		raw, err := ReadCSV("s", strings.NewReader("A,B\n"))
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, raw.Header)
		assert.Empty(t, raw.Rows)
	})
}
