package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpillora/backoff"
	"github.com/raykavin/rsdash/pkg/core"
	"github.com/stretchr/testify/require"
)

const validBody = `{
	"world_map": "<svg>A</svg>",
	"world_map2": "<svg>B</svg>",
	"world_map3": "<svg>C</svg>",
	"graph1AXA": ["2021-01", "2021-02"],
	"graph1AYA": [0.1, 0.2],
	"graph1AX": ["2021-01", "2021-02"],
	"graph1AY": [301.2, 305.9]
}`

func fastBackoff() *backoff.Backoff {
	return &backoff.Backoff{Min: time.Millisecond, Max: 2 * time.Millisecond}
}

func TestClient_URL(t *testing.T) {
	c, err := New("http://backend.local/")
	require.NoError(t, err)

	require.Equal(t, "http://backend.local/update_charts?year=2021", c.URL("2021"))
	require.Equal(t, "http://backend.local/update_charts?year=20%2621+x", c.URL("20&21 x"))
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("backend.local")
	require.Error(t, err)
}

func TestClient_Fetch(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.RequestURI())
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, validBody)
	}))
	defer server.Close()

	c, err := New(server.URL)
	require.NoError(t, err)

	payload, err := c.Fetch(context.Background(), "2021")
	require.NoError(t, err)
	require.Equal(t, []string{"GET /update_charts?year=2021"}, requests)
	require.Equal(t, "<svg>A</svg>", payload.WorldMap)
	require.Equal(t, []string{"2021-01", "2021-02"}, payload.NDVICategories)
	require.Equal(t, []float64{0.1, 0.2}, payload.NDVIValues)
	require.Equal(t, []float64{301.2, 305.9}, payload.LSTValues)
}

func TestClient_Fetch_NoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	c, err := New(server.URL)
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "2021")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusBadGateway, statusErr.Code)
	require.Equal(t, int32(1), calls.Load())
}

func TestClient_Fetch_Retries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, validBody)
	}))
	defer server.Close()

	c, err := New(server.URL, WithRetries(2), WithBackoff(fastBackoff()))
	require.NoError(t, err)

	payload, err := c.Fetch(context.Background(), "2020")
	require.NoError(t, err)
	require.NotNil(t, payload)
	require.Equal(t, int32(3), calls.Load())
}

func TestClient_Fetch_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c, err := New(server.URL, WithRetries(3), WithBackoff(fastBackoff()))
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "2021")
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestClient_Fetch_BackendRejectsYear(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"error": "Invalid selection."}`)
	}))
	defer server.Close()

	c, err := New(server.URL)
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "1999")
	require.True(t, errors.Is(err, core.ErrInvalidYear))
	require.Contains(t, err.Error(), "Invalid selection.")
}

func TestClient_Fetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	c, err := New(server.URL, WithTimeout(20*time.Millisecond))
	require.NoError(t, err)

	_, err = c.Fetch(context.Background(), "2021")
	require.Error(t, err)
}

func TestClient_Fetch_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, validBody)
	}))
	defer server.Close()

	c, err := New(server.URL, WithRetries(5))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Fetch(ctx, "2021")
	require.True(t, errors.Is(err, context.Canceled))
}
