package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordSleep replaces the client's sleeper so retry tests finish instantly.
func recordSleep(c *Client) *[]time.Duration {
	var slept []time.Duration
	c.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return &slept
}

func TestDoRetriesOn429WithRetryAfter(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	slept := recordSleep(c)

	raw, err := c.Do(context.Background(), http.MethodGet, "thing", nil, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, *slept)
}

func TestDo429FallsBackToPolicyPause(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c := New(srv.URL, WithPolicy(Policy{
		MaxRetries:     3,
		Backoff:        LinearBackoff(time.Second),
		RateLimitPause: 5 * time.Second,
	}))
	slept := recordSleep(c)

	_, err := c.Do(context.Background(), http.MethodGet, "thing", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second}, *slept)
}

func TestDo429BudgetExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := New(srv.URL)
	recordSleep(c)

	_, err := c.Do(context.Background(), http.MethodGet, "thing", nil, nil)
	var rle *RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, c.policy.MaxRetries, rle.Attempts)
}

func TestDoFailsImmediatelyOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL)
	recordSleep(c)

	_, err := c.Do(context.Background(), http.MethodGet, "thing", nil, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "boom")
	assert.Equal(t, int32(1), calls.Load(), "5xx must not be retried")
}

func TestDoRetriesTransportFailures(t *testing.T) {
	// A server that is already closed refuses every connection.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := New(srv.URL)
	slept := recordSleep(c)

	_, err := c.Do(context.Background(), http.MethodGet, "thing", nil, nil)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, c.policy.MaxRetries, te.Attempts)
	assert.Len(t, *slept, c.policy.MaxRetries-1)
}

func TestDoReturnsNilOn204(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	raw, err := New(srv.URL).Do(context.Background(), http.MethodDelete, "thing/1", nil, nil)
	require.NoError(t, err)
	assert.Nil(t, raw)
}

func TestGetPagedConcatenatesPagesInOrder(t *testing.T) {
	const total, pageSize = 10, 4
	var offsets []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offsets = append(offsets, offset)

		var page []map[string]int
		for i := offset; i < offset+limit && i < total; i++ {
			page = append(page, map[string]int{"n": i})
		}
		require.NoError(t, json.NewEncoder(w).Encode(page))
	}))
	defer srv.Close()

	items, err := New(srv.URL).GetPaged(context.Background(), "items", nil, pageSize)
	require.NoError(t, err)
	require.Len(t, items, total)
	assert.Equal(t, []int{0, 4, 8}, offsets)
	for i, raw := range items {
		var item struct {
			N int `json:"n"`
		}
		require.NoError(t, json.Unmarshal(raw, &item))
		assert.Equal(t, i, item.N, "no duplicate or missing offset")
	}
}

func TestGetPagedSingleObjectShortCircuit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"id": 7, "name": "singleton"}`)
	}))
	defer srv.Close()

	items, err := New(srv.URL).GetPaged(context.Background(), "singleton", nil, 50)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.JSONEq(t, `{"id": 7, "name": "singleton"}`, string(items[0]))
	assert.Equal(t, int32(1), calls.Load())
}

func TestUploadSendsMultipartFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "no-check", r.Header.Get("X-Atlassian-Token"))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		assert.Equal(t, "report.pdf", header.Filename)
		fmt.Fprint(w, `[{"id": "1", "filename": "report.pdf"}]`)
	}))
	defer srv.Close()

	raw, err := New(srv.URL).Upload(context.Background(), "attach", "report.pdf",
		[]byte("pdf bytes"), map[string]string{"X-Atlassian-Token": "no-check"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "report.pdf")
}

func TestGraphQLErrorsSurfaceAsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GraphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Contains(t, req.Query, "viewer")
		fmt.Fprint(w, `{"errors": [{"message": "not authorized"}]}`)
	}))
	defer srv.Close()

	_, err := New(srv.URL).GraphQL(context.Background(), `query { viewer { id } }`, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Contains(t, apiErr.Body, "not authorized")
}

func TestGraphQLReturnsDataPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data": {"viewer": {"id": "u1"}}}`)
	}))
	defer srv.Close()

	data, err := New(srv.URL).GraphQL(context.Background(), `query { viewer { id } }`, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"viewer": {"id": "u1"}}`, string(data))
}
