package netsuite

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		AccountID:   "12345",
		ConsumerKey: "ck", ConsumerSecret: "cs",
		TokenID: "tk", TokenSecret: "ts",
		Concurrency: 5,
		PageSize:    2,
		MaxPages:    3,
		BaseURL:     srv.URL,
	}, nil)
}

func TestRunDecodesItems(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "transient", r.Header.Get("Prefer"))
		require.Contains(t, r.Header.Get("Authorization"), "OAuth realm=")
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Contains(t, body["q"], "SELECT")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"balance": "-12400000", "links": []any{}},
			},
			"hasMore": false,
		})
	})

	rows, err := c.Run(context.Background(), "SELECT 1 AS balance")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, float64(-12400000), rows[0].Float("balance"))
	_, hasLinks := rows[0]["links"]
	require.False(t, hasLinks)
}

func TestRunRateLimited(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"title": "Request limit exceeded",
			"o:errorDetails": []map[string]string{
				{"detail": "concurrent request limit exceeded", "o:errorCode": "SSS_REQUEST_LIMIT_EXCEEDED"},
			},
		})
	})

	_, err := c.Run(context.Background(), "SELECT 1")
	require.ErrorIs(t, err, ErrRateLimited)
	require.NotErrorIs(t, err, ErrQueryFailed)
}

func TestRunQueryFailure(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"title": "Invalid search query",
			"o:errorDetails": []map[string]string{
				{"detail": "Invalid search query", "o:errorCode": "INVALID_SEARCH_QUERY"},
			},
		})
	})

	_, err := c.Run(context.Background(), "SELECT nope")
	require.ErrorIs(t, err, ErrQueryFailed)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, "INVALID_SEARCH_QUERY", apiErr.Code)
}

func TestRunAllPagesUntilShortPage(t *testing.T) {
	var offsets []int
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		offsets = append(offsets, offset)
		switch offset {
		case 0:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items":   []map[string]any{{"id": "1"}, {"id": "2"}},
				"hasMore": true,
			})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{
				"items":   []map[string]any{{"id": "3"}},
				"hasMore": false,
			})
		}
	})

	rows, err := c.RunAll(context.Background(), "SELECT id FROM account")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, []int{0, 2}, offsets)
}

func TestRunAllStopsAtPageCeiling(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items":   []map[string]any{{"id": "1"}, {"id": "2"}},
			"hasMore": true,
		})
	})

	rows, err := c.RunAll(context.Background(), "SELECT id FROM transaction")
	require.ErrorIs(t, err, ErrQueryFailed)
	require.Len(t, rows, 6) // 3 pages of 2 before the ceiling trips
}

type recordingObserver struct {
	mu       sync.Mutex
	hashes   []string
	rowCount int
	errs     []error
}

func (o *recordingObserver) ObserveQuery(_ context.Context, hash string, _ time.Duration, rows int, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hashes = append(o.hashes, hash)
	o.rowCount += rows
	o.errs = append(o.errs, err)
}

func TestObserverSeesEveryCall(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{{"id": "1"}}, "hasMore": false,
		})
	})
	obs := &recordingObserver{}
	c.SetObserver(obs)

	_, err := c.Run(context.Background(), "SELECT id FROM subsidiary")
	require.NoError(t, err)
	require.Len(t, obs.hashes, 1)
	require.Equal(t, QueryHash("SELECT id FROM subsidiary"), obs.hashes[0])
	require.Equal(t, 1, obs.rowCount)
	require.NoError(t, obs.errs[0])
}

func TestRowHelpers(t *testing.T) {
	r := Row{"s": "42.5", "f": 7.0, "b": true, "n": nil}
	require.Equal(t, 42.5, r.Float("s"))
	require.Equal(t, float64(7), r.Float("f"))
	require.Equal(t, int64(7), r.Int64("f"))
	require.Equal(t, "T", r.Str("b"))
	require.Equal(t, "", r.Str("n"))
	require.Equal(t, float64(0), r.Float("missing"))
}
