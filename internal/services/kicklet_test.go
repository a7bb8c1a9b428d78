package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pointsarcade/internal/models"
	"pointsarcade/internal/services"
)

func newTestKicklet(url string) *services.KickletClient {
	return services.NewKickletClient(services.KickletConfig{
		BaseURL:        url,
		Token:          "test-token",
		BaseRetryDelay: time.Millisecond,
	})
}

func TestKickletGetViewerPoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/stats/chan1/viewer/ranking", r.URL.Path)
		assert.Equal(t, "apitoken test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "streamer", r.URL.Query().Get("search"))
		assert.Equal(t, "watchtime", r.URL.Query().Get("orderBy"))

		json.NewEncoder(w).Encode(map[string]any{
			"count": 2,
			"ranking": []map[string]any{
				{"viewerKickUsername": "streamer_fan", "points": 5},
				{"viewerKickUsername": "Streamer", "points": 1234},
			},
		})
	}))
	defer server.Close()

	points, err := newTestKicklet(server.URL).GetViewerPoints(context.Background(), "chan1", "streamer")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), points)
}

func TestKickletGetViewerPointsMissingViewer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"count":0,"ranking":[]}`))
	}))
	defer server.Close()

	points, err := newTestKicklet(server.URL).GetViewerPoints(context.Background(), "chan1", "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), points)
}

func TestKickletPatchPaths(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		paths = append(paths, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestKicklet(server.URL)
	ctx := context.Background()
	require.NoError(t, client.AddPoints(ctx, "chan1", "alice", 10))
	require.NoError(t, client.RemovePoints(ctx, "chan1", "alice", 4))
	require.NoError(t, client.SetPoints(ctx, "chan1", "alice", 0))

	assert.Equal(t, []string{
		"/stats/chan1/points/alice/add/10",
		"/stats/chan1/points/alice/remove/4",
		"/stats/chan1/points/alice/set/0",
	}, paths)
}

func TestKickletRejectsBadAmounts(t *testing.T) {
	client := newTestKicklet("http://127.0.0.1:1")
	ctx := context.Background()

	assert.True(t, models.IsKind(client.AddPoints(ctx, "c", "u", 0), models.KindValidation))
	assert.True(t, models.IsKind(client.RemovePoints(ctx, "c", "u", -1), models.KindValidation))
	assert.True(t, models.IsKind(client.SetPoints(ctx, "c", "u", -1), models.KindValidation))
}

func TestKickletRetriesForbidden(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	err := newTestKicklet(server.URL).AddPoints(context.Background(), "chan1", "alice", 5)
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestKickletGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	err := newTestKicklet(server.URL).AddPoints(context.Background(), "chan1", "alice", 5)
	require.Error(t, err)

	var perr *services.ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusForbidden, perr.StatusCode)
	assert.Equal(t, int32(4), calls.Load(), "one attempt plus three retries")
}

func TestKickletDoesNotRetryOtherStatuses(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("boom"))
	}))
	defer server.Close()

	err := newTestKicklet(server.URL).SetPoints(context.Background(), "chan1", "alice", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 500")
	assert.Equal(t, int32(1), calls.Load())
}

func TestKickletContextCancelStopsRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := services.NewKickletClient(services.KickletConfig{
		BaseURL:        server.URL,
		Token:          "t",
		BaseRetryDelay: time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := client.AddPoints(ctx, "chan1", "alice", 5)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
