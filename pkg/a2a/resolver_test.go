package a2a

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cardServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		handler(w, r)
	}))
	t.Cleanup(ts.Close)
	return ts, &hits
}

func TestResolveCard(t *testing.T) {
	var ts *httptest.Server
	ts, hits := cardServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, AgentCardPath, r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		json.NewEncoder(w).Encode(testCard(ts.URL))
	})

	card, err := NewAgentCardResolver(nil).Resolve(context.Background(), ts.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "Reporting Agent", card.Name)
	assert.Equal(t, ts.URL, card.URL)
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolveCardFailures(t *testing.T) {
	tests := []struct {
		name       string
		handler    http.HandlerFunc
		wantStatus int
	}{
		{
			name: "not found",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.NotFound(w, r)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name: "not json",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte("<html>hello</html>"))
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "missing required fields",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"name":"Reporting Agent"}`))
			},
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := cardServer(t, tt.handler)

			_, err := NewAgentCardResolver(nil).Resolve(context.Background(), ts.URL)
			var cue *CardUnavailableError
			require.ErrorAs(t, err, &cue)
			assert.Equal(t, tt.wantStatus, cue.StatusCode)
			assert.Contains(t, cue.URL, AgentCardPath)
		})
	}
}

func TestResolveCardUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := NewAgentCardResolver(nil).Resolve(context.Background(), url)
	var cue *CardUnavailableError
	require.ErrorAs(t, err, &cue)
	assert.Zero(t, cue.StatusCode)

	_, err = NewAgentCardResolver(nil).Resolve(context.Background(), "::not a url")
	require.ErrorAs(t, err, &cue)
}

func TestCachingResolver(t *testing.T) {
	var ts *httptest.Server
	var fail atomic.Bool
	fail.Store(true)
	ts, hits := cardServer(t, func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "starting up", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(testCard(ts.URL))
	})

	resolver := NewCachingResolver(NewAgentCardResolver(nil))
	ctx := context.Background()

	_, err := resolver.Resolve(ctx, ts.URL)
	require.Error(t, err)

	fail.Store(false)
	first, err := resolver.Resolve(ctx, ts.URL)
	require.NoError(t, err)
	second, err := resolver.Resolve(ctx, ts.URL+"/")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(2), hits.Load(), "failures are not cached, successes are")
}
