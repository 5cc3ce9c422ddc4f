package brave

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docmind/internal/search"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/res/v1/web/search", r.URL.Path)
		assert.Equal(t, "token", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "20", r.URL.Query().Get("count"))
		assert.Equal(t, "de", r.URL.Query().Get("country"))
		_, _ = io.WriteString(w, `{"web":{"results":[
			{"title":"Go","url":"https://go.dev","description":"Build simple software","thumbnail":{"src":"https://t"}}
		]}}`)
	}))
	defer srv.Close()

	p, err := New("brave", "token", srv.URL, srv.Client())
	require.NoError(t, err)
	assert.True(t, p.IsAvailable(context.Background()))

	results, err := p.Search(context.Background(), "go", search.Options{Limit: 50, Region: "de"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Build simple software", results[0].Snippet)
	assert.Equal(t, "https://t", results[0].Thumbnail)
	assert.Equal(t, "brave", results[0].Source)
}

func TestUnavailableWithoutKey(t *testing.T) {
	p, err := New("brave", " ", "", http.DefaultClient)
	require.NoError(t, err)
	assert.False(t, p.IsAvailable(context.Background()))
	assert.Equal(t, DefaultBaseURL, p.baseURL)
}
