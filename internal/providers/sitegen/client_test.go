package sitegen

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitegen/internal/domain"
)

func TestGenerateSendsMultipartForm(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/generate-website", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "cozy bakery site", r.FormValue("description"))

		files := r.MultipartForm.File["inspiration_images"]
		if !assert.Len(t, files, 2) {
			return
		}
		assert.Equal(t, "a.png", files[0].Filename)
		f, err := files[1].Open()
		if !assert.NoError(t, err) {
			return
		}
		data, _ := io.ReadAll(f)
		_ = f.Close()
		assert.Equal(t, "second", string(data))

		_ = json.NewEncoder(w).Encode(map[string]string{"html": "<h1>Bakery</h1>"})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL + "/"}, nil)
	result, err := client.Generate(context.Background(), domain.GenerationRequest{
		Description: "cozy bakery site",
		Images: []domain.Image{
			{Name: "a.png", Data: []byte("first")},
			{Data: []byte("second")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "<h1>Bakery</h1>", result.HTML)
}

func TestGenerateUpstreamError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewClient(Config{BaseURL: server.URL}, nil).Generate(context.Background(), domain.GenerationRequest{Description: "x"})
	var upstream *domain.UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusBadGateway, upstream.Status)
	assert.Equal(t, "model overloaded", upstream.Body)
}

func TestGenerateMissingHTMLIsMalformed(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	_, err := NewClient(Config{BaseURL: server.URL}, nil).Generate(context.Background(), domain.GenerationRequest{Description: "x"})
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestGenerateTransportError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewClient(Config{BaseURL: url}, nil).Generate(context.Background(), domain.GenerationRequest{Description: "x"})
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestListPreservesServiceOrder(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/websites/", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"title":"Zoo","description":"z","url_slug":"zoo","permanent_url":"/sites/zoo"},
			{"title":"Art","description":"a","url_slug":"art","permanent_url":"/sites/art"}
		]`))
	}))
	defer server.Close()

	sites, err := NewClient(Config{BaseURL: server.URL}, nil).List(context.Background())
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "Zoo", sites[0].Title)
	assert.Equal(t, "/sites/art", sites[1].PermanentURL)
}

func TestListEmptyBody(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`null`))
	}))
	defer server.Close()

	sites, err := NewClient(Config{BaseURL: server.URL}, nil).List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, sites)
	assert.Empty(t, sites)
}

func TestCreateSendsFormAndReturnsSite(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		assert.Equal(t, "Bakery", r.FormValue("title"))
		assert.Equal(t, "cozy bakery site", r.FormValue("description"))
		assert.Equal(t, "<h1>Bakery</h1>", r.FormValue("html_content"))
		_, _ = w.Write([]byte(`{"url_slug":"bakery-1","permanent_url":"/sites/bakery-1"}`))
	}))
	defer server.Close()

	site, err := NewClient(Config{BaseURL: server.URL}, nil).Create(context.Background(), domain.WebsiteDraft{
		Title:       "Bakery",
		Description: "cozy bakery site",
		HTMLContent: "<h1>Bakery</h1>",
	})
	require.NoError(t, err)
	assert.Equal(t, "bakery-1", site.URLSlug)
	assert.Equal(t, "/sites/bakery-1", site.PermanentURL)
	assert.Equal(t, "Bakery", site.Title)
}

func TestCreateUpstreamError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewClient(Config{BaseURL: server.URL}, nil).Create(context.Background(), domain.WebsiteDraft{Title: "t"})
	var upstream *domain.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusInternalServerError, upstream.Status)
}
