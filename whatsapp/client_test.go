package whatsapp

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
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(Config{
		BaseURL:       srv.URL + "/",
		PhoneNumberID: "12345",
		AccessToken:   "token",
	}, nil)
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{PhoneNumberID: "1"}, nil)
	assert.Error(t, err)

	_, err = NewClient(Config{AccessToken: "t"}, nil)
	assert.Error(t, err)

	c, err := NewClient(Config{AccessToken: "t", PhoneNumberID: "1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, c.config.BaseURL)
	assert.Equal(t, DefaultAPIVersion, c.config.APIVersion)
}

func TestClient_SendText(t *testing.T) {
	var got textMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v17.0/12345/messages", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	require.NoError(t, c.SendText(context.Background(), "4915112345", "Hallo"))

	assert.Equal(t, "whatsapp", got.MessagingProduct)
	assert.Equal(t, "4915112345", got.To)
	assert.Equal(t, "Hallo", got.Text.Body)
}

func TestClient_SendTextAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid recipient"}}`))
	}))
	defer srv.Close()

	err := newTestClient(t, srv).SendText(context.Background(), "x", "hi")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "invalid recipient")
}

func TestClient_Fetch(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v17.0/media-1":
			_ = json.NewEncoder(w).Encode(mediaInfo{URL: srv.URL + "/download/media-1", MimeType: "image/jpeg"})
		case "/download/media-1":
			_, _ = io.WriteString(w, "jpeg-bytes")
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	blob, err := newTestClient(t, srv).Fetch(context.Background(), "media-1")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", blob.MimeType)
	assert.Equal(t, []byte("jpeg-bytes"), blob.Data)
}

func TestClient_FetchMissing(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestClient(t, srv).Fetch(context.Background(), "nope")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}
