package inference

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaClient_Generate(t *testing.T) {
	var got generatePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{"response": `{"rules_triggered":"None"}`, "done": true})
	}))
	defer srv.Close()

	out, err := NewOllamaClient(srv.URL+"/", "").Generate(context.Background(), GenerateRequest{System: "sys", Document: "doc body"})
	require.NoError(t, err)
	assert.Equal(t, `{"rules_triggered":"None"}`, out)

	assert.Equal(t, "mistral", got.Model)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
	assert.Equal(t, 0.1, got.Options["temperature"])
	assert.Contains(t, got.Prompt, "sys")
	assert.Contains(t, got.Prompt, "DOCUMENT TEXT:\ndoc body")
}

func TestOllamaClient_MissingResponseIsEmptyObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"done": true}`))
	}))
	defer srv.Close()

	out, err := NewOllamaClient(srv.URL, "mistral").Generate(context.Background(), GenerateRequest{})
	require.NoError(t, err)
	assert.Equal(t, "{}", out)
}

func TestOllamaClient_Errors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	_, err := NewOllamaClient(failing.URL, "").Generate(context.Background(), GenerateRequest{})
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer slow.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = NewOllamaClient(slow.URL, "").Generate(ctx, GenerateRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
