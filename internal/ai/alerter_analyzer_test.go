package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrafficSentry/internal/config"
)

func TestNewAlerterAnalyzer_RequiresKey(t *testing.T) {
	_, err := NewAlerterAnalyzer(config.AIConfig{Model: "gpt-4o-mini"})
	assert.Error(t, err)
}

func TestAnalyzeTraffic(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Likely a port scan."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	a, err := NewAlerterAnalyzer(config.AIConfig{APIKey: "secret", BaseURL: srv.URL, Model: "test-model"})
	require.NoError(t, err)

	out, err := a.AnalyzeTraffic(context.Background(), "Critical Cluster 2: 3 sources")
	require.NoError(t, err)
	assert.Equal(t, "Likely a port scan.", out)

	assert.Equal(t, "test-model", got.Model)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "Critical Cluster 2: 3 sources")
}

func TestAnalyzeTraffic_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	a, err := NewAlerterAnalyzer(config.AIConfig{APIKey: "secret", BaseURL: srv.URL, Model: "m"})
	require.NoError(t, err)

	_, err = a.AnalyzeTraffic(context.Background(), "x")
	assert.ErrorContains(t, err, "no choices")
}
