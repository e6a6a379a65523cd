package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/promptdesk/internal/config"
)

func newOpenAITestServer(t *testing.T, status int, body string, gotModel *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotModel != nil {
			var payload struct {
				Model string `json:"model"`
			}
			_ = json.NewDecoder(r.Body).Decode(&payload)
			*gotModel = payload.Model
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIGenerate(t *testing.T) {
	var model string
	srv := newOpenAITestServer(t, http.StatusOK,
		`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"4"},"finish_reason":"stop"}]}`,
		&model)

	factory := NewOpenAIFactory(config.AIConfig{BaseURL: srv.URL + "/v1"})
	gen, err := factory(context.Background(), "sk-test")
	require.NoError(t, err)

	text, err := gen.Generate(context.Background(), "gpt-4o-mini", "2+2?")
	require.NoError(t, err)
	assert.Equal(t, "4", text)
	assert.Equal(t, "gpt-4o-mini", model)
}

func TestOpenAIGenerateAuthError(t *testing.T) {
	srv := newOpenAITestServer(t, http.StatusUnauthorized,
		`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`, nil)

	gen, err := NewOpenAIFactory(config.AIConfig{BaseURL: srv.URL + "/v1"})(context.Background(), "sk-bad")
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "gpt-4o", "hi")
	var aiErr *Error
	require.True(t, errors.As(err, &aiErr))
	assert.Equal(t, ErrAuthentication, aiErr.Kind)
	assert.Equal(t, "openai", aiErr.Provider)
}

func TestOpenAIGenerateRateLimit(t *testing.T) {
	srv := newOpenAITestServer(t, http.StatusTooManyRequests,
		`{"error":{"message":"Rate limit reached","type":"requests"}}`, nil)

	gen, err := NewOpenAIFactory(config.AIConfig{BaseURL: srv.URL + "/v1"})(context.Background(), "sk-test")
	require.NoError(t, err)

	_, err = gen.Generate(context.Background(), "gpt-4o", "hi")
	var aiErr *Error
	require.True(t, errors.As(err, &aiErr))
	assert.Equal(t, ErrRateLimit, aiErr.Kind)
}

func TestOpenAIFactoryRejectsEmptyKey(t *testing.T) {
	_, err := NewOpenAIFactory(config.AIConfig{})(context.Background(), "  ")
	assert.Error(t, err)
}
