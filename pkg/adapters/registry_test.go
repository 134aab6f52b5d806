package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/mirrornode/pkg/contracts"
)

func TestDefaultRegistry_Kinds(t *testing.T) {
	assert.Equal(t, []string{"anthropic", "openai", "theia", "xai"}, DefaultRegistry().Kinds())
}

func TestRegistry_RegisterTwice(t *testing.T) {
	r := NewRegistry()
	f := func(Spec) (Provider, error) { return NewReflectProvider(""), nil }
	require.NoError(t, r.Register("x", f))
	require.ErrorIs(t, r.Register("x", f), ErrDuplicateTag)
}

func TestRegistry_BuildErrors(t *testing.T) {
	r := DefaultRegistry()
	_, err := r.Build(Spec{Name: "a", Kind: "nope"})
	require.ErrorIs(t, err, ErrUnknownKind)

	_, err = r.Build(Spec{Kind: "theia"})
	require.ErrorIs(t, err, ErrInvalidSpec)

	_, err = r.BuildAll([]Spec{{Name: "t", Kind: "theia"}, {Name: "t", Kind: "theia"}})
	require.ErrorIs(t, err, ErrInvalidSpec)
}

func TestDefaultSpecs_UnconfiguredCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("XAI_API_KEY", "")

	pool, err := DefaultRegistry().BuildAll(DefaultSpecs())
	require.NoError(t, err)
	require.Len(t, pool, 4)

	for _, name := range []string{"gpt", "claude", "grok"} {
		resp := pool[name].Invoke(context.Background(), "hello")
		assert.Equal(t, contracts.StatusUnavailable, resp.Status(), name)
		assert.Equal(t, contracts.ErrorAuthNotConfigured, resp.Err().Code, name)
		assert.Nil(t, resp.Err().RetryAfter, name)
	}

	theia := pool["theia"].Invoke(context.Background(), "hello")
	assert.Equal(t, contracts.StatusOK, theia.Status())
}

func TestChatProvider_AgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)

		_, _ = w.Write([]byte(`{"model":"gpt-test","choices":[{"message":{"content":"42"}}],"usage":{"total_tokens":7}}`))
	}))
	defer srv.Close()

	a, err := DefaultRegistry().Build(Spec{Name: "gpt", Kind: "openai", BaseURL: srv.URL + "/v1", Model: "gpt-test", APIKey: "sk-test"})
	require.NoError(t, err)

	resp := a.Invoke(context.Background(), "meaning of life")
	require.Equal(t, contracts.StatusOK, resp.Status())
	payload := resp.Payload()
	assert.Equal(t, "42", payload["content"])
	assert.Equal(t, "gpt-test", payload["model"])
	assert.Equal(t, 7, payload["tokens_used"])
}

func TestChatProvider_StatusMapping(t *testing.T) {
	tests := []struct {
		status     int
		wantCode   contracts.ErrorCode
		wantStatus contracts.AdapterStatus
	}{
		{http.StatusTooManyRequests, contracts.ErrorQuotaExceeded, contracts.StatusError},
		{http.StatusUnauthorized, contracts.ErrorAuthNotConfigured, contracts.StatusUnavailable},
		{http.StatusServiceUnavailable, contracts.ErrorModelUnavailable, contracts.StatusError},
		{http.StatusInternalServerError, contracts.ErrorUnknown, contracts.StatusUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			a, err := DefaultRegistry().Build(Spec{Name: "grok", Kind: "xai", BaseURL: srv.URL, APIKey: "k"})
			require.NoError(t, err)

			resp := a.Invoke(context.Background(), "q")
			assert.Equal(t, tt.wantStatus, resp.Status())
			assert.Equal(t, tt.wantCode, resp.Err().Code)
		})
	}
}

func TestMessagesProvider_AgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "ak-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicVersion, r.Header.Get("anthropic-version"))
		_, _ = w.Write([]byte(`{"model":"claude-test","content":[{"type":"text","text":"yes"}],"usage":{"input_tokens":3,"output_tokens":1}}`))
	}))
	defer srv.Close()

	a, err := DefaultRegistry().Build(Spec{Name: "claude", Kind: "anthropic", BaseURL: srv.URL, APIKey: "ak-test"})
	require.NoError(t, err)

	resp := a.Invoke(context.Background(), "q")
	require.Equal(t, contracts.StatusOK, resp.Status())
	assert.Equal(t, "yes", resp.Payload()["content"])
	assert.Equal(t, 4, resp.Payload()["tokens_used"])
}

func TestReflectProvider_Deterministic(t *testing.T) {
	p := NewReflectProvider("")
	a, err := p.DoInvoke(context.Background(), "same prompt")
	require.NoError(t, err)
	b, err := p.DoInvoke(context.Background(), "same prompt")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 2, a["tokens_used"])
}
