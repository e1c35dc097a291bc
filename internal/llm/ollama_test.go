package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgpedia/orgpedia/internal/config"
	"github.com/orgpedia/orgpedia/internal/log"
)

// ndjsonHandler writes the given lines as an NDJSON chat response.
func ndjsonHandler(t *testing.T, lines ...string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)
		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, line := range lines {
			fmt.Fprintln(w, line)
			flusher.Flush()
		}
	}
}

func collect(t *testing.T, p Provider, msgs []Message) (chunks []Chunk, streamErr error) {
	t.Helper()
	for chunk, err := range p.Stream(context.Background(), "llama3.2", msgs) {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func TestOllamaStream_YieldsChunksAndDoneMarker(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(ndjsonHandler(t,
		`{"message":{"role":"assistant","content":"The sky "},"done":false}`,
		`{"message":{"role":"assistant","content":"is blue."},"done":false}`,
		`{"message":{"role":"assistant","content":""},"done":true}`,
	))
	defer srv.Close()

	p := NewOllama(srv.URL, Options{Temperature: 0.9, MaxTokens: 2000}, log.NewNop())
	chunks, err := collect(t, p, []Message{{Role: RoleUser, Content: "What color is the sky?"}})
	require.NoError(t, err)

	require.Len(t, chunks, 3)
	assert.Equal(t, Chunk{Content: "The sky "}, chunks[0])
	assert.Equal(t, Chunk{Content: "is blue."}, chunks[1])
	assert.Equal(t, Chunk{Done: true}, chunks[2])

	var text strings.Builder
	for _, c := range chunks {
		text.WriteString(c.Content)
	}
	assert.Equal(t, "The sky is blue.", text.String())
}

func TestOllamaStream_BackendErrorLine(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(ndjsonHandler(t,
		`{"message":{"role":"assistant","content":"partial"},"done":false}`,
		`{"error":"model crashed"}`,
	))
	defer srv.Close()

	p := NewOllama(srv.URL, Options{}, log.NewNop())
	chunks, err := collect(t, p, []Message{{Role: RoleUser, Content: "q"}})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "model crashed")
	// The chunk before the error was still delivered.
	require.Len(t, chunks, 1)
	assert.Equal(t, "partial", chunks[0].Content)
}

func TestOllamaStream_MalformedChunk(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(ndjsonHandler(t, `this is not json`))
	defer srv.Close()

	p := NewOllama(srv.URL, Options{}, log.NewNop())
	_, err := collect(t, p, []Message{{Role: RoleUser, Content: "q"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed chat chunk")
}

func TestOllamaStream_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewOllama(srv.URL, Options{}, log.NewNop())
	_, err := collect(t, p, []Message{{Role: RoleUser, Content: "q"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestOllamaStream_TruncatedStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(ndjsonHandler(t,
		`{"message":{"role":"assistant","content":"cut off"},"done":false}`,
	))
	defer srv.Close()

	p := NewOllama(srv.URL, Options{}, log.NewNop())
	chunks, err := collect(t, p, []Message{{Role: RoleUser, Content: "q"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed before completion")
	require.Len(t, chunks, 1)
}

func TestOllamaStream_ConsumerStopsEarly(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(ndjsonHandler(t,
		`{"message":{"role":"assistant","content":"one"},"done":false}`,
		`{"message":{"role":"assistant","content":"two"},"done":false}`,
		`{"message":{"role":"assistant","content":""},"done":true}`,
	))
	defer srv.Close()

	p := NewOllama(srv.URL, Options{}, log.NewNop())

	var got []Chunk
	for chunk, err := range p.Stream(context.Background(), "llama3.2", []Message{{Role: RoleUser, Content: "q"}}) {
		require.NoError(t, err)
		got = append(got, chunk)
		break // simulate client disconnect
	}

	require.Len(t, got, 1)
	assert.Equal(t, "one", got[0].Content)
}

func TestForProvider(t *testing.T) {
	t.Parallel()

	t.Run("ollama", func(t *testing.T) {
		t.Parallel()

		cfg := &config.Config{Provider: config.ProviderOllama, OllamaHost: "http://localhost:11434"}
		p, err := ForProvider(cfg, log.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "ollama", p.Name())
	})

	t.Run("openai", func(t *testing.T) {
		t.Parallel()

		cfg := &config.Config{Provider: config.ProviderOpenAI, OpenAIAPIKey: "sk-test"}
		p, err := ForProvider(cfg, log.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "openai", p.Name())
	})

	t.Run("unknown provider is rejected", func(t *testing.T) {
		t.Parallel()

		cfg := &config.Config{Provider: "bedrock"}
		_, err := ForProvider(cfg, log.NewNop())
		assert.ErrorIs(t, err, ErrUnknownProvider)
	})
}
