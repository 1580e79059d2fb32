package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/quill-ai/quill/shared/ratelimit"
)

// withProviders swaps the registry for one test.
func withProviders(t *testing.T, ps ...ProviderConfig) {
	t.Helper()
	old := providerTable
	providerTable = ps
	t.Cleanup(func() { providerTable = old })
}

func testProvider(url string, streaming bool) ProviderConfig {
	return ProviderConfig{
		ID:            "mock",
		Endpoint:      url,
		Model:         "mock-1",
		CredentialKey: "MOCK_API_KEY",
		AuthScheme:    AuthBearer,
		Streaming:     streaming,
		Wire:          WireOpenAI,
	}
}

func newTestGenerator(creds Credentials) *Generator {
	g := NewGenerator(creds)
	g.Transport.InitialDelay = time.Millisecond
	return g
}

func TestGenerateEndToEnd(t *testing.T) {
	var gotBody atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		gotBody.Store(string(mustReadAll(r)))
		w.Write([]byte(`{"choices":[{"message":{"content":"Tip! #React"}}]}`))
	}))
	defer srv.Close()
	withProviders(t, testProvider(srv.URL, false))

	g := newTestGenerator(Credentials{"MOCK_API_KEY": "sk-test"})
	res := g.Generate(context.Background(), "s1", Request{Topic: "React tips", Style: "viral"}, nil)

	assert.Empty(t, res.Error)
	assert.Equal(t, "Tip! #React", res.Tweet)
	assert.Equal(t, "mock", res.Provider)

	body := gotBody.Load().(string)
	assert.Contains(t, gjson.Get(body, "messages.1.content").String(), "React tips")
	assert.Equal(t, "mock-1", gjson.Get(body, "model").String())
}

func TestGenerateNonStreamingYieldsSingleDelta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"whole answer"}}]}`))
	}))
	defer srv.Close()
	withProviders(t, testProvider(srv.URL, false))

	g := newTestGenerator(Credentials{"MOCK_API_KEY": "k"})

	var deltas []string
	res := g.Generate(context.Background(), "s1", Request{Topic: "x"}, func(d string) {
		deltas = append(deltas, d)
	})

	assert.Empty(t, res.Error)
	require.Len(t, deltas, 1, "non-streaming providers yield exactly one terminal delta")
	assert.Equal(t, "whole answer", deltas[0])
	assert.Equal(t, "whole answer", res.Tweet)
}

func TestGenerateStreamingAssemblesDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, gjson.GetBytes(mustReadAll(r), "stream").Bool())

		w.Header().Set("Content-Type", "text/event-stream")
		f := w.(http.Flusher)
		for _, chunk := range []string{"Ship", " it", " #Go"} {
			w.Write([]byte(`data: {"choices":[{"delta":{"content":"` + chunk + `"}}]}` + "\n\n"))
			f.Flush()
		}
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()
	withProviders(t, testProvider(srv.URL, true))

	g := newTestGenerator(Credentials{"MOCK_API_KEY": "k"})

	var deltas []string
	res := g.Generate(context.Background(), "s1", Request{Topic: "shipping"}, func(d string) {
		deltas = append(deltas, d)
	})

	assert.Empty(t, res.Error)
	assert.Equal(t, []string{"Ship", " it", " #Go"}, deltas)
	assert.Equal(t, "Ship it #Go", res.Tweet)
}

func TestGenerateCancelledStreamKeepsPartial(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		f := w.(http.Flusher)
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"partial answer text"}}]}` + "\n\n"))
		f.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()
	withProviders(t, testProvider(srv.URL, true))

	g := newTestGenerator(Credentials{"MOCK_API_KEY": "k"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	res := g.Generate(ctx, "s1", Request{Topic: "x"}, func(string) { cancel() })

	// A cancelled stream resolves quietly with what already surfaced.
	assert.Empty(t, res.Error)
	assert.Equal(t, "partial answer text", res.Tweet)
}

func TestGenerateCancelledDuringRetryWaitReportsCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	withProviders(t, testProvider(srv.URL, false))

	g := newTestGenerator(Credentials{"MOCK_API_KEY": "k"})
	g.Transport.InitialDelay = time.Hour // held in the backoff wait until cancel

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res := g.Generate(ctx, "s1", Request{Topic: "x"}, nil)
	assert.Equal(t, "Generation was cancelled.", res.Error)
}

func TestGenerateNoCredentialNeverTouchesNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()
	withProviders(t, testProvider(srv.URL, false))

	g := newTestGenerator(Credentials{})
	res := g.Generate(context.Background(), "s1", Request{Topic: "x"}, nil)

	assert.Empty(t, res.Tweet)
	assert.Contains(t, res.Error, "MOCK_API_KEY")
	assert.Equal(t, int32(0), calls.Load())
}

func TestGenerateRateLimitedNeverTouchesNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()
	withProviders(t, testProvider(srv.URL, false))

	g := newTestGenerator(Credentials{"MOCK_API_KEY": "k"})
	g.Limits.Configure(ratelimit.CategorySingle, 1, time.Hour)

	first := g.Generate(context.Background(), "s1", Request{Topic: "x"}, nil)
	assert.Empty(t, first.Error)

	second := g.Generate(context.Background(), "s1", Request{Topic: "x"}, nil)
	assert.Empty(t, second.Tweet)
	assert.Contains(t, second.Error, "Rate limit")
	assert.Equal(t, int32(1), calls.Load())
}

func TestGenerateUpstreamFailureBecomesDisplayString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"message":"model melted"}}`))
	}))
	defer srv.Close()
	withProviders(t, testProvider(srv.URL, false))

	g := newTestGenerator(Credentials{"MOCK_API_KEY": "k"})
	res := g.Generate(context.Background(), "s1", Request{Topic: "x"}, nil)

	assert.Empty(t, res.Tweet)
	assert.Contains(t, res.Error, "status 500")
	assert.Contains(t, res.Error, "model melted")
}

func TestGenerateKeepsLongPlainAnswerWhole(t *testing.T) {
	answer := "Go's concurrency model is simpler than you think. Goroutines are cheap, " +
		"channels make coordination explicit, and the race detector catches the rest. #golang"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"` + answer + `"}}]}`))
	}))
	defer srv.Close()
	withProviders(t, testProvider(srv.URL, false))

	g := newTestGenerator(Credentials{"MOCK_API_KEY": "k"})
	res := g.Generate(context.Background(), "s1", Request{Topic: "Go"}, nil)

	assert.Empty(t, res.Error)
	assert.Equal(t, answer, res.Tweet, "a clean long answer must not be reduced to its last sentence")
}

func TestGenerateTruncatesToLengthTier(t *testing.T) {
	long := strings.Repeat("word ", 80)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"` + long + `"}}]}`))
	}))
	defer srv.Close()
	withProviders(t, testProvider(srv.URL, false))

	g := newTestGenerator(Credentials{"MOCK_API_KEY": "k"})
	req := Request{Topic: "x", Advanced: &AdvancedSettings{Length: "short"}}
	res := g.Generate(context.Background(), "s1", req, nil)

	assert.Empty(t, res.Error)
	assert.LessOrEqual(t, len([]rune(res.Tweet)), 150)
}

func TestGenerateBatchReturnsAllDrafts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`{"choices":[{"message":{"content":"draft content here"}}]}`))
	}))
	defer srv.Close()
	withProviders(t, testProvider(srv.URL, false))

	g := newTestGenerator(Credentials{"MOCK_API_KEY": "k"})
	res := g.GenerateBatch(context.Background(), "s1", Request{Topic: "x"}, 4)

	assert.Empty(t, res.Error)
	require.Len(t, res.Tweets, 4)
	for _, tw := range res.Tweets {
		assert.Equal(t, "draft content here", tw)
	}
	assert.Equal(t, int32(4), calls.Load())
}

func TestGenerateBatchHasItsOwnQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"draft"}}]}`))
	}))
	defer srv.Close()
	withProviders(t, testProvider(srv.URL, false))

	g := newTestGenerator(Credentials{"MOCK_API_KEY": "k"})
	g.Limits.Configure(ratelimit.CategoryBatch, 1, time.Hour)

	require.Empty(t, g.GenerateBatch(context.Background(), "s1", Request{Topic: "x"}, 2).Error)
	assert.Contains(t, g.GenerateBatch(context.Background(), "s1", Request{Topic: "x"}, 2).Error, "Rate limit")

	// Single generation is untouched by batch exhaustion.
	assert.Empty(t, g.Generate(context.Background(), "s1", Request{Topic: "x"}, nil).Error)
}

func TestAnalyzeImage(t *testing.T) {
	answer := `{"description":"a golden retriever","tweet":"Dog day 🐶 #goodboy","location":"Central Park"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "mock-vision:generateContent")
		assert.Equal(t, "k", r.Header.Get("x-goog-api-key"))

		body := mustReadAll(r)
		assert.Equal(t, "image/jpeg", gjson.GetBytes(body, "contents.0.parts.1.inline_data.mime_type").String())
		assert.Equal(t, "AAAA", gjson.GetBytes(body, "contents.0.parts.1.inline_data.data").String())

		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"` + strings.ReplaceAll(answer, `"`, `\"`) + `"}]}}]}`))
	}))
	defer srv.Close()
	withProviders(t, ProviderConfig{
		ID:            "mockvision",
		Endpoint:      srv.URL,
		Model:         "mock-text",
		VisionModel:   "mock-vision",
		CredentialKey: "MOCK_API_KEY",
		AuthScheme:    AuthHeader,
		HeaderName:    "x-goog-api-key",
		Wire:          WireGemini,
	})

	g := newTestGenerator(Credentials{"MOCK_API_KEY": "k"})
	res := g.AnalyzeImage(context.Background(), "s1", "data:image/jpeg;base64,AAAA", "casual")

	assert.Empty(t, res.Error)
	assert.Equal(t, "a golden retriever", res.Description)
	assert.Equal(t, "Dog day 🐶 #goodboy", res.Tweet)
	assert.Equal(t, "Central Park", res.Location)
}

func TestAnalyzeImageUnusableAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"I cannot tell."}]}}]}`))
	}))
	defer srv.Close()
	withProviders(t, ProviderConfig{
		ID:            "mockvision",
		Endpoint:      srv.URL,
		Model:         "m",
		VisionModel:   "mv",
		CredentialKey: "MOCK_API_KEY",
		AuthScheme:    AuthHeader,
		HeaderName:    "x-goog-api-key",
		Wire:          WireGemini,
	})

	g := newTestGenerator(Credentials{"MOCK_API_KEY": "k"})
	res := g.AnalyzeImage(context.Background(), "s1", "data:image/jpeg;base64,AAAA", "")

	assert.Empty(t, res.Tweet)
	assert.Contains(t, res.Error, "no usable answer")
}

func mustReadAll(r *http.Request) []byte {
	b, _ := io.ReadAll(r.Body)
	return b
}
