package ask

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rag-assistant/internal/assistant/inflight"
	"rag-assistant/internal/assistant/intent"
	"rag-assistant/internal/assistant/prompt"
	"rag-assistant/internal/assistant/scrape"
	"rag-assistant/internal/assistant/sessioncache"
	"rag-assistant/internal/clients/completion"
	"rag-assistant/internal/clients/embedding"
	"rag-assistant/internal/clients/scraper"
	apperrors "rag-assistant/internal/common/errors"
	"rag-assistant/internal/common/logger"
	"rag-assistant/internal/models"
	"rag-assistant/internal/storage/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vectors keyed by topic word; texts mentioning none embed to the last axis.
var topics = []string{"france", "finland", "rust"}

func vectorFor(text string) []float64 {
	v := make([]float64, len(topics)+1)
	lower := strings.ToLower(text)
	hit := false
	for i, t := range topics {
		if strings.Contains(lower, t) {
			v[i] = 1
			hit = true
		}
	}
	if !hit {
		v[len(topics)] = 1
	}
	return v
}

type fakeEmbedder struct {
	mu      sync.Mutex
	texts   []string
	err     error
	gate    chan struct{}
	entered chan struct{}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	gate, entered := f.gate, f.entered
	f.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return vectorFor(text), nil
}

func (f *fakeEmbedder) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.texts[len(f.texts)-1]
}

type fakeCompleter struct {
	mu       sync.Mutex
	calls    int
	messages []completion.Message
	answer   string
	err      error
}

func (f *fakeCompleter) Complete(ctx context.Context, msgs []completion.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = msgs
	return f.answer, f.err
}

type fakeScraper struct {
	calls atomic.Int32
	gate  chan struct{}
}

func (f *fakeScraper) Scrape(ctx context.Context, query, sessionID string) (*scraper.Response, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	return &scraper.Response{NewURLs: 2}, nil
}

type testEnv struct {
	handler   *Handler
	store     *memory.Store
	cache     *sessioncache.MemoryCache
	requests  *inflight.MemoryTracker
	orch      *scrape.Orchestrator
	embedder  *fakeEmbedder
	completer *fakeCompleter
	scraper   *fakeScraper
}

func newTestEnv(t *testing.T) *testEnv {
	log := logger.NewTestLogger(t)
	env := &testEnv{
		store:     memory.NewStore(),
		cache:     sessioncache.NewMemoryCache(time.Hour, 100),
		requests:  inflight.NewMemoryTracker(time.Minute),
		embedder:  &fakeEmbedder{},
		completer: &fakeCompleter{answer: "Paris is the capital of France."},
		scraper:   &fakeScraper{},
	}
	env.orch = scrape.NewOrchestrator(env.scraper, inflight.NewMemoryTracker(time.Minute), env.store, time.Second, log)
	env.handler = NewHandler(DefaultConfig(), Deps{
		Embedder:  env.embedder,
		Completer: env.completer,
		Chunks:    env.store,
		Turns:     env.store,
		Cache:     env.cache,
		Scrapes:   env.orch,
		Requests:  env.requests,
	}, log)
	return env
}

func (e *testEnv) addChunk(t *testing.T, link, text string) {
	require.NoError(t, e.store.InsertChunk(context.Background(), &models.Chunk{
		WebsiteLink: link,
		PlainText:   text,
		Embedding:   vectorFor(text),
	}))
}

func (e *testEnv) wait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, e.orch.Wait(ctx))
}

func (e *testEnv) turns(t *testing.T, session string) []models.ConversationTurn {
	turns, err := e.store.ListTurns(context.Background(), session, 0)
	require.NoError(t, err)
	return turns
}

func errCode(t *testing.T, err error) apperrors.ErrorCode {
	se, ok := apperrors.AsStandardError(err)
	require.True(t, ok, "expected StandardError, got %v", err)
	return se.Code
}

func TestHandler_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	for _, req := range []*Request{nil, {SessionID: "s"}, {Query: "q"}, {SessionID: " ", Query: "q"}} {
		_, err := env.handler.Execute(context.Background(), req)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, errCode(t, err))
	}
	assert.Zero(t, env.requests.Len())
}

func TestHandler_EmptyStoreStartsScrapeOnce(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.handler.Execute(context.Background(), &Request{SessionID: "s1", Query: "capital of France"})
	require.NoError(t, err)
	env.wait(t)

	assert.True(t, resp.ScrapingStarted)
	assert.True(t, resp.ScrapingInProgress)
	assert.False(t, resp.IsSufficient)
	assert.Equal(t, scrape.SearchingMessage("capital of France"), resp.Answer)
	assert.Equal(t, string(intent.EntitySwitch), resp.Intent)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, env.completer.calls)

	turns := env.turns(t, "s1")
	require.Len(t, turns, 3)
	assert.Equal(t, "capital of France", turns[0].Message)
	assert.Equal(t, resp.Answer, turns[1].Message)
	assert.Equal(t, scrape.OutcomeMessage("capital of France", scrape.OutcomeFound), turns[2].Message)
	assert.Equal(t, int32(1), env.scraper.calls.Load())
}

func TestHandler_SufficientAnswer(t *testing.T) {
	env := newTestEnv(t)
	env.addChunk(t, "https://en.wikipedia.org/wiki/France", "France is a country. Its capital is Paris.")
	env.addChunk(t, "https://example.com/rust", "Rust is a language.")

	resp, err := env.handler.Execute(context.Background(), &Request{SessionID: "s1", Query: "What is the capital of France?"})
	require.NoError(t, err)

	assert.Equal(t, "Paris is the capital of France.", resp.Answer)
	assert.Equal(t, string(intent.Independent), resp.Intent)
	assert.True(t, resp.IsSufficient)
	assert.InDelta(t, 1.0, resp.SimilarityScore, 1e-9)
	assert.False(t, resp.ScrapingStarted)
	require.Len(t, resp.Sources, 2)
	assert.Equal(t, "https://en.wikipedia.org/wiki/France", resp.Sources[0].Link)
	assert.Equal(t, "France is a country. Its capital is Paris.", resp.Sources[0].Preview)

	turns := env.turns(t, "s1")
	require.Len(t, turns, 2)
	assert.Equal(t, models.RoleUser, turns[0].Role)
	assert.Equal(t, models.RoleAssistant, turns[1].Role)

	entry, err := env.cache.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "What is the capital of France?", entry.LastTopic)
	assert.Contains(t, entry.Links, "https://en.wikipedia.org/wiki/France")

	require.NotEmpty(t, env.completer.messages)
	assert.Contains(t, env.completer.messages[0].Content, "Its capital is Paris.")
	assert.Zero(t, env.scraper.calls.Load())
}

func TestHandler_FollowUpEnrichesEmbeddingAndSkipsScrape(t *testing.T) {
	env := newTestEnv(t)
	env.addChunk(t, "https://example.com/france", "The capital of France is Paris.")
	ctx := context.Background()

	_, err := env.handler.Execute(ctx, &Request{SessionID: "s1", Query: "capital of France"})
	require.NoError(t, err)
	assert.Equal(t, "capital of France", env.embedder.last())

	env.completer.answer = "Helsinki is the capital of Finland."
	resp, err := env.handler.Execute(ctx, &Request{SessionID: "s1", Query: "finland"})
	require.NoError(t, err)

	assert.Equal(t, string(intent.FollowUp), resp.Intent)
	assert.True(t, strings.HasPrefix(env.embedder.last(), "capital of France"))
	assert.True(t, strings.HasSuffix(env.embedder.last(), "finland"))
	assert.False(t, resp.ScrapingStarted)
	assert.Contains(t, env.completer.messages[0].Content, "Previous Answer:")
	assert.Zero(t, env.scraper.calls.Load())
	assert.Len(t, env.turns(t, "s1"), 4)
}

func TestHandler_InsufficientIndependentStartsScrape(t *testing.T) {
	env := newTestEnv(t)
	env.addChunk(t, "https://example.com/rust", "Rust is a language.")

	resp, err := env.handler.Execute(context.Background(), &Request{SessionID: "s1", Query: "Tell me about the history of France please"})
	require.NoError(t, err)
	env.wait(t)

	assert.True(t, resp.ScrapingStarted)
	assert.False(t, resp.IsSufficient)
	assert.Zero(t, resp.SimilarityScore)
	assert.Zero(t, env.completer.calls)
	assert.Equal(t, int32(1), env.scraper.calls.Load())
}

func TestHandler_LinkRequestWithoutLinksFallsBack(t *testing.T) {
	env := newTestEnv(t)
	env.addChunk(t, "", "Rust is a language.")

	resp, err := env.handler.Execute(context.Background(), &Request{SessionID: "s1", Query: "give me the link"})
	require.NoError(t, err)

	assert.Equal(t, string(intent.LinkRequest), resp.Intent)
	assert.Equal(t, prompt.FallbackAnswer, resp.Answer)
	assert.False(t, resp.IsSufficient)
	assert.False(t, resp.ScrapingStarted)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, env.completer.calls)
}

func TestHandler_LinkRequestUsesGatedCache(t *testing.T) {
	env := newTestEnv(t)
	env.addChunk(t, "https://doc.rust-lang.org/book", "Rust ownership rules.")
	ctx := context.Background()

	_, err := env.handler.Execute(ctx, &Request{SessionID: "s1", Query: "rust ownership"})
	require.NoError(t, err)

	env.completer.answer = "- https://doc.rust-lang.org/book"
	resp, err := env.handler.Execute(ctx, &Request{SessionID: "s1", Query: "send me the links"})
	require.NoError(t, err)

	assert.Equal(t, string(intent.LinkRequest), resp.Intent)
	assert.Equal(t, "rust ownership", env.embedder.last())
	assert.Contains(t, env.completer.messages[0].Content, "Candidate Links:\n- https://doc.rust-lang.org/book")
}

func TestHandler_InsufficientLinkRequestOffersOnlyCachedLinks(t *testing.T) {
	env := newTestEnv(t)
	env.addChunk(t, "https://doc.rust-lang.org/book", "Rust ownership rules.")
	env.addChunk(t, "https://example.com/france", "France overview.")
	ctx := context.Background()

	_, err := env.handler.Execute(ctx, &Request{SessionID: "s1", Query: "rust ownership"})
	require.NoError(t, err)
	entry, err := env.cache.Get(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, []string{"https://doc.rust-lang.org/book"}, entry.Links, "zero-score chunks are not cached")

	// an unrelated question leaves retrieval empty and starts a scrape
	resp, err := env.handler.Execute(ctx, &Request{SessionID: "s1", Query: "tell me about the history of ownership in law"})
	require.NoError(t, err)
	require.True(t, resp.ScrapingStarted)
	env.wait(t)

	env.completer.answer = "- https://doc.rust-lang.org/book"
	resp, err = env.handler.Execute(ctx, &Request{SessionID: "s1", Query: "give me the link"})
	require.NoError(t, err)

	assert.Equal(t, string(intent.LinkRequest), resp.Intent)
	assert.False(t, resp.IsSufficient)
	assert.False(t, resp.ScrapingStarted)
	assert.Equal(t, "- https://doc.rust-lang.org/book", resp.Answer)
	assert.Empty(t, resp.Sources)

	system := env.completer.messages[0].Content
	assert.Contains(t, system, "Candidate Links:\n- https://doc.rust-lang.org/book")
	assert.NotContains(t, system, "example.com/france")
}

func TestHandler_RepeatedQueryIsIndependent(t *testing.T) {
	env := newTestEnv(t)
	env.addChunk(t, "https://example.com/finland", "Finland's capital is Helsinki.")
	ctx := context.Background()

	_, err := env.handler.Execute(ctx, &Request{SessionID: "s1", Query: "finland"})
	require.NoError(t, err)
	resp, err := env.handler.Execute(ctx, &Request{SessionID: "s1", Query: "Finland"})
	require.NoError(t, err)

	assert.Equal(t, string(intent.Independent), resp.Intent)
	assert.Equal(t, "Finland", env.embedder.last())
}

func TestHandler_DuplicateRequestRejected(t *testing.T) {
	env := newTestEnv(t)
	env.embedder.gate = make(chan struct{})
	env.embedder.entered = make(chan struct{}, 1)

	type result struct {
		resp *Response
		err  error
	}
	first := make(chan result, 1)
	go func() {
		resp, err := env.handler.Execute(context.Background(), &Request{SessionID: "s1", Query: "capital of France"})
		first <- result{resp, err}
	}()
	<-env.embedder.entered

	_, err := env.handler.Execute(context.Background(), &Request{SessionID: "s1", Query: "Capital of  France?"})
	assert.Equal(t, apperrors.ErrCodeRequestInProgress, errCode(t, err))

	close(env.embedder.gate)
	r := <-first
	require.NoError(t, r.err)
	assert.True(t, r.resp.ScrapingStarted)
	env.wait(t)

	assert.Equal(t, int32(1), env.scraper.calls.Load())
	assert.Zero(t, env.requests.Len(), "request marker released")
}

func TestHandler_StillSearchingWhileScrapeRuns(t *testing.T) {
	env := newTestEnv(t)
	env.scraper.gate = make(chan struct{})
	ctx := context.Background()

	resp, err := env.handler.Execute(ctx, &Request{SessionID: "s1", Query: "capital of France"})
	require.NoError(t, err)
	require.True(t, resp.ScrapingStarted)

	again, err := env.handler.Execute(ctx, &Request{SessionID: "s1", Query: "capital of france"})
	require.NoError(t, err)
	assert.False(t, again.ScrapingStarted)
	assert.True(t, again.ScrapingInProgress)
	require.NotNil(t, again.ElapsedSeconds)
	assert.Equal(t, scrape.StillSearchingMessage("capital of france", *again.ElapsedSeconds), again.Answer)

	close(env.scraper.gate)
	env.wait(t)
	assert.Equal(t, int32(1), env.scraper.calls.Load())
	assert.Len(t, env.turns(t, "s1"), 3, "progress replies are not stored")
}

func TestHandler_UpstreamFailuresLeaveStateUntouched(t *testing.T) {
	tests := []struct {
		name  string
		setup func(e *testEnv)
		code  apperrors.ErrorCode
	}{
		{
			name:  "embedding unavailable",
			setup: func(e *testEnv) { e.embedder.err = embedding.ErrEmbeddingUnavailable },
			code:  apperrors.ErrCodeEmbeddingUnavailable,
		},
		{
			name:  "embedding failed",
			setup: func(e *testEnv) { e.embedder.err = embedding.ErrEmbeddingFailed },
			code:  apperrors.ErrCodeEmbeddingFailed,
		},
		{
			name:  "completion unavailable",
			setup: func(e *testEnv) { e.completer.err = completion.ErrCompletionUnavailable },
			code:  apperrors.ErrCodeCompletionUnavailable,
		},
		{
			name:  "completion failed",
			setup: func(e *testEnv) { e.completer.err = errors.New("bad gateway") },
			code:  apperrors.ErrCodeCompletionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.addChunk(t, "https://example.com/france", "France: capital Paris.")
			tt.setup(env)

			_, err := env.handler.Execute(context.Background(), &Request{SessionID: "s1", Query: "What is the capital of France?"})
			assert.Equal(t, tt.code, errCode(t, err))

			assert.Empty(t, env.turns(t, "s1"))
			entry, _ := env.cache.Get(context.Background(), "s1")
			assert.Nil(t, entry)
			assert.Zero(t, env.requests.Len())
			assert.Zero(t, env.scraper.calls.Load())
		})
	}
}

func TestHandler_NoInfoAnswerTriggersScrapeWhenEntityMissing(t *testing.T) {
	env := newTestEnv(t)
	// close in vector space, but neither "population" nor "france" is in the text
	require.NoError(t, env.store.InsertChunk(context.Background(), &models.Chunk{
		WebsiteLink: "https://example.com/cities",
		PlainText:   "Paris, Lyon and Marseille are large cities.",
		Embedding:   vectorFor("france"),
	}))
	env.completer.answer = prompt.FallbackAnswer

	resp, err := env.handler.Execute(context.Background(), &Request{SessionID: "s1", Query: "What is the population of France?"})
	require.NoError(t, err)
	env.wait(t)

	assert.Equal(t, 1, env.completer.calls)
	assert.True(t, resp.ScrapingStarted)
	assert.False(t, resp.IsSufficient)
	assert.Equal(t, scrape.SearchingMessage("What is the population of France?"), resp.Answer)
	assert.Equal(t, int32(1), env.scraper.calls.Load())

	entry, _ := env.cache.Get(context.Background(), "s1")
	assert.Nil(t, entry)
}

func TestHandler_EmptyCompletionUsesFallback(t *testing.T) {
	env := newTestEnv(t)
	env.addChunk(t, "https://example.com/france", "France overview.")
	env.completer.answer = "   "

	resp, err := env.handler.Execute(context.Background(), &Request{SessionID: "s1", Query: "What about France?"})
	require.NoError(t, err)

	assert.Equal(t, prompt.FallbackAnswer, resp.Answer)
	assert.False(t, resp.ScrapingStarted, "entity is present in the retrieved text")
	assert.Empty(t, resp.Sources)

	entry, _ := env.cache.Get(context.Background(), "s1")
	assert.Nil(t, entry, "no-info answers are not cached")
}

func TestHandler_HistoryAndClearSession(t *testing.T) {
	env := newTestEnv(t)
	env.addChunk(t, "https://example.com/france", "The capital of France is Paris.")
	ctx := context.Background()

	_, err := env.handler.Execute(ctx, &Request{SessionID: "s1", Query: "capital of France"})
	require.NoError(t, err)

	turns, err := env.handler.History(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, models.RoleAssistant, turns[0].Role)

	require.NoError(t, env.handler.ClearSession(ctx, "s1"))

	turns, err = env.handler.History(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, turns)
	entry, _ := env.cache.Get(ctx, "s1")
	assert.Nil(t, entry)

	// with history and cache gone a link request has nothing to offer
	calls := env.completer.calls
	resp, err := env.handler.Execute(ctx, &Request{SessionID: "s1", Query: "give me the link"})
	require.NoError(t, err)
	assert.Equal(t, "give me the link", env.embedder.last())
	assert.Equal(t, string(intent.LinkRequest), resp.Intent)
	assert.False(t, resp.IsSufficient)
	assert.Equal(t, prompt.FallbackAnswer, resp.Answer)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, calls, env.completer.calls)

	_, err = env.handler.History(ctx, " ", 0)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, errCode(t, err))
	assert.Equal(t, apperrors.ErrCodeInvalidInput, errCode(t, env.handler.ClearSession(ctx, "")))
}

func TestSessionLocks(t *testing.T) {
	locks := newSessionLocks()
	var active, maxActive atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("s")
			n := active.Add(1)
			if n > maxActive.Load() {
				maxActive.Store(n)
			}
			time.Sleep(time.Millisecond)
			active.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	assert.Zero(t, locks.len())
}
