// Package ask runs one question/answer cycle: classify, retrieve, decide
// between answering and scraping, then record the exchange.
package ask

import (
	"context"
	"errors"
	"strings"
	"time"

	"rag-assistant/internal/assistant/inflight"
	"rag-assistant/internal/assistant/intent"
	"rag-assistant/internal/assistant/prompt"
	"rag-assistant/internal/assistant/retrieval"
	"rag-assistant/internal/assistant/scrape"
	"rag-assistant/internal/assistant/sessioncache"
	"rag-assistant/internal/clients/completion"
	"rag-assistant/internal/clients/embedding"
	apperrors "rag-assistant/internal/common/errors"
	"rag-assistant/internal/common/logger"
	"rag-assistant/internal/common/metrics"
	"rag-assistant/internal/common/observability"
	"rag-assistant/internal/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const Component = "ask"

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

type Completer interface {
	Complete(ctx context.Context, messages []completion.Message) (string, error)
}

// Deps are the collaborators of a Handler. Engine, Prompts and Classifier
// fall back to their defaults when nil; Observability may be nil.
type Deps struct {
	Embedder      Embedder
	Completer     Completer
	Chunks        models.ChunkRepository
	Turns         models.TurnRepository
	Cache         sessioncache.Cache
	Scrapes       *scrape.Orchestrator
	Requests      inflight.Tracker
	Engine        *retrieval.Engine
	Prompts       *prompt.Builder
	Classifier    *intent.Classifier
	Observability *observability.Observability
}

type Handler struct {
	config     *Config
	embedder   Embedder
	completer  Completer
	chunks     models.ChunkRepository
	turns      models.TurnRepository
	cache      sessioncache.Cache
	scrapes    *scrape.Orchestrator
	requests   inflight.Tracker
	engine     *retrieval.Engine
	prompts    *prompt.Builder
	classifier *intent.Classifier
	obs        *observability.Observability
	locks      *sessionLocks
	logger     logger.Logger
	now        func() time.Time
}

func NewHandler(config *Config, deps Deps, log logger.Logger) *Handler {
	if config == nil {
		config = DefaultConfig()
	}
	if deps.Engine == nil {
		deps.Engine = retrieval.NewEngine(nil)
	}
	if deps.Prompts == nil {
		deps.Prompts = prompt.NewBuilder(nil)
	}
	if deps.Classifier == nil {
		deps.Classifier = intent.NewClassifier()
	}
	return &Handler{
		config:     config,
		embedder:   deps.Embedder,
		completer:  deps.Completer,
		chunks:     deps.Chunks,
		turns:      deps.Turns,
		cache:      deps.Cache,
		scrapes:    deps.Scrapes,
		requests:   deps.Requests,
		engine:     deps.Engine,
		prompts:    deps.Prompts,
		classifier: deps.Classifier,
		obs:        deps.Observability,
		locks:      newSessionLocks(),
		logger:     log.With(map[string]interface{}{"component": Component}),
		now:        time.Now,
	}
}

// cycle carries one request through the pipeline.
type cycle struct {
	sessionID  string
	query      string
	history    []models.ConversationTurn
	intent     intent.Intent
	rule       string
	result     retrieval.Result
	sufficient bool
	cache      *sessioncache.Entry
	log        logger.Logger
}

// Execute answers one question. Errors are *apperrors.StandardError values.
func (h *Handler) Execute(ctx context.Context, req *Request) (*Response, error) {
	start := h.now()
	resp, err := h.execute(ctx, req)
	took := h.now().Sub(start)

	if err != nil {
		code := string(apperrors.ErrCodeInternal)
		if se, ok := apperrors.AsStandardError(err); ok {
			code = string(se.Code)
		}
		metrics.AskErrors.WithLabelValues(code).Inc()
		h.obs.RecordRequest(ctx, "unknown", "error", took)
		return nil, err
	}

	outcome := outcomeOf(resp)
	metrics.AskRequests.WithLabelValues(resp.Intent, outcome).Inc()
	h.obs.RecordRequest(ctx, resp.Intent, outcome, took)
	return resp, nil
}

func (h *Handler) execute(ctx context.Context, req *Request) (*Response, error) {
	if req == nil {
		return nil, apperrors.NewInvalidInputError("request body is required")
	}
	sessionID := strings.TrimSpace(req.SessionID)
	query := strings.TrimSpace(req.Query)
	if sessionID == "" || query == "" {
		return nil, apperrors.NewInvalidInputError("session_id and query are required")
	}

	key := inflight.Key(sessionID, query)
	acquired, started, err := h.requests.TryAcquire(ctx, key)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError("acquire request marker", err)
	}
	if !acquired {
		return nil, apperrors.NewRequestInProgressError(key)
	}
	defer h.release(key, started)

	unlock := h.locks.Lock(sessionID)
	defer unlock()

	c := &cycle{
		sessionID: sessionID,
		query:     query,
		log: h.logger.With(map[string]interface{}{
			"requestId": uuid.NewString(),
			"sessionId": sessionID,
		}),
	}

	c.history, err = h.turns.ListTurns(ctx, sessionID, h.config.HistoryLimit)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError("read history", err)
	}
	c.intent, c.rule = h.classifier.Explain(query, c.history)

	st, err := h.scrapes.Status(ctx, sessionID, query)
	if err != nil {
		c.log.Warn("scrape status unavailable", map[string]interface{}{"error": err.Error()})
	} else if st.InProgress {
		return h.stillSearching(c, st), nil
	}

	embedText := intent.BuildEmbeddingQuery(query, c.intent, c.history)

	var (
		vec    []float64
		chunks []models.Chunk
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := h.embed(gctx, embedText)
		vec = v
		return err
	})
	g.Go(func() error {
		cs, err := h.chunks.AllChunks(gctx)
		if err != nil {
			return apperrors.NewStorageUnavailableError("read chunks", err)
		}
		chunks = cs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.cache = h.loadCache(ctx, c)

	if len(chunks) == 0 {
		return h.startScrape(ctx, c, "empty chunk store")
	}

	c.result = h.engine.Search(vec, chunks)
	c.sufficient = h.engine.IsSufficient(c.intent, c.result.MaxScore)
	metrics.TopSimilarity.WithLabelValues(string(c.intent)).Observe(c.result.MaxScore)

	c.log.Info("retrieval scored", map[string]interface{}{
		"intent":     string(c.intent),
		"rule":       c.rule,
		"maxScore":   c.result.MaxScore,
		"sufficient": c.sufficient,
		"chunks":     len(chunks),
		"skipped":    c.result.Skipped,
	})

	if h.engine.ShouldScrape(c.intent, c.sufficient) {
		return h.startScrape(ctx, c, "insufficient retrieval")
	}
	if c.intent == intent.LinkRequest && !c.sufficient {
		// weak matches are not sources; only the gated cache can supply links
		c.result = c.result.Above(h.engine.ThresholdFor(c.intent))
	}

	answer, err := h.answer(ctx, c)
	if err != nil {
		return nil, err
	}

	if scrape.NeedsScrapeAfterAnswer(c.intent, query, answer, strings.Join(c.result.Texts(), "\n")) {
		return h.startScrape(ctx, c, "answer lacked information")
	}

	h.saveTurns(ctx, c, answer)
	h.updateCache(ctx, c, answer)
	return h.respond(c, answer), nil
}

func (h *Handler) embed(ctx context.Context, text string) ([]float64, error) {
	start := h.now()
	vec, err := h.embedder.Embed(ctx, text)
	h.obs.RecordUpstream(ctx, embedding.ServiceName, h.now().Sub(start), err)
	if err != nil {
		if errors.Is(err, embedding.ErrEmbeddingUnavailable) {
			return nil, apperrors.NewEmbeddingUnavailableError(err)
		}
		return nil, apperrors.NewEmbeddingFailedError(err)
	}
	return vec, nil
}

// answer asks the completion service. A link request with no candidate links
// gets the fallback without a call.
func (h *Handler) answer(ctx context.Context, c *cycle) (string, error) {
	in := prompt.Input{
		Intent:  c.intent,
		Query:   c.query,
		Chunks:  c.result.Texts(),
		Links:   c.result.Links(),
		History: c.history,
		Cache:   c.cache,
	}
	if c.intent == intent.LinkRequest && len(prompt.CandidateLinks(in)) == 0 {
		c.log.Info("no links to offer", nil)
		return prompt.FallbackAnswer, nil
	}

	start := h.now()
	text, err := h.completer.Complete(ctx, h.prompts.Messages(in))
	h.obs.RecordUpstream(ctx, completion.ServiceName, h.now().Sub(start), err)
	if err != nil {
		if errors.Is(err, completion.ErrCompletionUnavailable) {
			return "", apperrors.NewCompletionUnavailableError(err)
		}
		return "", apperrors.NewCompletionFailedError(err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return prompt.FallbackAnswer, nil
	}
	if phrase, ok := prompt.ContainsForbidden(text); ok {
		c.log.Warn("answer contains a forbidden phrase", map[string]interface{}{"phrase": phrase})
	}
	return text, nil
}

// startScrape claims the scrape marker and, when it is free, records the
// exchange and launches the scrape. A held marker yields a progress reply.
func (h *Handler) startScrape(ctx context.Context, c *cycle, reason string) (*Response, error) {
	job, st, err := h.scrapes.Claim(ctx, c.sessionID, c.query)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError("acquire scrape marker", err)
	}
	if job == nil {
		return h.stillSearching(c, st), nil
	}

	answer := scrape.SearchingMessage(c.query)
	h.saveTurns(ctx, c, answer)
	job.Start()

	c.log.Info("scrape triggered", map[string]interface{}{
		"intent": string(c.intent),
		"reason": reason,
	})

	resp := h.respond(c, answer)
	resp.IsSufficient = false
	resp.ScrapingStarted = true
	resp.ScrapingInProgress = true
	resp.Sources = []Source{}
	return resp, nil
}

// stillSearching answers while a scrape for the same key runs. Nothing is
// stored.
func (h *Handler) stillSearching(c *cycle, st scrape.Status) *Response {
	secs := st.ElapsedSeconds()
	return &Response{
		Answer:             scrape.StillSearchingMessage(c.query, secs),
		SessionID:          c.sessionID,
		Intent:             string(c.intent),
		ScrapingInProgress: true,
		ElapsedSeconds:     &secs,
		Sources:            []Source{},
	}
}

func (h *Handler) respond(c *cycle, answer string) *Response {
	sources := make([]Source, 0, len(c.result.Chunks))
	if answer != prompt.FallbackAnswer {
		for _, sc := range c.result.Chunks {
			sources = append(sources, Source{
				Link:    sc.Chunk.WebsiteLink,
				Score:   sc.Score,
				Preview: intent.Truncate(strings.TrimSpace(sc.Chunk.PlainText), h.config.PreviewChars),
			})
		}
	}
	return &Response{
		Answer:          answer,
		SessionID:       c.sessionID,
		Intent:          string(c.intent),
		IsSufficient:    c.sufficient,
		SimilarityScore: c.result.MaxScore,
		Sources:         sources,
	}
}

// saveTurns writes the user turn and its reply together, sharing one
// timestamp; stores keep insertion order for ties. Failures are logged and
// never fail the request.
func (h *Handler) saveTurns(ctx context.Context, c *cycle, answer string) {
	now := h.now().UTC()
	err := h.turns.AppendTurns(context.WithoutCancel(ctx),
		models.ConversationTurn{
			ID:        uuid.NewString(),
			SessionID: c.sessionID,
			Role:      models.RoleUser,
			Message:   c.query,
			CreatedAt: now,
		},
		models.ConversationTurn{
			ID:        uuid.NewString(),
			SessionID: c.sessionID,
			Role:      models.RoleAssistant,
			Message:   answer,
			CreatedAt: now,
		},
	)
	if err != nil {
		c.log.Error("failed to save turns", map[string]interface{}{"error": err.Error()})
	}
}

func (h *Handler) loadCache(ctx context.Context, c *cycle) *sessioncache.Entry {
	entry, err := h.cache.Get(ctx, c.sessionID)
	if err != nil {
		c.log.Warn("session cache read failed", map[string]interface{}{"error": err.Error()})
		return nil
	}
	return entry
}

// updateCache records a real answer and the links of chunks that cleared the
// threshold. No-info answers leave the entry alone.
func (h *Handler) updateCache(ctx context.Context, c *cycle, answer string) {
	if scrape.HasNoInfo(answer) {
		return
	}
	topic := c.query
	if c.intent == intent.LinkRequest {
		topic = intent.LinkTopic(c.history)
	}
	links := c.result.Above(h.engine.ThresholdFor(c.intent)).Links()
	u := sessioncache.UpdateFor(c.intent, answer, topic, prompt.DedupeLinks(links))
	if err := h.cache.Put(context.WithoutCancel(ctx), c.sessionID, u); err != nil {
		c.log.Warn("session cache write failed", map[string]interface{}{"error": err.Error()})
	}
}

func (h *Handler) release(key string, started time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), h.config.ReleaseTimeout)
	defer cancel()
	if err := h.requests.Release(ctx, key, started); err != nil {
		h.logger.Warn("failed to release request marker", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}

// History returns a session's turns oldest first.
func (h *Handler) History(ctx context.Context, sessionID string, limit int) ([]models.ConversationTurn, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperrors.NewInvalidInputError("session id is required")
	}
	turns, err := h.turns.ListTurns(ctx, sessionID, limit)
	if err != nil {
		return nil, apperrors.NewStorageUnavailableError("read history", err)
	}
	if turns == nil {
		turns = []models.ConversationTurn{}
	}
	return turns, nil
}

// ClearSession deletes a session's turns and its cache entry.
func (h *Handler) ClearSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return apperrors.NewInvalidInputError("session id is required")
	}

	unlock := h.locks.Lock(sessionID)
	defer unlock()

	if err := h.turns.DeleteTurns(ctx, sessionID); err != nil {
		return apperrors.NewStorageUnavailableError("delete history", err)
	}
	if err := h.cache.Clear(ctx, sessionID); err != nil {
		return apperrors.NewStorageUnavailableError("clear session cache", err)
	}
	h.logger.Info("session cleared", map[string]interface{}{"sessionId": sessionID})
	return nil
}

func outcomeOf(resp *Response) string {
	switch {
	case resp.ScrapingStarted:
		return "scrape_started"
	case resp.ScrapingInProgress:
		return "scrape_in_progress"
	case resp.IsSufficient:
		return "answered"
	default:
		return "insufficient"
	}
}
