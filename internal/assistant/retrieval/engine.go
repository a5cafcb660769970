// Package retrieval ranks stored chunks against a query vector and decides
// whether local knowledge is sufficient.
package retrieval

import (
	"sort"

	"rag-assistant/internal/assistant/intent"
	"rag-assistant/internal/assistant/similarity"
	"rag-assistant/internal/models"
)

type Config struct {
	TopK             int
	Threshold        float64
	RelaxedThreshold float64
}

func DefaultConfig() *Config {
	return &Config{
		TopK:             5,
		Threshold:        0.55,
		RelaxedThreshold: 0.45,
	}
}

// Result is one ranked retrieval.
type Result struct {
	Chunks   []models.ScoredChunk
	MaxScore float64
	// Skipped counts chunks whose embedding could not be compared with the query.
	Skipped int
}

// Texts returns the retrieved chunk texts in rank order.
func (r Result) Texts() []string {
	out := make([]string, 0, len(r.Chunks))
	for _, sc := range r.Chunks {
		out = append(out, sc.Chunk.PlainText)
	}
	return out
}

// Links returns the distinct chunk links in rank order.
func (r Result) Links() []string {
	seen := make(map[string]struct{}, len(r.Chunks))
	out := make([]string, 0, len(r.Chunks))
	for _, sc := range r.Chunks {
		link := sc.Chunk.WebsiteLink
		if link == "" {
			continue
		}
		if _, ok := seen[link]; ok {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}
	return out
}

// Above keeps only the chunks scoring at least min. MaxScore and Skipped
// still describe the full retrieval.
func (r Result) Above(min float64) Result {
	kept := make([]models.ScoredChunk, 0, len(r.Chunks))
	for _, sc := range r.Chunks {
		if sc.Score >= min {
			kept = append(kept, sc)
		}
	}
	r.Chunks = kept
	return r
}

type Engine struct {
	config *Config
}

func NewEngine(config *Config) *Engine {
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{config: config}
}

// Search ranks chunks against query and keeps the top K.
func (e *Engine) Search(query []float64, chunks []models.Chunk) Result {
	ranked, skipped := Retrieve(query, chunks, e.config.TopK)
	res := Result{Chunks: ranked, Skipped: skipped}
	if len(ranked) > 0 {
		res.MaxScore = ranked[0].Score
	}
	return res
}

// ThresholdFor returns the sufficiency threshold for an intent. Follow-ups and
// clarifications are often weakly worded, so they get the relaxed one.
func (e *Engine) ThresholdFor(in intent.Intent) float64 {
	if in == intent.FollowUp || in == intent.Clarification {
		return e.config.RelaxedThreshold
	}
	return e.config.Threshold
}

// IsSufficient reports whether the best score clears the intent's threshold.
func (e *Engine) IsSufficient(in intent.Intent, maxScore float64) bool {
	return maxScore >= e.ThresholdFor(in)
}

// ShouldScrape reports whether an insufficient retrieval may start a scrape.
func (e *Engine) ShouldScrape(in intent.Intent, sufficient bool) bool {
	return !sufficient && in.AllowsScrape()
}

// Retrieve scores every chunk, drops those that cannot be compared with the
// query, and returns at most k results by descending score. Equal scores keep
// storage order.
func Retrieve(query []float64, chunks []models.Chunk, k int) ([]models.ScoredChunk, int) {
	scored := make([]models.ScoredChunk, 0, len(chunks))
	skipped := 0
	for _, c := range chunks {
		if !similarity.Comparable(query, c.Embedding) {
			skipped++
			continue
		}
		scored = append(scored, models.ScoredChunk{
			Chunk: c,
			Score: similarity.Cosine(query, c.Embedding),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, skipped
}
