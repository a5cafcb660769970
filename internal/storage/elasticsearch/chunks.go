// Package elasticsearch stores chunks as documents in an Elasticsearch index.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"rag-assistant/internal/common/logger"
	"rag-assistant/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	defaultPageSize = 1000
	pitKeepAlive    = "1m"
)

// sortOrder pages in storage order. chunk_id breaks created_at ties.
var sortOrder = []interface{}{
	map[string]interface{}{"created_at": "asc"},
	map[string]interface{}{"chunk_id": "asc"},
}

type chunkDoc struct {
	ChunkID     int64           `json:"chunk_id"`
	WebsiteID   int64           `json:"website_id"`
	WebsiteLink string          `json:"website_link"`
	PlainText   string          `json:"plain_text"`
	Embedding   json.RawMessage `json:"embedding"`
	CreatedAt   time.Time       `json:"created_at"`
}

type searchHit struct {
	ID     string            `json:"_id"`
	Source chunkDoc          `json:"_source"`
	Sort   []json.RawMessage `json:"sort"`
}

type searchResponse struct {
	PitID string `json:"pit_id"`
	Hits  struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
}

// ChunkStore reads every chunk by paging through a point-in-time with
// search_after, pageSize documents per request.
type ChunkStore struct {
	client   *elasticsearch.Client
	index    string
	pageSize int
	logger   logger.Logger
	now      func() time.Time
}

func NewChunkStore(client *elasticsearch.Client, index string, pageSize int, log logger.Logger) *ChunkStore {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &ChunkStore{
		client:   client,
		index:    index,
		pageSize: pageSize,
		logger:   log.With(map[string]interface{}{"component": "chunk-store", "backend": "elasticsearch"}),
		now:      time.Now,
	}
}

// InsertChunk indexes the chunk and refreshes so the next read sees it.
// Chunks without an id get one derived from their creation time.
func (s *ChunkStore) InsertChunk(ctx context.Context, chunk *models.Chunk) error {
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = s.now().UTC()
	}
	if chunk.ID == 0 {
		chunk.ID = chunk.CreatedAt.UnixNano()
	}

	emb, err := json.Marshal(chunk.Embedding)
	if err != nil {
		return fmt.Errorf("elasticsearch: encode embedding: %w", err)
	}
	body, err := json.Marshal(chunkDoc{
		ChunkID:     chunk.ID,
		WebsiteID:   chunk.WebsiteID,
		WebsiteLink: chunk.WebsiteLink,
		PlainText:   chunk.PlainText,
		Embedding:   emb,
		CreatedAt:   chunk.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("elasticsearch: encode chunk: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: strconv.FormatInt(chunk.ID, 10),
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("elasticsearch: index chunk: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch: index chunk: %s", res.String())
	}
	return nil
}

// AllChunks returns every stored chunk in storage order.
func (s *ChunkStore) AllChunks(ctx context.Context) ([]models.Chunk, error) {
	pitID, err := s.openPIT(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { s.closePIT(context.WithoutCancel(ctx), pitID) }()

	var (
		chunks []models.Chunk
		after  []json.RawMessage
		pages  int
	)
	for {
		page, err := s.searchPage(ctx, pitID, after)
		if err != nil {
			return nil, err
		}
		pages++
		if page.PitID != "" {
			pitID = page.PitID
		}

		hits := page.Hits.Hits
		for _, hit := range hits {
			chunks = append(chunks, s.toChunk(hit))
		}
		if len(hits) < s.pageSize || len(hits[len(hits)-1].Sort) == 0 {
			break
		}
		after = hits[len(hits)-1].Sort
	}

	s.logger.Debug("chunks loaded", map[string]interface{}{
		"chunks": len(chunks),
		"pages":  pages,
	})
	return chunks, nil
}

func (s *ChunkStore) openPIT(ctx context.Context) (string, error) {
	req := esapi.OpenPointInTimeRequest{
		Index:     []string{s.index},
		KeepAlive: pitKeepAlive,
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return "", fmt.Errorf("elasticsearch: open point in time: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return "", fmt.Errorf("elasticsearch: open point in time: %s", res.String())
	}

	var r struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return "", fmt.Errorf("elasticsearch: decode point in time: %w", err)
	}
	if r.ID == "" {
		return "", fmt.Errorf("elasticsearch: open point in time: empty id")
	}
	return r.ID, nil
}

// closePIT releases the point in time. Failures are logged; the server drops
// it after keep_alive anyway.
func (s *ChunkStore) closePIT(ctx context.Context, pitID string) {
	body, _ := json.Marshal(map[string]string{"id": pitID})
	req := esapi.ClosePointInTimeRequest{Body: bytes.NewReader(body)}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		s.logger.Warn("failed to close point in time", map[string]interface{}{"error": err.Error()})
		return
	}
	defer res.Body.Close()
	if res.IsError() {
		s.logger.Warn("failed to close point in time", map[string]interface{}{"status": res.Status()})
	}
}

func (s *ChunkStore) searchPage(ctx context.Context, pitID string, after []json.RawMessage) (*searchResponse, error) {
	query := map[string]interface{}{
		"query":            map[string]interface{}{"match_all": map[string]interface{}{}},
		"size":             s.pageSize,
		"sort":             sortOrder,
		"track_total_hits": false,
		"pit": map[string]interface{}{
			"id":         pitID,
			"keep_alive": pitKeepAlive,
		},
	}
	if len(after) > 0 {
		query["search_after"] = after
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: encode search: %w", err)
	}

	// a point-in-time search names no index
	req := esapi.SearchRequest{Body: bytes.NewReader(body)}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: search chunks: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch: search chunks: %s", res.String())
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("elasticsearch: decode search response: %w", err)
	}
	return &r, nil
}

func (s *ChunkStore) toChunk(hit searchHit) models.Chunk {
	src := hit.Source
	c := models.Chunk{
		ID:          src.ChunkID,
		WebsiteID:   src.WebsiteID,
		WebsiteLink: src.WebsiteLink,
		PlainText:   src.PlainText,
		CreatedAt:   src.CreatedAt,
	}
	if len(src.Embedding) > 0 {
		if err := json.Unmarshal(src.Embedding, &c.Embedding); err != nil {
			s.logger.Warn("skipping malformed embedding", map[string]interface{}{
				"docId": hit.ID,
				"error": err.Error(),
			})
			c.Embedding = nil
		}
	}
	return c
}
