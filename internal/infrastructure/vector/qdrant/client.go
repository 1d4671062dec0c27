package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
	"github.com/kirillkom/knowledge-assistant/internal/infrastructure/resilience"
)

const (
	denseVectorName  = "dense"
	sparseVectorName = "bm25"

	opSearch = "qdrant.search"
	opFetch  = "qdrant.fetch"
)

// Client is a ChunkStore over one Qdrant collection holding a named dense
// vector and a named sparse bm25 vector per chunk.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// VectorSearch returns cosine distance (1 - similarity), best first.
func (c *Client) VectorSearch(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.RankedResult, error) {
	if len(queryVector) == 0 || limit <= 0 {
		return []domain.RankedResult{}, nil
	}
	points, err := c.query(ctx, queryVector, denseVectorName, limit, filter)
	if err != nil {
		return nil, err
	}

	out := make([]domain.RankedResult, 0, len(points))
	for i, p := range points {
		out = append(out, domain.RankedResult{
			ChunkID: chunkIDFromPoint(p),
			Score:   math.Max(0, 1-p.Score),
			Rank:    i + 1,
		})
	}
	return out, nil
}

func (c *Client) KeywordSearch(ctx context.Context, queryTokens []string, limit int, filter domain.SearchFilter) ([]domain.RankedResult, error) {
	sparse := encodeSparseQuery(queryTokens)
	if len(sparse.Indices) == 0 || limit <= 0 {
		return []domain.RankedResult{}, nil
	}
	points, err := c.query(ctx, sparse, sparseVectorName, limit, filter)
	if err != nil {
		return nil, err
	}

	out := make([]domain.RankedResult, 0, len(points))
	for i, p := range points {
		out = append(out, domain.RankedResult{
			ChunkID: chunkIDFromPoint(p),
			Score:   p.Score,
			Rank:    i + 1,
		})
	}
	return out, nil
}

// GetChunks returns payloads for ids in the order given; unknown ids are skipped.
func (c *Client) GetChunks(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return []domain.Chunk{}, nil
	}
	pointIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, PointID(id))
	}

	reqBody := map[string]any{
		"ids":          pointIDs,
		"with_payload": true,
		"with_vector":  false,
	}
	var resp struct {
		Result []scoredPoint `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points", c.baseURL, c.collection)
	if err := c.do(ctx, opFetch, url, reqBody, &resp); err != nil {
		return nil, err
	}

	byID := make(map[string]domain.Chunk, len(resp.Result))
	for _, p := range resp.Result {
		chunk := chunkFromPayload(p)
		byID[chunk.ID] = chunk
	}
	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if chunk, ok := byID[id]; ok {
			out = append(out, chunk)
		}
	}
	return out, nil
}

func (c *Client) query(ctx context.Context, query any, using string, limit int, filter domain.SearchFilter) ([]scoredPoint, error) {
	reqBody := map[string]any{
		"query":        query,
		"using":        using,
		"limit":        limit,
		"with_payload": true,
	}
	if filter.ExcludeSourceType != "" {
		reqBody["filter"] = map[string]any{
			"must_not": []map[string]any{
				{
					"key": "source_type",
					"match": map[string]any{
						"value": string(filter.ExcludeSourceType),
					},
				},
			},
		}
	}

	var resp struct {
		Result struct {
			Points []scoredPoint `json:"points"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)
	if err := c.do(ctx, opSearch, url, reqBody, &resp); err != nil {
		return nil, err
	}
	return resp.Result.Points, nil
}

func (c *Client) do(ctx context.Context, operation, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return resilience.NewHTTPStatusError("qdrant", operation, resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}

	if c.executor != nil {
		err = c.executor.Execute(ctx, operation, call, resilience.ClassifyHTTPError)
	} else {
		err = call(ctx)
	}
	return resilience.WrapTemporary(operation, err, resilience.ClassifyHTTPError)
}

// PointID maps a chunk id onto a Qdrant point id. Qdrant only accepts
// unsigned integers or UUIDs, so other ids are hashed into a UUIDv5.
func PointID(chunkID string) string {
	if parsed, err := uuid.Parse(chunkID); err == nil {
		return parsed.String()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("chunk:"+chunkID)).String()
}

func chunkIDFromPoint(p scoredPoint) string {
	if id := getStringPayload(p.Payload, "chunk_id"); id != "" {
		return id
	}
	return fmt.Sprintf("%v", p.ID)
}

func chunkFromPayload(p scoredPoint) domain.Chunk {
	return domain.Chunk{
		ID:          chunkIDFromPoint(p),
		SourceType:  domain.SourceType(getStringPayload(p.Payload, "source_type")),
		SourceID:    getStringPayload(p.Payload, "source_id"),
		SourceTitle: getStringPayload(p.Payload, "source_title"),
		ChunkIndex:  getIntPayload(p.Payload, "chunk_index"),
		Text:        getStringPayload(p.Payload, "text"),
		TokenCount:  getIntPayload(p.Payload, "token_count"),
	}
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}
