package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/kirillkom/knowledge-assistant/internal/core/domain"
)

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeChunkStore struct {
	mu           sync.Mutex
	semantic     []domain.RankedResult
	keyword      []domain.RankedResult
	chunks       map[string]domain.Chunk
	vectorCalls  int
	keywordCalls int
	getCalls     int
	lastFilter   domain.SearchFilter
	lastLimit    int
	lastTokens   []string
	vectorErr    error
}

func (f *fakeChunkStore) VectorSearch(_ context.Context, _ []float32, limit int, filter domain.SearchFilter) ([]domain.RankedResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectorCalls++
	f.lastFilter = filter
	f.lastLimit = limit
	if f.vectorErr != nil {
		return nil, f.vectorErr
	}
	return trimRanked(f.semantic, limit), nil
}

func (f *fakeChunkStore) KeywordSearch(_ context.Context, tokens []string, limit int, _ domain.SearchFilter) ([]domain.RankedResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keywordCalls++
	f.lastTokens = tokens
	return trimRanked(f.keyword, limit), nil
}

func (f *fakeChunkStore) GetChunks(_ context.Context, ids []string) ([]domain.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := f.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkStore) touched() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.vectorCalls+f.keywordCalls+f.getCalls > 0
}

type fakeOracle struct {
	scores func(texts []string) []float64
	err    error
	calls  int
}

func (f *fakeOracle) Score(_ context.Context, _ string, texts []string) ([]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.scores(texts), nil
}

type fakeWebSearcher struct {
	results []domain.WebResult
	err     error
	calls   int
}

func (f *fakeWebSearcher) Search(context.Context, string, int) ([]domain.WebResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakePublisher struct {
	published int
}

func (f *fakePublisher) PublishWebResults(context.Context, string, []domain.WebResult) error {
	f.published++
	return errors.New("nats unavailable")
}

type wordCounter struct{}

func (wordCounter) Count(text string) int {
	return len(splitAlphaNumLower(text))
}

type scriptedChat struct {
	mu        sync.Mutex
	responses []string
	fallback  string
	err       error
	calls     int
	lastMsgs  []domain.ChatMessage
}

func (s *scriptedChat) Chat(_ context.Context, messages []domain.ChatMessage, _ domain.ChatOptions) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.lastMsgs = append([]domain.ChatMessage(nil), messages...)
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return s.fallback, nil
	}
	out := s.responses[0]
	s.responses = s.responses[1:]
	return out, nil
}
