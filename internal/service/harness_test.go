package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cloo-solutions/obsidian/internal/chunker"
	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/cloo-solutions/obsidian/internal/embedding"
	"github.com/cloo-solutions/obsidian/internal/index"
	"github.com/cloo-solutions/obsidian/internal/memstore"
	"github.com/cloo-solutions/obsidian/internal/openai"
)

const testDimension = 4096

// natoText has 20 tokens; with an 8/1 window it yields chunks over tokens
// [0,8), [7,15) and [14,20).
var natoText = strings.Join([]string{
	"alpha", "bravo", "charlie", "delta", "echo", "foxtrot", "golf", "hotel",
	"india", "juliet", "kilo", "lima", "mike", "november", "oscar", "papa",
	"quebec", "romeo", "sierra", "tango",
}, " ")

type harness struct {
	store       *memstore.Store
	registry    *index.Registry
	embedder    embedding.Embedder
	coordinator *RebuildCoordinator
	ingest      *IngestService
	query       *QueryService
	documents   *DocumentService
}

func newHarness(t *testing.T, policy IndexPolicy) *harness {
	t.Helper()
	kw, err := embedding.NewKeyword(testDimension)
	require.NoError(t, err)
	return newHarnessWithEmbedder(t, policy, kw)
}

func newHarnessWithEmbedder(t *testing.T, policy IndexPolicy, embedder embedding.Embedder) *harness {
	t.Helper()
	ch, err := chunker.New(chunker.Config{WindowTokens: 8, OverlapTokens: 1})
	require.NoError(t, err)

	store := memstore.New()
	registry := index.NewRegistry(embedder.Dimension())
	logger := zap.NewNop()
	coordinator := NewRebuildCoordinator(registry, store, store, embedder, 2, logger)

	return &harness{
		store:       store,
		registry:    registry,
		embedder:    embedder,
		coordinator: coordinator,
		ingest: NewIngestService(IngestDeps{
			Store:      store,
			Chunker:    ch,
			Embedder:   embedder,
			Registry:   registry,
			IndexStore: store,
			Stale:      coordinator,
			Policy:     policy,
			Workers:    3,
			Logger:     logger,
		}),
		query:     NewQueryService(registry, embedder, store, store, DefaultQueryConfig(), logger),
		documents: NewDocumentService(store, nil, store, coordinator, logger),
	}
}

func (h *harness) ingestText(t *testing.T, filename, text string) *IngestResult {
	t.Helper()
	res, err := h.ingest.Ingest(context.Background(), IngestInput{
		Filename:  filename,
		SizeBytes: int64(len(text)),
		Sections:  []chunker.Section{{Text: text, PageNumber: 1}},
	})
	require.NoError(t, err)
	return res
}

func (h *harness) rebuild(t *testing.T) *RebuildResult {
	t.Helper()
	res, err := h.coordinator.Rebuild(context.Background())
	require.NoError(t, err)
	return res
}

// newUnavailableOpenAI returns an OpenAI client whose API answers every
// request with 503.
func newUnavailableOpenAI(t *testing.T, dimension int) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"upstream 503","type":"server_error"}}`))
	}))
	t.Cleanup(srv.Close)

	client, err := openai.NewClient(openai.Config{APIKey: "sk-test", BaseURL: srv.URL, EmbeddingDimensions: dimension})
	require.NoError(t, err)
	return client
}

// MockEmbedder is a mock implementation of embedding.Embedder
type MockEmbedder struct {
	mock.Mock
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

func (m *MockEmbedder) Dimension() int {
	return 3
}

func (m *MockEmbedder) Metric() embedding.Metric {
	return embedding.MetricCosine
}

// MockGenerator is a mock implementation of Generator
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, query, contextBlock string, citations []domain.Citation) (string, error) {
	args := m.Called(ctx, query, contextBlock, citations)
	return args.String(0), args.Error(1)
}

// gatedEmbedder, once armed, blocks every text except the allowed query
// until released.
type gatedEmbedder struct {
	embedding.Embedder
	armed   atomic.Bool
	allow   string
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGatedEmbedder(inner embedding.Embedder, allow string) *gatedEmbedder {
	return &gatedEmbedder{
		Embedder: inner,
		allow:    allow,
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (g *gatedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.armed.Load() && text != g.allow {
		g.once.Do(func() { close(g.started) })
		select {
		case <-g.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return g.Embedder.Embed(ctx, text)
}

// mockBlobStorage is a mock implementation of BlobStorage
type mockBlobStorage struct {
	mock.Mock
}

func (m *mockBlobStorage) PutObject(ctx context.Context, key string, body []byte, contentType string) error {
	args := m.Called(ctx, key, body, contentType)
	return args.Error(0)
}

func (m *mockBlobStorage) DeleteObject(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}
