package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/obsidian/internal/chunker"
	"github.com/cloo-solutions/obsidian/internal/domain"
)

var baseDocTime = time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)

func TestParseIndexPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    IndexPolicy
		wantErr bool
	}{
		{"immediate", IndexPolicyImmediate, false},
		{" Deferred ", IndexPolicyDeferred, false},
		{"", IndexPolicyImmediate, false},
		{"eventually", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIndexPolicy(tt.in)
			if tt.wantErr {
				assert.True(t, errors.Is(err, domain.ErrConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIngestService_Ingest(t *testing.T) {
	h := newHarness(t, IndexPolicyImmediate)
	h.ingest.uuidGen = NewMockUUIDGenerator("doc-fixed")
	h.ingest.now = func() time.Time { return baseDocTime }

	res := h.ingestText(t, "Report.PDF", natoText)

	assert.Equal(t, "doc-fixed", res.Document.ID)
	assert.Equal(t, domain.ModalityPDF, res.Document.Modality)
	assert.Equal(t, domain.DocumentStatusIndexed, res.Document.Status)
	assert.Equal(t, 3, res.Document.TotalChunks)
	assert.Equal(t, baseDocTime, res.Document.UploadedAt)

	stored, err := h.store.GetDocument(context.Background(), "doc-fixed")
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusIndexed, stored.Status)
	assert.Equal(t, 3, stored.TotalChunks)

	chunks, err := h.store.ListChunks(context.Background(), "doc-fixed")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for i, c := range chunks {
		assert.Equal(t, domain.ChunkID("doc-fixed", i), c.ID)
		assert.Equal(t, 1, c.PageNumber)
	}
}

func TestIngestService_UnsupportedModality(t *testing.T) {
	h := newHarness(t, IndexPolicyImmediate)

	_, err := h.ingest.Ingest(context.Background(), IngestInput{Filename: "notes.txt", Sections: []chunker.Section{{Text: "hello"}}})
	assert.True(t, errors.Is(err, domain.ErrUnsupportedModality))

	_, err = h.ingest.Ingest(context.Background(), IngestInput{Filename: " "})
	assert.True(t, domain.HasCode(err, domain.ErrCodeValidation))

	n, err := h.store.CountDocuments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIngestService_EmptyText(t *testing.T) {
	h := newHarness(t, IndexPolicyImmediate)

	res := h.ingestText(t, "blank.png", "   ")
	assert.Equal(t, domain.DocumentStatusIndexed, res.Document.Status)
	assert.Equal(t, 0, res.Document.TotalChunks)
	assert.False(t, h.coordinator.Stale())
}

func TestIngestService_ImmediatePolicyVisibleWithoutRebuild(t *testing.T) {
	h := newHarness(t, IndexPolicyImmediate)
	h.rebuild(t)

	res := h.ingestText(t, "nato.pdf", natoText)
	assert.Equal(t, 3, res.ChunksIndexed)
	assert.False(t, h.coordinator.Stale())

	result, err := h.query.Answer(context.Background(), QueryInput{Query: "quebec romeo sierra"}, ExtractiveGenerator{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Citations)
	assert.Equal(t, res.Document.ID, result.Citations[0].DocumentID)

	active, err := h.registry.Active()
	require.NoError(t, err)
	_, persisted, err := h.store.LoadVersion(context.Background(), active.ID())
	require.NoError(t, err)
	assert.Len(t, persisted, 3)
}

func TestIngestService_ImmediatePolicyReachesBuildingVersion(t *testing.T) {
	h := newHarness(t, IndexPolicyImmediate)
	h.rebuild(t)

	building := h.registry.Begin()
	res := h.ingestText(t, "nato.pdf", natoText)

	assert.Equal(t, 3, building.Len())
	active, err := h.registry.Active()
	require.NoError(t, err)
	assert.Equal(t, 3, active.Len())
	assert.True(t, building.Contains(domain.ChunkID(res.Document.ID, 0)))
}

func TestIngestService_ImmediatePolicyWithoutActiveVersion(t *testing.T) {
	h := newHarness(t, IndexPolicyImmediate)

	h.ingestText(t, "nato.pdf", natoText)
	assert.True(t, h.coordinator.Stale())
}

func TestIngestService_DeferredPolicyInvisibleUntilRebuild(t *testing.T) {
	h := newHarness(t, IndexPolicyDeferred)
	h.rebuild(t)

	res := h.ingestText(t, "nato.pdf", natoText)
	assert.Equal(t, 0, res.ChunksIndexed)
	assert.True(t, h.coordinator.Stale())

	result, err := h.query.Answer(context.Background(), QueryInput{Query: "quebec romeo sierra"}, ExtractiveGenerator{})
	require.NoError(t, err)
	assert.Equal(t, NoDataAnswer, result.Answer)

	h.rebuild(t)
	assert.False(t, h.coordinator.Stale())

	result, err = h.query.Answer(context.Background(), QueryInput{Query: "quebec romeo sierra"}, ExtractiveGenerator{})
	require.NoError(t, err)
	require.NotEmpty(t, result.Citations)
	assert.Equal(t, res.Document.ID, result.Citations[0].DocumentID)
}

func TestIngestService_SkipsUnembeddableChunks(t *testing.T) {
	h := newHarness(t, IndexPolicyImmediate)
	h.rebuild(t)

	res, err := h.ingest.Ingest(context.Background(), IngestInput{
		Filename: "scan.jpg",
		Sections: []chunker.Section{
			{Text: "12 34 56 78", PageNumber: 1},
			{Text: "legible caption text", PageNumber: 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Document.TotalChunks)
	assert.Equal(t, 1, res.ChunksIndexed)
	assert.Equal(t, 1, res.ChunksSkipped)
}

func TestIngestService_EmbedderOutageMarksFailed(t *testing.T) {
	h := newHarness(t, IndexPolicyImmediate)
	emb := new(MockEmbedder)
	emb.On("Embed", mock.Anything, mock.Anything).Return(nil, errors.New("upstream timeout"))
	h.ingest.embedder = emb
	h.ingest.uuidGen = NewMockUUIDGenerator("doc-broken")

	_, err := h.ingest.Ingest(context.Background(), IngestInput{
		Filename: "a.docx",
		Sections: []chunker.Section{{Text: "some words"}},
	})
	require.Error(t, err)

	doc, err := h.store.GetDocument(context.Background(), "doc-broken")
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusFailed, doc.Status)

	chunks, err := h.store.ListChunks(context.Background(), "doc-broken")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestIngestService_RemoteEmbedderOutage(t *testing.T) {
	h := newHarness(t, IndexPolicyImmediate)
	h.rebuild(t)
	h.ingest.embedder = newUnavailableOpenAI(t, testDimension)
	h.ingest.uuidGen = NewMockUUIDGenerator("doc-outage")

	res, err := h.ingest.Ingest(context.Background(), IngestInput{
		Filename: "pump.pdf",
		Sections: []chunker.Section{{Text: "coolant pump inspection schedule"}},
	})
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, domain.ErrEmbedderDown))

	doc, err := h.store.GetDocument(context.Background(), "doc-outage")
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusFailed, doc.Status)

	active, err := h.registry.Active()
	require.NoError(t, err)
	assert.Zero(t, active.Len())
}

func TestIngestService_BlobStorage(t *testing.T) {
	h := newHarness(t, IndexPolicyImmediate)
	blobs := new(mockBlobStorage)
	h.ingest.blobs = blobs
	h.ingest.uuidGen = NewMockUUIDGenerator("doc-raw")

	content := []byte("%PDF-1.7 raw")
	blobs.On("PutObject", mock.Anything, "documents/doc-raw/raw.pdf", content, "application/pdf").Return(nil).Once()

	res, err := h.ingest.Ingest(context.Background(), IngestInput{
		Filename: "raw.pdf",
		Content:  content,
		Sections: []chunker.Section{{Text: "raw document text"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), res.Document.SizeBytes)
	blobs.AssertExpectations(t)
}

func TestIngestService_BlobStorageFailure(t *testing.T) {
	h := newHarness(t, IndexPolicyImmediate)
	blobs := new(mockBlobStorage)
	h.ingest.blobs = blobs
	h.ingest.uuidGen = NewMockUUIDGenerator("doc-noblob")

	blobs.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket missing")).Once()

	_, err := h.ingest.Ingest(context.Background(), IngestInput{
		Filename: "raw.pdf",
		Content:  []byte("bytes"),
		Sections: []chunker.Section{{Text: "text"}},
	})
	require.Error(t, err)

	doc, err := h.store.GetDocument(context.Background(), "doc-noblob")
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentStatusFailed, doc.Status)
}

func TestIngestService_StoreUnavailable(t *testing.T) {
	h := newHarness(t, IndexPolicyImmediate)
	h.store.SetUnavailable(errors.New("pool exhausted"))

	_, err := h.ingest.Ingest(context.Background(), IngestInput{
		Filename: "a.pdf",
		Sections: []chunker.Section{{Text: "text"}},
	})
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}

func TestIngestService_IngestBatch(t *testing.T) {
	h := newHarness(t, IndexPolicyImmediate)
	h.rebuild(t)

	inputs := make([]IngestInput, 0, 7)
	for i := 0; i < 6; i++ {
		inputs = append(inputs, IngestInput{
			Filename: fmt.Sprintf("doc-%d.pdf", i),
			Sections: []chunker.Section{{Text: natoText}},
		})
	}
	inputs = append(inputs, IngestInput{Filename: "bad.exe"})

	items, err := h.ingest.IngestBatch(context.Background(), inputs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnsupportedModality))
	assert.Contains(t, err.Error(), "bad.exe")
	require.Len(t, items, 7)

	for i := 0; i < 6; i++ {
		require.NoError(t, items[i].Err)
		assert.Equal(t, inputs[i].Filename, items[i].Result.Document.Filename)
	}
	assert.Nil(t, items[6].Result)

	n, err := h.store.CountChunks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 18, n)

	active, err := h.registry.Active()
	require.NoError(t, err)
	assert.Equal(t, 18, active.Len())
}

// MockUUIDGenerator returns the given ids in order, then "default-uuid".
type MockUUIDGenerator struct {
	callCount int
	uuids     []string
}

func NewMockUUIDGenerator(uuids ...string) *MockUUIDGenerator {
	return &MockUUIDGenerator{uuids: uuids}
}

func (m *MockUUIDGenerator) NewString() string {
	if m.callCount < len(m.uuids) {
		id := m.uuids[m.callCount]
		m.callCount++
		return id
	}
	return "default-uuid"
}
