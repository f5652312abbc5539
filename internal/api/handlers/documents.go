// Package handlers implements the HTTP handlers of the document Q&A API.
package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/cloo-solutions/obsidian/internal/api"
	"github.com/cloo-solutions/obsidian/internal/chunker"
	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/cloo-solutions/obsidian/internal/service"
	"github.com/go-chi/chi/v5"
)

const maxBatchDocuments = 100

type IngestService interface {
	Ingest(ctx context.Context, in service.IngestInput) (*service.IngestResult, error)
	IngestBatch(ctx context.Context, inputs []service.IngestInput) ([]service.BatchItem, error)
}

type DocumentService interface {
	Get(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context, in service.ListDocumentsInput) (*domain.DocumentPage, error)
	Delete(ctx context.Context, id string) error
	Chunks(ctx context.Context, id string) ([]domain.Chunk, error)
}

type DocumentHandler struct {
	ingest IngestService
	docs   DocumentService
}

func NewDocumentHandler(ingest IngestService, docs DocumentService) *DocumentHandler {
	return &DocumentHandler{ingest: ingest, docs: docs}
}

type SectionRequest struct {
	Text       string `json:"text"`
	PageNumber int    `json:"page_number,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
}

// IngestRequest carries extracted text; content_base64 optionally holds the
// raw file, which encoding/json decodes into Content.
type IngestRequest struct {
	Filename  string           `json:"filename"`
	SizeBytes int64            `json:"size_bytes"`
	Content   []byte           `json:"content_base64,omitempty"`
	Sections  []SectionRequest `json:"sections"`
}

type BatchIngestRequest struct {
	Documents []IngestRequest `json:"documents"`
}

type DocumentResponse struct {
	ID          string `json:"id"`
	Filename    string `json:"filename"`
	FileType    string `json:"file_type"`
	SizeBytes   int64  `json:"size_bytes"`
	Status      string `json:"status"`
	TotalChunks int    `json:"total_chunks"`
	UploadedAt  string `json:"uploaded_at"`
}

type IngestResponse struct {
	Document      *DocumentResponse `json:"document"`
	ChunksIndexed int               `json:"chunks_indexed"`
	ChunksSkipped int               `json:"chunks_skipped"`
}

type BatchItemResponse struct {
	Filename string          `json:"filename"`
	Result   *IngestResponse `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

type ListDocumentsResponse struct {
	Documents []*DocumentResponse `json:"documents"`
	Cursor    string              `json:"cursor,omitempty"`
	HasMore   bool                `json:"has_more"`
}

type ChunkResponse struct {
	ID            string `json:"id"`
	SequenceIndex int    `json:"sequence_index"`
	Text          string `json:"text"`
	TokenCount    int    `json:"token_count"`
	PageNumber    int    `json:"page_number,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:          d.ID,
		Filename:    d.Filename,
		FileType:    string(d.Modality),
		SizeBytes:   d.SizeBytes,
		Status:      string(d.Status),
		TotalChunks: d.TotalChunks,
		UploadedAt:  d.UploadedAt.UTC().Format(time.RFC3339),
	}
}

func ingestResultToResponse(res *service.IngestResult) *IngestResponse {
	return &IngestResponse{
		Document:      documentToResponse(res.Document),
		ChunksIndexed: res.ChunksIndexed,
		ChunksSkipped: res.ChunksSkipped,
	}
}

func (req IngestRequest) toInput() service.IngestInput {
	sections := make([]chunker.Section, 0, len(req.Sections))
	for _, s := range req.Sections {
		sections = append(sections, chunker.Section{
			Text:       s.Text,
			PageNumber: s.PageNumber,
			Timestamp:  s.Timestamp,
		})
	}
	return service.IngestInput{
		Filename:  req.Filename,
		SizeBytes: req.SizeBytes,
		Content:   req.Content,
		Sections:  sections,
	}
}

func (h *DocumentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if req.Filename == "" {
		api.Error(w, http.StatusBadRequest, "filename is required")
		return
	}

	result, err := h.ingest.Ingest(r.Context(), req.toInput())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, ingestResultToResponse(result))
}

func (h *DocumentHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchIngestRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if len(req.Documents) == 0 {
		api.Error(w, http.StatusBadRequest, "documents is required")
		return
	}
	if len(req.Documents) > maxBatchDocuments {
		api.Error(w, http.StatusBadRequest, "too many documents, max "+strconv.Itoa(maxBatchDocuments))
		return
	}

	inputs := make([]service.IngestInput, len(req.Documents))
	for i, d := range req.Documents {
		inputs[i] = d.toInput()
	}

	// Per-document failures are reported inline; the joined error adds nothing.
	items, _ := h.ingest.IngestBatch(r.Context(), inputs)

	resp := make([]BatchItemResponse, len(items))
	for i, item := range items {
		resp[i] = BatchItemResponse{Filename: req.Documents[i].Filename}
		if item.Err != nil {
			resp[i].Error = item.Err.Error()
			continue
		}
		resp[i].Result = ingestResultToResponse(item.Result)
	}

	api.Success(w, http.StatusOK, resp)
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.docs.Get(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	page, err := h.docs.List(r.Context(), service.ListDocumentsInput{
		Cursor: r.URL.Query().Get("cursor"),
		Limit:  limit,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	docs := make([]*DocumentResponse, 0, len(page.Items))
	for _, d := range page.Items {
		docs = append(docs, documentToResponse(d))
	}

	api.Success(w, http.StatusOK, ListDocumentsResponse{
		Documents: docs,
		Cursor:    page.NextCursor,
		HasMore:   page.HasMore,
	})
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.docs.Delete(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (h *DocumentHandler) Chunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	chunks, err := h.docs.Chunks(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]ChunkResponse, 0, len(chunks))
	for _, c := range chunks {
		resp = append(resp, ChunkResponse{
			ID:            c.ID,
			SequenceIndex: c.SequenceIndex,
			Text:          c.Text,
			TokenCount:    c.TokenCount,
			PageNumber:    c.PageNumber,
			Timestamp:     c.Timestamp,
		})
	}

	api.Success(w, http.StatusOK, resp)
}
