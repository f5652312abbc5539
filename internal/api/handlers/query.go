package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cloo-solutions/obsidian/internal/api"
	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/cloo-solutions/obsidian/internal/service"
)

const maxTopK = 50

type QueryService interface {
	Answer(ctx context.Context, in service.QueryInput, gen service.Generator) (*service.QueryResult, error)
	History(ctx context.Context, limit int) ([]*domain.QueryRecord, error)
}

type QueryHandler struct {
	qs  QueryService
	gen service.Generator
}

// NewQueryHandler answers queries through qs using gen for the final answer.
func NewQueryHandler(qs QueryService, gen service.Generator) *QueryHandler {
	return &QueryHandler{qs: qs, gen: gen}
}

type QueryRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k"`
}

type CitationResponse struct {
	Index       int     `json:"index"`
	ChunkID     string  `json:"chunk_id"`
	DocumentID  string  `json:"document_id"`
	Filename    string  `json:"filename"`
	FileType    string  `json:"file_type"`
	Score       float32 `json:"score"`
	PageNumber  int     `json:"page_number,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
	TextPreview string  `json:"text_preview"`
}

type QueryResponse struct {
	Answer    string             `json:"answer"`
	Citations []CitationResponse `json:"citations"`
	VersionID int64              `json:"version_id"`
}

type QueryRecordResponse struct {
	ID            string `json:"id"`
	Query         string `json:"query"`
	Answer        string `json:"answer"`
	TopK          int    `json:"top_k"`
	CitationCount int    `json:"citation_count"`
	VersionID     int64  `json:"version_id"`
	DurationMs    int    `json:"duration_ms"`
	CreatedAt     string `json:"created_at"`
}

func citationsToResponse(citations []domain.Citation) []CitationResponse {
	out := make([]CitationResponse, 0, len(citations))
	for _, c := range citations {
		out = append(out, CitationResponse{
			Index:       c.Index,
			ChunkID:     c.ChunkID,
			DocumentID:  c.DocumentID,
			Filename:    c.Filename,
			FileType:    string(c.Modality),
			Score:       c.Score,
			PageNumber:  c.PageNumber,
			Timestamp:   c.Timestamp,
			TextPreview: c.TextPreview,
		})
	}
	return out
}

func queryRecordToResponse(q *domain.QueryRecord) QueryRecordResponse {
	return QueryRecordResponse{
		ID:            q.ID,
		Query:         q.Query,
		Answer:        q.Answer,
		TopK:          q.TopK,
		CitationCount: q.CitationCount,
		VersionID:     q.VersionID,
		DurationMs:    q.DurationMs,
		CreatedAt:     q.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.HandleError(w, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.TopK < 0 || req.TopK > maxTopK {
		api.Error(w, http.StatusBadRequest, "top_k must be between 1 and "+strconv.Itoa(maxTopK))
		return
	}

	result, err := h.qs.Answer(r.Context(), service.QueryInput{Query: req.Query, TopK: req.TopK}, h.gen)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, QueryResponse{
		Answer:    result.Answer,
		Citations: citationsToResponse(result.Citations),
		VersionID: result.VersionID,
	})
}

func (h *QueryHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, 500)
	}

	records, err := h.qs.History(r.Context(), limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	resp := make([]QueryRecordResponse, 0, len(records))
	for _, q := range records {
		resp = append(resp, queryRecordToResponse(q))
	}
	api.Success(w, http.StatusOK, resp)
}
