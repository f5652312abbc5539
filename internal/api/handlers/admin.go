package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/cloo-solutions/obsidian/internal/api"
	"github.com/cloo-solutions/obsidian/internal/domain"
	"github.com/cloo-solutions/obsidian/internal/service"
)

type IndexCoordinator interface {
	Rebuild(ctx context.Context) (*service.RebuildResult, error)
	Status() service.IndexStatus
}

type StatsService interface {
	Stats(ctx context.Context) (*service.Stats, error)
}

type AdminHandler struct {
	coordinator IndexCoordinator
	stats       StatsService
}

func NewAdminHandler(coordinator IndexCoordinator, stats StatsService) *AdminHandler {
	return &AdminHandler{coordinator: coordinator, stats: stats}
}

type RebuildResponse struct {
	Status        string `json:"status"`
	VersionID     int64  `json:"version_id"`
	ChunksIndexed int    `json:"chunks_indexed"`
	Skipped       int    `json:"skipped"`
	Pruned        int    `json:"pruned"`
	DurationMs    int64  `json:"duration_ms"`
}

type VersionResponse struct {
	VersionID  int64  `json:"version_id"`
	Status     string `json:"status"`
	VectorSize int    `json:"vector_size"`
	CreatedAt  string `json:"created_at"`
}

type IndexStatusResponse struct {
	State           string           `json:"state"`
	Ready           bool             `json:"ready"`
	Active          *VersionResponse `json:"active,omitempty"`
	BuildingVersion int64            `json:"building_version,omitempty"`
	Stale           bool             `json:"stale"`
	LastRebuild     *RebuildResponse `json:"last_rebuild,omitempty"`
	LastError       string           `json:"last_error,omitempty"`
}

type DailyCountResponse struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

type StatsResponse struct {
	TotalDocuments   int                   `json:"total_documents"`
	TotalChunks      int                   `json:"total_chunks"`
	TotalQueries     int                   `json:"total_queries"`
	FileDistribution map[string]int        `json:"file_distribution"`
	RecentQueries    []QueryRecordResponse `json:"recent_queries"`
	QueriesByDay     []DailyCountResponse  `json:"queries_by_day"`
	ActiveVersion    *VersionResponse      `json:"active_version,omitempty"`
}

func rebuildToResponse(r *service.RebuildResult) *RebuildResponse {
	return &RebuildResponse{
		Status:        "completed",
		VersionID:     r.VersionID,
		ChunksIndexed: r.ChunksIndexed,
		Skipped:       r.ChunksSkipped,
		Pruned:        r.Pruned,
		DurationMs:    r.Duration.Milliseconds(),
	}
}

func versionToResponse(v *domain.IndexVersionInfo) *VersionResponse {
	if v == nil {
		return nil
	}
	return &VersionResponse{
		VersionID:  v.VersionID,
		Status:     string(v.Status),
		VectorSize: v.VectorSize,
		CreatedAt:  v.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Rebuild runs a full index rebuild. The rebuild is detached from the
// request's cancellation, so a client that disconnects does not abort it.
func (h *AdminHandler) Rebuild(w http.ResponseWriter, r *http.Request) {
	result, err := h.coordinator.Rebuild(context.WithoutCancel(r.Context()))
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, rebuildToResponse(result))
}

func (h *AdminHandler) IndexStatus(w http.ResponseWriter, r *http.Request) {
	status := h.coordinator.Status()

	resp := IndexStatusResponse{
		State:           string(status.State),
		Ready:           status.Active != nil,
		Active:          versionToResponse(status.Active),
		BuildingVersion: status.BuildingVersion,
		Stale:           status.Stale,
		LastError:       status.LastError,
	}
	if status.LastRebuild != nil {
		resp.LastRebuild = rebuildToResponse(status.LastRebuild)
	}

	api.Success(w, http.StatusOK, resp)
}

func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.stats.Stats(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	dist := make(map[string]int, len(stats.FileDistribution))
	for m, n := range stats.FileDistribution {
		dist[string(m)] = n
	}
	recent := make([]QueryRecordResponse, 0, len(stats.RecentQueries))
	for _, q := range stats.RecentQueries {
		recent = append(recent, queryRecordToResponse(q))
	}
	byDay := make([]DailyCountResponse, 0, len(stats.QueriesByDay))
	for _, d := range stats.QueriesByDay {
		byDay = append(byDay, DailyCountResponse{Date: d.Date, Count: d.Count})
	}

	api.Success(w, http.StatusOK, StatsResponse{
		TotalDocuments:   stats.TotalDocuments,
		TotalChunks:      stats.TotalChunks,
		TotalQueries:     stats.TotalQueries,
		FileDistribution: dist,
		RecentQueries:    recent,
		QueriesByDay:     byDay,
		ActiveVersion:    versionToResponse(stats.ActiveVersion),
	})
}
