package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/internal/pipeline"
	"github.com/mejba13/brandcaster-ai/internal/publish"
	"github.com/mejba13/brandcaster-ai/internal/scheduler"
	"github.com/mejba13/brandcaster-ai/internal/store"
	"github.com/mejba13/brandcaster-ai/internal/topics"
	"github.com/mejba13/brandcaster-ai/pkg/kv"
)

// Handler serves the operational API: triggering discovery and
// generation, reviewing drafts, and inspecting publish jobs.
type Handler struct {
	store        *store.Store
	cache        kv.Store
	discovery    *topics.Discovery
	pipeline     *pipeline.Pipeline
	orchestrator *publish.Orchestrator
	logger       *zap.SugaredLogger
}

func NewHandler(
	st *store.Store,
	cache kv.Store,
	discovery *topics.Discovery,
	pl *pipeline.Pipeline,
	orchestrator *publish.Orchestrator,
	logger *zap.SugaredLogger,
) *Handler {
	return &Handler{
		store:        st,
		cache:        cache,
		discovery:    discovery,
		pipeline:     pl,
		orchestrator: orchestrator,
		logger:       logger,
	}
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.store.DB().PingContext(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "DB_UNAVAILABLE", err.Error())
		return
	}
	if err := h.cache.Ping(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "CACHE_UNAVAILABLE", err.Error())
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

// TriggerDiscovery runs topic discovery for one brand synchronously and
// returns the run summary.
func (h *Handler) TriggerDiscovery(w http.ResponseWriter, r *http.Request) {
	brandID := chi.URLParam(r, "brandID")

	result, err := h.discovery.Run(r.Context(), brandID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "DISCOVERY_ERROR", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// TriggerGeneration claims topics and dispatches generation jobs.
func (h *Handler) TriggerGeneration(w http.ResponseWriter, r *http.Request) {
	brandID := chi.URLParam(r, "brandID")

	var opts pipeline.GenerateOptions
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
	}

	result, err := h.pipeline.StartGeneration(r.Context(), brandID, opts)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "GENERATION_ERROR", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type schedulePreviewDay struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

// SchedulePreview shows the slot times a forward schedule build would
// use, without creating anything.
func (h *Handler) SchedulePreview(w http.ResponseWriter, r *http.Request) {
	brandID := chi.URLParam(r, "brandID")

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 90 {
			h.writeError(w, http.StatusBadRequest, "INVALID_DAYS", "days must be an integer between 1 and 90")
			return
		}
		days = parsed
	}

	brand, err := h.store.GetBrand(r.Context(), brandID)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "BRAND_NOT_FOUND", err.Error())
		return
	}

	loc := brand.Settings.Location()
	start := time.Now().In(loc)
	preview := make([]schedulePreviewDay, 0, days)
	for d := 0; d < days; d++ {
		day := start.AddDate(0, 0, d)
		entry := schedulePreviewDay{Date: day.Format("2006-01-02")}
		for slot := 0; slot < brand.Settings.PostsPerDay; slot++ {
			t := scheduler.CalculateSlot(*brand, day, slot)
			entry.Slots = append(entry.Slots, t.Format("15:04"))
		}
		preview = append(preview, entry)
	}
	h.writeJSON(w, http.StatusOK, map[string]any{
		"brand_id": brandID,
		"days":     preview,
	})
}

// UpdateBrandSettings replaces a brand's settings after validation.
func (h *Handler) UpdateBrandSettings(w http.ResponseWriter, r *http.Request) {
	brandID := chi.URLParam(r, "brandID")

	var settings model.BrandSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if err := settings.Validate(); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_SETTINGS", err.Error())
		return
	}
	if err := h.store.UpdateBrandSettings(r.Context(), brandID, settings); err != nil {
		h.writeError(w, http.StatusInternalServerError, "UPDATE_ERROR", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

type draftDTO struct {
	*model.ContentDraft
	Variants []model.ContentVariant `json:"variants"`
}

func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "draftID")

	draft, err := h.store.GetDraft(r.Context(), draftID)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "DRAFT_NOT_FOUND", err.Error())
		return
	}
	variants, err := h.store.ListVariants(r.Context(), draftID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "VARIANTS_ERROR", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, draftDTO{ContentDraft: draft, Variants: variants})
}

type reviewRequest struct {
	Reviewer string         `json:"reviewer"`
	Changes  map[string]any `json:"changes,omitempty"`
	// Schedule also places the publish dispatch on approval.
	Schedule bool `json:"schedule,omitempty"`
}

func (h *Handler) ApproveDraft(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "draftID")

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if req.Reviewer == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_REVIEWER", "reviewer is required")
		return
	}

	if err := h.store.ApproveDraft(r.Context(), draftID, req.Reviewer, time.Now()); err != nil {
		h.writeError(w, http.StatusConflict, "APPROVE_ERROR", err.Error())
		return
	}

	if req.Schedule {
		draft, err := h.store.GetDraft(r.Context(), draftID)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "DRAFT_LOAD_ERROR", err.Error())
			return
		}
		brand, err := h.store.GetBrand(r.Context(), draft.BrandID)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "BRAND_LOAD_ERROR", err.Error())
			return
		}
		slot, err := h.pipeline.SchedulePublish(r.Context(), draftID, *brand, publish.AllTargets())
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "SCHEDULE_ERROR", err.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"status": "approved", "scheduled_for": slot})
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"status": "approved"})
}

func (h *Handler) RejectDraft(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "draftID")

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if req.Reviewer == "" {
		h.writeError(w, http.StatusBadRequest, "MISSING_REVIEWER", "reviewer is required")
		return
	}

	if err := h.store.RejectDraft(r.Context(), draftID, req.Reviewer, model.ApprovalRejected, req.Changes); err != nil {
		h.writeError(w, http.StatusConflict, "REJECT_ERROR", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

type publishRequest struct {
	Website   bool     `json:"website"`
	Social    bool     `json:"social"`
	Platforms []string `json:"platforms,omitempty"`
	// Immediate skips the scheduler and publishes now.
	Immediate bool `json:"immediate,omitempty"`
}

// PublishDraft publishes an approved draft, immediately or via the
// scheduler.
func (h *Handler) PublishDraft(w http.ResponseWriter, r *http.Request) {
	draftID := chi.URLParam(r, "draftID")

	req := publishRequest{Website: true, Social: true}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
	}

	opts := publish.Options{Website: req.Website, Social: req.Social}
	for _, raw := range req.Platforms {
		platform, err := model.ParsePlatform(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "INVALID_PLATFORM", err.Error())
			return
		}
		opts.Platforms = append(opts.Platforms, platform)
	}

	if req.Immediate {
		report, err := h.orchestrator.Publish(r.Context(), draftID, opts)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, "PUBLISH_ERROR", err.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, report)
		return
	}

	draft, err := h.store.GetDraft(r.Context(), draftID)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "DRAFT_NOT_FOUND", err.Error())
		return
	}
	brand, err := h.store.GetBrand(r.Context(), draft.BrandID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "BRAND_LOAD_ERROR", err.Error())
		return
	}
	slot, err := h.pipeline.SchedulePublish(r.Context(), draftID, *brand, opts)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "SCHEDULE_ERROR", err.Error())
		return
	}
	h.writeJSON(w, http.StatusAccepted, map[string]any{"status": "scheduled", "scheduled_for": slot})
}

func (h *Handler) GetPublishJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.store.GetPublishJob(r.Context(), jobID)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "JOB_NOT_FOUND", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, job)
}

// RetryPublishJob re-runs a single failed publish leg.
func (h *Handler) RetryPublishJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	leg, err := h.orchestrator.RetryPublish(r.Context(), jobID)
	if err != nil {
		h.writeError(w, http.StatusConflict, "RETRY_ERROR", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, leg)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

type errorDTO struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, message string) {
	h.logger.Errorw("API error", "code", code, "message", message, "status", status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]errorDTO{"error": {Code: code, Message: message}})
}
