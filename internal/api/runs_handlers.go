package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
)

const (
	defaultRunLimit = 20
	maxRunLimit     = 500
	runsTimeout     = 3 * time.Second
)

// RunLister reads recent scraping runs.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]housing.Run, error)
}

// RunsHandler exposes read-only run history.
type RunsHandler struct {
	runs    RunLister
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunsHandler wires the lister and logger.
func NewRunsHandler(runs RunLister, logger *zap.Logger) *RunsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunsHandler{runs: runs, timeout: runsTimeout, logger: logger}
}

// ListRuns handles GET /api/runs?status=&limit=. It returns {"runs": [...]},
// 400 for invalid filters, 503 without a run store, or 500 if the store fails.
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit, err := parseLimit(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *housing.RunStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, parseErr := parseStatus(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &parsed
	}

	runs, err := h.runs.ListRuns(ctx, limit)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	out := make([]runDTO, 0, len(runs))
	for _, run := range runs {
		if status != nil && run.Status != *status {
			continue
		}
		out = append(out, toRunDTO(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func parseLimit(r *http.Request, def, maxVal int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("invalid limit")
	}
	if limit > maxVal {
		limit = maxVal
	}
	return limit, nil
}

func parseStatus(input string) (housing.RunStatus, error) {
	switch strings.ToLower(input) {
	case "running":
		return housing.RunRunning, nil
	case "completed", "success":
		return housing.RunCompleted, nil
	case "failed", "error":
		return housing.RunFailed, nil
	default:
		return "", errors.New("invalid status")
	}
}

type runDTO struct {
	ID         int64      `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Houses     int        `json:"total_houses"`
	Guildhalls int        `json:"total_guildhalls"`
	Servers    int        `json:"total_servers"`
	Error      *string    `json:"error,omitempty"`
}

func toRunDTO(run housing.Run) runDTO {
	return runDTO{
		ID:         run.ID,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Status:     string(run.Status),
		Houses:     run.Stats.Houses,
		Guildhalls: run.Stats.Guildhalls,
		Servers:    run.Stats.Servers,
		Error:      run.Error,
	}
}
