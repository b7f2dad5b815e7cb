package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/querypilot/querypilot/internal/app"
	"github.com/querypilot/querypilot/internal/history"
)

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.History == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "HISTORY_NOT_CONFIGURED", "history is not configured", false, nil)
		return
	}
	limit := history.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", false, map[string]any{"limit": raw})
			return
		}
		limit = parsed
	}
	entries, total := deps.History.List(limit)
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "total": total})
}

func handleArchiveHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archiver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "history archiving is not configured", false, nil)
		return
	}
	result, err := deps.Archiver.ArchiveHistory(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, result)
	case errors.Is(err, app.ErrArchiveDisabled):
		writeError(r.Context(), w, http.StatusConflict, "ARCHIVE_DISABLED", err.Error(), false, nil)
	case errors.Is(err, history.ErrNothingToArchive):
		writeError(r.Context(), w, http.StatusConflict, "HISTORY_EMPTY", err.Error(), false, nil)
	default:
		writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_FAILED", "failed to archive history", true, map[string]any{"details": err.Error()})
	}
}

func handleListArchives(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Archiver == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ARCHIVE_NOT_CONFIGURED", "history archiving is not configured", false, nil)
		return
	}
	archives, err := deps.Archiver.ListArchives(r.Context())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"archives": archives})
	case errors.Is(err, app.ErrArchiveDisabled):
		writeError(r.Context(), w, http.StatusConflict, "ARCHIVE_DISABLED", err.Error(), false, nil)
	default:
		writeError(r.Context(), w, http.StatusBadGateway, "ARCHIVE_LIST_FAILED", "failed to list archives", true, map[string]any{"details": err.Error()})
	}
}
