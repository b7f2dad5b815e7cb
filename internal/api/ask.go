package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/querypilot/querypilot/internal/agent"
	"github.com/querypilot/querypilot/internal/safety"
)

type askRequest struct {
	Question string `json:"question"`
	Execute  *bool  `json:"execute"`
	RowLimit int    `json:"row_limit"`
	MaxParts int    `json:"max_parts"`
}

// handleAsk answers 200 for every pipeline outcome, failures included; the
// outcome body says what happened.
func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASK_NOT_CONFIGURED", "question answering is not configured", false, nil)
		return
	}

	var request askRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	if request.RowLimit < 0 || request.MaxParts < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "row_limit and max_parts must be >= 0", false, nil)
		return
	}

	execute := true
	if request.Execute != nil {
		execute = *request.Execute
	}
	rowLimit := request.RowLimit
	if rowLimit == 0 {
		rowLimit = deps.DefaultRowLimit
	}

	answer := deps.Asker.Ask(r.Context(), agent.Request{
		Question: request.Question,
		Execute:  execute,
		RowLimit: rowLimit,
		MaxParts: request.MaxParts,
	})
	if answer.HistoryIndex > 0 {
		w.Header().Set("X-History-Index", strconv.Itoa(answer.HistoryIndex))
	}
	writeJSON(w, http.StatusOK, answer.Outcome)
}

type checkRequest struct {
	SQL string `json:"sql"`
}

type checkResponse struct {
	OK     bool   `json:"ok"`
	Rule   string `json:"rule,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func handleCheckSQL(_ Dependencies, w http.ResponseWriter, r *http.Request) {
	var request checkRequest
	if err := decodeJSON(r, &request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid check request body", false, map[string]any{"details": err.Error()})
		return
	}
	err := safety.Check(request.SQL)
	if err == nil {
		writeJSON(w, http.StatusOK, checkResponse{OK: true})
		return
	}
	response := checkResponse{Reason: err.Error()}
	var violation *safety.Violation
	if errors.As(err, &violation) {
		response.Rule = string(violation.Rule)
		response.Reason = violation.Reason
	}
	writeJSON(w, http.StatusOK, response)
}
