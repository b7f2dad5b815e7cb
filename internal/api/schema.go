package api

import (
	"net/http"

	"github.com/querypilot/querypilot/internal/schema"
)

// handleSchema returns the table mapping, or per-table column details when
// ?tables=a,b is given.
func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Schema == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "SCHEMA_NOT_CONFIGURED", "schema provider is not configured", false, nil)
		return
	}

	tables := schema.ParseTableList(r.URL.Query().Get("tables"))
	if len(tables) == 0 {
		mapping, err := schema.BuildMapping(r.Context(), deps.Schema)
		if err != nil {
			writeError(r.Context(), w, http.StatusBadGateway, "SCHEMA_UNAVAILABLE", "failed to load schema", true, map[string]any{"details": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tables": mapping})
		return
	}

	descriptions, err := schema.Describe(r.Context(), deps.Schema, tables)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "SCHEMA_UNAVAILABLE", "failed to describe tables", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": descriptions})
}
