package listing

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/refurbly/listing-engine/internal/importer"
	"github.com/refurbly/listing-engine/internal/metrics"
	"github.com/refurbly/listing-engine/internal/model"
)

// ImportResult summarizes one bulk import. Failed counts rows rejected
// during normalization; Skipped counts valid rows a validate_only run
// left unpersisted.
type ImportResult struct {
	TotalRows    int                 `json:"total_rows"`
	Created      int                 `json:"created"`
	Skipped      int                 `json:"skipped"`
	Failed       int                 `json:"failed"`
	ValidateOnly bool                `json:"validate_only,omitempty"`
	CreatedIDs   []string            `json:"created_ids"`
	Errors       []importer.RowError `json:"errors"`
}

// ImportItems handles POST /api/v1/items/import
// Accepts a multipart form with a CSV or XLSX file under the "file"
// field. Every row is normalized before anything is persisted: without
// skip_errors a single bad row aborts the whole batch, with it the bad
// rows are reported and the rest import. validate_only checks rows and
// reports without writing.
func (s *Service) ImportItems(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, "file field is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	validateOnly, _ := strconv.ParseBool(r.FormValue("validate_only"))
	skipErrors, _ := strconv.ParseBool(r.FormValue("skip_errors"))

	rows, err := importer.ParseFile(file, header.Filename)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result := ImportResult{
		TotalRows:    len(rows),
		ValidateOnly: validateOnly,
		CreatedIDs:   []string{},
		Errors:       []importer.RowError{},
	}

	var items []*model.Item
	for _, fields := range rows {
		rowNum, _ := strconv.Atoi(fields["_row"])
		item, rowErr := importer.NormalizeRow(fields, rowNum)
		if rowErr != nil {
			result.Errors = append(result.Errors, *rowErr)
			continue
		}
		items = append(items, item)
	}
	result.Failed = len(result.Errors)
	for range result.Errors {
		metrics.ImportRowsTotal.WithLabelValues("failed").Inc()
	}

	if result.Failed > 0 && !skipErrors {
		// Abort before persisting: the report carries every bad row.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(result)
		return
	}

	if validateOnly {
		result.Skipped = len(items)
		for range items {
			metrics.ImportRowsTotal.WithLabelValues("skipped").Inc()
		}
		slog.Info("import validated",
			"file", header.Filename,
			"total", result.TotalRows,
			"valid", result.Skipped,
			"failed", result.Failed,
		)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	for _, item := range items {
		item.ID = uuid.New().String()
		item.CreatedAt = now
		item.UpdatedAt = now

		prices, overridden, err := s.priceQuotes(item.BaseNet, nil)
		if err != nil {
			writeError(w, "internal error: invalid pricing configuration", http.StatusInternalServerError)
			return
		}
		item.ListPrices = prices
		item.PriceOverridden = overridden

		if err := s.store.CreateItem(ctx, item); err != nil {
			writeError(w, "failed to create item: "+err.Error(), http.StatusInternalServerError)
			return
		}
		metrics.ImportRowsTotal.WithLabelValues("created").Inc()
		result.Created++
		result.CreatedIDs = append(result.CreatedIDs, item.ID)
	}

	slog.Info("items imported",
		"file", header.Filename,
		"total", result.TotalRows,
		"created", result.Created,
		"failed", result.Failed,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(result)
}
