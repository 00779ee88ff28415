package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/varia-hq/varia-engine/pkg/config"
	"github.com/varia-hq/varia-engine/pkg/ingest"
	"github.com/varia-hq/varia-engine/pkg/models"
	"github.com/varia-hq/varia-engine/pkg/services"
)

// DatasetHandler handles dataset upload, analysis triggering and all
// projections over the last completed analysis run.
type DatasetHandler struct {
	registry        *services.DatasetRegistry
	analysisService services.AnalysisService
	ingestCfg       config.IngestConfig
	logger          *zap.Logger
}

// NewDatasetHandler creates a new DatasetHandler.
func NewDatasetHandler(registry *services.DatasetRegistry, analysisService services.AnalysisService, ingestCfg config.IngestConfig, logger *zap.Logger) *DatasetHandler {
	return &DatasetHandler{
		registry:        registry,
		analysisService: analysisService,
		ingestCfg:       ingestCfg,
		logger:          logger,
	}
}

// RegisterRoutes registers the dataset handler's routes on the given mux.
func (h *DatasetHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/datasets/{dataset_id}/sheets", h.UploadSheets)
	mux.HandleFunc("POST /api/datasets/{dataset_id}/analyze", h.RunAnalysis)
	mux.HandleFunc("GET /api/datasets/{dataset_id}/summary", h.GetSummary)
	mux.HandleFunc("GET /api/datasets/{dataset_id}/sheets", h.GetSheets)
	mux.HandleFunc("GET /api/datasets/{dataset_id}/entities", h.GetEntities)
	mux.HandleFunc("GET /api/datasets/{dataset_id}/gaps", h.GetGaps)
	mux.HandleFunc("GET /api/datasets/{dataset_id}/constraints", h.GetConstraints)
	mux.HandleFunc("GET /api/datasets/{dataset_id}/decisions", h.GetDecisions)
	mux.HandleFunc("GET /api/datasets/{dataset_id}/themes", h.GetThemes)
}

// UploadSheets handles POST /api/datasets/{dataset_id}/sheets.
// Accepts a multipart form with one or more "file" parts (.xlsx or .csv)
// and registers their normalized sheets under the dataset.
func (h *DatasetHandler) UploadSheets(w http.ResponseWriter, r *http.Request) {
	datasetID := r.PathValue("dataset_id")

	r.Body = http.MaxBytesReader(w, r.Body, h.ingestCfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.ingestCfg.MaxUploadBytes); err != nil {
		_ = ErrorResponse(w, http.StatusRequestEntityTooLarge, "upload_too_large", "upload exceeds the size limit")
		return
	}
	files := r.MultipartForm.File["file"]
	if len(files) == 0 {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing_file", "at least one \"file\" part is required")
		return
	}

	var tables []models.Table
	for _, header := range files {
		f, err := header.Open()
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "unreadable_file", "failed to open uploaded file")
			return
		}

		var parsed []models.Table
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".xlsx", ".xlsm":
			parsed, err = ingest.ReadXLSX(f, header.Filename)
		case ".csv":
			parsed, err = ingest.ReadCSV(f, header.Filename)
		default:
			f.Close()
			_ = ErrorResponse(w, http.StatusUnsupportedMediaType, "unsupported_format",
				"only .xlsx, .xlsm and .csv files are supported")
			return
		}
		f.Close()
		if err != nil {
			h.logger.Warn("Failed to parse uploaded file",
				zap.String("dataset_id", datasetID),
				zap.String("filename", header.Filename),
				zap.Error(err))
			_ = ErrorResponse(w, http.StatusBadRequest, "parse_failed", "failed to parse "+header.Filename)
			return
		}
		tables = append(tables, parsed...)
	}

	total := h.registry.AddSheets(datasetID, tables)
	h.logger.Info("Registered sheets",
		zap.String("dataset_id", datasetID),
		zap.Int("added", len(tables)),
		zap.Int("total", total))

	_ = WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"dataset_id":   datasetID,
		"sheets_added": len(tables),
		"sheet_count":  total,
	})
}

// RunAnalysis handles POST /api/datasets/{dataset_id}/analyze.
func (h *DatasetHandler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	datasetID := r.PathValue("dataset_id")

	result, err := h.analysisService.RunAnalysis(r.Context(), datasetID)
	if err != nil {
		h.logger.Error("Analysis run failed", zap.String("dataset_id", datasetID), zap.Error(err))
		_ = writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, result)
}

// GetSummary handles GET /api/datasets/{dataset_id}/summary.
func (h *DatasetHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.analysisService.GetSummary(r.Context(), r.PathValue("dataset_id"))
	if err != nil {
		_ = writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, summary)
}

// GetSheets handles GET /api/datasets/{dataset_id}/sheets.
func (h *DatasetHandler) GetSheets(w http.ResponseWriter, r *http.Request) {
	sheets, err := h.analysisService.GetSheets(r.Context(), r.PathValue("dataset_id"))
	if err != nil {
		_ = writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]interface{}{"sheets": sheets})
}

// GetEntities handles GET /api/datasets/{dataset_id}/entities.
func (h *DatasetHandler) GetEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.analysisService.GetEntities(r.Context(), r.PathValue("dataset_id"))
	if err != nil {
		_ = writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]interface{}{"entities": entities})
}

// GetGaps handles GET /api/datasets/{dataset_id}/gaps?severity=critical.
func (h *DatasetHandler) GetGaps(w http.ResponseWriter, r *http.Request) {
	gaps, err := h.analysisService.GetGaps(r.Context(), r.PathValue("dataset_id"), r.URL.Query().Get("severity"))
	if err != nil {
		_ = writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]interface{}{"gaps": gaps})
}

// GetConstraints handles GET /api/datasets/{dataset_id}/constraints?type=blocking.
func (h *DatasetHandler) GetConstraints(w http.ResponseWriter, r *http.Request) {
	constraints, err := h.analysisService.GetConstraints(r.Context(), r.PathValue("dataset_id"), r.URL.Query().Get("type"))
	if err != nil {
		_ = writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]interface{}{"constraints": constraints})
}

// GetDecisions handles GET /api/datasets/{dataset_id}/decisions?status=pending.
func (h *DatasetHandler) GetDecisions(w http.ResponseWriter, r *http.Request) {
	decisions, err := h.analysisService.GetDecisions(r.Context(), r.PathValue("dataset_id"), r.URL.Query().Get("status"))
	if err != nil {
		_ = writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]interface{}{"decisions": decisions})
}

// GetThemes handles GET /api/datasets/{dataset_id}/themes.
func (h *DatasetHandler) GetThemes(w http.ResponseWriter, r *http.Request) {
	themes, err := h.analysisService.GetThemes(r.Context(), r.PathValue("dataset_id"))
	if err != nil {
		_ = writeServiceError(w, err)
		return
	}
	_ = WriteJSON(w, http.StatusOK, map[string]interface{}{"themes": themes})
}
