package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/kdimtricp/skysight/internal/analysis"
	"github.com/kdimtricp/skysight/internal/config"
	"github.com/kdimtricp/skysight/internal/logging"
	"github.com/kdimtricp/skysight/internal/models"
	"github.com/m-mizutani/goerr/v2"
)

const imageField = "image"

type App struct {
	Analysis         *analysis.Service
	MaxUploadSize    int64
	VisionConfigFile string
	CORSOrigins      []string
	Logger           *slog.Logger
}

func (app *App) logger() *slog.Logger {
	if app.Logger != nil {
		return app.Logger
	}
	return logging.Default()
}

type analyzeResponse struct {
	Caption  models.Caption    `json:"caption"`
	ReadText []models.TextLine `json:"read_text,omitempty"`
}

type entryResponse struct {
	ID                uint     `json:"id"`
	CaptionText       *string  `json:"caption_text"`
	CaptionConfidence *float64 `json:"caption_confidence"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

func (app *App) UploadAndAnalyzeHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadSize)

	if err := r.ParseMultipartForm(app.MaxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			app.writeError(w, r, goerr.New("File too large", goerr.T(analysis.TagValidation), goerr.V("limit", app.MaxUploadSize)))
			return
		}
		app.writeError(w, r, goerr.New("Invalid multipart form", goerr.T(analysis.TagValidation), goerr.V("cause", err.Error())))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(imageField)
	if err != nil {
		// A part sent without a filename is parsed as a plain form value.
		if _, ok := r.MultipartForm.Value[imageField]; ok {
			app.writeError(w, r, goerr.New("No selected file", goerr.T(analysis.TagValidation)))
			return
		}
		app.writeError(w, r, goerr.New("No image file provided", goerr.T(analysis.TagValidation)))
		return
	}
	defer file.Close()

	if header.Filename == "" {
		app.writeError(w, r, goerr.New("No selected file", goerr.T(analysis.TagValidation)))
		return
	}

	imageData, err := io.ReadAll(file)
	if err != nil {
		app.writeError(w, r, goerr.New("Failed to read file", goerr.T(analysis.TagValidation), goerr.V("cause", err.Error())))
		return
	}

	result, err := app.Analysis.Analyze(r.Context(), imageData)
	if err != nil {
		app.writeError(w, r, err)
		return
	}

	logging.From(r.Context()).Info("image analyzed",
		"filename", header.Filename,
		"size", len(imageData),
		"fingerprint", result.Fingerprint,
		"cached", result.Cached,
	)

	writeJSON(w, http.StatusOK, analyzeResponse{
		Caption:  result.Caption,
		ReadText: result.ReadText,
	})
}

func (app *App) GetAllEntriesHandler(w http.ResponseWriter, r *http.Request) {
	records, err := app.Analysis.ListAll(r.Context())
	if err != nil {
		app.writeError(w, r, err)
		return
	}

	entries := make([]entryResponse, 0, len(records))
	for _, record := range records {
		entries = append(entries, entryResponse{
			ID:                record.ID,
			CaptionText:       record.CaptionText,
			CaptionConfidence: record.CaptionConfidence,
		})
	}

	writeJSON(w, http.StatusOK, entries)
}

// ConfigHandler mirrors the vision credentials file into the process
// environment. The running configuration is not affected.
func (app *App) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	data, err := config.MirrorVisionEnv(app.VisionConfigFile)
	if err != nil {
		logging.From(r.Context()).Error("failed to load vision config file", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to load vision config"})
		return
	}

	writeJSON(w, http.StatusOK, data)
}

func (app *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.From(r.Context())

	switch {
	case goerr.HasTag(err, analysis.TagValidation):
		logger.Warn("rejected upload", "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})

	case goerr.HasTag(err, analysis.TagProvider):
		logger.Error("vision provider failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})

	case goerr.HasTag(err, analysis.TagStorage):
		logger.Error("storage failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "storage failure"})

	default:
		logger.Error("unexpected error", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Default().Error("failed to encode response", "error", err)
	}
}
