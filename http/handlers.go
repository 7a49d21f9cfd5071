package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"modeldash/chart"
	"modeldash/dataset"
	"modeldash/monitoring"
	"modeldash/results"
)

// UploadField is the multipart field carrying the uploaded CSV.
const UploadField = "dataset"

// maxMemory is the part of a multipart upload kept in memory before spilling to disk.
const maxMemory = 8 << 20

var (
	errNoUpload          = errors.New("no file uploaded")
	errUnsupportedUpload = errors.New("only .csv files are accepted")
)

// App holds what the handlers need to answer a request.
type App struct {
	Store      *results.Store
	ResultsDir string
	Dataset    dataset.Options
	Hub        *monitoring.Hub
	Metrics    *monitoring.Metrics
	Logger     *zap.Logger
}

func (a *App) logger() *zap.Logger {
	if a.Logger == nil {
		return zap.NewNop()
	}
	return a.Logger
}

func (a *App) snapshot() (*results.Snapshot, error) {
	return a.Store.Snapshot(a.ResultsDir)
}

// RegisterHandlers registers the JSON API.
func RegisterHandlers(mux *http.ServeMux, app *App) {
	mux.HandleFunc("GET /api/health", app.handleHealth)
	mux.HandleFunc("GET /api/models", app.handleModels)
	mux.HandleFunc("POST /api/models/refresh", app.handleRefresh)
	mux.HandleFunc("GET /api/models/{key}", app.handleModel)
	mux.HandleFunc("GET /api/models/{key}/chart", app.handleChart)
	mux.HandleFunc("POST /api/datasets/preview", app.handlePreview)
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

type modelSummary struct {
	Key              string  `json:"key"`
	Model            string  `json:"model"`
	TrainingAccuracy float64 `json:"training_accuracy"`
	TestingAccuracy  float64 `json:"testing_accuracy"`
}

type modelsResponse struct {
	Dir      string                `json:"dir"`
	LoadedAt time.Time             `json:"loaded_at"`
	Count    int                   `json:"count"`
	Models   []modelSummary        `json:"models"`
	Skipped  []results.SkippedFile `json:"skipped"`
}

func newModelsResponse(snap *results.Snapshot) modelsResponse {
	resp := modelsResponse{
		Dir:      snap.Dir,
		LoadedAt: snap.LoadedAt,
		Count:    snap.Len(),
		Models:   make([]modelSummary, 0, snap.Len()),
		Skipped:  snap.Skipped,
	}
	if resp.Skipped == nil {
		resp.Skipped = []results.SkippedFile{}
	}
	for _, key := range snap.Keys() {
		rec, _ := snap.Get(key)
		resp.Models = append(resp.Models, modelSummary{
			Key:              key,
			Model:            rec.Model,
			TrainingAccuracy: rec.TrainingAccuracy,
			TestingAccuracy:  rec.TestingAccuracy,
		})
	}
	return resp
}

func (a *App) handleModels(w http.ResponseWriter, r *http.Request) {
	snap, err := a.snapshot()
	if err != nil {
		a.writeResultsError(w, err)
		return
	}
	a.respond(w, http.StatusOK, newModelsResponse(snap))
}

func (a *App) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Store.Refresh(a.ResultsDir)
	if err != nil {
		a.writeResultsError(w, err)
		return
	}
	if a.Hub != nil {
		a.Hub.NotifyResultsChanged(a.ResultsDir)
	}
	a.respond(w, http.StatusOK, newModelsResponse(snap))
}

func (a *App) handleModel(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	rec, err := a.lookup(key)
	if err != nil {
		a.writeResultsError(w, err)
		return
	}

	a.respond(w, http.StatusOK, map[string]interface{}{
		"key":    key,
		"record": rec,
		"chart":  chart.NewComparison(rec.Model, rec.TrainingAccuracy, rec.TestingAccuracy),
	})
}

func (a *App) handleChart(w http.ResponseWriter, r *http.Request) {
	format, err := chart.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		a.respond(w, http.StatusBadRequest, errorBody(err))
		return
	}

	rec, err := a.lookup(r.PathValue("key"))
	if err != nil {
		a.writeResultsError(w, err)
		return
	}

	training, testing, model := rec.Metrics()
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Cache-Control", "no-cache")
	if err := chart.NewComparison(model, training, testing).Render(w, format); err != nil {
		// Headers may already be out; the log is all that is left.
		a.logger().Error("chart rendering failed", zap.String("model", model), zap.Error(err))
	}
}

func (a *App) lookup(key string) (results.Record, error) {
	snap, err := a.snapshot()
	if err != nil {
		return results.Record{}, err
	}
	return snap.Get(key)
}

func (a *App) handlePreview(w http.ResponseWriter, r *http.Request) {
	preview, err := a.previewUpload(r)
	switch {
	case err == nil:
		a.respond(w, http.StatusOK, preview)
	case errors.Is(err, dataset.ErrEmptyDataset):
		a.respond(w, http.StatusUnprocessableEntity, errorBody(err))
	default:
		a.respond(w, uploadStatus(err), errorBody(err))
	}
}

func uploadStatus(err error) int {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

// previewUpload reads the CSV from a multipart field or a raw text/csv body
// and builds its annotated preview.
func (a *App) previewUpload(r *http.Request) (*uploadResult, error) {
	body, name, err := openUpload(r)
	if err != nil {
		if !errors.Is(err, errNoUpload) {
			a.Metrics.UploadProcessed(monitoring.UploadInvalid)
		}
		return nil, err
	}
	defer body.Close()

	preview, err := dataset.BuildPreview(body, a.Dataset)
	switch {
	case errors.Is(err, dataset.ErrEmptyDataset):
		a.Metrics.UploadProcessed(monitoring.UploadEmpty)
		return nil, err
	case err != nil:
		a.Metrics.UploadProcessed(monitoring.UploadInvalid)
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}

	a.Metrics.UploadProcessed(monitoring.UploadOK)
	fields := []zap.Field{
		zap.String("file", name),
		zap.Int("rows", preview.TotalRows),
		zap.Int("retained", preview.RetainedRows),
		zap.String("request_id", GetRequestID(r.Context())),
	}
	if start := GetStartTime(r.Context()); !start.IsZero() {
		fields = append(fields, zap.Duration("elapsed", time.Since(start)))
	}
	a.logger().Info("dataset previewed", fields...)

	return &uploadResult{FileName: name, Preview: preview}, nil
}

type uploadResult struct {
	FileName string `json:"file_name"`
	*dataset.Preview
}

func openUpload(r *http.Request) (io.ReadCloser, string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		return r.Body, "upload.csv", nil
	}

	if err := r.ParseMultipartForm(maxMemory); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, "", errNoUpload
		}
		return nil, "", fmt.Errorf("read upload: %w", err)
	}

	file, header, err := r.FormFile(UploadField)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", errNoUpload
	}
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		file.Close()
		return nil, "", fmt.Errorf("%w: %s", errUnsupportedUpload, header.Filename)
	}
	return file, header.Filename, nil
}

func (a *App) writeResultsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, results.ErrMissingDirectory):
		a.respond(w, http.StatusServiceUnavailable, errorBody(err))
	case errors.Is(err, results.ErrKeyNotFound):
		a.respond(w, http.StatusNotFound, errorBody(err))
	default:
		a.logger().Error("loading results failed", zap.String("dir", a.ResultsDir), zap.Error(err))
		a.respond(w, http.StatusInternalServerError, errorBody(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"cannot encode response"}` + "\n"))
		return fmt.Errorf("encode response: %w", err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func writeError(w http.ResponseWriter, status int, err error) error {
	return writeJSON(w, status, errorBody(err))
}

// respond writes v as JSON and logs what could not be sent.
func (a *App) respond(w http.ResponseWriter, status int, v interface{}) {
	if err := writeJSON(w, status, v); err != nil {
		a.logger().Error("writing response failed", zap.Int("status", status), zap.Error(err))
	}
}
