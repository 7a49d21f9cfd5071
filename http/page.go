package http

import (
	"embed"
	"errors"
	"html/template"
	"io/fs"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"modeldash/chart"
	"modeldash/dataset"
	"modeldash/results"
)

// PageTitle is shown at the top of the dashboard.
const PageTitle = "Model Performance Analysis"

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

// RegisterPageRoutes registers the dashboard page and its static assets.
func RegisterPageRoutes(mux *http.ServeMux, app *App) {
	static, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	mux.HandleFunc("GET /{$}", app.handlePage)
	mux.HandleFunc("POST /{$}", app.handlePage)
}

type pageData struct {
	Title      string
	ResultsDir string
	UploadName string

	// DirError is shown as a banner; no selector is offered with it.
	DirError string
	Keys     []string
	Selected string
	// Notice covers the empty directory and unknown selections.
	Notice     string
	Record     *results.Record
	Comparison *chart.Comparison
	ChartURL   string
	Skipped    []results.SkippedFile

	Upload *uploadView
}

type uploadView struct {
	FileName string
	Preview  *dataset.Preview
	// Empty is set for uploads without data rows.
	Empty bool
	Error string
}

func (a *App) handlePage(w http.ResponseWriter, r *http.Request) {
	data := pageData{
		Title:      PageTitle,
		ResultsDir: a.ResultsDir,
		UploadName: UploadField,
	}

	// FormValue parses a multipart body, so it must run after the upload is read.
	if r.Method == http.MethodPost {
		data.Upload = a.uploadView(r)
	}
	a.fillSelection(&data, r.FormValue("model"))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		a.logger().Error("page rendering failed", zap.Error(err))
	}
}

func (a *App) fillSelection(data *pageData, selection string) {
	snap, err := a.snapshot()
	if err != nil {
		if errors.Is(err, results.ErrMissingDirectory) {
			data.DirError = "Directory '" + a.ResultsDir + "' not found. Please upload the result files."
		} else {
			a.logger().Error("loading results failed", zap.String("dir", a.ResultsDir), zap.Error(err))
			data.DirError = "Result files could not be loaded: " + err.Error()
		}
		return
	}

	data.Keys = snap.Keys()
	data.Skipped = snap.Skipped

	key, rec, err := snap.Select(selection)
	switch {
	case errors.Is(err, results.ErrNoRecords):
		data.Notice = "No result files found in '" + a.ResultsDir + "'."
		return
	case err != nil:
		data.Notice = "Model '" + selection + "' is not available."
		return
	}

	training, testing, model := rec.Metrics()
	comparison := chart.NewComparison(model, training, testing)
	data.Selected = key
	data.Record = &rec
	data.Comparison = &comparison
	data.ChartURL = "/api/models/" + url.PathEscape(key) + "/chart"
}

func (a *App) uploadView(r *http.Request) *uploadView {
	res, err := a.previewUpload(r)
	switch {
	case err == nil:
		return &uploadView{FileName: res.FileName, Preview: res.Preview}
	case errors.Is(err, errNoUpload):
		return nil
	case errors.Is(err, dataset.ErrEmptyDataset):
		return &uploadView{Empty: true}
	default:
		return &uploadView{Error: err.Error()}
	}
}
