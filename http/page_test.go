package http

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPageMux(app *App) *http.ServeMux {
	mux := http.NewServeMux()
	RegisterHandlers(mux, app)
	RegisterPageRoutes(mux, app)
	return mux
}

func getPage(t *testing.T, mux http.Handler, target string) string {
	t.Helper()
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/html; charset=utf-8", rr.Header().Get("Content-Type"))
	return rr.Body.String()
}

func TestPageSelectsFirstModelByDefault(t *testing.T) {
	body := getPage(t, newPageMux(newTestApp(t, resultsDir(t))), "/")

	assert.Contains(t, body, "<title>Model Performance Analysis</title>")
	assert.Contains(t, body, `<option value="a.json" selected>a.json</option>`)
	assert.Contains(t, body, `<option value="b.json">b.json</option>`)
	assert.Contains(t, body, "Details for: Logistic Regression")
	assert.Contains(t, body, "<strong>Training Accuracy:</strong> 0.95")
	assert.Contains(t, body, "<strong>Testing Accuracy:</strong> 0.8")
	assert.Contains(t, body, `src="/api/models/a.json/chart"`)
	assert.Contains(t, body, "Difference: 0.1500")
	assert.Contains(t, body, "Upload a dataset to view insights.")
}

func TestPageShowsSelectedModel(t *testing.T) {
	body := getPage(t, newPageMux(newTestApp(t, resultsDir(t))), "/?model=b.json")

	assert.Contains(t, body, `<option value="b.json" selected>b.json</option>`)
	assert.Contains(t, body, "Details for: Random Forest")
	assert.Contains(t, body, "<strong>Training Accuracy:</strong> 0.99")
	assert.Contains(t, body, "Training Accuracy: 0.9900")
	assert.Contains(t, body, "Testing Accuracy: 0.9100")
}

func TestPageUnknownModel(t *testing.T) {
	body := getPage(t, newPageMux(newTestApp(t, resultsDir(t))), "/?model=gone.json")

	assert.Contains(t, body, "is not available.")
	assert.NotContains(t, body, "Details for:")
	assert.Contains(t, body, "<select")
}

func TestPageMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "pickle_files")
	body := getPage(t, newPageMux(newTestApp(t, dir)), "/")

	assert.Contains(t, body, "not found. Please upload the result files.")
	assert.NotContains(t, body, "<select")
	assert.NotContains(t, body, "Details for:")
	// The upload form stays available.
	assert.Contains(t, body, `name="dataset"`)
	assert.Contains(t, body, "Upload a dataset to view insights.")
}

func TestPageEmptyDirectory(t *testing.T) {
	body := getPage(t, newPageMux(newTestApp(t, t.TempDir())), "/")

	assert.Contains(t, body, "No result files found in")
	assert.NotContains(t, body, "<select")
	assert.NotContains(t, body, "Details for:")
}

func TestPageSkippedFileWarning(t *testing.T) {
	dir := resultsDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "partial.json"), []byte(`{"Model": "x"}`), 0o644))

	body := getPage(t, newPageMux(newTestApp(t, dir)), "/")

	assert.Contains(t, body, "Skipped partial.json")
	assert.NotContains(t, body, `<option value="partial.json"`)
}

func TestPageUploadShowsPredictions(t *testing.T) {
	mux := newPageMux(newTestApp(t, resultsDir(t)))
	body, contentType := multipartUpload(t, UploadField, "data.csv", "x,y\n1,2\n3,4\n5,6\n7,8\n",
		map[string]string{"model": "b.json"})

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	page := rr.Body.String()
	assert.Contains(t, page, "Uploaded Dataset")
	assert.Contains(t, page, "<th>Predictions</th>")
	assert.Equal(t, 2, strings.Count(page, "<td>Class 0</td>"))
	assert.Contains(t, page, "<td>Class 2</td>")
	assert.Contains(t, page, "You can now apply models to this dataset.")
	assert.NotContains(t, page, "Upload a dataset to view insights.")
	// The selection survives the upload.
	assert.Contains(t, page, "Details for: Random Forest")
}

func TestPageUploadEmptyDataset(t *testing.T) {
	mux := newPageMux(newTestApp(t, resultsDir(t)))
	body, contentType := multipartUpload(t, UploadField, "empty.csv", "", nil)

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Contains(t, rr.Body.String(), "The uploaded dataset is empty.")
	assert.NotContains(t, rr.Body.String(), "<th>Predictions</th>")
}

func TestPageUploadRejectedFile(t *testing.T) {
	mux := newPageMux(newTestApp(t, resultsDir(t)))
	body, contentType := multipartUpload(t, UploadField, "data.txt", "a\n1\n", nil)

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	assert.Contains(t, rr.Body.String(), errUnsupportedUpload.Error())
}

func TestStaticAssets(t *testing.T) {
	mux := newPageMux(newTestApp(t, resultsDir(t)))

	for _, name := range []string{"/static/app.js", "/static/style.css"} {
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, name, nil))
		assert.Equal(t, http.StatusOK, rr.Code, name)
		assert.NotEmpty(t, rr.Body.String(), name)
	}
}

func TestPageWithNonFiniteRecordStillRenders(t *testing.T) {
	dir := t.TempDir()
	writeRaw(t, dir, "a.yaml", "Model: Broken\nTraining Accuracy: .nan\nTesting Accuracy: 0.7\n")

	body := getPage(t, newPageMux(newTestApp(t, dir)), "/")

	assert.Contains(t, body, "Skipped a.yaml")
	assert.Contains(t, body, "No result files found in")
	assert.NotContains(t, body, "Details for:")
}
