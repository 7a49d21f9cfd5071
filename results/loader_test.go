package results

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newTestLoader(t *testing.T, opts LoaderOptions) *Loader {
	t.Helper()
	l, err := NewLoader(opts, nil)
	require.NoError(t, err)
	return l
}

func TestLoadPreservesRecords(t *testing.T) {
	dir := t.TempDir()
	want := map[string]Record{}
	for i := 0; i < 5; i++ {
		rec := Record{
			Model:            fmt.Sprintf("model-%d", i),
			TrainingAccuracy: 0.9 + float64(i)/100,
			TestingAccuracy:  0.7 + float64(i)/100,
		}
		name := fmt.Sprintf("m%d.json", i)
		writeFile(t, dir, name, fmt.Sprintf(`{"Model":%q,"Training Accuracy":%v,"Testing Accuracy":%v}`,
			rec.Model, rec.TrainingAccuracy, rec.TestingAccuracy))
		want[name] = rec
	}
	writeFile(t, dir, "notes.txt", "ignored")
	writeFile(t, dir, "model.pkl", "ignored too")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.json"), 0o755))

	snap, err := newTestLoader(t, LoaderOptions{}).Load(dir)
	require.NoError(t, err)

	require.Equal(t, len(want), snap.Len())
	assert.Empty(t, snap.Skipped)
	for name, rec := range want {
		got, err := snap.Get(name)
		require.NoError(t, err)
		assert.Equal(t, rec, got)
	}
}

func TestLoadYAMLRecord(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "svm.yaml", "Model: SVM\nTraining Accuracy: 0.91\nTesting Accuracy: 0.88\n")

	snap, err := newTestLoader(t, LoaderOptions{}).Load(dir)
	require.NoError(t, err)

	rec, err := snap.Get("svm.yaml")
	require.NoError(t, err)
	assert.Equal(t, Record{Model: "SVM", TrainingAccuracy: 0.91, TestingAccuracy: 0.88}, rec)
}

func TestLoadKeysAreSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"zeta.json", "alpha.json", "Beta.json", "m10.json", "m2.json"} {
		writeFile(t, dir, name, `{"Model":"x","Training Accuracy":1,"Testing Accuracy":1}`)
	}

	snap, err := newTestLoader(t, LoaderOptions{}).Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"Beta.json", "alpha.json", "m10.json", "m2.json", "zeta.json"}, snap.Keys())
}

func TestLoadMissingDirectory(t *testing.T) {
	_, err := newTestLoader(t, LoaderOptions{}).Load(filepath.Join(t.TempDir(), "pickle_files"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingDirectory))
}

func TestLoadFileInsteadOfDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "plain", "x")

	_, err := newTestLoader(t, LoaderOptions{}).Load(filepath.Join(dir, "plain"))
	assert.True(t, errors.Is(err, ErrMissingDirectory))
}

func TestLoadSkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.json", `{"Model":"LR","Training Accuracy":0.8,"Testing Accuracy":0.75}`)
	writeFile(t, dir, "corrupt.json", `{"Model":`)
	writeFile(t, dir, "partial.json", `{"Model":"NB","Training Accuracy":0.8}`)
	writeFile(t, dir, "wrongtype.json", `{"Model":"NB","Training Accuracy":"high","Testing Accuracy":0.1}`)

	snap, err := newTestLoader(t, LoaderOptions{}).Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"good.json"}, snap.Keys())
	require.Len(t, snap.Skipped, 3)
	assert.Equal(t, "corrupt.json", snap.Skipped[0].File)
	assert.Equal(t, "partial.json", snap.Skipped[1].File)
	assert.Contains(t, snap.Skipped[1].Reason, FieldTestingAccuracy)

	warnings := snap.Warnings()
	require.Error(t, warnings)
	assert.True(t, errors.Is(warnings, ErrDecode))
}

func TestLoadSkipsNonFiniteAccuracy(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "Model: A\nTraining Accuracy: .nan\nTesting Accuracy: 0.7\n")
	writeFile(t, dir, "b.yaml", "Model: B\nTraining Accuracy: 0.9\nTesting Accuracy: 0.8\n")
	writeFile(t, dir, "c.yml", "Model: C\nTraining Accuracy: 0.9\nTesting Accuracy: -.inf\n")

	snap, err := newTestLoader(t, LoaderOptions{}).Load(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"b.yaml"}, snap.Keys())
	require.Len(t, snap.Skipped, 2)
	assert.Equal(t, "a.yaml", snap.Skipped[0].File)
	assert.Contains(t, snap.Skipped[0].Reason, FieldTrainingAccuracy)
	assert.Equal(t, "c.yml", snap.Skipped[1].File)
	assert.Contains(t, snap.Skipped[1].Reason, FieldTestingAccuracy)

	var nonFinite *NonFiniteError
	require.True(t, errors.As(snap.Warnings(), &nonFinite))
	assert.True(t, errors.Is(snap.Warnings(), ErrDecode))
}

func TestLoadStrictFailsOnFirstBadFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"Model":"A","Training Accuracy":0.8,"Testing Accuracy":0.75}`)
	writeFile(t, dir, "b.json", `{"Training Accuracy":0.8,"Testing Accuracy":0.75}`)

	_, err := newTestLoader(t, LoaderOptions{Strict: true}).Load(dir)
	require.Error(t, err)

	var decodeErr *DecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "b.json", decodeErr.File)

	var missing *MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, FieldModel, missing.Field)
	assert.True(t, errors.Is(err, ErrDecode))
}

func TestLoadRestrictedExtensions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.json", `{"Model":"A","Training Accuracy":0.8,"Testing Accuracy":0.75}`)
	writeFile(t, dir, "b.yml", "Model: B\nTraining Accuracy: 0.5\nTesting Accuracy: 0.4\n")

	snap, err := newTestLoader(t, LoaderOptions{Extensions: []string{"JSON"}}).Load(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.json"}, snap.Keys())
}

func TestNewLoaderRejectsUnknownExtension(t *testing.T) {
	_, err := NewLoader(LoaderOptions{Extensions: []string{".pkl"}}, nil)
	assert.Error(t, err)
}

func TestAccuracyOutsideUnitRangeIsAccepted(t *testing.T) {
	rec, err := DecodeJSON([]byte(`{"Model":"odd","Training Accuracy":1.5,"Testing Accuracy":-0.2}`))
	require.NoError(t, err)
	assert.Equal(t, 1.5, rec.TrainingAccuracy)
	assert.Equal(t, -0.2, rec.TestingAccuracy)
}

func TestSnapshotSelect(t *testing.T) {
	dir := t.TempDir()
	names := []string{"c.json", "a.json", "b.json"}
	for _, name := range names {
		writeFile(t, dir, name, fmt.Sprintf(`{"Model":%q,"Training Accuracy":0.9,"Testing Accuracy":0.8}`, name))
	}

	snap, err := newTestLoader(t, LoaderOptions{}).Load(dir)
	require.NoError(t, err)

	for _, key := range snap.Keys() {
		got, rec, err := snap.Select(key)
		require.NoError(t, err)
		assert.Equal(t, key, got)
		assert.Equal(t, key, rec.Model)
	}

	key, _, err := snap.Select("")
	require.NoError(t, err)
	assert.Equal(t, "a.json", key)

	_, _, err = snap.Select("missing.json")
	assert.True(t, errors.Is(err, ErrKeyNotFound))
}

func TestSnapshotSelectEmpty(t *testing.T) {
	snap, err := newTestLoader(t, LoaderOptions{}).Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 0, snap.Len())
	assert.Empty(t, snap.Keys())
	_, _, err = snap.Select("")
	assert.True(t, errors.Is(err, ErrNoRecords))
}
