// Package results loads model-result records from a directory and keeps them
// cached in memory until the directory changes.
package results

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gopkg.in/yaml.v2"
)

// On-disk field names of a result record.
const (
	FieldModel            = "Model"
	FieldTrainingAccuracy = "Training Accuracy"
	FieldTestingAccuracy  = "Testing Accuracy"
)

var (
	// ErrMissingDirectory is returned when the results directory does not exist.
	ErrMissingDirectory = errors.New("results directory not found")
	// ErrKeyNotFound is returned when a selected key is not in the snapshot.
	ErrKeyNotFound = errors.New("result record not found")
	// ErrNoRecords is returned when selecting from an empty snapshot.
	ErrNoRecords = errors.New("no result records available")
	// ErrDecode marks a file that could not be turned into a Record.
	ErrDecode = errors.New("cannot decode result record")
)

// Record is the stored outcome of an external model evaluation.
type Record struct {
	Model            string  `json:"Model" yaml:"Model"`
	TrainingAccuracy float64 `json:"Training Accuracy" yaml:"Training Accuracy"`
	TestingAccuracy  float64 `json:"Testing Accuracy" yaml:"Testing Accuracy"`
}

// Metrics returns the values plotted by the comparison chart.
func (r Record) Metrics() (training, testing float64, model string) {
	return r.TrainingAccuracy, r.TestingAccuracy, r.Model
}

// MissingFieldError reports a record without one of its required fields.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}

// Is makes a missing field count as a decode failure.
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrDecode
}

// NonFiniteError reports an accuracy that is NaN or infinite. Out-of-range
// finite values are accepted.
type NonFiniteError struct {
	Field string
	Value float64
}

func (e *NonFiniteError) Error() string {
	return fmt.Sprintf("field %q is not a finite number: %v", e.Field, e.Value)
}

func (e *NonFiniteError) Is(target error) bool {
	return target == ErrDecode
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// DecodeError wraps a failure to read or decode a single file.
type DecodeError struct {
	File string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

// rawRecord uses pointers so absent fields can be told apart from zero values.
type rawRecord struct {
	Model            *string  `json:"Model" yaml:"Model"`
	TrainingAccuracy *float64 `json:"Training Accuracy" yaml:"Training Accuracy"`
	TestingAccuracy  *float64 `json:"Testing Accuracy" yaml:"Testing Accuracy"`
}

func (r rawRecord) validate() (Record, error) {
	switch {
	case r.Model == nil:
		return Record{}, &MissingFieldError{Field: FieldModel}
	case r.TrainingAccuracy == nil:
		return Record{}, &MissingFieldError{Field: FieldTrainingAccuracy}
	case r.TestingAccuracy == nil:
		return Record{}, &MissingFieldError{Field: FieldTestingAccuracy}
	case !finite(*r.TrainingAccuracy):
		return Record{}, &NonFiniteError{Field: FieldTrainingAccuracy, Value: *r.TrainingAccuracy}
	case !finite(*r.TestingAccuracy):
		return Record{}, &NonFiniteError{Field: FieldTestingAccuracy, Value: *r.TestingAccuracy}
	}
	return Record{
		Model:            *r.Model,
		TrainingAccuracy: *r.TrainingAccuracy,
		TestingAccuracy:  *r.TestingAccuracy,
	}, nil
}

// Decoder turns the bytes of one file into a Record.
type Decoder func(data []byte) (Record, error)

// DecodeJSON decodes a JSON object with the Model / accuracy fields.
func DecodeJSON(data []byte) (Record, error) {
	var raw rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return raw.validate()
}

// DecodeYAML decodes a YAML mapping with the Model / accuracy fields.
func DecodeYAML(data []byte) (Record, error) {
	var raw rawRecord
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return raw.validate()
}

// decoders maps every supported file extension to its decoder.
var decoders = map[string]Decoder{
	".json": DecodeJSON,
	".yaml": DecodeYAML,
	".yml":  DecodeYAML,
}

// SupportedExtensions lists the extensions a Loader can be configured with.
func SupportedExtensions() []string {
	return []string{".json", ".yaml", ".yml"}
}
