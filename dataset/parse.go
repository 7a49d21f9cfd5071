package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Options controls how an upload is read and previewed.
type Options struct {
	// Encoding of the uploaded bytes, as a WHATWG label ("utf-8", "gbk", "latin1", ...).
	Encoding string
	// RowLimit keeps only the first RowLimit rows before annotating. <= 0 means no cap.
	RowLimit int
	// HeadRows is the number of rows returned for display.
	HeadRows int
}

// Validate checks that the configured encoding is known.
func (o Options) Validate() error {
	_, err := lookupEncoding(o.Encoding)
	return err
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return unicode.UTF8, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", name, err)
	}
	return enc, nil
}

// RowWidthError reports a data row with more fields than the header.
type RowWidthError struct {
	Line     int
	Expected int
	Got      int
}

func (e *RowWidthError) Error() string {
	return fmt.Sprintf("expected %d fields in line %d, saw %d", e.Expected, e.Line, e.Got)
}

// Parse reads comma-separated text with a header row. Rows shorter than the
// header are padded with empty cells; a longer row is a *RowWidthError.
// Input without a header yields ErrEmptyDataset.
func Parse(r io.Reader, opts Options) (*Table, error) {
	enc, err := lookupEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}
	// A byte order mark overrides the configured encoding and is stripped.
	decoded := transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder()))

	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyDataset
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	t := &Table{Columns: header}
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row %d: %w", len(t.Rows)+1, err)
		}
		if len(record) > len(header) {
			line, _ := cr.FieldPos(0)
			return nil, &RowWidthError{Line: line, Expected: len(header), Got: len(record)}
		}
		row := make([]string, len(header))
		copy(row, record)
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// Preview is what the dashboard shows for an upload.
type Preview struct {
	TotalRows    int    `json:"total_rows"`
	RetainedRows int    `json:"retained_rows"`
	Truncated    bool   `json:"truncated"`
	Head         *Table `json:"head"`
	Annotated    *Table `json:"annotated"`
}

// BuildPreview parses r, applies the row limit and annotates the retained rows.
// An upload with no data rows yields ErrEmptyDataset and no annotation.
func BuildPreview(r io.Reader, opts Options) (*Preview, error) {
	t, err := Parse(r, opts)
	if err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return nil, ErrEmptyDataset
	}

	head := opts.HeadRows
	if head <= 0 {
		head = DefaultHeadRows
	}

	retained := t.Truncate(opts.RowLimit)
	annotated, err := Annotate(retained)
	if err != nil {
		return nil, err
	}

	return &Preview{
		TotalRows:    t.Len(),
		RetainedRows: retained.Len(),
		Truncated:    retained.Len() < t.Len(),
		Head:         retained.Head(head),
		Annotated:    annotated.Head(head),
	}, nil
}
