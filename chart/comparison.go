// Package chart renders the training versus testing accuracy comparison.
package chart

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Axis and bar labels of the comparison chart.
const (
	TrainingLabel = "Training Accuracy"
	TestingLabel  = "Testing Accuracy"
	YAxisLabel    = "Accuracy"
)

// Bar is one bar of the comparison.
type Bar struct {
	Label      string  `json:"label"`
	Value      float64 `json:"value"`
	ValueLabel string  `json:"value_label"`
}

// Comparison describes a two-bar accuracy chart, independent of how it is drawn.
type Comparison struct {
	Title           string  `json:"title"`
	YAxis           string  `json:"y_axis"`
	Bars            [2]Bar  `json:"bars"`
	Difference      float64 `json:"difference"`
	DifferenceLabel string  `json:"difference_label"`
	// DifferenceBar is the index of the taller bar, above which the difference is printed.
	DifferenceBar int `json:"difference_bar"`
}

// NewComparison builds the chart model for one record. Values are not validated.
func NewComparison(model string, training, testing float64) Comparison {
	tallest := 0
	if testing > training {
		tallest = 1
	}

	d := training - testing
	diffLabel := Round4(d)
	if finite(training) && finite(testing) {
		diff := decimal.NewFromFloat(training).Sub(decimal.NewFromFloat(testing))
		d, _ = diff.Float64()
		diffLabel = diff.StringFixed(4)
	}
	return Comparison{
		Title: Title(model),
		YAxis: YAxisLabel,
		Bars: [2]Bar{
			{Label: TrainingLabel, Value: training, ValueLabel: Round4(training)},
			{Label: TestingLabel, Value: testing, ValueLabel: Round4(testing)},
		},
		Difference:      d,
		DifferenceLabel: "Difference: " + diffLabel,
		DifferenceBar:   tallest,
	}
}

// Title returns the chart title for model.
func Title(model string) string {
	return "Training vs Testing Accuracy: " + model
}

// Round4 formats v rounded half away from zero to four decimal places.
// NaN and infinities are printed as strconv does.
func Round4(v float64) string {
	if !finite(v) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return decimal.NewFromFloat(v).StringFixed(4)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
