package chart

import (
	"fmt"
	"io"
	"math"
	"strings"

	gochart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// Format is an output image format.
type Format string

const (
	PNG Format = "png"
	SVG Format = "svg"
)

// ParseFormat accepts "png" (the default when empty) or "svg".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(PNG):
		return PNG, nil
	case string(SVG):
		return SVG, nil
	default:
		return "", fmt.Errorf("unsupported chart format %q", s)
	}
}

// ContentType returns the MIME type of images in this format.
func (f Format) ContentType() string {
	if f == SVG {
		return "image/svg+xml"
	}
	return "image/png"
}

func (f Format) provider() gochart.RendererProvider {
	if f == SVG {
		return gochart.SVG
	}
	return gochart.PNG
}

const (
	chartWidth  = 640
	chartHeight = 480
	barWidth    = 120
	barSpacing  = 140
	labelSize   = 11.0
	// headroom above the tallest bar for the value and difference labels.
	headroom = 1.2
)

var (
	trainingColor = drawing.ColorFromHex("1f77b4")
	testingColor  = drawing.ColorFromHex("ff7f0e")
)

// Render draws the comparison as a bar chart with value and difference labels.
func (c Comparison) Render(w io.Writer, format Format) error {
	yRange := c.valueRange()

	bc := gochart.BarChart{
		Title:  c.Title,
		Width:  chartWidth,
		Height: chartHeight,
		Background: gochart.Style{
			Padding: gochart.Box{Top: 60, Left: 24, Right: 24, Bottom: 24},
		},
		BarWidth:     barWidth,
		BarSpacing:   barSpacing,
		UseBaseValue: true,
		BaseValue:    0,
		YAxis: gochart.YAxis{
			Name:  c.YAxis,
			Range: yRange,
		},
		Bars: []gochart.Value{
			{Value: c.Bars[0].Value, Label: c.Bars[0].Label, Style: gochart.Style{FillColor: trainingColor, StrokeColor: trainingColor}},
			{Value: c.Bars[1].Value, Label: c.Bars[1].Label, Style: gochart.Style{FillColor: testingColor, StrokeColor: testingColor}},
		},
	}
	bc.Elements = []gochart.Renderable{c.annotations(yRange)}

	if err := bc.Render(format.provider(), w); err != nil {
		return fmt.Errorf("render comparison chart: %w", err)
	}
	return nil
}

// valueRange spans zero and both values, leaving room for the labels.
func (c Comparison) valueRange() *gochart.ContinuousRange {
	lo := math.Min(0, math.Min(c.Bars[0].Value, c.Bars[1].Value))
	hi := math.Max(c.Bars[0].Value, c.Bars[1].Value)
	if hi < 1 {
		hi = 1
	}
	return &gochart.ContinuousRange{Min: lo * headroom, Max: hi * headroom}
}

// annotations prints each bar's value above it, the difference above the
// taller bar, and the y axis name in the top-left corner of the canvas.
func (c Comparison) annotations(yRange *gochart.ContinuousRange) gochart.Renderable {
	return func(r gochart.Renderer, canvas gochart.Box, defaults gochart.Style) {
		if font := defaults.GetFont(); font != nil {
			r.SetFont(font)
		}
		r.SetFontColor(drawing.ColorBlack)
		r.SetFontSize(labelSize)

		centers := barCenters(canvas, len(c.Bars))
		tops := make([]int, len(c.Bars))
		for i, bar := range c.Bars {
			tops[i] = barTop(canvas, yRange, bar.Value)
			drawCentered(r, bar.ValueLabel, centers[i], tops[i]-6)
		}

		i := c.DifferenceBar
		drawCentered(r, c.DifferenceLabel, centers[i], tops[i]-6-int(labelSize*2))

		axis := r.MeasureText(c.YAxis)
		r.Text(c.YAxis, canvas.Left, canvas.Top-axis.Height()-4)
	}
}

// barCenters mirrors go-chart's bar layout: bars start at the canvas left edge,
// each preceded by half the spacing, and spacing shrinks if the bars do not fit.
func barCenters(canvas gochart.Box, n int) []int {
	spacing := barSpacing
	if n*(barWidth+barSpacing) > canvas.Width() {
		spacing = 0
		if rest := canvas.Width() - n*barWidth; rest > 0 {
			spacing = int(math.Ceil(float64(rest) / float64(n)))
		}
	}

	centers := make([]int, n)
	x := canvas.Left
	for i := range centers {
		centers[i] = x + spacing/2 + barWidth/2
		x += barWidth + spacing
	}
	return centers
}

// barTop returns the y pixel of the top edge of a bar with value v.
func barTop(canvas gochart.Box, yRange *gochart.ContinuousRange, v float64) int {
	delta := yRange.Max - yRange.Min
	if delta == 0 {
		return canvas.Bottom
	}
	ratio := (math.Max(v, 0) - yRange.Min) / delta
	return canvas.Bottom - int(math.Ceil(ratio*float64(canvas.Height())))
}

func drawCentered(r gochart.Renderer, text string, x, y int) {
	box := r.MeasureText(text)
	r.Text(text, x-box.Width()/2, y)
}
