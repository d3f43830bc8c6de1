package core

import (
	"encoding/json"
	"fmt"
)

// ChartConfig is the full option set applied to a chart instance on update.
// Field names follow the charting library's option keys.
type ChartConfig struct {
	Chart       ChartOptions  `json:"chart"`
	Title       TextOptions   `json:"title"`
	Subtitle    TextOptions   `json:"subtitle"`
	XAxis       XAxisOptions  `json:"xAxis"`
	YAxis       YAxisOptions  `json:"yAxis"`
	Legend      Toggle        `json:"legend"`
	PlotOptions PlotOptions   `json:"plotOptions"`
	Credits     Toggle        `json:"credits"`
	Series      []SeriesEntry `json:"series"`
}

type ChartOptions struct {
	ZoomType string     `json:"zoomType"`
	Style    StyleEntry `json:"style"`
}

type StyleEntry struct {
	FontSize string `json:"fontSize"`
}

type TextOptions struct {
	Text  string `json:"text"`
	Align string `json:"align"`
}

type XAxisOptions struct {
	Categories []string `json:"categories"`
}

type YAxisOptions struct {
	Title TextOptions `json:"title"`
}

type Toggle struct {
	Enabled bool `json:"enabled"`
}

type PlotOptions struct {
	Area AreaOptions `json:"area"`
}

// AreaOptions describes the filled area below a series
type AreaOptions struct {
	FillColor Gradient     `json:"fillColor"`
	Marker    MarkerOption `json:"marker"`
	LineWidth int          `json:"lineWidth"`
	States    StateOptions `json:"states"`
	Threshold *float64     `json:"threshold"`
}

// Gradient is a linear colour gradient; coordinates are relative to the plot box
type Gradient struct {
	LinearGradient GradientVector `json:"linearGradient"`
	Stops          []GradientStop `json:"stops"`
}

type GradientVector struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// GradientStop marshals as the [offset, colour] tuple the charting library expects
type GradientStop struct {
	Offset float64
	Color  string
}

func (g GradientStop) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{g.Offset, g.Color})
}

func (g *GradientStop) UnmarshalJSON(data []byte) error {
	var tuple []json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if len(tuple) != 2 {
		return fmt.Errorf("gradient stop: expected 2 elements, got %d", len(tuple))
	}
	if err := json.Unmarshal(tuple[0], &g.Offset); err != nil {
		return fmt.Errorf("gradient stop offset: %w", err)
	}
	if err := json.Unmarshal(tuple[1], &g.Color); err != nil {
		return fmt.Errorf("gradient stop color: %w", err)
	}
	return nil
}

type MarkerOption struct {
	Radius int `json:"radius"`
}

type StateOptions struct {
	Hover HoverOptions `json:"hover"`
}

type HoverOptions struct {
	LineWidth int `json:"lineWidth"`
}

// SeriesEntry is one rendered series
type SeriesEntry struct {
	Type string    `json:"type"`
	Name string    `json:"name"`
	Data []float64 `json:"data"`
}

// Categories returns the x axis categories of the configuration
func (c ChartConfig) Categories() []string {
	return c.XAxis.Categories
}

// Data returns the values of the first series, or nil when there is none
func (c ChartConfig) Data() []float64 {
	if len(c.Series) == 0 {
		return nil
	}
	return c.Series[0].Data
}
