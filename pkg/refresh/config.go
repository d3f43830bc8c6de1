package refresh

import (
	"fmt"
	"strconv"

	"github.com/raykavin/rsdash/pkg/core"
)

// Subtitle hints shown under the chart title
const (
	PointerHint = "Click and drag in the plot area to zoom in"
	TouchHint   = "Pinch the chart to zoom in"
)

// BaseColor is the first colour of the default chart palette; the area fill
// fades from it to full transparency.
const BaseColor = "#7cb5ec"

// Preset holds the fixed presentation of one chart
type Preset struct {
	Title      string
	AxisTitle  string
	SeriesName string
}

var (
	NDVIPreset = Preset{Title: "NDVI TIME SERIES", AxisTitle: "NDVI", SeriesName: "NDVI Data"}
	LSTPreset  = Preset{Title: "LST TIME SERIES", AxisTitle: "LST_Day_1km", SeriesName: "LST Data"}
)

// Subtitle returns the zoom hint matching the input device
func Subtitle(touch bool) string {
	if touch {
		return TouchHint
	}
	return PointerHint
}

// BuildConfig assembles the full chart configuration for a series
func BuildConfig(preset Preset, series core.Series, touch bool) core.ChartConfig {
	return core.ChartConfig{
		Chart: core.ChartOptions{
			ZoomType: "x",
			Style:    core.StyleEntry{FontSize: "15px"},
		},
		Title:    core.TextOptions{Text: preset.Title, Align: "center"},
		Subtitle: core.TextOptions{Text: Subtitle(touch), Align: "left"},
		XAxis:    core.XAxisOptions{Categories: series.Categories},
		YAxis: core.YAxisOptions{
			Title: core.TextOptions{Text: preset.AxisTitle},
		},
		Legend: core.Toggle{Enabled: false},
		PlotOptions: core.PlotOptions{
			Area: core.AreaOptions{
				FillColor: core.Gradient{
					LinearGradient: core.GradientVector{X1: 0, Y1: 0, X2: 0, Y2: 1},
					Stops: []core.GradientStop{
						{Offset: 0, Color: BaseColor},
						{Offset: 1, Color: rgba(BaseColor, 0)},
					},
				},
				Marker:    core.MarkerOption{Radius: 2},
				LineWidth: 1,
				States:    core.StateOptions{Hover: core.HoverOptions{LineWidth: 1}},
				Threshold: nil,
			},
		},
		Credits: core.Toggle{Enabled: false},
		Series: []core.SeriesEntry{
			{Type: "area", Name: preset.SeriesName, Data: series.Values},
		},
	}
}

// rgba converts a #rrggbb colour to its rgba() form with the given opacity
func rgba(hex string, alpha float64) string {
	if len(hex) != 7 || hex[0] != '#' {
		return hex
	}

	channels := make([]int64, 3)
	for i := range channels {
		v, err := strconv.ParseInt(hex[1+2*i:3+2*i], 16, 0)
		if err != nil {
			return hex
		}
		channels[i] = v
	}

	return fmt.Sprintf("rgba(%d,%d,%d,%s)", channels[0], channels[1], channels[2],
		strconv.FormatFloat(alpha, 'f', -1, 64))
}
