package plot

import (
	"errors"
	"io"
	"sync"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/raykavin/rsdash/pkg/core"
	"github.com/samber/lo"
)

// ErrNoData is returned when rendering a chart that never received a config
var ErrNoData = errors.New("chart has no data yet")

// EChart is a chart instance held by the dashboard. Updates are stored and
// pushed to every connected browser.
type EChart struct {
	ID string

	mu      sync.RWMutex
	config  core.ChartConfig
	updated bool
	hub     *Hub
}

// NewEChart creates a chart instance addressed by id
func NewEChart(id string, hub *Hub) *EChart {
	return &EChart{ID: id, hub: hub}
}

// Update implements core.Chart
func (c *EChart) Update(config core.ChartConfig) error {
	c.mu.Lock()
	c.config, c.updated = config, true
	c.mu.Unlock()

	if c.hub != nil {
		c.hub.Broadcast(Message{Type: MessageChart, Payload: chartPayload{ID: c.ID, Config: config}})
	}
	return nil
}

// Config returns the last applied configuration
func (c *EChart) Config() (core.ChartConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config, c.updated
}

// Render writes a standalone page of the current configuration
func (c *EChart) Render(w io.Writer) error {
	config, ok := c.Config()
	if !ok {
		return ErrNoData
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: config.Title.Text,
			Width:     "100%",
			Height:    "600px",
		}),
		charts.WithTitleOpts(opts.Title{
			Title:    config.Title.Text,
			Subtitle: config.Subtitle.Text,
			Left:     "center",
		}),
		charts.WithTooltipOpts(opts.Tooltip{
			Show:    opts.Bool(true),
			Trigger: "axis",
		}),
		charts.WithLegendOpts(opts.Legend{
			Show: opts.Bool(config.Legend.Enabled),
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Name: config.YAxis.Title.Text,
		}),
	)

	if config.Chart.ZoomType != "" {
		line.SetGlobalOptions(charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}))
	}

	line.SetXAxis(config.Categories())
	for _, series := range config.Series {
		line.AddSeries(series.Name, lo.Map(series.Data, func(value float64, _ int) opts.LineData {
			return opts.LineData{Value: value}
		}))
	}

	if stops := config.PlotOptions.Area.FillColor.Stops; len(stops) > 0 {
		line.SetSeriesOptions(charts.WithAreaStyleOpts(opts.AreaStyle{Color: stops[0].Color}))
	}

	return line.Render(w)
}

// Panel is a map region whose markup is replaced wholesale
type Panel struct {
	ID string

	mu      sync.RWMutex
	content string
	hub     *Hub
}

// NewPanel creates a region addressed by id
func NewPanel(id string, hub *Hub) *Panel {
	return &Panel{ID: id, hub: hub}
}

// SetContent implements core.Region
func (p *Panel) SetContent(markup string) error {
	p.mu.Lock()
	p.content = markup
	p.mu.Unlock()

	if p.hub != nil {
		p.hub.Broadcast(Message{Type: MessageRegion, Payload: regionPayload{ID: p.ID, Content: markup}})
	}
	return nil
}

func (p *Panel) Content() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.content
}
