// Package report renders episode results and learned policies for humans.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"opsagent/internal/runner"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const (
	colorReward = "#34d399"
	colorScore  = "#3b82f6"
	colorAction = "#a78bfa"
	chartWidth  = "1200px"
	chartHeight = "420px"
	noAction    = "(none)"
)

// RenderEpisodeHTML writes a standalone page with the reward and performance
// score per step and a tally of the chosen actions.
func RenderEpisodeHTML(w io.Writer, res runner.EpisodeResult) error {
	if len(res.Steps) == 0 {
		return fmt.Errorf("episode %s has no steps to chart", res.RunID)
	}
	page := components.NewPage()
	page.PageTitle = fmt.Sprintf("opsagent %s", res.AppName)
	page.AddCharts(stepLine(res), actionBar(res))

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// WriteEpisodeHTML renders the page into path, creating parent directories.
func WriteEpisodeHTML(path string, res runner.EpisodeResult) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := RenderEpisodeHTML(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteEpisodeJSON writes the results document with 2-space indentation.
func WriteEpisodeJSON(path string, res runner.EpisodeResult) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func stepLine(res runner.EpisodeResult) *charts.Line {
	xAxis := make([]string, 0, len(res.Steps))
	rewards := make([]opts.LineData, 0, len(res.Steps))
	scores := make([]opts.LineData, 0, len(res.Steps))
	for _, s := range res.Steps {
		label := fmt.Sprintf("%d", s.Step)
		if s.Label != "" {
			label = fmt.Sprintf("%d %s", s.Step, s.Label)
		}
		xAxis = append(xAxis, label)
		rewards = append(rewards, opts.LineData{Value: s.Reward, Name: actionName(s.Action)})
		scores = append(scores, opts.LineData{Value: s.State.PerformanceScore, Name: string(s.State.Status)})
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros, Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("%s episode %s", res.AppName, res.RunID),
			Subtitle: fmt.Sprintf("steps=%d total_reward=%s", res.TotalSteps, formatValue(res.TotalReward)),
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)
	line.SetXAxis(xAxis)
	line.AddSeries("Reward", rewards, charts.WithLineStyleOpts(opts.LineStyle{Color: colorReward, Width: 2}))
	line.AddSeries("Performance score", scores, charts.WithLineStyleOpts(opts.LineStyle{Color: colorScore, Width: 2}))
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(true)}))
	return line
}

func actionBar(res runner.EpisodeResult) *charts.Bar {
	counts := ActionCounts(res)
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)
	data := make([]opts.BarData, 0, len(names))
	for _, name := range names {
		data = append(data, opts.BarData{Value: counts[name]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Theme: types.ThemeWesteros, Width: chartWidth, Height: chartHeight}),
		charts.WithTitleOpts(opts.Title{Title: "Chosen actions"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(names)
	bar.AddSeries("Count", data, charts.WithItemStyleOpts(opts.ItemStyle{Color: colorAction}))
	return bar
}

// ActionCounts tallies actions per name; cycles without an action count
// under "(none)".
func ActionCounts(res runner.EpisodeResult) map[string]int {
	counts := make(map[string]int)
	for _, s := range res.Steps {
		counts[actionName(s.Action)]++
	}
	return counts
}

func actionName(a string) string {
	if a == "" {
		return noAction
	}
	return a
}

func ensureDir(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		return os.MkdirAll(dir, 0o755)
	}
	return nil
}
