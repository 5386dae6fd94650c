package report

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/samtjhia/SamsStudyTracker/internal/domain"
)

// Chart.js v2 config understood by QuickChart.
type chartConfig struct {
	Type    string       `json:"type"`
	Data    chartData    `json:"data"`
	Options chartOptions `json:"options"`
}

type chartData struct {
	Labels   []string       `json:"labels"`
	Datasets []chartDataset `json:"datasets"`
}

type chartDataset struct {
	Label           string   `json:"label"`
	Data            []int    `json:"data"`
	BackgroundColor []string `json:"backgroundColor"`
	BorderColor     []string `json:"borderColor"`
	BorderWidth     int      `json:"borderWidth"`
}

type chartOptions struct {
	Scales struct {
		YAxes []chartAxis `json:"yAxes"`
	} `json:"scales"`
	Legend struct {
		Display bool `json:"display"`
	} `json:"legend"`
}

type chartAxis struct {
	Ticks struct {
		BeginAtZero bool `json:"beginAtZero"`
	} `json:"ticks"`
}

// chartURL encodes one bar per session, in minutes, coloured by topic.
func (b *Builder) chartURL(sessions []domain.Session, colors map[string]string) (string, error) {
	ds := chartDataset{Label: "Minutes Studied", BorderWidth: 1}
	labels := make([]string, 0, len(sessions))
	for _, s := range sessions {
		c := colors[topicOf(s)]
		labels = append(labels, b.clock(s.Start))
		ds.Data = append(ds.Data, int(math.Round(float64(s.DurationSeconds)/60)))
		ds.BackgroundColor = append(ds.BackgroundColor, c)
		ds.BorderColor = append(ds.BorderColor, strings.Replace(c, "0.7", "1.0", 1))
	}

	cfg := chartConfig{Type: "bar", Data: chartData{Labels: labels, Datasets: []chartDataset{ds}}}
	axis := chartAxis{}
	axis.Ticks.BeginAtZero = true
	cfg.Options.Scales.YAxes = []chartAxis{axis}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("encode chart: %w", err)
	}
	return b.chartBase + "?c=" + url.QueryEscape(string(raw)), nil
}
