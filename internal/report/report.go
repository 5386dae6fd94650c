// Package report renders the daily accountability email for one user.
package report

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"math"
	"time"

	"github.com/samtjhia/SamsStudyTracker/assets"
	"github.com/samtjhia/SamsStudyTracker/internal/domain"
)

// ErrNoSessions is returned for an empty session list; callers skip the report instead.
var ErrNoSessions = errors.New("report needs at least one session")

const untitled = "Untitled"

// palette colours sessions by topic, cycling when there are more topics.
var palette = []string{
	"rgba(54, 162, 235, 0.7)",  // blue
	"rgba(255, 99, 132, 0.7)",  // red
	"rgba(255, 206, 86, 0.7)",  // yellow
	"rgba(75, 192, 192, 0.7)",  // green
	"rgba(153, 102, 255, 0.7)", // purple
	"rgba(255, 159, 64, 0.7)",  // orange
}

// Input is everything a report is built from.
type Input struct {
	DisplayName   string
	DateLabel     string
	TotalSeconds  int
	TargetMinutes int
	Sessions      []domain.Session
}

// Report is a rendered, immutable accountability email.
type Report struct {
	Subject       string
	HTML          string
	ChartURL      string
	TotalSeconds  int
	TargetMinutes int
	TargetMet     bool
	SessionCount  int
}

// Builder renders reports. It holds no mutable state and is safe for concurrent use.
type Builder struct {
	tmpl      *template.Template
	chartBase string
	loc       *time.Location
}

// NewBuilder parses the embedded template. Session times are shown in loc.
func NewBuilder(chartBaseURL string, loc *time.Location) (*Builder, error) {
	if loc == nil {
		loc = time.Local
	}
	tmpl, err := template.New("report").Parse(assets.ReportTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	return &Builder{tmpl: tmpl, chartBase: chartBaseURL, loc: loc}, nil
}

type row struct {
	Range    string
	Duration string
	Topic    string
}

type legendItem struct {
	Topic  string
	Swatch template.CSS
}

type view struct {
	Name          string
	DateLabel     string
	TotalTime     string
	TargetMinutes int
	Met           bool
	Hype          string
	Rows          []row
	ChartURL      string
	Legend        []legendItem
}

// Build renders in into a Report.
func (b *Builder) Build(in Input) (*Report, error) {
	if len(in.Sessions) == 0 {
		return nil, ErrNoSessions
	}

	met := TargetMet(in.TotalSeconds, in.TargetMinutes)
	topics, colors := b.topicColors(in.Sessions)
	chartURL, err := b.chartURL(in.Sessions, colors)
	if err != nil {
		return nil, err
	}

	v := view{
		Name:          in.DisplayName,
		DateLabel:     in.DateLabel,
		TotalTime:     domain.FormatDuration(in.TotalSeconds),
		TargetMinutes: in.TargetMinutes,
		Met:           met,
		Hype:          hype(in.DisplayName, met),
		ChartURL:      chartURL,
	}
	for _, s := range in.Sessions {
		v.Rows = append(v.Rows, row{
			Range:    b.clock(s.Start) + " - " + b.clock(s.End),
			Duration: domain.FormatDuration(s.DurationSeconds),
			Topic:    topicOf(s),
		})
	}
	for _, t := range topics {
		v.Legend = append(v.Legend, legendItem{
			Topic:  t,
			Swatch: template.CSS("background-color: " + colors[t] + ";"),
		})
	}

	var buf bytes.Buffer
	if err := b.tmpl.Execute(&buf, v); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	return &Report{
		Subject:       Subject(in.DisplayName, in.DateLabel),
		HTML:          buf.String(),
		ChartURL:      chartURL,
		TotalSeconds:  in.TotalSeconds,
		TargetMinutes: in.TargetMinutes,
		TargetMet:     met,
		SessionCount:  len(in.Sessions),
	}, nil
}

// Subject is the email subject line for a report.
func Subject(name, dateLabel string) string {
	return fmt.Sprintf("%s's Study Report — %s", name, dateLabel)
}

// TargetMet compares studied minutes, rounded to the nearest minute, to the goal.
func TargetMet(totalSeconds, targetMinutes int) bool {
	minutes := int(math.Round(float64(totalSeconds) / 60))
	return minutes >= targetMinutes
}

func hype(name string, met bool) string {
	if met {
		return name + " crushed it today and hit their study goal! 🔥"
	}
	return name + " missed their target today. Let them know and tell them to lock in 😓"
}

func topicOf(s domain.Session) string {
	if s.TopicText == "" {
		return untitled
	}
	return s.TopicText
}

func (b *Builder) clock(ms int64) string {
	return time.UnixMilli(ms).In(b.loc).Format("15:04")
}

// topicColors assigns palette colours to topics in first-seen order.
func (b *Builder) topicColors(sessions []domain.Session) ([]string, map[string]string) {
	var order []string
	colors := make(map[string]string)
	for _, s := range sessions {
		t := topicOf(s)
		if _, ok := colors[t]; ok {
			continue
		}
		colors[t] = palette[len(order)%len(palette)]
		order = append(order, t)
	}
	return order, colors
}
