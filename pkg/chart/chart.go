// Package chart turns NDVI series and fitted coefficients into the
// DataTable JSON the chart pages feed to the visualization widget.
package chart

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/guojinxiang/ndvi-time-series/pkg/domain"
	"github.com/guojinxiang/ndvi-time-series/pkg/ee"
)

const yearSeconds = 365 * 24 * 60 * 60

// overlayStep spaces the sampling points of the fitted curve. The model
// is smooth, so every 45 days is plenty.
const overlayStep = 45 * 24 * time.Hour

// smallThreshold is the observation count under which the compact chart
// layout reads better.
const smallThreshold = 20

// Col, Row and Cell mirror the DataTable wire format.
type Col struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

type Cell struct {
	V any `json:"v"`
}

type Row struct {
	C []Cell `json:"c"`
}

type Table struct {
	Cols []Col `json:"cols"`
	Rows []Row `json:"rows"`
}

// Trend asks the widget to draw a polynomial trendline over the scatter.
type Trend struct {
	Degree int `json:"degree"`
}

// Payload is everything a chart page needs to render one chart.
type Payload struct {
	Kind  string `json:"kind"` // "scatter" or "series"
	Title string `json:"title"`
	Table Table  `json:"table"`
	Trend *Trend `json:"trendline,omitempty"`
	Small bool   `json:"small"`
}

// gvizDate formats a timestamp the way DataTable JSON wants dates:
// months count from zero.
func gvizDate(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("Date(%d, %d, %d)", t.Year(), int(t.Month())-1, t.Day())
}

// Scatter charts the observations against the day of year, one dot per
// observation. Masked observations are dropped.
func Scatter(reg domain.Regression, samples []ee.Sample) Payload {
	rows := []Row{}
	for _, s := range samples {
		if s.NDVI == nil {
			continue
		}
		doy := time.Unix(int64(s.Seconds), 0).UTC().YearDay()
		rows = append(rows, Row{C: []Cell{{V: doy}, {V: *s.NDVI}}})
	}

	return Payload{
		Kind:  "scatter",
		Title: "NDVI by day of year",
		Table: Table{
			Cols: []Col{
				{ID: "doy", Label: "Day of year", Type: "number"},
				{ID: "ndvi", Label: "NDVI", Type: "number"},
			},
			Rows: rows,
		},
		Trend: &Trend{Degree: reg.Degree()},
		Small: len(rows) < smallThreshold,
	}
}

// Fitted evaluates the harmonic model at secondsSinceStart. Coefficient
// bands missing from the fit count as zero.
func Fitted(coefficients map[string]float64, secondsSinceStart float64) float64 {
	omega := 2 * math.Pi / yearSeconds
	phase := omega * secondsSinceStart
	return coefficients["a0_sec"] +
		coefficients["a1_sec"]*math.Cos(phase) +
		coefficients["a2_sec"]*math.Sin(phase) +
		coefficients["a3_sec"]*secondsSinceStart
}

// Series charts the observations over calendar time with the fitted
// harmonic curve laid over them, sampled every 45 days across the
// observed range.
func Series(samples []ee.Sample, coefficients map[string]float64, startYear int) Payload {
	start := time.Date(startYear, time.January, 1, 0, 0, 0, 0, time.UTC)

	observed := []ee.Sample{}
	for _, s := range samples {
		if s.NDVI != nil {
			observed = append(observed, s)
		}
	}
	sort.Slice(observed, func(i, j int) bool {
		return observed[i].Seconds < observed[j].Seconds
	})

	rows := []Row{}
	for _, s := range observed {
		rows = append(rows, Row{C: []Cell{
			{V: gvizDate(time.Unix(int64(s.Seconds), 0))},
			{V: *s.NDVI},
			{V: nil},
		}})
	}

	if len(observed) > 0 && len(coefficients) > 0 {
		first := time.Unix(int64(observed[0].Seconds), 0).UTC()
		last := time.Unix(int64(observed[len(observed)-1].Seconds), 0).UTC()
		for at := first; !at.After(last); at = at.Add(overlayStep) {
			offset := at.Sub(start).Seconds()
			rows = append(rows, Row{C: []Cell{
				{V: gvizDate(at)},
				{V: nil},
				{V: Fitted(coefficients, offset)},
			}})
		}
	}

	return Payload{
		Kind:  "series",
		Title: "NDVI over time",
		Table: Table{
			Cols: []Col{
				{ID: "date", Label: "Date", Type: "date"},
				{ID: "ndvi", Label: "NDVI", Type: "number"},
				{ID: "fit", Label: "Fitted model", Type: "number"},
			},
			Rows: rows,
		},
		Small: len(observed) < smallThreshold,
	}
}

// Build picks the chart matching the regression model.
func Build(opts domain.Options, samples []ee.Sample, coefficients map[string]float64) Payload {
	if opts.Regression == domain.ZhuWood {
		return Series(samples, coefficients, opts.Start)
	}
	return Scatter(opts.Regression, samples)
}
