// Package display turns the latest quota snapshot into what the UI shows.
// Nothing here does I/O; rendering lives in the tui package.
package display

import (
	"fmt"
	"strings"

	"github.com/olliecrow/campnet_monitor/internal/portal"
)

type Rating string

const (
	RatingPoor      Rating = "poor"
	RatingAverage   Rating = "average"
	RatingExcellent Rating = "excellent"
)

// Remaining below these fractions of the total lowers the rating.
const (
	poorFraction    = 1.0 / 5.0
	averageFraction = 1.0 / 3.0
)

// Gauge is bounded by [Lower, Upper] and reads Value.
type Gauge struct {
	Lower  float64
	Upper  float64
	Value  float64
	Unit   string
	Rating Rating
}

// Fraction returns Value's position within the gauge, clamped to [0, 1].
func (g Gauge) Fraction() float64 {
	span := g.Upper - g.Lower
	if span <= 0 {
		return 0
	}
	f := (g.Value - g.Lower) / span
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

type Line struct {
	Title  string
	Amount string
	Unit   string
}

func (l Line) String() string {
	return strings.TrimSpace(l.Title + " " + l.Amount + " " + l.Unit)
}

type Panel struct {
	Visible bool
	Gauge   Gauge
	Lines   []Line
}

// Visible reports whether a quota panel should be shown at all: only once a
// non-zero total has been seen for complete credentials.
func Visible(creds portal.Credentials, quota *portal.Quota) bool {
	return creds.Complete() && quota != nil && quota.Traffic.Total != 0
}

// RateRemaining classifies remaining quota relative to total.
func RateRemaining(remaining, total float64) Rating {
	switch {
	case remaining < total*poorFraction:
		return RatingPoor
	case remaining < total*averageFraction:
		return RatingAverage
	default:
		return RatingExcellent
	}
}

// FormatAmount rounds to two decimals for display and drops trailing zeros.
func FormatAmount(v float64) string {
	s := fmt.Sprintf("%.2f", v)
	s = strings.TrimRight(strings.TrimRight(s, "0"), ".")
	if s == "-0" {
		return "0"
	}
	return s
}

// Build is a pure function of the committed credentials and the latest quota.
func Build(creds portal.Credentials, quota *portal.Quota) Panel {
	if !Visible(creds, quota) {
		return Panel{}
	}
	t := quota.Traffic
	u := quota.Units
	return Panel{
		Visible: true,
		Gauge: Gauge{
			Lower:  0,
			Upper:  t.Total,
			Value:  t.Remaining,
			Unit:   u.Remaining,
			Rating: RateRemaining(t.Remaining, t.Total),
		},
		Lines: []Line{
			{Title: "Data Limit:", Amount: FormatAmount(t.Total), Unit: u.Total},
			{Title: "Data Used:", Amount: FormatAmount(t.Used), Unit: u.Used},
			{Title: "Data Left:", Amount: FormatAmount(t.Remaining), Unit: u.Remaining},
		},
	}
}
