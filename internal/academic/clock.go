// Package academic holds the pure decision rules of the portal: mapping wall-clock time to
// an academic phase, and ordering exam material by relevance. Nothing here performs I/O.
package academic

import (
	"math"
	"time"

	"github.com/noah-isme/campus-portal-api/internal/models"
	"github.com/noah-isme/campus-portal-api/pkg/config"
)

const day = 24 * time.Hour

// Milestone names reported once no exam period lies ahead.
const (
	MilestoneSemesterEnd      = "Semester End"
	MilestoneSemesterComplete = "Semester Complete"
)

// Calendar is the static, ordered academic calendar of one semester.
type Calendar struct {
	Start     time.Time
	End       time.Time
	Periods   []models.SemesterPeriod
	BreakName string

	midterm models.SemesterPeriod
	final   models.SemesterPeriod
}

// NewCalendar builds a calendar from ordered periods. Gaps and overlaps are not validated;
// a misconfigured calendar produces a wrong phase rather than an error.
func NewCalendar(start, end time.Time, periods []models.SemesterPeriod, breakName string) *Calendar {
	cal := &Calendar{Start: start, End: end, Periods: periods, BreakName: breakName}
	for _, p := range periods {
		switch {
		case p.Kind == models.PhaseMidterm && cal.midterm.Kind == "":
			cal.midterm = p
		case p.Kind == models.PhaseFinal && cal.final.Kind == "":
			cal.final = p
		}
	}
	if cal.midterm.Kind == "" {
		cal.midterm = models.SemesterPeriod{Kind: models.PhaseMidterm, StartDate: start, EndDate: start}
	}
	if cal.final.Kind == "" {
		cal.final = models.SemesterPeriod{Kind: models.PhaseFinal, StartDate: end, EndDate: end}
	}
	if cal.BreakName == "" {
		cal.BreakName = "Semester Break"
	}
	return cal
}

// CalendarFromConfig lays out the four in-semester periods from the configured boundaries.
func CalendarFromConfig(cfg config.SemesterConfig) *Calendar {
	periods := []models.SemesterPeriod{
		{Name: cfg.RegularName, Kind: models.PhaseRegular, StartDate: cfg.Start, EndDate: cfg.MidtermStart.Add(-time.Nanosecond)},
		{Name: cfg.MidtermName, MilestoneName: "Mid-term Exams", Kind: models.PhaseMidterm, StartDate: cfg.MidtermStart, EndDate: cfg.MidtermEnd},
		{Name: cfg.FinalPrepName, Kind: models.PhaseFinalPrep, StartDate: cfg.MidtermEnd.Add(time.Nanosecond), EndDate: cfg.FinalStart.Add(-time.Nanosecond)},
		{Name: cfg.FinalName, MilestoneName: "Final Exams", Kind: models.PhaseFinal, StartDate: cfg.FinalStart, EndDate: cfg.End},
	}
	return NewCalendar(cfg.Start, cfg.End, periods, cfg.BreakName)
}

// Clock maps a point in time to the academic phase of a calendar.
type Clock struct {
	cal *Calendar
	now func() time.Time
}

// NewClock returns a clock reading time from now. A nil now uses time.Now.
func NewClock(cal *Calendar, now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{cal: cal, now: now}
}

// Calendar returns the calendar the clock reads from.
func (c *Clock) Calendar() *Calendar {
	return c.cal
}

// Status reports the status for the current time.
func (c *Clock) Status() models.SemesterStatus {
	return c.StatusAt(c.now())
}

// StatusAt reports the status at now. Day counts are ceilings and are not clamped, so
// values before the start are negative and progress past the end exceeds 100.
func (c *Clock) StatusAt(now time.Time) models.SemesterStatus {
	cal := c.cal
	totalDays := ceilDays(cal.End.Sub(cal.Start))
	elapsed := ceilDays(now.Sub(cal.Start))
	remaining := ceilDays(cal.End.Sub(now))

	progress := 0
	if totalDays > 0 {
		progress = int(math.Round(float64(elapsed) / float64(totalDays) * 100))
	}

	kind, name := c.phaseAt(now)
	milestone, daysTo := c.nextMilestone(now)

	return models.SemesterStatus{
		Phase:             kind,
		PhaseName:         name,
		TotalDays:         totalDays,
		DaysElapsed:       elapsed,
		DaysRemaining:     remaining,
		ProgressPercent:   progress,
		CurrentWeek:       int(math.Ceil(float64(elapsed) / 7)),
		NextMilestoneName: milestone,
		DaysToMilestone:   daysTo,
		InSession:         !now.Before(cal.Start) && !now.After(cal.End),
		ComputedAt:        now,
	}
}

// Phase returns the phase kind at now.
func (c *Clock) Phase(now time.Time) models.PhaseKind {
	kind, _ := c.phaseAt(now)
	return kind
}

func (c *Clock) phaseAt(now time.Time) (models.PhaseKind, string) {
	cal := c.cal
	switch {
	case now.Before(cal.midterm.StartDate):
		return models.PhaseRegular, c.nameOf(models.PhaseRegular)
	case !now.After(cal.midterm.EndDate):
		return models.PhaseMidterm, c.nameOf(models.PhaseMidterm)
	case now.Before(cal.final.StartDate):
		return models.PhaseFinalPrep, c.nameOf(models.PhaseFinalPrep)
	case !now.After(cal.End):
		return models.PhaseFinal, c.nameOf(models.PhaseFinal)
	default:
		return models.PhaseBreak, cal.BreakName
	}
}

func (c *Clock) nameOf(kind models.PhaseKind) string {
	for _, p := range c.cal.Periods {
		if p.Kind == kind && p.Name != "" {
			return p.Name
		}
	}
	return string(kind)
}

// nextMilestone walks the ordered periods for the first exam period starting after now.
func (c *Clock) nextMilestone(now time.Time) (string, int) {
	for _, p := range c.cal.Periods {
		if !p.Kind.IsExam() || !p.StartDate.After(now) {
			continue
		}
		name := p.MilestoneName
		if name == "" {
			name = p.Name
		}
		return name, ceilDays(p.StartDate.Sub(now))
	}
	if now.Before(c.cal.End) {
		return MilestoneSemesterEnd, ceilDays(c.cal.End.Sub(now))
	}
	return MilestoneSemesterComplete, 0
}

func ceilDays(d time.Duration) int {
	return int(math.Ceil(float64(d) / float64(day)))
}
