package models

import "time"

// PhaseKind identifies a discrete academic phase.
type PhaseKind string

const (
	PhaseRegular   PhaseKind = "REGULAR"
	PhaseMidterm   PhaseKind = "MIDTERM"
	PhaseFinalPrep PhaseKind = "FINAL_PREP"
	PhaseFinal     PhaseKind = "FINAL"
	PhaseBreak     PhaseKind = "BREAK"
)

// IsExam reports whether the phase is an examination window.
func (k PhaseKind) IsExam() bool {
	return k == PhaseMidterm || k == PhaseFinal
}

// SemesterPeriod is one named span of the academic calendar. Periods are defined once at
// startup and are expected to be contiguous and non-overlapping.
type SemesterPeriod struct {
	Name          string    `json:"name"`
	MilestoneName string    `json:"milestone_name,omitempty"`
	Kind          PhaseKind `json:"kind"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
}

// SemesterStatus is derived from the calendar on every call and never persisted.
type SemesterStatus struct {
	Phase             PhaseKind `json:"phase"`
	PhaseName         string    `json:"phase_name"`
	TotalDays         int       `json:"total_days"`
	DaysElapsed       int       `json:"days_elapsed"`
	DaysRemaining     int       `json:"days_remaining"`
	ProgressPercent   int       `json:"progress_percent"`
	CurrentWeek       int       `json:"current_week"`
	NextMilestoneName string    `json:"next_milestone_name"`
	DaysToMilestone   int       `json:"days_to_milestone"`
	InSession         bool      `json:"in_session"`
	ComputedAt        time.Time `json:"computed_at"`
}
