package service

import (
	"time"

	"github.com/noah-isme/campus-portal-api/internal/academic"
	"github.com/noah-isme/campus-portal-api/internal/models"
)

// SemesterService reports where "now" falls in the academic calendar.
type SemesterService struct {
	clock  *academic.Clock
	ranker academic.Ranker
}

// NewSemesterService constructs the service.
func NewSemesterService(clock *academic.Clock, ranker academic.Ranker) *SemesterService {
	return &SemesterService{clock: clock, ranker: ranker}
}

// SemesterOverview is the status plus the calendar and relevance floor in effect.
type SemesterOverview struct {
	Status                models.SemesterStatus   `json:"status"`
	Periods               []models.SemesterPeriod `json:"periods"`
	MidtermRelevanceFloor int                     `json:"midterm_relevance_floor"`
}

// Status returns the current semester status.
func (s *SemesterService) Status() models.SemesterStatus {
	return s.clock.Status()
}

// StatusAt returns the status at an arbitrary instant.
func (s *SemesterService) StatusAt(at time.Time) models.SemesterStatus {
	return s.clock.StatusAt(at)
}

// Overview bundles the current status with the static calendar.
func (s *SemesterService) Overview() SemesterOverview {
	cal := s.clock.Calendar()
	periods := make([]models.SemesterPeriod, len(cal.Periods))
	copy(periods, cal.Periods)
	return SemesterOverview{
		Status:                s.clock.Status(),
		Periods:               periods,
		MidtermRelevanceFloor: s.ranker.MidtermRelevanceFloor,
	}
}
