package academic

import (
	"sort"
	"strings"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

// DefaultMidtermRelevanceFloor is the minimum relevance score a material needs to count as
// relevant while mid-term examinations are running.
const DefaultMidtermRelevanceFloor = 70

// Ranker selects and orders exam material for the current phase.
type Ranker struct {
	MidtermRelevanceFloor int
}

// NewRanker returns a ranker using floor, or the default when floor is out of range.
func NewRanker(floor int) Ranker {
	if floor < 0 || floor > 100 {
		floor = DefaultMidtermRelevanceFloor
	}
	return Ranker{MidtermRelevanceFloor: floor}
}

// FilterRelevant keeps only mid-term oriented material during the mid-term phase and
// everything otherwise.
func FilterRelevant(materials []models.ExamMaterial, phase models.PhaseKind) []models.ExamMaterial {
	if phase != models.PhaseMidterm {
		return clone(materials)
	}
	return filter(materials, func(m models.ExamMaterial) bool {
		return targetsMidterm(m)
	})
}

// IsRelevantNow reports whether m should be surfaced in phase.
func (r Ranker) IsRelevantNow(m models.ExamMaterial, phase models.PhaseKind) bool {
	if phase != models.PhaseMidterm {
		return true
	}
	return targetsMidterm(m) && m.RelevanceScore >= r.MidtermRelevanceFloor
}

// Rank orders high priority material first and then by descending relevance score. The sort
// is stable, so ties keep their input order and ranking a ranked list is a no-op.
func Rank(materials []models.ExamMaterial) []models.ExamMaterial {
	out := clone(materials)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.IsHighPriority != b.IsHighPriority {
			return a.IsHighPriority
		}
		return a.RelevanceScore > b.RelevanceScore
	})
	return out
}

// ByCourse returns the ranked material of one course. Course codes match exactly.
func ByCourse(materials []models.ExamMaterial, courseCode string) []models.ExamMaterial {
	return Rank(filter(materials, func(m models.ExamMaterial) bool {
		return inCourse(m, courseCode)
	}))
}

func inCourse(m models.ExamMaterial, courseCode string) bool {
	return m.CourseCode == courseCode
}

// Search matches query case-insensitively against name, description and topics. An empty
// query matches everything.
func Search(materials []models.ExamMaterial, query string) []models.ExamMaterial {
	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return clone(materials)
	}
	return filter(materials, func(m models.ExamMaterial) bool {
		if strings.Contains(strings.ToLower(m.Name), needle) ||
			strings.Contains(strings.ToLower(m.Description), needle) {
			return true
		}
		for _, topic := range m.Topics {
			if strings.Contains(strings.ToLower(topic), needle) {
				return true
			}
		}
		return false
	})
}

// Apply intersects every filter set in q and ranks the result.
func (r Ranker) Apply(materials []models.ExamMaterial, q models.MaterialQuery, phase models.PhaseKind) []models.ExamMaterial {
	matched := Search(materials, q.Search)
	matched = filter(matched, func(m models.ExamMaterial) bool {
		if q.CourseCode != "" && !inCourse(m, q.CourseCode) {
			return false
		}
		if q.Type != "" && !strings.EqualFold(string(m.Type), string(q.Type)) {
			return false
		}
		if q.ExamType != "" && !strings.EqualFold(string(m.ExamType), string(q.ExamType)) {
			return false
		}
		if q.RelevantNow && !r.IsRelevantNow(m, phase) {
			return false
		}
		return true
	})
	return Rank(matched)
}

func targetsMidterm(m models.ExamMaterial) bool {
	return m.ExamType == models.ExamTypeMidterm || m.ExamType == models.ExamTypeAll
}

func filter(materials []models.ExamMaterial, keep func(models.ExamMaterial) bool) []models.ExamMaterial {
	out := make([]models.ExamMaterial, 0, len(materials))
	for _, m := range materials {
		if keep(m) {
			out = append(out, m)
		}
	}
	return out
}

func clone(materials []models.ExamMaterial) []models.ExamMaterial {
	out := make([]models.ExamMaterial, len(materials))
	copy(out, materials)
	return out
}
