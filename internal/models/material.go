package models

import (
	"time"

	"github.com/lib/pq"
)

// MaterialType classifies exam material.
type MaterialType string

const (
	MaterialTypeCT          MaterialType = "CT"
	MaterialTypeNotes       MaterialType = "Notes"
	MaterialTypeSlides      MaterialType = "Slides"
	MaterialTypeSuggestions MaterialType = "Suggestions"
	MaterialTypeSyllabus    MaterialType = "Syllabus"
	MaterialTypeOther       MaterialType = "Other"
)

// ExamType is the examination a material targets.
type ExamType string

const (
	ExamTypeMidterm ExamType = "Midterm"
	ExamTypeRegular ExamType = "Regular"
	ExamTypeAll     ExamType = "All"
)

// ExamMaterial is a hand-curated catalog entry. The catalog is loaded once and read-only.
type ExamMaterial struct {
	ID             string         `db:"id" json:"id"`
	Name           string         `db:"name" json:"name"`
	Type           MaterialType   `db:"type" json:"type"`
	ExamType       ExamType       `db:"exam_type" json:"exam_type"`
	CourseCode     string         `db:"course_code" json:"course_code"`
	SourceURL      string         `db:"source_url" json:"source_url"`
	EmbedURL       string         `db:"embed_url" json:"embed_url"`
	UploadDate     time.Time      `db:"upload_date" json:"upload_date"`
	IsHighPriority bool           `db:"is_high_priority" json:"is_high_priority"`
	RelevanceScore int            `db:"relevance_score" json:"relevance_score"`
	Topics         pq.StringArray `db:"topics" json:"topics"`
	Description    string         `db:"description" json:"description"`
}

// MaterialQuery composes the dashboard filters. Empty fields do not filter.
type MaterialQuery struct {
	Search      string
	CourseCode  string
	Type        MaterialType
	ExamType    ExamType
	RelevantNow bool
	Page        int
	PageSize    int
}
