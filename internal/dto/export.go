package dto

import (
	"time"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

// ExportRequest captures POST /admin/exports payload.
type ExportRequest struct {
	Format      models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
	CourseCode  string              `json:"course" validate:"omitempty,max=32"`
	ExamType    models.ExamType     `json:"examType" validate:"omitempty,oneof=Midterm Regular All"`
	RelevantNow bool                `json:"relevantNow"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID     string              `json:"id"`
	Status models.ExportStatus `json:"status"`
}

// ExportStatusResponse exposes job state and, once finished, a signed download URL.
type ExportStatusResponse struct {
	ID          string                 `json:"id"`
	Status      models.ExportStatus    `json:"status"`
	Params      models.ExportJobParams `json:"params"`
	CreatedAt   time.Time              `json:"createdAt"`
	FinishedAt  *time.Time             `json:"finishedAt,omitempty"`
	DownloadURL *string                `json:"downloadUrl,omitempty"`
	ExpiresAt   *time.Time             `json:"expiresAt,omitempty"`
	Error       *string                `json:"error,omitempty"`
}
