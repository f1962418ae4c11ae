package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-portal-api/internal/models"
)

// MaterialRepository loads the curated exam material catalog.
type MaterialRepository struct {
	db *sqlx.DB
}

func NewMaterialRepository(db *sqlx.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// ListAll returns the whole catalog in curation order.
func (r *MaterialRepository) ListAll(ctx context.Context) ([]models.ExamMaterial, error) {
	const query = `SELECT id, name, type, exam_type, course_code, source_url, embed_url, upload_date, is_high_priority, relevance_score, topics, description
FROM materials ORDER BY sort_order ASC, id ASC`
	materials := make([]models.ExamMaterial, 0)
	if err := r.db.SelectContext(ctx, &materials, query); err != nil {
		return nil, fmt.Errorf("list materials: %w", err)
	}
	return materials, nil
}
