package models

import "time"

// Course is a catalog course students browse material by.
type Course struct {
	Code       string    `db:"code" json:"code"`
	Name       string    `db:"name" json:"name"`
	Semester   string    `db:"semester" json:"semester"`
	Credits    float64   `db:"credits" json:"credits"`
	Instructor *string   `db:"instructor" json:"instructor,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
