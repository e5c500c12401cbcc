package models

import "time"

// Student is the subject whose academic record is tracked.
type Student struct {
	ID         string    `db:"id" json:"id"`
	TenantID   string    `db:"tenant_id" json:"tenant_id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	Seq        int64     `db:"seq" json:"seq"`
	RollNumber string    `db:"roll_number" json:"roll_number"`
	FullName   string    `db:"full_name" json:"full_name"`
	Email      string    `db:"email" json:"email"`
	Phone      *string   `db:"phone" json:"phone,omitempty"`
	ParentID   *string   `db:"parent_id" json:"parent_id,omitempty"`
	Active     bool      `db:"active" json:"active"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}
