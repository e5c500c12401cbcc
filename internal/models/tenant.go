package models

import "time"

// Tenant is an institution (college). Most records are scoped by tenant.
type Tenant struct {
	ID        string    `db:"id" json:"id"`
	ShortCode string    `db:"short_code" json:"short_code"`
	Name      string    `db:"name" json:"name"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Course is the classification a student is enrolled under.
type Course struct {
	ID       string `db:"id" json:"id"`
	TenantID string `db:"tenant_id" json:"tenant_id"`
	Code     string `db:"code" json:"code"`
	Name     string `db:"name" json:"name"`
}
