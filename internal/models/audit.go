package models

import "time"

// Audit actions recorded by provisioning and leave workflows.
const (
	AuditActionLogin               = "LOGIN"
	AuditActionProvisionStudent    = "PROVISION_STUDENT"
	AuditActionProvisionTeacher    = "PROVISION_TEACHER"
	AuditActionProvisionParent     = "PROVISION_PARENT"
	AuditActionProvisionAdmin      = "PROVISION_ADMIN"
	AuditActionLeaveGuardianVote   = "LEAVE_GUARDIAN_DECISION"
	AuditActionLeaveSupervisorVote = "LEAVE_SUPERVISOR_DECISION"
	AuditActionLeaveStatus         = "LEAVE_STATUS"
)

// AuditLog is one row of the append-only audit trail. ActorID is a user id;
// guardian decisions carry the parent id in Details instead.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	ActorID    *string   `db:"actor_id" json:"actor_id,omitempty"`
	ActorRole  string    `db:"actor_role" json:"actor_role,omitempty"`
	TenantID   *string   `db:"tenant_id" json:"tenant_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	RequestID  string    `db:"request_id" json:"request_id,omitempty"`
	Details    []byte    `db:"details" json:"details,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent  string    `db:"user_agent" json:"user_agent,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// StringRef returns nil for an empty string so optional audit columns stay NULL.
func StringRef(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
