package models

import "time"

// AuditAction enumerates recorded audit events.
type AuditAction string

const (
	AuditActionLogin          AuditAction = "LOGIN"
	AuditActionLogout         AuditAction = "LOGOUT"
	AuditActionPasswordChange AuditAction = "PASSWORD_CHANGE"
	AuditActionRequestCreate  AuditAction = "REQUEST_CREATE"
	AuditActionRequestClaim   AuditAction = "REQUEST_CLAIM"
	AuditActionStatusChange   AuditAction = "REQUEST_STATUS_CHANGE"
	AuditActionRevision       AuditAction = "REQUEST_REVISION"
	AuditActionComplete       AuditAction = "REQUEST_COMPLETE"
	AuditActionFileAdd        AuditAction = "REQUEST_FILE_ADD"
	AuditActionFileRemove     AuditAction = "REQUEST_FILE_REMOVE"
	AuditActionExportGenerate AuditAction = "EXPORT_GENERATE"
)

// AuditLog records a mutating action for traceability. Writes are
// best-effort: a failed insert is logged, never surfaced to the caller.
type AuditLog struct {
	ID         string      `db:"id" json:"id"`
	UserID     *string     `db:"user_id" json:"user_id,omitempty"`
	Action     AuditAction `db:"action" json:"action"`
	Resource   string      `db:"resource" json:"resource"`
	ResourceID *string     `db:"resource_id" json:"resource_id,omitempty"`
	NewValues  []byte      `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string      `db:"ip_address" json:"-"`
	UserAgent  string      `db:"user_agent" json:"-"`
	CreatedAt  time.Time   `db:"created_at" json:"created_at"`
}
