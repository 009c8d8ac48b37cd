package domain

import "time"

// ActivityType is the closed set of security-relevant events the audit log
// records.
type ActivityType string

const (
	ActivityLogin           ActivityType = "login"
	ActivityLogout          ActivityType = "logout"
	ActivityPasswordChange  ActivityType = "password_change"
	ActivityPasswordReset   ActivityType = "password_reset"
	ActivityFailedLogin     ActivityType = "failed_login"
	ActivityAccountLocked   ActivityType = "account_locked"
	ActivityAccountUnlocked ActivityType = "account_unlocked"
	ActivityUserCreated     ActivityType = "user_created"
	ActivityUserUpdated     ActivityType = "user_updated"
	ActivityUserDeleted     ActivityType = "user_deleted"
	ActivitySettingsChanged ActivityType = "settings_changed"
	ActivityExportData      ActivityType = "export_data"
	ActivityOther           ActivityType = "other"
)

// Severity of an audit entry. Assigned by the caller at the call site; the
// log itself performs no inference.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// DefaultSeverity is the fixed call-site mapping from activity type to
// severity. Callers may still override it for a specific entry (e.g. a 2FA
// disable is settings_changed at warning).
func DefaultSeverity(t ActivityType) Severity {
	switch t {
	case ActivityAccountLocked:
		return SeverityCritical
	case ActivityFailedLogin, ActivityPasswordReset, ActivityUserDeleted:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

// ActivityLogEntry is append-only and immutable once written.
type ActivityLogEntry struct {
	ID          string
	AccountID   string
	Username    string
	Type        ActivityType
	Description string
	Severity    Severity
	Details     map[string]any // optional structured payload
	CreatedAt   time.Time
}

// ActivityFilter narrows an audit log query. Zero values mean "no filter";
// results are ordered by CreatedAt descending.
type ActivityFilter struct {
	Limit     int
	AccountID string
	Type      ActivityType
	From      *time.Time
	To        *time.Time
}
