package audit

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Action identifies the sensitive operation an audit record describes.
// The set is closed: Record rejects any value not listed here.
type Action string

const (
	// Authentication
	ActionLogin          Action = "LOGIN"
	ActionLogout         Action = "LOGOUT"
	ActionLoginFailed    Action = "LOGIN_FAILED"
	ActionPasswordChange Action = "PASSWORD_CHANGE"
	ActionPasswordReset  Action = "PASSWORD_RESET"
	ActionMFAEnabled     Action = "MFA_ENABLED"
	ActionMFADisabled    Action = "MFA_DISABLED"

	// User management
	ActionUserCreated     Action = "USER_CREATED"
	ActionUserViewed      Action = "USER_VIEWED"
	ActionUserUpdated     Action = "USER_UPDATED"
	ActionUserDeleted     Action = "USER_DELETED"
	ActionUserActivated   Action = "USER_ACTIVATED"
	ActionUserDeactivated Action = "USER_DEACTIVATED"
	ActionRoleChanged     Action = "ROLE_CHANGED"

	// Patient records
	ActionPatientCreated        Action = "PATIENT_CREATED"
	ActionPatientViewed         Action = "PATIENT_VIEWED"
	ActionPatientUpdated        Action = "PATIENT_UPDATED"
	ActionPatientDeleted        Action = "PATIENT_DELETED"
	ActionPatientRecordAccessed Action = "PATIENT_RECORD_ACCESSED"

	// Appointments
	ActionAppointmentCreated   Action = "APPOINTMENT_CREATED"
	ActionAppointmentViewed    Action = "APPOINTMENT_VIEWED"
	ActionAppointmentUpdated   Action = "APPOINTMENT_UPDATED"
	ActionAppointmentCancelled Action = "APPOINTMENT_CANCELLED"
	ActionAppointmentCompleted Action = "APPOINTMENT_COMPLETED"

	// Doctors
	ActionDoctorViewed Action = "DOCTOR_VIEWED"

	// System
	ActionSystemConfigChanged Action = "SYSTEM_CONFIG_CHANGED"
	ActionBackupCreated       Action = "BACKUP_CREATED"
	ActionDataExport          Action = "DATA_EXPORT"
	ActionReportGenerated     Action = "REPORT_GENERATED"
)

var validActions = map[Action]bool{
	ActionLogin: true, ActionLogout: true, ActionLoginFailed: true,
	ActionPasswordChange: true, ActionPasswordReset: true,
	ActionMFAEnabled: true, ActionMFADisabled: true,
	ActionUserCreated: true, ActionUserViewed: true, ActionUserUpdated: true,
	ActionUserDeleted: true, ActionUserActivated: true, ActionUserDeactivated: true,
	ActionRoleChanged: true,
	ActionPatientCreated: true, ActionPatientViewed: true, ActionPatientUpdated: true,
	ActionPatientDeleted: true, ActionPatientRecordAccessed: true,
	ActionAppointmentCreated: true, ActionAppointmentViewed: true,
	ActionAppointmentUpdated: true, ActionAppointmentCancelled: true,
	ActionAppointmentCompleted: true,
	ActionDoctorViewed:         true,
	ActionSystemConfigChanged:  true, ActionBackupCreated: true,
	ActionDataExport: true, ActionReportGenerated: true,
}

// Valid reports whether a belongs to the closed action set.
func (a Action) Valid() bool { return validActions[a] }

// Resource identifies the kind of entity an audit record refers to.
type Resource string

const (
	ResourceUser        Resource = "User"
	ResourcePatient     Resource = "Patient"
	ResourceDoctor      Resource = "Doctor"
	ResourceAppointment Resource = "Appointment"
	ResourceSystem      Resource = "System"
	ResourceAuth        Resource = "Auth"
)

var validResources = map[Resource]bool{
	ResourceUser: true, ResourcePatient: true, ResourceDoctor: true,
	ResourceAppointment: true, ResourceSystem: true, ResourceAuth: true,
}

// Valid reports whether r belongs to the closed resource set.
func (r Resource) Valid() bool { return validResources[r] }

// Outcome describes the result of the audited operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
	OutcomePartial Outcome = "PARTIAL"
)

var validOutcomes = map[Outcome]bool{
	OutcomeSuccess: true, OutcomeFailure: true, OutcomePartial: true,
}

// Valid reports whether o belongs to the closed outcome set.
func (o Outcome) Valid() bool { return validOutcomes[o] }

// OutcomeFromStatus derives an outcome from an HTTP status code.
// 2xx maps to SUCCESS, everything else to FAILURE.
func OutcomeFromStatus(code int) Outcome {
	if code >= 200 && code < 300 {
		return OutcomeSuccess
	}
	return OutcomeFailure
}

// RedactionMarker replaces the value of every denylisted detail field
// before a record is persisted. Redaction is one-way: the original
// value is never retained.
const RedactionMarker = "[REDACTED]"

// sensitiveFields is the closed, case-insensitive denylist of request
// body field names that must never reach the audit store verbatim.
var sensitiveFields = map[string]bool{
	"password":             true,
	"passwordhash":         true,
	"token":                true,
	"refreshtoken":         true,
	"ssn":                  true,
	"socialsecuritynumber": true,
	"creditcard":           true,
	"accountnumber":        true,
}

// Detail carries the sanitized free-form payload of an audit record.
// Query and Params hold identifiers only and are stored as-is; RequestBody
// is subject to denylist redaction.
type Detail struct {
	Query       map[string]string `json:"query,omitempty"`
	Params      map[string]string `json:"params,omitempty"`
	RequestBody map[string]any    `json:"requestBody,omitempty"`
	Success     *bool             `json:"success,omitempty"`
}

// Redact returns a copy of d with every denylisted RequestBody key
// replaced by RedactionMarker. Matching is by key name, case-insensitive;
// all other keys pass through unchanged. A nil receiver yields nil.
func (d *Detail) Redact() *Detail {
	if d == nil {
		return nil
	}
	out := &Detail{Success: d.Success}
	if d.Query != nil {
		out.Query = make(map[string]string, len(d.Query))
		for k, v := range d.Query {
			out.Query[k] = v
		}
	}
	if d.Params != nil {
		out.Params = make(map[string]string, len(d.Params))
		for k, v := range d.Params {
			out.Params[k] = v
		}
	}
	if d.RequestBody != nil {
		out.RequestBody = make(map[string]any, len(d.RequestBody))
		for k, v := range d.RequestBody {
			if sensitiveFields[strings.ToLower(k)] {
				out.RequestBody[k] = RedactionMarker
				continue
			}
			out.RequestBody[k] = v
		}
	}
	return out
}

// Record is an immutable audit trail entry. Once written it is never
// updated; the only deletion path is the retention-expiry sweep.
type Record struct {
	ID           uuid.UUID `json:"id"`
	ActorID      string    `json:"actorId,omitempty"`
	Action       Action    `json:"action"`
	Resource     Resource  `json:"resourceType"`
	ResourceID   string    `json:"resourceId,omitempty"`
	Method       string    `json:"method,omitempty"`
	Path         string    `json:"path"`
	IPAddress    string    `json:"ipAddress"`
	UserAgent    string    `json:"userAgent,omitempty"`
	Outcome      Outcome   `json:"outcome"`
	StatusCode   int       `json:"statusCode,omitempty"`
	Detail       *Detail   `json:"detail,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	DurationMs   int64     `json:"durationMs,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Event is a candidate audit record as supplied by callers. The service
// validates it, applies redaction, and assigns the server-side fields.
type Event struct {
	ActorID      string
	Action       Action
	Resource     Resource
	ResourceID   string
	Outcome      Outcome // derived from StatusCode when empty
	Method       string
	Path         string
	IPAddress    string
	UserAgent    string
	StatusCode   int
	Duration     time.Duration
	Detail       *Detail
	ErrorMessage string
}
