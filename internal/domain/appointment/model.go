package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Status is the appointment lifecycle state. Transitions are
// one-directional: confirmed is the initial state, cancelled and
// completed are terminal. Reschedule keeps confirmed and replaces the
// slot in place.
type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var validStatuses = map[Status]bool{
	StatusConfirmed: true, StatusCompleted: true, StatusCancelled: true,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool { return validStatuses[s] }

// VisitType is the visit category chosen at booking.
type VisitType string

const (
	TypeConsultation VisitType = "Consultation"
	TypeFollowUp     VisitType = "Follow-up"
	TypeCheckup      VisitType = "Checkup"
	TypeEmergency    VisitType = "Emergency"
	TypeSurgery      VisitType = "Surgery"
)

var validTypes = map[VisitType]bool{
	TypeConsultation: true, TypeFollowUp: true, TypeCheckup: true,
	TypeEmergency: true, TypeSurgery: true,
}

// Valid reports whether t is a known visit type.
func (t VisitType) Valid() bool { return validTypes[t] }

// Mode says whether the visit happens on site or over video.
type Mode string

const (
	ModeInPerson Mode = "in-person"
	ModeVirtual  Mode = "virtual"
)

var validModes = map[Mode]bool{ModeInPerson: true, ModeVirtual: true}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return validModes[m] }

// Date and time layouts for the booked slot.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Appointment is a booked visit. The lifecycle store owns these records
// exclusively; callers only ever see copies.
type Appointment struct {
	ID            uuid.UUID `json:"id"`
	PatientID     string    `json:"patientId"`
	DoctorID      string    `json:"doctorId"`
	DepartmentID  string    `json:"departmentId"`
	ScheduledDate string    `json:"scheduledDate"`
	ScheduledTime string    `json:"scheduledTime"`
	Type          VisitType `json:"type"`
	Status        Status    `json:"status"`
	Notes         string    `json:"notes,omitempty"`
	Mode          Mode      `json:"mode"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// ScheduledAt combines the booked date and time into a single instant
// in UTC.
func (a *Appointment) ScheduledAt() (time.Time, error) {
	return time.Parse(DateLayout+" "+TimeLayout, a.ScheduledDate+" "+a.ScheduledTime)
}

// EventKind tags a domain event emitted by the store.
type EventKind string

const (
	EventCreated     EventKind = "created"
	EventRescheduled EventKind = "rescheduled"
	EventCancelled   EventKind = "cancelled"
	EventCompleted   EventKind = "completed"
)

// AuditAction maps the event kind to its audit action tag so the audit
// layer never has to re-derive it.
func (k EventKind) AuditAction() string {
	switch k {
	case EventCreated:
		return "APPOINTMENT_CREATED"
	case EventRescheduled:
		return "APPOINTMENT_UPDATED"
	case EventCancelled:
		return "APPOINTMENT_CANCELLED"
	case EventCompleted:
		return "APPOINTMENT_COMPLETED"
	default:
		return "APPOINTMENT_VIEWED"
	}
}

// Event describes one completed state change. It is emitted after the
// mutation commits, never before, and carries enough to populate an
// audit record without another store lookup.
type Event struct {
	Kind          EventKind
	AppointmentID uuid.UUID
	PatientID     string
	DoctorID      string
	DepartmentID  string
	// Old and New slot values are set on reschedule events only.
	OldDate, OldTime string
	NewDate, NewTime string
	OccurredAt       time.Time
}
