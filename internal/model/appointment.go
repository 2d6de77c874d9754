package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
//
// Valid transitions:
//
//	scheduled → in_progress  (check-in)
//	in_progress → done       (check-out)
//	scheduled → absent       (absence, terminal)
//
// The engine does not re-validate transitions; the surrounding UI guards
// them. Change-sets are absolute-valued so replaying one is idempotent.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusAbsent     Status = "absent"
)

// LocalIDPrefix marks identifiers fabricated on-device before the remote
// backend has issued one.
const LocalIDPrefix = "local-"

// NewLocalID generates a time-sortable local appointment identifier.
// UUIDv7 embeds a timestamp, so local IDs sort by creation time.
func NewLocalID() string {
	return LocalIDPrefix + uuid.Must(uuid.NewV7()).String()
}

// IsLocalID reports whether id was fabricated locally and therefore has no
// remote counterpart yet.
func IsLocalID(id string) bool {
	return strings.HasPrefix(id, LocalIDPrefix)
}

// Geo is a geolocation reading captured at check-in or check-out.
// Treated as an opaque input from the capture layer.
type Geo struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	Accuracy   float64   `json:"accuracy"`
	CapturedAt time.Time `json:"capturedAt"`
}

// Appointment is a scheduled field visit.
//
// PendingSync=true means the record exists only locally, stored in the
// pending-appointment partition under its local identifier.
// LocalCreatedAt is a unix-millisecond clock value used for ordering
// locally fabricated records.
type Appointment struct {
	ID            string     `json:"id"`
	CompanyID     string     `json:"companyId"`
	CompanyName   string     `json:"companyName"`
	Consultant    string     `json:"consultant"`
	CreatedBy     string     `json:"createdBy"`
	StartAt       time.Time  `json:"startAt"`
	EndAt         time.Time  `json:"endAt"`
	Status        Status     `json:"status"`
	CheckInAt     *time.Time `json:"checkInAt,omitempty"`
	CheckInGeo    *Geo       `json:"checkInGeo,omitempty"`
	CheckOutAt    *time.Time `json:"checkOutAt,omitempty"`
	CheckOutGeo   *Geo       `json:"checkOutGeo,omitempty"`
	Address       string     `json:"address"`
	AbsenceReason string     `json:"absenceReason,omitempty"`
	AbsenceNote   string     `json:"absenceNote,omitempty"`
	Opportunities []string   `json:"opportunities,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`

	PendingSync    bool  `json:"pendingSync,omitempty"`
	LocalCreatedAt int64 `json:"localCreatedAt,omitempty"`
}

// SameDay reports whether the appointment starts on the same calendar day
// as ref, in ref's location. Used to keep the "today" snapshot current.
func (a Appointment) SameDay(ref time.Time) bool {
	y1, m1, d1 := a.StartAt.In(ref.Location()).Date()
	y2, m2, d2 := ref.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
