package model

import "time"

// ScheduleSnapshot is a cached view of the schedule for one user and date
// range: the appointments and companies visible for that range plus a
// creation timestamp used to judge staleness.
//
// A copy of the most recent snapshot is always kept under a
// range-independent "latest" key as a fallback when the exact range
// requested was never cached.
type ScheduleSnapshot struct {
	User         string        `json:"user"`
	RangeStart   time.Time     `json:"rangeStart"`
	RangeEnd     time.Time     `json:"rangeEnd"`
	Appointments []Appointment `json:"appointments"`
	Companies    []Company     `json:"companies"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// Covers reports whether t falls inside the snapshot's date range
// (inclusive start, inclusive end).
func (s ScheduleSnapshot) Covers(t time.Time) bool {
	return !t.Before(s.RangeStart) && !t.After(s.RangeEnd)
}

// Upsert replaces the appointment with the same ID, or appends it if the
// snapshot does not contain one.
func (s *ScheduleSnapshot) Upsert(appt Appointment) {
	for i := range s.Appointments {
		if s.Appointments[i].ID == appt.ID {
			s.Appointments[i] = appt
			return
		}
	}
	s.Appointments = append(s.Appointments, appt)
}

// Rebind renames an appointment in place from oldID to newID, clearing its
// pending-sync bookkeeping. No-op if oldID is absent.
func (s *ScheduleSnapshot) Rebind(oldID, newID string) {
	for i := range s.Appointments {
		if s.Appointments[i].ID == oldID {
			s.Appointments[i].ID = newID
			s.Appointments[i].PendingSync = false
			return
		}
	}
}
