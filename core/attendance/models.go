package attendance

import (
	"time"

	"github.com/arjuunns/Smart-hostel/core"
)

type Status string

const (
	StatusPresent Status = "PRESENT"
	StatusAbsent  Status = "ABSENT"
	StatusLate    Status = "LATE"
	StatusOnLeave Status = "ON_LEAVE"
)

var Statuses = []string{string(StatusPresent), string(StatusAbsent), string(StatusLate), string(StatusOnLeave)}

// Record is one student's attendance for one calendar day.
type Record struct {
	ID               string    `json:"id"`
	StudentID        string    `json:"student_id"`
	Date             time.Time `json:"date"` // UTC midnight
	Status           Status    `json:"status"`
	CurfewViolation  bool      `json:"curfew_violation"`
	ViolationMinutes int       `json:"violation_minutes"`
	MarkedBy         string    `json:"marked_by"`
	Remarks          string    `json:"remarks"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NewRecord is the payload used by wardens to mark attendance.
type NewRecord struct {
	StudentID        string `json:"student_id" validate:"required"`
	Date             string `json:"date" validate:"required,datetime=2006-01-02"`
	Status           Status `json:"status" validate:"required,attstatus"`
	CurfewViolation  bool   `json:"curfew_violation"`
	ViolationMinutes int    `json:"violation_minutes" validate:"gte=0,lte=1440"`
	Remarks          string `json:"remarks" validate:"max=500"`
}

func (nr *NewRecord) clean() {
	nr.StudentID = core.CleanString(nr.StudentID)
	nr.Date = core.CleanString(nr.Date)
	nr.Remarks = core.CleanString(nr.Remarks)
	if !nr.CurfewViolation {
		nr.ViolationMinutes = 0
	}
}

type QueryFilter struct {
	StudentID string
	Status    Status
	From      time.Time // inclusive day
	To        time.Time // inclusive day
}
