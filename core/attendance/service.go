package attendance

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"

	"github.com/arjuunns/Smart-hostel/core"
)

var ErrNotFound = errors.New("attendance record not found")

// markedBySystem tags the records written on behalf of approved leaves.
const markedBySystem = "system"

type (
	Repository interface {
		// UpsertRecord inserts rec or replaces the record of the same student and day.
		UpsertRecord(ctx context.Context, rec Record) (Record, error)
		QueryRecords(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Record, error)
		DeleteRecord(ctx context.Context, id string) error
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
		logger   core.Logger
	}
)

func NewService(repo Repository, validate *validator.Validate, logger core.Logger) *Service {
	return &Service{repo: repo, validate: validate, logger: logger}
}

// InitValidators registers the attendance validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterOneOf(validate, translator, "attstatus", "invalid attendance status", Statuses...)
}

// Mark records attendance for one student and day, replacing any previous mark.
func (svc *Service) Mark(ctx context.Context, markedBy string, nr NewRecord) (Record, error) {
	nr.clean()
	if err := svc.validate.Struct(nr); err != nil {
		return Record{}, err
	}
	date, err := time.Parse("2006-01-02", nr.Date)
	if err != nil {
		return Record{}, core.NewFieldValidationError("date", "invalid date")
	}

	now := core.NowFunc()
	rec, err := svc.repo.UpsertRecord(ctx, Record{
		StudentID:        nr.StudentID,
		Date:             core.StartOfDay(date),
		Status:           nr.Status,
		CurfewViolation:  nr.CurfewViolation,
		ViolationMinutes: nr.ViolationMinutes,
		MarkedBy:         markedBy,
		Remarks:          nr.Remarks,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	return rec, pkgerrors.Wrap(err, "upserting attendance")
}

// MarkLeave marks every day touched by [from, to] as ON_LEAVE for the student.
// Days that already carry a non-leave mark are left untouched.
func (svc *Service) MarkLeave(ctx context.Context, studentID string, from, to time.Time, remarks string) (int, error) {
	existing, err := svc.repo.QueryRecords(ctx, &QueryFilter{StudentID: studentID, From: from, To: to}, nil)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "querying attendance")
	}
	marked := make(map[time.Time]bool, len(existing))
	for _, rec := range existing {
		if rec.Status != StatusOnLeave {
			marked[core.StartOfDay(rec.Date)] = true
		}
	}

	var count int
	now := core.NowFunc()
	for _, day := range core.DaysBetween(from, to) {
		if marked[day] {
			continue
		}
		if _, err := svc.repo.UpsertRecord(ctx, Record{
			StudentID: studentID,
			Date:      day,
			Status:    StatusOnLeave,
			MarkedBy:  markedBySystem,
			Remarks:   remarks,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			return count, pkgerrors.Wrapf(err, "marking %s", day.Format("2006-01-02"))
		}
		count++
	}
	return count, nil
}

// ClearLeave removes the ON_LEAVE marks that MarkLeave wrote over [from, to] with the same remarks.
// Marks left by a warden, or by another leave, are kept.
func (svc *Service) ClearLeave(ctx context.Context, studentID string, from, to time.Time, remarks string) (int, error) {
	existing, err := svc.repo.QueryRecords(ctx, &QueryFilter{StudentID: studentID, Status: StatusOnLeave, From: from, To: to}, nil)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "querying attendance")
	}
	var count int
	for _, rec := range existing {
		if rec.MarkedBy != markedBySystem || rec.Remarks != remarks {
			continue
		}
		if err := svc.repo.DeleteRecord(ctx, rec.ID); err != nil {
			return count, pkgerrors.Wrapf(err, "clearing %s", rec.Date.Format("2006-01-02"))
		}
		count++
	}
	return count, nil
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]Record, error) {
	return svc.repo.QueryRecords(ctx, filter, ordering)
}

// StudentHistory returns every attendance record of a student, oldest first.
func (svc *Service) StudentHistory(ctx context.Context, studentID string) ([]Record, error) {
	return svc.repo.QueryRecords(ctx, &QueryFilter{StudentID: studentID}, []core.DBOrdering{{Field: "date", Ascending: true}})
}

var csvHeader = []string{"student_id", "date", "status", "curfew_violation", "violation_minutes", "marked_by", "remarks"}

// ExportCSV writes the records matching filter as CSV.
func (svc *Service) ExportCSV(ctx context.Context, w io.Writer, filter *QueryFilter) error {
	records, err := svc.repo.QueryRecords(ctx, filter, []core.DBOrdering{{Field: "date", Ascending: true}})
	if err != nil {
		return pkgerrors.Wrap(err, "querying attendance")
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, rec := range records {
		row := []string{
			rec.StudentID,
			rec.Date.Format("2006-01-02"),
			string(rec.Status),
			strconv.FormatBool(rec.CurfewViolation),
			strconv.Itoa(rec.ViolationMinutes),
			rec.MarkedBy,
			rec.Remarks,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
