package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/attendance"
)

const attendanceColumns = `id, student_id, date, status, curfew_violation, violation_minutes, marked_by, remarks, created_at, updated_at`

var attendanceOrderings = map[string]string{
	"date":       "date",
	"status":     "status",
	"student_id": "student_id",
	"created_at": "created_at",
}

type attendanceRow struct {
	ID               string      `db:"id"`
	StudentID        string      `db:"student_id"`
	Date             time.Time   `db:"date"`
	Status           string      `db:"status"`
	CurfewViolation  bool        `db:"curfew_violation"`
	ViolationMinutes int         `db:"violation_minutes"`
	MarkedBy         string      `db:"marked_by"`
	Remarks          null.String `db:"remarks"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

func (r attendanceRow) record() attendance.Record {
	return attendance.Record{
		ID:               r.ID,
		StudentID:        r.StudentID,
		Date:             core.StartOfDay(r.Date),
		Status:           attendance.Status(r.Status),
		CurfewViolation:  r.CurfewViolation,
		ViolationMinutes: r.ViolationMinutes,
		MarkedBy:         r.MarkedBy,
		Remarks:          r.Remarks.String,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

type attendanceRepository struct {
	db core.DBExecutor
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db core.DBExecutor) *attendanceRepository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) UpsertRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	// created_at and id survive the update
	q := `INSERT INTO attendance (` + attendanceColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (student_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			curfew_violation = EXCLUDED.curfew_violation,
			violation_minutes = EXCLUDED.violation_minutes,
			marked_by = EXCLUDED.marked_by,
			remarks = EXCLUDED.remarks,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + attendanceColumns

	var row attendanceRow
	err := repo.db.GetContext(ctx, &row, repo.db.Rebind(q),
		uuid.New().String(),
		rec.StudentID,
		core.StartOfDay(rec.Date),
		string(rec.Status),
		rec.CurfewViolation,
		rec.ViolationMinutes,
		rec.MarkedBy,
		null.NewString(rec.Remarks, rec.Remarks != ""),
		rec.CreatedAt.UTC(),
		rec.UpdatedAt.UTC(),
	)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "upserting attendance")
	}
	return row.record(), nil
}

func (repo *attendanceRepository) DeleteRecord(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return attendance.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM attendance WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting attendance")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return attendance.ErrNotFound
	}
	return nil
}

func (repo *attendanceRepository) QueryRecords(ctx context.Context, filter *attendance.QueryFilter, ordering []core.DBOrdering) ([]attendance.Record, error) {
	var where conditions
	if filter != nil {
		if filter.StudentID != "" {
			where.add("student_id = ?", filter.StudentID)
		}
		if filter.Status != "" {
			where.add("status = ?", string(filter.Status))
		}
		if !filter.From.IsZero() {
			where.add("date >= ?::date", filter.From.UTC())
		}
		if !filter.To.IsZero() {
			where.add("date <= ?::date", filter.To.UTC())
		}
	}

	q := `SELECT ` + attendanceColumns + ` FROM attendance` + where.String() + orderBy(ordering, attendanceOrderings, "date DESC, student_id")
	var rows []attendanceRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), where.args...); err != nil {
		return nil, errors.Wrap(err, "querying attendance")
	}
	records := make([]attendance.Record, 0, len(rows))
	for _, r := range rows {
		records = append(records, r.record())
	}
	return records, nil
}
