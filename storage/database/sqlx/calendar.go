package sqlxrepos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/calendar"
)

const eventColumns = `id, title, description, type, start_date, end_date, leave_policy, risk_modifier,
	hostel_blocks, courses, years, priority, is_active, created_by, created_at, updated_at`

type eventRow struct {
	ID           string         `db:"id"`
	Title        string         `db:"title"`
	Description  null.String    `db:"description"`
	Type         string         `db:"type"`
	StartDate    time.Time      `db:"start_date"`
	EndDate      time.Time      `db:"end_date"`
	LeavePolicy  string         `db:"leave_policy"`
	RiskModifier int            `db:"risk_modifier"`
	HostelBlocks pq.StringArray `db:"hostel_blocks"`
	Courses      pq.StringArray `db:"courses"`
	Years        pq.Int64Array  `db:"years"`
	Priority     int            `db:"priority"`
	IsActive     bool           `db:"is_active"`
	CreatedBy    null.String    `db:"created_by"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func toEventRow(evt calendar.Event) eventRow {
	return eventRow{
		ID:           evt.ID,
		Title:        evt.Title,
		Description:  null.NewString(evt.Description, evt.Description != ""),
		Type:         string(evt.Type),
		StartDate:    core.StartOfDay(evt.StartDate),
		EndDate:      core.StartOfDay(evt.EndDate),
		LeavePolicy:  string(evt.LeavePolicy),
		RiskModifier: evt.RiskModifier,
		HostelBlocks: pq.StringArray(nonNilStrings(evt.HostelBlocks)),
		Courses:      pq.StringArray(nonNilStrings(evt.Courses)),
		Years:        pq.Int64Array(nonNilInts(evt.Years)),
		Priority:     evt.Priority,
		IsActive:     evt.IsActive,
		CreatedBy:    null.NewString(evt.CreatedBy, evt.CreatedBy != ""),
		CreatedAt:    evt.CreatedAt.UTC(),
		UpdatedAt:    evt.UpdatedAt.UTC(),
	}
}

func (r eventRow) event() calendar.Event {
	return calendar.Event{
		ID:           r.ID,
		Title:        r.Title,
		Description:  r.Description.String,
		Type:         calendar.EventType(r.Type),
		StartDate:    core.StartOfDay(r.StartDate),
		EndDate:      core.StartOfDay(r.EndDate),
		LeavePolicy:  calendar.Policy(r.LeavePolicy),
		RiskModifier: r.RiskModifier,
		HostelBlocks: []string(r.HostelBlocks),
		Courses:      []string(r.Courses),
		Years:        []int64(r.Years),
		Priority:     r.Priority,
		IsActive:     r.IsActive,
		CreatedBy:    r.CreatedBy.String,
		CreatedAt:    r.CreatedAt.UTC(),
		UpdatedAt:    r.UpdatedAt.UTC(),
	}
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilInts(s []int64) []int64 {
	if s == nil {
		return []int64{}
	}
	return s
}

type calendarRepository struct {
	db core.DBExecutor
}

var _ calendar.Repository = (*calendarRepository)(nil) // interface compliance check

func NewCalendarRepository(db core.DBExecutor) *calendarRepository {
	return &calendarRepository{db: db}
}

func (repo *calendarRepository) CreateEvent(ctx context.Context, evt calendar.Event) (calendar.Event, error) {
	evt.ID = uuid.New().String()
	q := `INSERT INTO calendar_event (` + eventColumns + `) VALUES (
		:id, :title, :description, :type, :start_date, :end_date, :leave_policy, :risk_modifier,
		:hostel_blocks, :courses, :years, :priority, :is_active, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, toEventRow(evt)); err != nil {
		return calendar.Event{}, errors.Wrap(err, "inserting event")
	}
	return evt, nil
}

func (repo *calendarRepository) GetEvent(ctx context.Context, id string) (calendar.Event, error) {
	if _, err := uuid.Parse(id); err != nil {
		return calendar.Event{}, calendar.ErrNotFound
	}
	var row eventRow
	q := `SELECT ` + eventColumns + ` FROM calendar_event WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return calendar.Event{}, trapNoRowsErr(err, calendar.ErrNotFound, "finding event")
	}
	return row.event(), nil
}

func (repo *calendarRepository) QueryEvents(ctx context.Context, filter *calendar.QueryFilter) ([]calendar.Event, error) {
	var where conditions
	if filter != nil {
		if filter.ActiveOnly {
			where.add("is_active")
		}
		if filter.Type != "" {
			where.add("type = ?", string(filter.Type))
		}
		if filter.Policy != "" {
			where.add("leave_policy = ?", string(filter.Policy))
		}
		if !filter.OverlapFrom.IsZero() && !filter.OverlapTo.IsZero() {
			where.add("start_date <= ?::date AND end_date >= ?::date", filter.OverlapTo.UTC(), filter.OverlapFrom.UTC())
		}
	}

	q := `SELECT ` + eventColumns + ` FROM calendar_event` + where.String() + ` ORDER BY priority DESC, start_date`
	var rows []eventRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), where.args...); err != nil {
		return nil, errors.Wrap(err, "querying events")
	}
	events := make([]calendar.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.event())
	}
	return events, nil
}

func (repo *calendarRepository) UpdateEvent(ctx context.Context, evt calendar.Event) (calendar.Event, error) {
	q := `UPDATE calendar_event SET
		title = :title, description = :description, type = :type, start_date = :start_date, end_date = :end_date,
		leave_policy = :leave_policy, risk_modifier = :risk_modifier, hostel_blocks = :hostel_blocks,
		courses = :courses, years = :years, priority = :priority, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.db, q, toEventRow(evt))
	if err != nil {
		return calendar.Event{}, errors.Wrap(err, "updating event")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return calendar.Event{}, calendar.ErrNotFound
	}
	return evt, nil
}

func (repo *calendarRepository) DeleteEvent(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return calendar.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, `DELETE FROM calendar_event WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting event")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return calendar.ErrNotFound
	}
	return nil
}
