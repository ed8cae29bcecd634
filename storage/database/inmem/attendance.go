package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/attendance"
)

type attendanceRepository struct {
	db *attendanceTable
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) *attendanceRepository {
	return &attendanceRepository{db: db.attendance}
}

func attendanceKey(rec attendance.Record) string {
	return rec.StudentID + "/" + rec.Date.Format("2006-01-02")
}

func (repo *attendanceRepository) UpsertRecord(_ context.Context, rec attendance.Record) (attendance.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	rec.Date = core.StartOfDay(rec.Date)
	key := attendanceKey(rec)
	if prev, ok := repo.db.table[key]; ok {
		rec.ID = prev.ID
		rec.CreatedAt = prev.CreatedAt
	} else {
		rec.ID = uuid.New().String()
	}
	repo.db.table[key] = &rec
	return rec, nil
}

func (repo *attendanceRepository) DeleteRecord(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for key, rec := range repo.db.table {
		if rec.ID == id {
			delete(repo.db.table, key)
			return nil
		}
	}
	return attendance.ErrNotFound
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, filter *attendance.QueryFilter, ordering []core.DBOrdering) ([]attendance.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	records := make([]attendance.Record, 0, len(repo.db.table))
	for _, rec := range repo.db.table {
		if filter != nil {
			if filter.StudentID != "" && rec.StudentID != filter.StudentID {
				continue
			}
			if filter.Status != "" && rec.Status != filter.Status {
				continue
			}
			if !filter.From.IsZero() && rec.Date.Before(core.StartOfDay(filter.From)) {
				continue
			}
			if !filter.To.IsZero() && rec.Date.After(core.StartOfDay(filter.To)) {
				continue
			}
		}
		records = append(records, *rec)
	}

	fields := map[string]lessFunc{
		"date":       func(i, j int) int { return cmpTime(records[i].Date, records[j].Date) },
		"status":     func(i, j int) int { return cmpString(string(records[i].Status), string(records[j].Status)) },
		"student_id": func(i, j int) int { return cmpString(records[i].StudentID, records[j].StudentID) },
		"created_at": func(i, j int) int { return cmpTime(records[i].CreatedAt, records[j].CreatedAt) },
	}
	swap := func(i, j int) { records[i], records[j] = records[j], records[i] }
	sortRows(len(records), swap, ordering, fields, []core.DBOrdering{{Field: "date"}, {Field: "student_id", Ascending: true}})
	return records, nil
}
