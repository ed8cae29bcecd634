package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/calendar"
)

type calendarRepository struct {
	db *calendarTable
}

var _ calendar.Repository = (*calendarRepository)(nil) // interface compliance check

func NewCalendarRepository(db *DB) *calendarRepository {
	return &calendarRepository{db: db.calendar}
}

func (repo *calendarRepository) CreateEvent(_ context.Context, evt calendar.Event) (calendar.Event, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	evt.ID = uuid.New().String()
	repo.db.table[evt.ID] = &evt
	return evt, nil
}

func (repo *calendarRepository) GetEvent(_ context.Context, id string) (calendar.Event, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if evt, ok := repo.db.table[id]; ok {
		return *evt, nil
	}
	return calendar.Event{}, calendar.ErrNotFound
}

func (repo *calendarRepository) QueryEvents(_ context.Context, filter *calendar.QueryFilter) ([]calendar.Event, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	events := make([]calendar.Event, 0, len(repo.db.table))
	for _, evt := range repo.db.table {
		if filter != nil {
			if filter.ActiveOnly && !evt.IsActive {
				continue
			}
			if filter.Type != "" && evt.Type != filter.Type {
				continue
			}
			if filter.Policy != "" && evt.LeavePolicy != filter.Policy {
				continue
			}
			if !filter.OverlapFrom.IsZero() && !filter.OverlapTo.IsZero() && !evt.Overlaps(filter.OverlapFrom, filter.OverlapTo) {
				continue
			}
		}
		events = append(events, *evt)
	}

	fields := map[string]lessFunc{
		"priority":   func(i, j int) int { return cmpInt(events[i].Priority, events[j].Priority) },
		"start_date": func(i, j int) int { return cmpTime(events[i].StartDate, events[j].StartDate) },
		"id":         func(i, j int) int { return cmpString(events[i].ID, events[j].ID) },
	}
	swap := func(i, j int) { events[i], events[j] = events[j], events[i] }
	sortRows(len(events), swap, nil, fields, []core.DBOrdering{
		{Field: "priority"},
		{Field: "start_date", Ascending: true},
		{Field: "id", Ascending: true},
	})
	return events, nil
}

func (repo *calendarRepository) UpdateEvent(_ context.Context, evt calendar.Event) (calendar.Event, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[evt.ID]; !ok {
		return calendar.Event{}, calendar.ErrNotFound
	}
	repo.db.table[evt.ID] = &evt
	return evt, nil
}

func (repo *calendarRepository) DeleteEvent(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.table[id]; !ok {
		return calendar.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}
