package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/risk"
)

type statsRepository struct {
	db *statsTable
}

var _ risk.StatsRepository = (*statsRepository)(nil) // interface compliance check

func NewStatsRepository(db *DB) *statsRepository {
	return &statsRepository{db: db.stats}
}

func (repo *statsRepository) GetStats(_ context.Context, studentID string) (risk.StudentStatistics, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if s, ok := repo.db.table[studentID]; ok {
		return *s, nil
	}
	return risk.StudentStatistics{}, risk.ErrStatsNotFound
}

func (repo *statsRepository) UpsertStats(_ context.Context, s risk.StudentStatistics) (risk.StudentStatistics, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if prev, ok := repo.db.table[s.StudentID]; ok {
		s.ID = prev.ID
	} else if s.ID == "" {
		s.ID = uuid.New().String()
	}
	repo.db.table[s.StudentID] = &s
	return s, nil
}

func (repo *statsRepository) QueryStats(_ context.Context, filter *risk.StatsFilter) ([]risk.StudentStatistics, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	all := make([]risk.StudentStatistics, 0, len(repo.db.table))
	for _, s := range repo.db.table {
		if filter != nil {
			if filter.Category != "" && s.RiskCategory != filter.Category {
				continue
			}
			if s.OverallRiskScore < filter.MinScore {
				continue
			}
		}
		all = append(all, *s)
	}

	fields := map[string]lessFunc{
		"score":      func(i, j int) int { return cmpInt(all[i].OverallRiskScore, all[j].OverallRiskScore) },
		"student_id": func(i, j int) int { return cmpString(all[i].StudentID, all[j].StudentID) },
	}
	swap := func(i, j int) { all[i], all[j] = all[j], all[i] }
	sortRows(len(all), swap, nil, fields, []core.DBOrdering{{Field: "score"}, {Field: "student_id", Ascending: true}})
	return all, nil
}
