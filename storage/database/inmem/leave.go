package inmemdb

import (
	"context"

	"github.com/google/uuid"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/leave"
)

type leaveRepository struct {
	db *leaveTable
}

var _ leave.Repository = (*leaveRepository)(nil) // interface compliance check

func NewLeaveRepository(db *DB) *leaveRepository {
	return &leaveRepository{db: db.leave}
}

func (repo *leaveRepository) CreateLeave(_ context.Context, req leave.Request) (leave.Request, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	req.ID = uuid.New().String()
	repo.db.table[req.ID] = &req
	return req, nil
}

func (repo *leaveRepository) GetLeave(_ context.Context, id string) (leave.Request, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if req, ok := repo.db.table[id]; ok {
		return *req, nil
	}
	return leave.Request{}, leave.ErrNotFound
}

func (repo *leaveRepository) QueryLeaves(_ context.Context, filter *leave.QueryFilter, ordering []core.DBOrdering) ([]leave.Request, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	leaves := make([]leave.Request, 0, len(repo.db.table))
	for _, req := range repo.db.table {
		if filter != nil && !matchLeave(*req, filter) {
			continue
		}
		leaves = append(leaves, *req)
	}

	fields := map[string]lessFunc{
		"created_at": func(i, j int) int { return cmpTime(leaves[i].CreatedAt, leaves[j].CreatedAt) },
		"from":       func(i, j int) int { return cmpTime(leaves[i].From, leaves[j].From) },
		"to":         func(i, j int) int { return cmpTime(leaves[i].To, leaves[j].To) },
		"status":     func(i, j int) int { return cmpString(string(leaves[i].Status), string(leaves[j].Status)) },
		"risk_score": func(i, j int) int { return cmpInt(leaves[i].RiskScore, leaves[j].RiskScore) },
		"type":       func(i, j int) int { return cmpString(string(leaves[i].Type), string(leaves[j].Type)) },
	}
	swap := func(i, j int) { leaves[i], leaves[j] = leaves[j], leaves[i] }
	sortRows(len(leaves), swap, ordering, fields, []core.DBOrdering{{Field: "created_at"}})
	return leaves, nil
}

func matchLeave(req leave.Request, filter *leave.QueryFilter) bool {
	if filter.StudentID != "" && req.StudentID != filter.StudentID {
		return false
	}
	if len(filter.Statuses) > 0 {
		var found bool
		for _, s := range filter.Statuses {
			if req.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Type != "" && req.Type != filter.Type {
		return false
	}
	if !filter.From.IsZero() && req.To.Before(filter.From) {
		return false
	}
	if !filter.To.IsZero() && req.From.After(filter.To) {
		return false
	}
	if filter.OutOnly && !req.IsOut() {
		return false
	}
	return true
}

func (repo *leaveRepository) UpdateLeave(_ context.Context, req leave.Request) (leave.Request, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stored, ok := repo.db.table[req.ID]
	if !ok {
		return leave.Request{}, leave.ErrNotFound
	}
	// the risk snapshot is written once, at creation
	updated := *stored
	updated.Status = req.Status
	updated.ReviewedBy = req.ReviewedBy
	updated.ReviewerRemarks = req.ReviewerRemarks
	updated.DecidedAt = req.DecidedAt
	updated.ExitedAt = req.ExitedAt
	updated.ReturnedAt = req.ReturnedAt
	updated.UpdatedAt = req.UpdatedAt
	repo.db.table[req.ID] = &updated
	return updated, nil
}

func (repo *leaveRepository) CreateGatePass(_ context.Context, gp leave.GatePass) (leave.GatePass, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if id, ok := repo.db.leavePass[gp.LeaveID]; ok {
		return *repo.db.gatePass[id], nil
	}
	repo.db.gatePass[gp.ID] = &gp
	repo.db.leavePass[gp.LeaveID] = gp.ID
	return gp, nil
}

func (repo *leaveRepository) GetGatePass(_ context.Context, id string) (leave.GatePass, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if gp, ok := repo.db.gatePass[id]; ok {
		return *gp, nil
	}
	return leave.GatePass{}, leave.ErrGatePassNotFound
}

func (repo *leaveRepository) GetLeaveGatePass(_ context.Context, leaveID string) (leave.GatePass, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if id, ok := repo.db.leavePass[leaveID]; ok {
		return *repo.db.gatePass[id], nil
	}
	return leave.GatePass{}, leave.ErrGatePassNotFound
}
