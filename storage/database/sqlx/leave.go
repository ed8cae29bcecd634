package sqlxrepos

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/leave"
)

const (
	leaveColumns = `id, student_id, type, from_time, to_time, reason, destination, status,
	risk_score, risk_category, risk_factors, ai_decision, ai_reason, ai_confidence,
	reviewed_by, reviewer_remarks, decided_at, exited_at, returned_at, created_at, updated_at`
	gatePassColumns = `id, leave_id, student_id, valid_from, valid_to, issued_at`
)

var leaveOrderings = map[string]string{
	"created_at": "created_at",
	"from":       "from_time",
	"to":         "to_time",
	"status":     "status",
	"risk_score": "risk_score",
	"type":       "type",
}

type leaveRow struct {
	ID              string         `db:"id"`
	StudentID       string         `db:"student_id"`
	Type            string         `db:"type"`
	From            time.Time      `db:"from_time"`
	To              time.Time      `db:"to_time"`
	Reason          string         `db:"reason"`
	Destination     null.String    `db:"destination"`
	Status          string         `db:"status"`
	RiskScore       int            `db:"risk_score"`
	RiskCategory    string         `db:"risk_category"`
	RiskFactors     types.JSONText `db:"risk_factors"`
	AIDecision      string         `db:"ai_decision"`
	AIReason        null.String    `db:"ai_reason"`
	AIConfidence    float64        `db:"ai_confidence"`
	ReviewedBy      null.String    `db:"reviewed_by"`
	ReviewerRemarks null.String    `db:"reviewer_remarks"`
	DecidedAt       null.Time      `db:"decided_at"`
	ExitedAt        null.Time      `db:"exited_at"`
	ReturnedAt      null.Time      `db:"returned_at"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func toLeaveRow(req leave.Request) (leaveRow, error) {
	factors, err := json.Marshal(req.RiskFactors)
	if err != nil {
		return leaveRow{}, errors.Wrap(err, "encoding risk factors")
	}
	return leaveRow{
		ID:              req.ID,
		StudentID:       req.StudentID,
		Type:            string(req.Type),
		From:            req.From.UTC(),
		To:              req.To.UTC(),
		Reason:          req.Reason,
		Destination:     null.NewString(req.Destination, req.Destination != ""),
		Status:          string(req.Status),
		RiskScore:       req.RiskScore,
		RiskCategory:    req.RiskCategory,
		RiskFactors:     types.JSONText(factors),
		AIDecision:      string(req.AIDecision),
		AIReason:        null.NewString(req.AIReason, req.AIReason != ""),
		AIConfidence:    req.AIConfidence,
		ReviewedBy:      null.NewString(req.ReviewedBy, req.ReviewedBy != ""),
		ReviewerRemarks: null.NewString(req.ReviewerRemarks, req.ReviewerRemarks != ""),
		DecidedAt:       req.DecidedAt,
		ExitedAt:        req.ExitedAt,
		ReturnedAt:      req.ReturnedAt,
		CreatedAt:       req.CreatedAt.UTC(),
		UpdatedAt:       req.UpdatedAt.UTC(),
	}, nil
}

func (r leaveRow) request() (leave.Request, error) {
	var factors leave.Factors
	if len(r.RiskFactors) > 0 {
		if err := r.RiskFactors.Unmarshal(&factors); err != nil {
			return leave.Request{}, errors.Wrapf(err, "decoding risk factors of leave %s", r.ID)
		}
	}
	return leave.Request{
		ID:              r.ID,
		StudentID:       r.StudentID,
		Type:            leave.Type(r.Type),
		From:            r.From.UTC(),
		To:              r.To.UTC(),
		Reason:          r.Reason,
		Destination:     r.Destination.String,
		Status:          leave.Status(r.Status),
		RiskScore:       r.RiskScore,
		RiskCategory:    r.RiskCategory,
		RiskFactors:     factors,
		AIDecision:      leave.Decision(r.AIDecision),
		AIReason:        r.AIReason.String,
		AIConfidence:    r.AIConfidence,
		ReviewedBy:      r.ReviewedBy.String,
		ReviewerRemarks: r.ReviewerRemarks.String,
		DecidedAt:       r.DecidedAt,
		ExitedAt:        r.ExitedAt,
		ReturnedAt:      r.ReturnedAt,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}, nil
}

type gatePassRow struct {
	ID        string    `db:"id"`
	LeaveID   string    `db:"leave_id"`
	StudentID string    `db:"student_id"`
	ValidFrom time.Time `db:"valid_from"`
	ValidTo   time.Time `db:"valid_to"`
	IssuedAt  time.Time `db:"issued_at"`
}

func (r gatePassRow) gatePass() leave.GatePass {
	return leave.GatePass{
		ID:        r.ID,
		LeaveID:   r.LeaveID,
		StudentID: r.StudentID,
		ValidFrom: r.ValidFrom.UTC(),
		ValidTo:   r.ValidTo.UTC(),
		IssuedAt:  r.IssuedAt.UTC(),
	}
}

type leaveRepository struct {
	db core.DBExecutor
}

var _ leave.Repository = (*leaveRepository)(nil) // interface compliance check

func NewLeaveRepository(db core.DBExecutor) *leaveRepository {
	return &leaveRepository{db: db}
}

func (repo *leaveRepository) CreateLeave(ctx context.Context, req leave.Request) (leave.Request, error) {
	req.ID = uuid.New().String()
	row, err := toLeaveRow(req)
	if err != nil {
		return leave.Request{}, err
	}
	q := `INSERT INTO leave_request (` + leaveColumns + `) VALUES (
		:id, :student_id, :type, :from_time, :to_time, :reason, :destination, :status,
		:risk_score, :risk_category, :risk_factors, :ai_decision, :ai_reason, :ai_confidence,
		:reviewed_by, :reviewer_remarks, :decided_at, :exited_at, :returned_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, row); err != nil {
		return leave.Request{}, errors.Wrap(err, "inserting leave")
	}
	return req, nil
}

func (repo *leaveRepository) GetLeave(ctx context.Context, id string) (leave.Request, error) {
	if _, err := uuid.Parse(id); err != nil {
		return leave.Request{}, leave.ErrNotFound
	}
	var row leaveRow
	q := `SELECT ` + leaveColumns + ` FROM leave_request WHERE id = $1`
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		return leave.Request{}, trapNoRowsErr(err, leave.ErrNotFound, "finding leave")
	}
	return row.request()
}

func (repo *leaveRepository) QueryLeaves(ctx context.Context, filter *leave.QueryFilter, ordering []core.DBOrdering) ([]leave.Request, error) {
	var where conditions
	if filter != nil {
		if filter.StudentID != "" {
			where.add("student_id = ?", filter.StudentID)
		}
		if len(filter.Statuses) > 0 {
			statuses := make([]string, 0, len(filter.Statuses))
			for _, s := range filter.Statuses {
				statuses = append(statuses, string(s))
			}
			where.add("status IN (?)", statuses)
		}
		if filter.Type != "" {
			where.add("type = ?", string(filter.Type))
		}
		if !filter.From.IsZero() {
			where.add("to_time >= ?", filter.From.UTC())
		}
		if !filter.To.IsZero() {
			where.add("from_time <= ?", filter.To.UTC())
		}
		if filter.OutOnly {
			where.add("exited_at IS NOT NULL AND returned_at IS NULL")
		}
	}

	q, args, err := sqlx.In(`SELECT `+leaveColumns+` FROM leave_request`+where.String()+orderBy(ordering, leaveOrderings, "created_at DESC"), where.args...)
	if err != nil {
		return nil, errors.Wrap(err, "building leaves query")
	}
	var rows []leaveRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying leaves")
	}
	leaves := make([]leave.Request, 0, len(rows))
	for _, r := range rows {
		req, err := r.request()
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, req)
	}
	return leaves, nil
}

func (repo *leaveRepository) UpdateLeave(ctx context.Context, req leave.Request) (leave.Request, error) {
	row, err := toLeaveRow(req)
	if err != nil {
		return leave.Request{}, err
	}
	// the risk snapshot is written once, at creation
	q := `UPDATE leave_request SET
		status = :status, reviewed_by = :reviewed_by, reviewer_remarks = :reviewer_remarks,
		decided_at = :decided_at, exited_at = :exited_at, returned_at = :returned_at, updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, repo.db, q, row)
	if err != nil {
		return leave.Request{}, errors.Wrap(err, "updating leave")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return leave.Request{}, leave.ErrNotFound
	}
	return req, nil
}

func (repo *leaveRepository) CreateGatePass(ctx context.Context, gp leave.GatePass) (leave.GatePass, error) {
	q := `INSERT INTO gate_pass (` + gatePassColumns + `) VALUES (:id, :leave_id, :student_id, :valid_from, :valid_to, :issued_at)
		ON CONFLICT (leave_id) DO NOTHING`
	row := gatePassRow{
		ID:        gp.ID,
		LeaveID:   gp.LeaveID,
		StudentID: gp.StudentID,
		ValidFrom: gp.ValidFrom.UTC(),
		ValidTo:   gp.ValidTo.UTC(),
		IssuedAt:  gp.IssuedAt.UTC(),
	}
	if _, err := sqlx.NamedExecContext(ctx, repo.db, q, row); err != nil {
		return leave.GatePass{}, errors.Wrap(err, "inserting gate pass")
	}
	// the stored pass wins over gp when one already existed
	return repo.GetLeaveGatePass(ctx, gp.LeaveID)
}

func (repo *leaveRepository) getGatePass(ctx context.Context, column, value string) (leave.GatePass, error) {
	var row gatePassRow
	q := `SELECT ` + gatePassColumns + ` FROM gate_pass WHERE ` + column + ` = $1`
	if err := repo.db.GetContext(ctx, &row, q, value); err != nil {
		return leave.GatePass{}, trapNoRowsErr(err, leave.ErrGatePassNotFound, "finding gate pass")
	}
	return row.gatePass(), nil
}

func (repo *leaveRepository) GetGatePass(ctx context.Context, id string) (leave.GatePass, error) {
	return repo.getGatePass(ctx, "id", id)
}

func (repo *leaveRepository) GetLeaveGatePass(ctx context.Context, leaveID string) (leave.GatePass, error) {
	if _, err := uuid.Parse(leaveID); err != nil {
		return leave.GatePass{}, leave.ErrGatePassNotFound
	}
	return repo.getGatePass(ctx, "leave_id", leaveID)
}
