package risk

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/calendar"
	"github.com/arjuunns/Smart-hostel/core/leave"
	"github.com/arjuunns/Smart-hostel/core/user"
)

type (
	PredictionRequest struct {
		Student user.User
		Type    leave.Type
		From    time.Time
		To      time.Time
		Reason  string
	}

	Prediction struct {
		StudentID       string            `json:"student_id"`
		LeaveID         string            `json:"leave_id,omitempty"`
		RiskScore       int               `json:"risk_score"`
		RiskCategory    Category          `json:"risk_category"`
		Breakdown       []Component       `json:"breakdown"`
		Confidence      float64           `json:"confidence"`
		Decision        leave.Decision    `json:"decision"`
		Reason          string            `json:"reason"`
		AttentionPoints []string          `json:"attention_points"`
		Calendar        calendar.Analysis `json:"calendar"`
		Patterns        PatternReport     `json:"patterns"`
		Explanation     []string          `json:"explanation"`
	}

	Users interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// Predictor runs the scoring pipeline: statistics, calendar, score, decision and patterns.
	Predictor struct {
		cfg      Config
		stats    *Aggregator
		analyzer *calendar.Analyzer
		leaves   leave.Repository
		users    Users
		scorer   Scorer
		engine   DecisionEngine
		detector PatternDetector
		logger   core.Logger
	}
)

func NewPredictor(
	cfg Config,
	stats *Aggregator,
	analyzer *calendar.Analyzer,
	leaves leave.Repository,
	users Users,
	logger core.Logger,
) *Predictor {
	return &Predictor{
		cfg:      cfg,
		stats:    stats,
		analyzer: analyzer,
		leaves:   leaves,
		users:    users,
		scorer:   NewScorer(cfg),
		engine:   NewDecisionEngine(cfg),
		detector: NewPatternDetector(cfg),
		logger:   logger,
	}
}

func (p *Predictor) Stats() *Aggregator { return p.stats }

// RefreshStats implements leave.StatsRefresher.
func (p *Predictor) RefreshStats(ctx context.Context, studentID string) error {
	return p.stats.RefreshStats(ctx, studentID)
}

// Predict scores a prospective leave. Only the student's statistics are persisted.
func (p *Predictor) Predict(ctx context.Context, req PredictionRequest) (Prediction, error) {
	now := core.NowFunc()
	studentID := req.Student.ID

	stats, err := p.stats.Refresh(ctx, studentID)
	if err != nil {
		return Prediction{}, pkgerrors.Wrap(err, "refreshing stats")
	}
	scope := calendar.Scope{HostelBlock: req.Student.HostelBlock, Course: req.Student.Course, Year: req.Student.Year}
	cal, err := p.analyzer.Analyze(ctx, req.From, req.To, &scope)
	if err != nil {
		return Prediction{}, pkgerrors.Wrap(err, "analyzing calendar")
	}

	score := p.scorer.Score(ScoreInput{Stats: stats, Calendar: cal, Type: req.Type, From: req.From, To: req.To, Now: now})
	confidence := p.engine.Confidence(ConfidenceInput{Stats: stats, Calendar: cal, Reason: req.Reason, From: req.From, Now: now})
	outcome := p.engine.Decide(score.Score, confidence, cal, stats)

	history, err := p.leaves.QueryLeaves(ctx, &leave.QueryFilter{StudentID: studentID}, nil)
	if err != nil {
		return Prediction{}, pkgerrors.Wrap(err, "querying leaves")
	}
	patterns := p.detector.Detect(history, now)

	pred := Prediction{
		StudentID:       studentID,
		RiskScore:       score.Score,
		RiskCategory:    score.Category,
		Breakdown:       score.Breakdown,
		Confidence:      confidence,
		Decision:        outcome.Decision,
		Reason:          outcome.Reason,
		AttentionPoints: outcome.AttentionPoints,
		Calendar:        cal,
		Patterns:        patterns,
	}
	pred.Explanation = explain(pred, score.Modifier)
	return pred, nil
}

func explain(pred Prediction, modifier int) []string {
	lines := make([]string, 0, len(pred.Breakdown)+4)
	lines = append(lines, fmt.Sprintf("risk %d (%s), confidence %.2f: %s", pred.RiskScore, pred.RiskCategory, pred.Confidence, pred.Decision))
	for _, c := range pred.Breakdown {
		lines = append(lines, fmt.Sprintf("%s: %.2f x %.2f = %.2f", strings.ReplaceAll(c.Name, "_", " "), c.Raw, c.Weight, c.Weighted))
	}
	if modifier != 0 {
		lines = append(lines, fmt.Sprintf("calendar modifier: %+d", modifier))
	}
	lines = append(lines, pred.Calendar.Warnings...)
	for _, f := range pred.Patterns.Flags {
		lines = append(lines, fmt.Sprintf("pattern %s (%s): %s", f.Type, f.Severity, f.Description))
	}
	return lines
}

// Assess implements leave.Assessor.
func (p *Predictor) Assess(ctx context.Context, req leave.AssessmentRequest) (leave.Assessment, error) {
	pred, err := p.Predict(ctx, PredictionRequest{
		Student: req.Student,
		Type:    req.Type,
		From:    req.From,
		To:      req.To,
		Reason:  req.Reason,
	})
	if err != nil {
		return leave.Assessment{}, err
	}
	return leave.Assessment{
		RiskScore:    pred.RiskScore,
		RiskCategory: string(pred.RiskCategory),
		Decision:     pred.Decision,
		Reason:       pred.Reason,
		Confidence:   pred.Confidence,
		CanApply:     pred.Calendar.CanApply,
		Factors: leave.Factors{
			Components:       Components(pred.Breakdown),
			AttentionPoints:  pred.AttentionPoints,
			CalendarWarnings: pred.Calendar.Warnings,
			Patterns:         pred.Patterns.Flags,
			PatternLevel:     pred.Patterns.Level,
		},
	}, nil
}

// Patterns runs the pattern detector over the student's leave history.
func (p *Predictor) Patterns(ctx context.Context, studentID string) (PatternReport, error) {
	history, err := p.leaves.QueryLeaves(ctx, &leave.QueryFilter{StudentID: studentID}, nil)
	if err != nil {
		return PatternReport{}, pkgerrors.Wrap(err, "querying leaves")
	}
	return p.detector.Detect(history, core.NowFunc()), nil
}

// PendingItem is a dashboard entry: a leave awaiting review and its current prediction.
type PendingItem struct {
	Leave      leave.Request `json:"leave"`
	Student    user.User     `json:"student"`
	Prediction *Prediction   `json:"prediction,omitempty"`
	Error      string        `json:"error,omitempty"`
}

type Dashboard struct {
	Items  []PendingItem          `json:"items"`
	Counts map[leave.Decision]int `json:"counts"`
	Failed int                    `json:"failed"`
}

// PredictPending re-scores every PENDING or FLAGGED leave, riskiest first.
// A failed prediction is reported on its item and does not abort the batch.
func (p *Predictor) PredictPending(ctx context.Context) (Dashboard, error) {
	pending, err := p.leaves.QueryLeaves(ctx, &leave.QueryFilter{Statuses: []leave.Status{leave.StatusPending, leave.StatusFlagged}}, nil)
	if err != nil {
		return Dashboard{}, pkgerrors.Wrap(err, "querying pending leaves")
	}

	items := make([]PendingItem, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.ConcurrentPredictions)
	for i, l := range pending {
		i, l := i, l
		g.Go(func() error {
			items[i] = p.predictPending(gctx, l)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	dash := Dashboard{Items: items, Counts: make(map[leave.Decision]int)}
	for _, d := range []leave.Decision{leave.DecisionAutoApprove, leave.DecisionManualReview, leave.DecisionFlag, leave.DecisionReject} {
		dash.Counts[d] = 0
	}
	for _, item := range items {
		if item.Prediction == nil {
			dash.Failed++
			continue
		}
		dash.Counts[item.Prediction.Decision]++
	}
	sort.SliceStable(dash.Items, func(i, j int) bool {
		return itemScore(dash.Items[i]) > itemScore(dash.Items[j])
	})
	return dash, nil
}

func (p *Predictor) predictPending(ctx context.Context, l leave.Request) PendingItem {
	item := PendingItem{Leave: l}
	student, err := p.users.GetByID(ctx, l.StudentID)
	if err != nil {
		item.Error = pkgerrors.Wrap(err, "finding student").Error()
		return item
	}
	item.Student = student

	pred, err := p.Predict(ctx, PredictionRequest{Student: student, Type: l.Type, From: l.From, To: l.To, Reason: l.Reason})
	if err != nil {
		p.logger.Warn(fmt.Sprintf("predicting leave %s: %v", l.ID, err), err)
		item.Error = err.Error()
		return item
	}
	pred.LeaveID = l.ID
	item.Prediction = &pred
	return item
}

func itemScore(item PendingItem) int {
	if item.Prediction == nil {
		return -1
	}
	return item.Prediction.RiskScore
}
