package echoapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/leave"
	"github.com/arjuunns/Smart-hostel/core/risk"
	"github.com/arjuunns/Smart-hostel/core/user"
)

type riskApi struct {
	predictor *risk.Predictor
	users     *user.Service
	validate  *validator.Validate
}

func (s *Server) registerRiskAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	api := riskApi{predictor: s.Predictor, users: s.UserSvc, validate: s.Validate}

	rg := g.Group("/risk", authed...)
	rg.POST("/predict", api.predict)
	rg.GET("/dashboard", api.dashboard, requireCapability(user.CapRiskDashboard))
	rg.GET("/stats", api.queryStats, requireCapability(user.CapRiskDashboard))
	rg.POST("/stats/refresh", api.refreshStats, requireCapability(user.CapStatsRefresh))
	rg.GET("/stats/:studentID", api.retrieveStats)
	rg.GET("/patterns/:studentID", api.patterns)
}

type (
	PredictRequest struct {
		StudentID string     `json:"student_id"`
		Type      leave.Type `json:"type" validate:"required,leavetype"`
		From      string     `json:"from" validate:"required"`
		To        string     `json:"to" validate:"required"`
		Reason    string     `json:"reason" validate:"max=1000"`
	}

	RefreshRequest struct {
		StudentID string `json:"student_id"`
	}
)

func (pr *PredictRequest) Validate(validate *validator.Validate) error {
	pr.StudentID = core.CleanString(pr.StudentID)
	pr.Type = leave.Type(strings.ToUpper(core.CleanString(string(pr.Type))))
	pr.From = core.CleanString(pr.From)
	pr.To = core.CleanString(pr.To)
	pr.Reason = core.CleanString(pr.Reason)
	return validate.Struct(pr)
}

// Handlers

// predict previews the assessment of a leave; only the student's statistics are refreshed.
func (api *riskApi) predict(ctx echo.Context) error {
	var data PredictRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PredictRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	from, to, err := leave.ParseWindow(data.From, data.To, core.NowFunc())
	if err != nil {
		return err
	}

	student, err := api.student(ctx, data.StudentID)
	if err != nil {
		return err
	}
	pred, err := api.predictor.Predict(ctx.Request().Context(), risk.PredictionRequest{
		Student: student,
		Type:    data.Type,
		From:    from,
		To:      to,
		Reason:  data.Reason,
	})
	if err != nil {
		return errors.Wrap(err, "predicting leave")
	}
	return ctx.JSON(http.StatusOK, pred)
}

func (api *riskApi) dashboard(ctx echo.Context) error {
	dash, err := api.predictor.PredictPending(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "predicting pending leaves")
	}
	if dash.Items == nil {
		dash.Items = []risk.PendingItem{}
	}
	return ctx.JSON(http.StatusOK, dash)
}

func (api *riskApi) queryStats(ctx echo.Context) error {
	filter := &risk.StatsFilter{Category: risk.Category(queryUpper(ctx, "category"))}
	if val := ctx.QueryParam("min_score"); val != "" {
		score, err := strconv.Atoi(val)
		if err != nil {
			return core.NewFieldValidationError("min_score", "must be an integer")
		}
		filter.MinScore = score
	}

	stats, err := api.predictor.Stats().Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying stats")
	}
	if stats == nil {
		stats = []risk.StudentStatistics{}
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *riskApi) retrieveStats(ctx echo.Context) error {
	student, err := api.param(ctx)
	if err != nil {
		return err
	}
	stats, err := api.predictor.Stats().Get(ctx.Request().Context(), student.ID)
	if err != nil {
		return errors.Wrap(err, "getting stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *riskApi) refreshStats(ctx echo.Context) error {
	var data RefreshRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshRequest")
	}
	rctx := ctx.Request().Context()

	if id := core.CleanString(data.StudentID); id != "" {
		student, err := api.users.GetByID(rctx, id)
		if err != nil {
			return errors.Wrap(err, "finding student")
		}
		stats, err := api.predictor.Stats().Refresh(rctx, student.ID)
		if err != nil {
			return errors.Wrap(err, "refreshing stats")
		}
		return ctx.JSON(http.StatusOK, stats)
	}

	report, err := api.predictor.Stats().RefreshAll(rctx, api.users)
	if err != nil {
		return errors.Wrap(err, "refreshing all stats")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *riskApi) patterns(ctx echo.Context) error {
	student, err := api.param(ctx)
	if err != nil {
		return err
	}
	report, err := api.predictor.Patterns(ctx.Request().Context(), student.ID)
	if err != nil {
		return errors.Wrap(err, "detecting patterns")
	}
	return ctx.JSON(http.StatusOK, report)
}

// param loads the student of the ":studentID" param; students only see themselves.
func (api *riskApi) param(ctx echo.Context) (user.User, error) {
	id := ctx.Param("studentID")
	if err := selfOrCapability(ctx, id, user.CapRiskDashboard); err != nil {
		return user.User{}, err
	}
	student, err := api.users.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return user.User{}, errors.Wrap(err, "finding student")
	}
	return student, nil
}

// student resolves whose leave a prediction is for: the context user unless a dashboard user names someone else.
func (api *riskApi) student(ctx echo.Context, id string) (user.User, error) {
	usr, err := getContextUser(ctx)
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting context user")
	}
	if id == "" || id == usr.ID {
		return usr, nil
	}
	if !usr.Can(user.CapRiskDashboard) {
		return user.User{}, errHttpForbidden
	}
	student, err := api.users.GetByID(ctx.Request().Context(), id)
	if err != nil {
		return user.User{}, errors.Wrap(err, "finding student")
	}
	return student, nil
}
