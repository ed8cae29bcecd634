package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/calendar"
	"github.com/arjuunns/Smart-hostel/core/user"
)

type calendarApi struct {
	svc      *calendar.Service
	analyzer *calendar.Analyzer
	validate *validator.Validate
}

func (s *Server) registerCalendarAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	api := calendarApi{svc: s.CalendarSvc, analyzer: s.Analyzer, validate: s.Validate}

	cg := g.Group("/calendar", authed...)
	cg.GET("", api.query)
	cg.POST("", api.create, requireCapability(user.CapCalendarManage))
	cg.POST("/check", api.check)

	// detail endpoints
	cg.GET("/:id", api.retrieve)
	cg.PUT("/:id", api.update, requireCapability(user.CapCalendarManage))
	cg.DELETE("/:id", api.destroy, requireCapability(user.CapCalendarManage))
}

type CheckRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

func (cr *CheckRequest) Validate(validate *validator.Validate) error {
	cr.From = core.CleanString(cr.From)
	cr.To = core.CleanString(cr.To)
	return validate.Struct(cr)
}

// Handlers

func (api *calendarApi) query(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	from, err := queryTime(ctx, "from")
	if err != nil {
		return err
	}
	to, err := queryTime(ctx, "to")
	if err != nil {
		return err
	}
	if !to.IsZero() && isDate(ctx.QueryParam("to")) {
		to = core.EndOfDay(to)
	}

	// only calendar managers see inactive events
	active := queryBool(ctx, "active")
	filter := &calendar.QueryFilter{
		ActiveOnly:  active == nil || *active || !usr.Can(user.CapCalendarManage),
		Type:        calendar.EventType(queryUpper(ctx, "type")),
		Policy:      calendar.Policy(queryUpper(ctx, "policy")),
		OverlapFrom: from,
		OverlapTo:   to,
	}

	events, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	if events == nil {
		events = []calendar.Event{}
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *calendarApi) create(ctx echo.Context) error {
	var data calendar.EventInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EventInput")
	}
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	evt, err := api.svc.Create(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating event")
	}
	return ctx.JSON(http.StatusCreated, evt)
}

func (api *calendarApi) retrieve(ctx echo.Context) error {
	evt, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding event")
	}
	return ctx.JSON(http.StatusOK, evt)
}

func (api *calendarApi) update(ctx echo.Context) error {
	var data calendar.EventInput
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to EventInput")
	}
	evt, err := api.svc.Update(ctx.Request().Context(), ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating event")
	}
	return ctx.JSON(http.StatusOK, evt)
}

func (api *calendarApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting event")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// check analyzes a prospective leave window against the events that apply to the context user.
func (api *calendarApi) check(ctx echo.Context) error {
	var data CheckRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CheckRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	from, err := parseTime("from", data.From)
	if err != nil {
		return err
	}
	to, err := parseTime("to", data.To)
	if err != nil {
		return err
	}
	if isDate(data.To) {
		to = core.EndOfDay(to)
	}
	if to.Before(from) {
		return core.NewFieldValidationError("to", "window must end after it starts")
	}

	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var scope *calendar.Scope
	if usr.IsStudent() {
		scope = &calendar.Scope{HostelBlock: usr.HostelBlock, Course: usr.Course, Year: usr.Year}
	}

	analysis, err := api.analyzer.Analyze(ctx.Request().Context(), from, to, scope)
	if err != nil {
		return errors.Wrap(err, "analyzing calendar")
	}
	return ctx.JSON(http.StatusOK, analysis)
}
