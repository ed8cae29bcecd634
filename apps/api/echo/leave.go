package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/leave"
	"github.com/arjuunns/Smart-hostel/core/user"
)

type leaveApi struct {
	svc *leave.Service
}

func (s *Server) registerLeaveAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	api := leaveApi{svc: s.LeaveSvc}

	lg := g.Group("/leaves", authed...)
	lg.POST("", api.apply, requireCapability(user.CapLeaveApply))
	lg.GET("", api.query, requireCapability(user.CapLeaveReview))
	lg.GET("/mine", api.mine)
	lg.GET("/export", api.export, requireCapability(user.CapReportsExport))

	// detail endpoints
	lg.GET("/:id", api.retrieve)
	lg.POST("/:id/decision", api.decide, requireCapability(user.CapLeaveReview))
	lg.GET("/:id/gate-pass", api.gatePass)
	lg.GET("/:id/gate-pass/qr", api.gatePassQR)
}

type ApplyResponse struct {
	Leave      leave.Request    `json:"leave"`
	Assessment leave.Assessment `json:"assessment"`
}

// Handlers

func (api *leaveApi) apply(ctx echo.Context) error {
	var data leave.Application
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Application")
	}
	student, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	req, assessment, err := api.svc.Apply(ctx.Request().Context(), student, data)
	if err != nil {
		return errors.Wrap(err, "applying for leave")
	}
	return ctx.JSON(http.StatusCreated, ApplyResponse{Leave: req, Assessment: assessment})
}

func (api *leaveApi) query(ctx echo.Context) error {
	filter, err := bindLeaveFilter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	leaves, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying leaves")
	}
	return ctx.JSON(http.StatusOK, nonNilLeaves(leaves))
}

func (api *leaveApi) mine(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	leaves, err := api.svc.StudentLeaves(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying student leaves")
	}
	return ctx.JSON(http.StatusOK, nonNilLeaves(leaves))
}

func (api *leaveApi) export(ctx echo.Context) error {
	filter, err := bindLeaveFilter(ctx)
	if err != nil {
		return err
	}
	writeCSVHeader(ctx, "leaves")
	return errors.Wrap(api.svc.ExportCSV(ctx.Request().Context(), ctx.Response(), filter), "exporting leaves")
}

func (api *leaveApi) retrieve(ctx echo.Context) error {
	req, err := api.object(ctx, user.CapLeaveReview)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *leaveApi) decide(ctx echo.Context) error {
	var data leave.Review
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to Review")
	}
	reviewer, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	req, err := api.svc.Decide(ctx.Request().Context(), reviewer, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "deciding leave")
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *leaveApi) gatePass(ctx echo.Context) error {
	req, err := api.object(ctx, user.CapLeaveReview, user.CapGateScan)
	if err != nil {
		return err
	}
	gp, err := api.svc.GatePass(ctx.Request().Context(), req.ID)
	if err != nil {
		return errors.Wrap(err, "finding gate pass")
	}
	return ctx.JSON(http.StatusOK, gp)
}

func (api *leaveApi) gatePassQR(ctx echo.Context) error {
	req, err := api.object(ctx, user.CapLeaveReview, user.CapGateScan)
	if err != nil {
		return err
	}
	_, png, err := api.svc.GatePassQR(ctx.Request().Context(), req.ID)
	if err != nil {
		return errors.Wrap(err, "rendering gate pass")
	}
	return ctx.Blob(http.StatusOK, "image/png", png)
}

// object loads the leave of the ":id" param; students only see their own.
func (api *leaveApi) object(ctx echo.Context, cpbs ...string) (leave.Request, error) {
	req, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return leave.Request{}, errors.Wrap(err, "finding leave")
	}
	if err := selfOrCapability(ctx, req.StudentID, cpbs...); err != nil {
		return leave.Request{}, err
	}
	return req, nil
}

func bindLeaveFilter(ctx echo.Context) (*leave.QueryFilter, error) {
	from, err := queryTime(ctx, "from")
	if err != nil {
		return nil, err
	}
	to, err := queryTime(ctx, "to")
	if err != nil {
		return nil, err
	}
	if !to.IsZero() && isDate(ctx.QueryParam("to")) {
		to = core.EndOfDay(to)
	}

	filter := &leave.QueryFilter{
		StudentID: core.CleanString(ctx.QueryParam("student_id")),
		Type:      leave.Type(queryUpper(ctx, "type")),
		From:      from,
		To:        to,
	}
	for _, st := range queryList(ctx, "status", true) {
		filter.Statuses = append(filter.Statuses, leave.Status(st))
	}
	return filter, nil
}

func nonNilLeaves(leaves []leave.Request) []leave.Request {
	if leaves == nil {
		return []leave.Request{}
	}
	return leaves
}

func writeCSVHeader(ctx echo.Context, name string) {
	filename := name + "-" + core.NowFunc().Format("20060102") + ".csv"
	ctx.Response().Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	ctx.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+filename+`"`)
	ctx.Response().WriteHeader(http.StatusOK)
}

func queryUpper(ctx echo.Context, name string) string {
	if list := queryList(ctx, name, true); len(list) > 0 {
		return list[0]
	}
	return ""
}
