package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/attendance"
	"github.com/arjuunns/Smart-hostel/core/user"
)

type attendanceApi struct {
	svc *attendance.Service
}

func (s *Server) registerAttendanceAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	api := attendanceApi{svc: s.AttendanceSvc}

	ag := g.Group("/attendance", authed...)
	ag.POST("", api.mark, requireCapability(user.CapAttendanceMark))
	ag.GET("", api.query, requireCapability(user.CapAttendanceMark))
	ag.GET("/mine", api.mine)
	ag.GET("/export", api.export, requireCapability(user.CapReportsExport))
}

// Handlers

func (api *attendanceApi) mark(ctx echo.Context) error {
	var data attendance.NewRecord
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRecord")
	}
	warden, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	rec, err := api.svc.Mark(ctx.Request().Context(), warden.ID, data)
	if err != nil {
		return errors.Wrap(err, "marking attendance")
	}
	return ctx.JSON(http.StatusOK, rec)
}

func (api *attendanceApi) query(ctx echo.Context) error {
	filter, err := bindAttendanceFilter(ctx)
	if err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	records, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings)
	if err != nil {
		return errors.Wrap(err, "querying attendance")
	}
	return ctx.JSON(http.StatusOK, nonNilRecords(records))
}

func (api *attendanceApi) mine(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	records, err := api.svc.StudentHistory(ctx.Request().Context(), usr.ID)
	if err != nil {
		return errors.Wrap(err, "querying student attendance")
	}
	return ctx.JSON(http.StatusOK, nonNilRecords(records))
}

func (api *attendanceApi) export(ctx echo.Context) error {
	filter, err := bindAttendanceFilter(ctx)
	if err != nil {
		return err
	}
	writeCSVHeader(ctx, "attendance")
	return errors.Wrap(api.svc.ExportCSV(ctx.Request().Context(), ctx.Response(), filter), "exporting attendance")
}

func bindAttendanceFilter(ctx echo.Context) (*attendance.QueryFilter, error) {
	from, err := queryTime(ctx, "from")
	if err != nil {
		return nil, err
	}
	to, err := queryTime(ctx, "to")
	if err != nil {
		return nil, err
	}
	return &attendance.QueryFilter{
		StudentID: core.CleanString(ctx.QueryParam("student_id")),
		Status:    attendance.Status(queryUpper(ctx, "status")),
		From:      from,
		To:        to,
	}, nil
}

func nonNilRecords(records []attendance.Record) []attendance.Record {
	if records == nil {
		return []attendance.Record{}
	}
	return records
}
