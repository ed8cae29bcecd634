package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/arjuunns/Smart-hostel/core"
	"github.com/arjuunns/Smart-hostel/core/leave"
	"github.com/arjuunns/Smart-hostel/core/user"
)

type gateApi struct {
	svc      *leave.Service
	validate *validator.Validate
}

func (s *Server) registerGateAPI(g *echo.Group, authed []echo.MiddlewareFunc) {
	api := gateApi{svc: s.LeaveSvc, validate: s.Validate}

	mws := append(authed[:len(authed):len(authed)], requireCapability(user.CapGateScan))
	gg := g.Group("/gate", mws...)
	gg.POST("/exit", api.exit)
	gg.POST("/entry", api.entry)
	gg.GET("/out", api.out)
}

type ScanRequest struct {
	GatePassID string `json:"gate_pass_id" validate:"required"`
}

func (sr *ScanRequest) Validate(validate *validator.Validate) error {
	sr.GatePassID = core.CleanString(sr.GatePassID)
	return validate.Struct(sr)
}

// Handlers

func (api *gateApi) exit(ctx echo.Context) error {
	var data ScanRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScanRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	req, err := api.svc.Exit(ctx.Request().Context(), data.GatePassID)
	if err != nil {
		return errors.Wrap(err, "logging exit")
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *gateApi) entry(ctx echo.Context) error {
	var data ScanRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ScanRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	req, err := api.svc.Entry(ctx.Request().Context(), data.GatePassID)
	if err != nil {
		return errors.Wrap(err, "logging entry")
	}
	return ctx.JSON(http.StatusOK, req)
}

func (api *gateApi) out(ctx echo.Context) error {
	leaves, err := api.svc.CurrentlyOut(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying students out")
	}
	return ctx.JSON(http.StatusOK, nonNilLeaves(leaves))
}
