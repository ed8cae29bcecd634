package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// requireCapability lets the request through when the context user holds any of cpbs.
func requireCapability(cpbs ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			for _, cpb := range cpbs {
				if usr.Can(cpb) {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

// selfOrCapability allows a student to reach their own resources, and staff holding any of cpbs to reach everyone's.
func selfOrCapability(ctx echo.Context, studentID string, cpbs ...string) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if usr.ID == studentID {
		return nil
	}
	for _, cpb := range cpbs {
		if usr.Can(cpb) {
			return nil
		}
	}
	return errHttpNotFound
}
