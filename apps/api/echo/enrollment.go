package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-academy/core/enrollment"
	"github.com/trezcool/masomo-academy/core/roster"
)

type enrollmentApi struct {
	svc enrollment.ServiceInterface
}

func registerEnrollmentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc enrollment.ServiceInterface) {
	api := enrollmentApi{svc: svc}

	eg := g.Group("/enrollments", jwt)
	eg.POST("/:courseId", api.enrollFree)
	eg.GET("/:courseId", api.courseRoster)
}

// Handlers

func (api *enrollmentApi) enrollFree(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	entry, err := api.svc.EnrollFree(ctx.Request().Context(), claims.Subject, ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusCreated, entry)
}

func (api *enrollmentApi) courseRoster(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	it, entries, err := api.svc.CourseRoster(ctx.Request().Context(), ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "getting course roster")
	}
	// a teacher only sees the rosters of their own courses
	if !claims.IsAdmin && it.TeacherID != claims.Subject {
		return errHttpNotFound
	}
	if entries == nil {
		entries = []roster.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}
