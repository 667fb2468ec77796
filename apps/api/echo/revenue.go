package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-academy/core/revenue"
)

type revenueApi struct {
	agg revenue.AggregatorInterface
}

func registerRevenueAPI(g *echo.Group, jwt echo.MiddlewareFunc, agg revenue.AggregatorInterface) {
	api := revenueApi{agg: agg}
	g.GET("/revenue", api.report, jwt)
}

// Handlers

func (api *revenueApi) report(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	teacherID := ctx.QueryParam("teacherId")
	if !claims.IsAdmin {
		// teachers only see their own revenue
		if !claims.IsTeacher || (teacherID != "" && teacherID != claims.Subject) {
			return errHttpForbidden
		}
		teacherID = claims.Subject
	}

	reports, err := api.agg.Report(ctx.Request().Context(), teacherID)
	if err != nil {
		return errors.Wrap(err, "building revenue report")
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)
	revenue.Sort(reports, ordering.Orderings...)

	if reports == nil {
		reports = []revenue.TeacherReport{}
	}
	return ctx.JSON(http.StatusOK, reports)
}
