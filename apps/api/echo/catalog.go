package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-academy/core/course"
)

type catalogApi struct {
	svc      course.ServiceInterface
	validate *validator.Validate
}

func registerCatalogAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc course.ServiceInterface,
	validate *validator.Validate,
) {
	api := catalogApi{
		svc:      svc,
		validate: validate,
	}

	ig := g.Group("/items")
	ig.GET("", api.query)
	ig.POST("", api.create, jwt)
}

// Handlers

func (api *catalogApi) query(ctx echo.Context) error {
	filter := course.QueryFilter{
		TeacherID: ctx.QueryParam("teacherId"),
		Kind:      course.Kind(ctx.QueryParam("kind")),
	}
	items, err := api.svc.Query(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "querying items")
	}
	if items == nil {
		items = []course.Item{}
	}
	return ctx.JSON(http.StatusOK, items)
}

func (api *catalogApi) create(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data course.NewItem
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewItem")
	}

	// teachers sell their own items, admins sell on behalf of anyone
	switch {
	case claims.IsAdmin:
	case claims.IsTeacher:
		data.TeacherID = claims.Subject
	default:
		return errHttpForbidden
	}

	if err := data.Validate(api.validate); err != nil {
		return err
	}
	it, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating item")
	}
	return ctx.JSON(http.StatusCreated, it)
}
