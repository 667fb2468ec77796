package echoapi

import (
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-academy/core"
	"github.com/trezcool/masomo-academy/core/enrollment"
	paymentsvc "github.com/trezcool/masomo-academy/services/payment"
)

// maxWebhookBody caps the webhook payloads read in memory; provider events are a few KB.
const maxWebhookBody = 64 << 10

type checkoutApi struct {
	svc      enrollment.ServiceInterface
	validate *validator.Validate
}

func registerCheckoutAPI(
	g *echo.Group,
	jwt echo.MiddlewareFunc,
	svc enrollment.ServiceInterface,
	validate *validator.Validate,
) {
	api := checkoutApi{
		svc:      svc,
		validate: validate,
	}

	cg := g.Group("/checkout")

	// called by the payment provider, authenticated by the signature header
	cg.POST("/webhook", api.webhook)

	ag := cg.Group("", jwt)
	ag.POST("", api.checkoutCart)
	ag.GET("/verify", api.verify)
	ag.POST("/:itemId", api.checkoutItem)
}

// Handlers

func (api *checkoutApi) checkoutItem(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	data := ItemCheckoutRequest{Quantity: 1} // an empty body buys one
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ItemCheckoutRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	req := enrollment.CheckoutRequest{
		Items: []enrollment.ItemQuantity{{ItemID: ctx.Param("itemId"), Quantity: data.Quantity}},
	}
	res, err := api.svc.Checkout(ctx.Request().Context(), claims.Subject, req)
	if err != nil {
		return errors.Wrap(err, "checking out")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *checkoutApi) checkoutCart(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	var data enrollment.CheckoutRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CheckoutRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	res, err := api.svc.Checkout(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "checking out")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *checkoutApi) verify(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	sessionID := ctx.QueryParam("session_id")
	if sessionID == "" {
		return core.NewValidationError(nil, core.FieldError{Field: "session_id", Error: "session_id is required"})
	}

	// admins may verify any session, learners only their own
	learnerID := claims.Subject
	if claims.IsAdmin {
		learnerID = ""
	}

	res, err := api.svc.Verify(ctx.Request().Context(), sessionID, learnerID)
	if err != nil {
		return errors.Wrap(err, "verifying checkout")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *checkoutApi) webhook(ctx echo.Context) error {
	payload, err := io.ReadAll(http.MaxBytesReader(ctx.Response(), ctx.Request().Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errPayloadTooLarge
		}
		return errors.Wrap(err, "reading webhook payload")
	}

	sig := ctx.Request().Header.Get(paymentsvc.SignatureHeader)
	if err = api.svc.HandleWebhook(ctx.Request().Context(), payload, sig); err != nil {
		return errors.Wrap(err, "handling webhook")
	}
	return ctx.JSON(http.StatusOK, WebhookResponse{Received: true})
}

type (
	ItemCheckoutRequest struct {
		Quantity int `json:"quantity" validate:"min=1,max=100"`
	}

	WebhookResponse struct {
		Received bool `json:"received"`
	}
)
