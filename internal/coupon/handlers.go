package coupon

import (
	"errors"

	"backend-bikevillage/internal/auth"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/usuario/:id", authMiddleware, func(c *fiber.Ctx) error {
		userID := c.Params("id")
		if userID != auth.CurrentUserID(c) && auth.CurrentRole(c) != auth.RoleAdmin {
			return fiber.NewError(fiber.StatusForbidden, "cannot list another user's coupons")
		}
		items, err := svc.ForUser(c.Context(), userID)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(items)
	})

	r.Post("/canjear", authMiddleware, auth.RequireRole(auth.RoleBusiness, auth.RoleAdmin), func(c *fiber.Ctx) error {
		var req RedeemRequest
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		coupon, err := svc.Redeem(c.Context(), req.QR, auth.CurrentUserID(c), auth.CurrentRole(c) == auth.RoleAdmin)
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(coupon)
	})
}

func toFiberError(err error) error {
	switch {
	case errors.Is(err, ErrMissingQR):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, ErrAlreadyRedeemed):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	case errors.Is(err, ErrNotStoreOwner):
		return fiber.NewError(fiber.StatusForbidden, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}
