package activity

import (
	"errors"
	"fmt"

	"backend-bikevillage/internal/auth"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		items, err := svc.List(c.Context(), auth.CurrentUserID(c))
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(items)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		a, err := svc.Get(c.Context(), auth.CurrentUserID(c), c.Params("id"))
		if err != nil {
			return toFiberError(err)
		}
		return c.JSON(a)
	})

	r.Get("/:id/gpx", authMiddleware, func(c *fiber.Ctx) error {
		a, err := svc.Get(c.Context(), auth.CurrentUserID(c), c.Params("id"))
		if err != nil {
			return toFiberError(err)
		}
		doc, err := GPX(a)
		if err != nil {
			return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
		}
		c.Set(fiber.HeaderContentType, "application/gpx+xml")
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s.gpx"`, a.ID))
		return c.Send(doc)
	})
}

func toFiberError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	}
	return fiber.NewError(fiber.StatusInternalServerError, err.Error())
}
