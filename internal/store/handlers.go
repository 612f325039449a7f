package store

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

func RegisterRoutes(r fiber.Router, svc *Service, authMiddleware fiber.Handler) {
	r.Get("/", authMiddleware, func(c *fiber.Ctx) error {
		q, err := parseQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		results, err := svc.List(c.Context(), q)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(results)
	})

	r.Get("/:id", authMiddleware, func(c *fiber.Ctx) error {
		st, err := svc.Get(c.Context(), c.Params("id"))
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, err.Error())
		}
		return c.JSON(st)
	})
}

func parseQuery(c *fiber.Ctx) (Query, error) {
	q := Query{Category: c.Query("category"), Text: c.Query("q")}

	lat, lng := c.Query("lat"), c.Query("lng")
	if (lat == "") != (lng == "") {
		return Query{}, errors.New("lat and lng must be given together")
	}
	if lat != "" {
		la, err := strconv.ParseFloat(lat, 64)
		if err != nil || la < -90 || la > 90 {
			return Query{}, errors.New("invalid lat")
		}
		ln, err := strconv.ParseFloat(lng, 64)
		if err != nil || ln < -180 || ln > 180 {
			return Query{}, errors.New("invalid lng")
		}
		q.Lat, q.Lng = &la, &ln
	}
	if raw := c.Query("radius_km"); raw != "" {
		radius, err := strconv.ParseFloat(raw, 64)
		if err != nil || radius < 0 {
			return Query{}, errors.New("invalid radius_km")
		}
		q.RadiusKm = radius
	}
	return q, nil
}
