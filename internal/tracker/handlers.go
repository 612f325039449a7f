package tracker

import (
	"context"
	"errors"

	"backend-bikevillage/internal/mapbox"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

type sessionOp func(ctx context.Context, s *Session) (Snapshot, error)

func RegisterRoutes(r fiber.Router, mgr *Manager, authMiddleware fiber.Handler) {
	r.Post("/sessions", authMiddleware, func(c *fiber.Ctx) error {
		s, err := mgr.Create(currentUser(c))
		if err != nil {
			return toFiberError(err)
		}
		snap, err := s.Snapshot(c.Context())
		if err != nil {
			return toFiberError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(snap)
	})

	r.Get("/sessions/:id", authMiddleware, withSession(mgr, fiber.StatusOK, func(ctx context.Context, s *Session) (Snapshot, error) {
		return s.Snapshot(ctx)
	}))

	r.Delete("/sessions/:id", authMiddleware, func(c *fiber.Ctx) error {
		s, err := mgr.Owned(c.Params("id"), currentUser(c))
		if err != nil {
			return toFiberError(err)
		}
		if err := mgr.Close(s.ID); err != nil {
			return toFiberError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	r.Post("/sessions/:id/location", authMiddleware, func(c *fiber.Ctx) error {
		var req Sample
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return withSession(mgr, fiber.StatusOK, func(ctx context.Context, s *Session) (Snapshot, error) {
			return s.UpdateLocation(ctx, req)
		})(c)
	})

	r.Post("/sessions/:id/location/error", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			Message string `json:"message"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return withSession(mgr, fiber.StatusOK, func(ctx context.Context, s *Session) (Snapshot, error) {
			return s.ReportLocationError(ctx, req.Message)
		})(c)
	})

	r.Post("/sessions/:id/orientation", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			Heading *float64 `json:"heading"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Heading == nil {
			return fiber.NewError(fiber.StatusBadRequest, "heading required")
		}
		return withSession(mgr, fiber.StatusOK, func(ctx context.Context, s *Session) (Snapshot, error) {
			return s.UpdateCompass(ctx, *req.Heading)
		})(c)
	})

	r.Post("/sessions/:id/recording", authMiddleware, withSession(mgr, fiber.StatusOK, func(ctx context.Context, s *Session) (Snapshot, error) {
		return s.StartRecording(ctx)
	}))

	r.Post("/sessions/:id/navigation", authMiddleware, withSession(mgr, fiber.StatusAccepted, func(ctx context.Context, s *Session) (Snapshot, error) {
		return s.PlanRoute(ctx)
	}))

	r.Post("/sessions/:id/stop", authMiddleware, withSession(mgr, fiber.StatusOK, func(ctx context.Context, s *Session) (Snapshot, error) {
		return s.Stop(ctx)
	}))

	r.Put("/sessions/:id/destination", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			Lng   *float64 `json:"lng"`
			Lat   *float64 `json:"lat"`
			Name  string   `json:"name"`
			Focus bool     `json:"focus"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		if req.Lng == nil || req.Lat == nil {
			return fiber.NewError(fiber.StatusBadRequest, "lng and lat required")
		}
		d := Destination{Lng: *req.Lng, Lat: *req.Lat, Name: req.Name}
		return withSession(mgr, fiber.StatusOK, func(ctx context.Context, s *Session) (Snapshot, error) {
			return s.SetDestination(ctx, d, req.Focus)
		})(c)
	})

	r.Put("/sessions/:id/profile", authMiddleware, func(c *fiber.Ctx) error {
		var req struct {
			Profile string `json:"profile"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		return withSession(mgr, fiber.StatusOK, func(ctx context.Context, s *Session) (Snapshot, error) {
			return s.SetProfile(ctx, mapbox.Profile(req.Profile))
		})(c)
	})

	r.Post("/sessions/:id/recenter", authMiddleware, withSession(mgr, fiber.StatusOK, func(ctx context.Context, s *Session) (Snapshot, error) {
		return s.Recenter(ctx)
	}))

	r.Post("/sessions/:id/gesture", authMiddleware, withSession(mgr, fiber.StatusOK, func(ctx context.Context, s *Session) (Snapshot, error) {
		return s.Gesture(ctx)
	}))

	r.Post("/sessions/:id/camera/idle", authMiddleware, withSession(mgr, fiber.StatusOK, func(ctx context.Context, s *Session) (Snapshot, error) {
		return s.AnimationDone(ctx)
	}))
}

// StreamGuard admits websocket subscribers that present a valid token in
// the query string and own the requested session.
func StreamGuard(mgr *Manager, validate func(token string) (string, error)) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		userID, err := validate(c.Query("token"))
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		if _, err := mgr.Owned(c.Params("sessionID"), userID); err != nil {
			return toFiberError(err)
		}
		return c.Next()
	}
}

func withSession(mgr *Manager, status int, op sessionOp) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := mgr.Owned(c.Params("id"), currentUser(c))
		if err != nil {
			return toFiberError(err)
		}
		snap, err := op(c.Context(), s)
		if err != nil {
			return toFiberError(err)
		}
		return c.Status(status).JSON(snap)
	}
}

func currentUser(c *fiber.Ctx) string {
	userID, _ := c.Locals("user_id").(string)
	return userID
}

func toFiberError(err error) error {
	return fiber.NewError(statusFor(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, ErrInvalidSample),
		errors.Is(err, ErrInvalidDestination),
		errors.Is(err, ErrOutOfBounds),
		errors.Is(err, mapbox.ErrInvalidProfile):
		return fiber.StatusBadRequest
	case errors.Is(err, ErrNoLocation),
		errors.Is(err, ErrNoDestination),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrActivityInProgress):
		return fiber.StatusConflict
	case errors.Is(err, ErrMapUnavailable):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, ErrSessionClosed):
		return fiber.StatusGone
	case errors.Is(err, ErrManagerShuttingDown):
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}
