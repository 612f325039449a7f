package middleware

import (
	"errors"
	"strconv"
	"time"

	"backend-bikevillage/internal/metrics"

	"github.com/gofiber/fiber/v2"
)

// Metrics records request counts and latency per matched route.
func Metrics(reg *metrics.Registry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		endpoint := c.Route().Path
		method := c.Method()
		reg.HTTPRequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
		reg.HTTPRequestDuration.WithLabelValues(endpoint, method).Observe(time.Since(start).Seconds())
		return err
	}
}
