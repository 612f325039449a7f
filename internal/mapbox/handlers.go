package mapbox

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/paulmach/orb"
	"go.uber.org/zap"
)

// Settings returns the map view configuration for a theme. "system" defers
// to the client's reported preference.
func (c *Client) Settings(theme string, prefersDark bool) MapSettings {
	style := StyleLight
	if theme == "dark" || (theme == "system" && prefersDark) {
		style = StyleDark
	}
	return MapSettings{
		Style:     style,
		Center:    DefaultCenter,
		Zoom:      13,
		MinZoom:   11,
		MaxZoom:   18,
		MaxBounds: [2]orb.Point{c.bounds.Min, c.bounds.Max},
	}
}

func RegisterRoutes(r fiber.Router, client *Client, log *zap.SugaredLogger, authMiddleware, searchLimiter fiber.Handler) {
	r.Get("/map/config", authMiddleware, func(c *fiber.Ctx) error {
		if !client.Configured() {
			return fiber.NewError(fiber.StatusServiceUnavailable, "map access token not configured: set MAPBOX_TOKEN")
		}
		prefersDark, _ := strconv.ParseBool(c.Query("prefers_dark"))
		return c.JSON(client.Settings(c.Query("theme", "light"), prefersDark))
	})

	r.Get("/places/search", authMiddleware, searchLimiter, func(c *fiber.Ctx) error {
		if !client.Configured() {
			return fiber.NewError(fiber.StatusServiceUnavailable, ErrMissingToken.Error())
		}

		var proximity *orb.Point
		lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
		lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
		if errLng == nil && errLat == nil {
			proximity = &orb.Point{lng, lat}
		}

		places, err := client.Search(c.Context(), c.Query("q"), proximity)
		if err != nil {
			// Search failures degrade to an empty result list.
			if !errors.Is(err, ErrMissingToken) {
				log.Errorw("place search failed", "query", c.Query("q"), "error", err)
			}
			return c.JSON([]Place{})
		}
		return c.JSON(places)
	})
}
