package server

import (
	"context"
	"errors"

	"backend-bikevillage/internal/activity"
	"backend-bikevillage/internal/auth"
	"backend-bikevillage/internal/config"
	"backend-bikevillage/internal/coupon"
	"backend-bikevillage/internal/logging"
	"backend-bikevillage/internal/mapbox"
	"backend-bikevillage/internal/metrics"
	"backend-bikevillage/internal/middleware"
	"backend-bikevillage/internal/shared/geo"
	"backend-bikevillage/internal/store"
	"backend-bikevillage/internal/stream"
	"backend-bikevillage/internal/tracker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	searchRatePerSecond = 2
	searchBurst         = 5
)

type Server struct {
	App      *fiber.App
	Cfg      config.Config
	DB       *pgxpool.Pool
	Redis    *redis.Client
	Stream   *stream.Hub
	Tracker  *tracker.Manager
	Mapbox   *mapbox.Client
	Metrics  *metrics.Registry
	Auth     *auth.Service
	Activity *activity.Service
	log      *zap.SugaredLogger
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	log := logging.Named("server")

	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	reg := metrics.New()
	app.Use(middleware.Metrics(reg))

	bounds, err := geo.ParseBBox(cfg.MapBBox)
	if err != nil {
		log.Warnw("invalid map bounding box, destinations are unrestricted", "bbox", cfg.MapBBox, "error", err)
		bounds = orb.Bound{}
	}

	mapClient := mapbox.NewClient(mapbox.Options{
		BaseURL:           cfg.MapboxBaseURL,
		Token:             cfg.MapboxToken,
		Bounds:            bounds,
		Timeout:           cfg.DirectionsTimeout,
		RequestsPerSecond: cfg.MapboxRPS,
		SearchCacheTTL:    cfg.SearchCacheTTL,
		Metrics:           reg,
	})

	s := &Server{
		App:      app,
		Cfg:      cfg,
		DB:       db,
		Redis:    redisClient,
		Stream:   stream.NewHub(redisClient, logging.Named("stream")),
		Mapbox:   mapClient,
		Metrics:  reg,
		Auth:     auth.NewService(cfg.JWTSecret, db),
		Activity: activity.NewService(db),
		log:      log,
	}

	opts := tracker.Options{
		Publisher: s.Stream,
		Metrics:   reg,
		Log:       logging.Named("tracker"),
		Bounds:    mapClient.Bounds(),

		IdleTimeout: cfg.TrackerIdleTimeout,
	}
	// Interface fields stay nil rather than holding typed nil pointers.
	if mapClient.Configured() {
		opts.Router = mapClient
	} else {
		log.Warnw("MAPBOX_TOKEN not set, route planning and place search are disabled")
	}
	if db != nil {
		opts.Recorder = s.Activity
	}
	s.Tracker = tracker.NewManager(opts)

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "tracker_sessions": s.Tracker.Len()})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(s.Metrics.Handler()))

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)
	searchLimiter := middleware.NewIPRateLimiter(searchRatePerSecond, searchBurst).Handler()

	auth.RegisterRoutes(s.App.Group("/auth"), s.Auth)

	api := s.App.Group("/api")
	tracker.RegisterRoutes(api.Group("/tracker"), s.Tracker, jwtMiddleware)
	mapbox.RegisterRoutes(api, s.Mapbox, logging.Named("mapbox"), jwtMiddleware, searchLimiter)
	activity.RegisterRoutes(api.Group("/activities"), s.Activity, jwtMiddleware)
	coupon.RegisterRoutes(api.Group("/cupones"), coupon.NewService(s.DB), jwtMiddleware)
	store.RegisterRoutes(api.Group("/stores"), store.NewService(s.DB), jwtMiddleware)

	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream,
		tracker.StreamGuard(s.Tracker, s.Auth.ValidateAccessToken),
		s.Tracker.HandleStreamMessage)
}

// Close stops every tracker session and the stream hub. The caller owns the
// database and redis connections.
func (s *Server) Close(ctx context.Context) error {
	return errors.Join(s.Tracker.Shutdown(ctx), s.Stream.Close())
}
