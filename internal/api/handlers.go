package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JhonesBR/go-ome/internal/api/fills"
	"github.com/JhonesBR/go-ome/internal/api/markets"
	"github.com/JhonesBR/go-ome/internal/api/orders"
	"github.com/JhonesBR/go-ome/internal/api/users"
	"github.com/JhonesBR/go-ome/internal/engine"
	"github.com/JhonesBR/go-ome/internal/store"
)

type Deps struct {
	Backend    store.Backend
	Controller *engine.Controller
	Logger     *zap.Logger
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
}

// NewApp builds the fiber app with error mapping, request logging and all
// routes installed.
func NewApp(deps Deps) *fiber.App {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(log),
	})
	app.Use(RequestLogger(log))
	InitializeRoutes(app, deps)
	return app
}

func InitializeRoutes(app *fiber.App, deps Deps) {
	users.InitializeRoutes(app, deps.Backend)
	markets.InitializeRoutes(app, deps.Backend)
	orders.InitializeRoutes(app, deps.Backend, deps.Controller)
	fills.InitializeRoutes(app, deps.Backend)
	if deps.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// statusOf maps an error returned by a handler to its HTTP status and body.
// Internal errors never leak their text.
func statusOf(err error) (int, errorBody) {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, errorBody{Error: fe.Message}
	}
	if errors.Is(err, store.ErrNotFound) {
		return fiber.StatusNotFound, errorBody{Error: "Not found"}
	}
	if errors.Is(err, store.ErrExists) {
		return fiber.StatusConflict, errorBody{Error: "Already exists"}
	}
	switch engine.KindOf(err) {
	case engine.KindNotFound:
		return fiber.StatusNotFound, errorBody{Error: err.Error()}
	case engine.KindInvalidOrder:
		return fiber.StatusBadRequest, errorBody{Error: err.Error()}
	case engine.KindLotSizeViolation:
		return fiber.StatusUnprocessableEntity, errorBody{Error: err.Error()}
	case engine.KindContention:
		return fiber.StatusServiceUnavailable, errorBody{
			Error:   "Service temporarily unavailable due to high concurrency",
			Details: "Please retry your request",
		}
	default:
		return fiber.StatusInternalServerError, errorBody{Error: "Internal server error"}
	}
}

func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		status, body := statusOf(err)
		if status >= fiber.StatusInternalServerError && status != fiber.StatusServiceUnavailable {
			log.Error("request failed",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Error(err))
		}
		if status == fiber.StatusServiceUnavailable {
			c.Set(fiber.HeaderRetryAfter, "1")
		}
		return c.Status(status).JSON(body)
	}
}

func RequestLogger(log *zap.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status, _ = statusOf(err)
		}
		log.Info("request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)))
		return err
	}
}
