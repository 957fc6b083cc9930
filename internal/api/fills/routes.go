package fills

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"github.com/JhonesBR/go-ome/internal/store"
)

func InitializeRoutes(app *fiber.App, backend store.Backend) {
	app.Get("/v1/fills", GetFillsHandler(context.Background(), backend))
	app.Get("/v1/orders/:id/fills", GetOrderFillsHandler(context.Background(), backend))
}
