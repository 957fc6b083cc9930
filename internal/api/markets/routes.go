package markets

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"github.com/JhonesBR/go-ome/internal/store"
)

func InitializeRoutes(app *fiber.App, backend store.Backend) {
	app.Get("/v1/markets", GetMarketsHandler(context.Background(), backend))
	// registered before /:base/:quote so that "orderbook" is not read as a symbol
	app.Get("/v1/markets/:id/orderbook", GetOrderBookHandler(context.Background(), backend))
	app.Get("/v1/markets/:base/:quote", GetMarketBySymbolHandler(context.Background(), backend))
	app.Get("/v1/markets/:id", GetMarketByIDHandler(context.Background(), backend))
}
