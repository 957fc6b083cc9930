package markets

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/JhonesBR/go-ome/internal/exchange"
	"github.com/JhonesBR/go-ome/internal/helper"
	"github.com/JhonesBR/go-ome/internal/store"
)

const defaultDepth = 20

var errMarketNotFound = fiber.NewError(fiber.StatusNotFound, "Market not found")

func GetMarketsHandler(ctx context.Context, backend store.Backend) fiber.Handler {
	return func(c fiber.Ctx) error {
		markets, err := backend.Markets(ctx)
		if err != nil {
			return err
		}

		out := make([]MarketShowSchema, 0, len(markets))
		for _, m := range markets {
			out = append(out, show(m))
		}
		return c.JSON(fiber.Map{
			"success": true,
			"markets": out,
		})
	}
}

func GetMarketByIDHandler(ctx context.Context, backend store.Backend) fiber.Handler {
	return func(c fiber.Ctx) error {
		m, err := activeMarket(ctx, c, backend)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"success": true,
			"market":  show(m),
		})
	}
}

func GetMarketBySymbolHandler(ctx context.Context, backend store.Backend) fiber.Handler {
	return func(c fiber.Ctx) error {
		m, err := backend.MarketBySymbol(ctx, c.Params("base"), c.Params("quote"))
		if errors.Is(err, store.ErrNotFound) {
			return errMarketNotFound
		}
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"success": true,
			"market":  show(m),
		})
	}
}

func GetOrderBookHandler(ctx context.Context, backend store.Backend) fiber.Handler {
	return func(c fiber.Ctx) error {
		m, err := activeMarket(ctx, c, backend)
		if err != nil {
			return err
		}
		depth := helper.QueryInt(c, "depth", defaultDepth)

		bids, asks, err := backend.Depth(ctx, m.Id, depth)
		if err != nil {
			return err
		}

		book := OrderBookShowSchema{
			Success:  true,
			MarketId: m.Id,
			Bids:     levels(m, bids),
			Asks:     levels(m, asks),
		}
		if len(bids) > 0 && len(asks) > 0 {
			spread := asks[0].Price - bids[0].Price
			book.Spread = &spread
		}
		return c.JSON(book)
	}
}

func activeMarket(ctx context.Context, c fiber.Ctx, backend store.Backend) (exchange.Market, error) {
	id, err := helper.ParamUUID(c, "id")
	if err != nil {
		return exchange.Market{}, err
	}
	m, err := backend.Market(ctx, id)
	if errors.Is(err, store.ErrNotFound) || err == nil && m.Obsolete {
		return exchange.Market{}, errMarketNotFound
	}
	return m, err
}
