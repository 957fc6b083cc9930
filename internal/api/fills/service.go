package fills

import (
	"context"

	"github.com/gofiber/fiber/v3"

	"github.com/JhonesBR/go-ome/internal/helper"
	"github.com/JhonesBR/go-ome/internal/store"
)

const maxFills = 100

func GetFillsHandler(ctx context.Context, backend store.Backend) fiber.Handler {
	return func(c fiber.Ctx) error {
		var filter store.FillFilter
		var err error
		if filter.UserId, err = helper.QueryUUID(c, "userId"); err != nil {
			return err
		}
		if filter.MarketId, err = helper.QueryUUID(c, "marketId"); err != nil {
			return err
		}
		if filter.OrderId, err = helper.QueryUUID(c, "orderId"); err != nil {
			return err
		}
		if filter.OrderId == nil {
			// older clients filter by offerId
			if filter.OrderId, err = helper.QueryUUID(c, "offerId"); err != nil {
				return err
			}
		}
		return list(ctx, c, backend, filter)
	}
}

// GetOrderFillsHandler lists fills on either side of an order. A taker that
// filled completely never rested, so the order itself may not exist.
func GetOrderFillsHandler(ctx context.Context, backend store.Backend) fiber.Handler {
	return func(c fiber.Ctx) error {
		id, err := helper.ParamUUID(c, "id")
		if err != nil {
			return err
		}
		return list(ctx, c, backend, store.FillFilter{OrderId: &id})
	}
}

func list(ctx context.Context, c fiber.Ctx, backend store.Backend, filter store.FillFilter) error {
	filter.Limit = min(helper.QueryInt(c, "limit", maxFills), maxFills)
	fills, err := backend.Fills(ctx, filter)
	if err != nil {
		return err
	}

	market := helper.MarketLookup(ctx, backend)
	out := make([]FillShowSchema, 0, len(fills))
	for _, f := range fills {
		m, err := market(f.MarketId)
		if err != nil {
			return err
		}
		out = append(out, show(f, m))
	}
	return c.JSON(fiber.Map{
		"success": true,
		"fills":   out,
	})
}
