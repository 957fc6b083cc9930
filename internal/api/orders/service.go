package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"

	"github.com/JhonesBR/go-ome/internal/conversion"
	"github.com/JhonesBR/go-ome/internal/engine"
	"github.com/JhonesBR/go-ome/internal/exchange"
	"github.com/JhonesBR/go-ome/internal/helper"
	"github.com/JhonesBR/go-ome/internal/store"
)

func PlaceOrderHandler(ctx context.Context, controller *engine.Controller) fiber.Handler {
	return func(c fiber.Ctx) error {
		// Parse place order schema
		var order = PlaceOrderSchema{}
		if err := c.Bind().Body(&order); err != nil {
			return fmt.Errorf("%w: malformed body", engine.ErrInvalidOrder)
		}
		if err := helper.ValidateInput(&order); err != nil {
			return fmt.Errorf("%w: missing required fields: userId, marketId, side, price, amount", engine.ErrInvalidOrder)
		}

		res, err := controller.PlaceOrder(ctx, engine.OrderRequest{
			UserId:   *order.UserId,
			MarketId: *order.MarketId,
			Side:     exchange.Side(order.Side),
			Price:    *order.Price,
			Amount:   *order.Amount,
		})
		if err != nil {
			return err
		}

		scale := res.Market.BaseUnitScale
		out := PlaceOrderResponseSchema{
			Success: true,
			Fills:   make([]FillSchema, 0, len(res.Fills)),
		}
		total := decimal.Zero
		for _, f := range res.Fills {
			amount := conversion.FromBaseUnits(f.Amount, scale)
			total = total.Add(amount)
			out.Fills = append(out.Fills, FillSchema{
				Id:     f.Id,
				Price:  f.Price,
				Amount: amount,
				Total:  conversion.Total(f.Price, f.Amount, scale),
			})
		}
		if o := res.Offer; o != nil {
			out.Offer = &OfferSchema{
				Id:     o.Id,
				Side:   o.Side,
				Price:  o.Price,
				Amount: conversion.FromBaseUnits(o.Unfilled, scale),
			}
		}
		out.Summary = SummarySchema{
			TotalFills:   len(out.Fills),
			TotalFilled:  total,
			OfferCreated: out.Offer != nil,
		}

		return c.JSON(out)
	}
}

func GetOrdersHandler(ctx context.Context, backend store.Backend) fiber.Handler {
	return func(c fiber.Ctx) error {
		userId, err := helper.QueryUUID(c, "userId")
		if err != nil {
			return err
		}
		if userId == nil {
			return fiber.NewError(fiber.StatusBadRequest, "userId query parameter is required")
		}
		marketId, err := helper.QueryUUID(c, "marketId")
		if err != nil {
			return err
		}
		filter := store.OrderFilter{UserId: *userId, MarketId: marketId}
		switch status := c.Query("status"); status {
		case "":
		case string(store.StatusActive), string(store.StatusInactive):
			filter.Status = store.OrderStatus(status)
		default:
			return fiber.NewError(fiber.StatusBadRequest, "status must be either \"active\" or \"inactive\"")
		}

		pagination := helper.GetPagination[OrderShowSchema](c)
		filter.Limit, filter.Offset = pagination.Size, pagination.Offset()

		orders, err := backend.Orders(ctx, filter)
		if err != nil {
			return err
		}
		market := helper.MarketLookup(ctx, backend)
		for _, o := range orders {
			m, err := market(o.MarketId)
			if err != nil {
				return err
			}
			pagination.Items = append(pagination.Items, show(o, m))
		}

		return c.JSON(pagination)
	}
}

func GetOrderByIDHandler(ctx context.Context, backend store.Backend) fiber.Handler {
	return func(c fiber.Ctx) error {
		o, m, err := lookup(ctx, c, backend)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"success": true,
			"order":   show(o, m),
		})
	}
}

func CancelOrderHandler(ctx context.Context, backend store.Backend, controller *engine.Controller) fiber.Handler {
	return func(c fiber.Ctx) error {
		o, m, err := lookup(ctx, c, backend)
		if err != nil {
			return err
		}

		cancelled, err := controller.CancelOrder(ctx, o.MarketId, o.Id)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"success": true,
			"order":   show(cancelled, m),
		})
	}
}

func lookup(ctx context.Context, c fiber.Ctx, backend store.Backend) (exchange.Order, exchange.Market, error) {
	id, err := helper.ParamUUID(c, "id")
	if err != nil {
		return exchange.Order{}, exchange.Market{}, err
	}
	o, err := backend.Order(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return exchange.Order{}, exchange.Market{}, fiber.NewError(fiber.StatusNotFound, "Order not found")
	}
	if err != nil {
		return exchange.Order{}, exchange.Market{}, err
	}
	m, err := backend.Market(ctx, o.MarketId)
	if err != nil {
		return exchange.Order{}, exchange.Market{}, err
	}
	return o, m, nil
}
