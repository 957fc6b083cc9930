package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JhonesBR/go-ome/internal/conversion"
	"github.com/JhonesBR/go-ome/internal/exchange"
)

type PlaceOrderSchema struct {
	UserId   *uuid.UUID       `json:"userId" validate:"required"`
	MarketId *uuid.UUID       `json:"marketId" validate:"required"`
	Side     string           `json:"side" validate:"required"`
	Price    *decimal.Decimal `json:"price" validate:"required"`
	Amount   *decimal.Decimal `json:"amount" validate:"required"`
}

type FillSchema struct {
	Id     uuid.UUID       `json:"id"`
	Price  int64           `json:"price"`
	Amount decimal.Decimal `json:"amount"`
	Total  decimal.Decimal `json:"total"`
}

type OfferSchema struct {
	Id     uuid.UUID       `json:"id"`
	Side   exchange.Side   `json:"side"`
	Price  int64           `json:"price"`
	Amount decimal.Decimal `json:"amount"`
}

type SummarySchema struct {
	TotalFills   int             `json:"totalFills"`
	TotalFilled  decimal.Decimal `json:"totalFilled"`
	OfferCreated bool            `json:"offerCreated"`
}

type PlaceOrderResponseSchema struct {
	Success bool          `json:"success"`
	Fills   []FillSchema  `json:"fills"`
	Offer   *OfferSchema  `json:"offer"`
	Summary SummarySchema `json:"summary"`
}

type OrderShowSchema struct {
	Id       uuid.UUID       `json:"id"`
	Created  time.Time       `json:"created"`
	UserId   uuid.UUID       `json:"userId"`
	MarketId uuid.UUID       `json:"marketId"`
	Side     exchange.Side   `json:"side"`
	Price    int64           `json:"price"`
	Amount   decimal.Decimal `json:"amount"`
	Unfilled decimal.Decimal `json:"unfilled"`
	Filled   decimal.Decimal `json:"filled"`
	Active   bool            `json:"active"`
	Status   string          `json:"status"`
}

func show(o exchange.Order, m exchange.Market) OrderShowSchema {
	status := "inactive"
	if o.Active {
		status = "active"
	}
	return OrderShowSchema{
		Id:       o.Id,
		Created:  o.Created,
		UserId:   o.UserId,
		MarketId: o.MarketId,
		Side:     o.Side,
		Price:    o.Price,
		Amount:   conversion.FromBaseUnits(o.Amount, m.BaseUnitScale),
		Unfilled: conversion.FromBaseUnits(o.Unfilled, m.BaseUnitScale),
		Filled:   conversion.FromBaseUnits(o.Filled(), m.BaseUnitScale),
		Active:   o.Active,
		Status:   status,
	}
}
