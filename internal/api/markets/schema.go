package markets

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JhonesBR/go-ome/internal/conversion"
	"github.com/JhonesBR/go-ome/internal/exchange"
)

type MarketShowSchema struct {
	Id            uuid.UUID       `json:"id"`
	BaseSymbol    string          `json:"baseSymbol"`
	QuoteSymbol   string          `json:"quoteSymbol"`
	BaseUnitScale int64           `json:"baseUnitScale"`
	LotSize       decimal.Decimal `json:"lotSize"`
	Created       time.Time       `json:"created"`
}

// LevelSchema is one aggregated price level. Amount is in base asset units
// and Total in quote asset units.
type LevelSchema struct {
	Price  int64           `json:"price"`
	Amount decimal.Decimal `json:"amount"`
	Total  decimal.Decimal `json:"total"`
	Orders int             `json:"orders"`
}

type OrderBookShowSchema struct {
	Success  bool          `json:"success"`
	MarketId uuid.UUID     `json:"marketId"`
	Bids     []LevelSchema `json:"bids"`
	Asks     []LevelSchema `json:"asks"`
	Spread   *int64        `json:"spread"`
}

func show(m exchange.Market) MarketShowSchema {
	return MarketShowSchema{
		Id:            m.Id,
		BaseSymbol:    m.BaseSymbol,
		QuoteSymbol:   m.QuoteSymbol,
		BaseUnitScale: m.BaseUnitScale,
		LotSize:       conversion.FromBaseUnits(m.LotSize, m.BaseUnitScale),
		Created:       m.Created,
	}
}

func levels(m exchange.Market, in []exchange.PriceLevel) []LevelSchema {
	out := make([]LevelSchema, 0, len(in))
	for _, l := range in {
		out = append(out, LevelSchema{
			Price:  l.Price,
			Amount: conversion.FromBaseUnits(l.Amount, m.BaseUnitScale),
			Total:  conversion.Total(l.Price, l.Amount, m.BaseUnitScale),
			Orders: l.Orders,
		})
	}
	return out
}
