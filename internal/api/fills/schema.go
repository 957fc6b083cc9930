package fills

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JhonesBR/go-ome/internal/conversion"
	"github.com/JhonesBR/go-ome/internal/exchange"
)

type FillShowSchema struct {
	Id           uuid.UUID       `json:"id"`
	Created      time.Time       `json:"created"`
	MarketId     uuid.UUID       `json:"marketId"`
	MakerOrderId uuid.UUID       `json:"makerOrderId"`
	TakerOrderId uuid.UUID       `json:"takerOrderId"`
	MakerUserId  uuid.UUID       `json:"makerUserId"`
	TakerUserId  uuid.UUID       `json:"takerUserId"`
	TakerSide    exchange.Side   `json:"takerSide"`
	Price        int64           `json:"price"`
	Amount       decimal.Decimal `json:"amount"`
	Total        decimal.Decimal `json:"total"`
}

func show(f exchange.Fill, m exchange.Market) FillShowSchema {
	return FillShowSchema{
		Id:           f.Id,
		Created:      f.Created,
		MarketId:     f.MarketId,
		MakerOrderId: f.MakerOrderId,
		TakerOrderId: f.TakerOrderId,
		MakerUserId:  f.MakerUserId,
		TakerUserId:  f.TakerUserId,
		TakerSide:    f.TakerSide,
		Price:        f.Price,
		Amount:       conversion.FromBaseUnits(f.Amount, m.BaseUnitScale),
		Total:        conversion.Total(f.Price, f.Amount, m.BaseUnitScale),
	}
}
