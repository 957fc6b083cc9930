// Package exchange holds the domain types shared by the book, the engine and
// the stores. All quantities are integers in base units.
package exchange

import (
	"time"

	"github.com/google/uuid"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side an order of side s matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Crosses reports whether an incoming order on side s at price would trade
// against a resting order at restingPrice.
func (s Side) Crosses(price, restingPrice int64) bool {
	if s == Buy {
		return price >= restingPrice
	}
	return price <= restingPrice
}

type Asset struct {
	Symbol        string
	BaseUnitScale int64
}

type Market struct {
	Id            uuid.UUID
	BaseSymbol    string
	QuoteSymbol   string
	BaseUnitScale int64
	LotSize       int64
	Obsolete      bool
	Created       time.Time
}

type User struct {
	Id      uuid.UUID
	Email   string
	Created time.Time
}

// Order is an offer. While active it is owned by the book of its market.
type Order struct {
	Id       uuid.UUID
	MarketId uuid.UUID
	UserId   uuid.UUID
	Side     Side
	Price    int64
	Amount   int64
	Unfilled int64
	Active   bool
	Created  time.Time
}

func (o Order) Filled() int64 {
	return o.Amount - o.Unfilled
}

// Fill is an executed trade between a resting maker and an incoming taker.
// Price is always the maker's price.
type Fill struct {
	Id           uuid.UUID
	MarketId     uuid.UUID
	MakerOrderId uuid.UUID
	TakerOrderId uuid.UUID
	MakerUserId  uuid.UUID
	TakerUserId  uuid.UUID
	TakerSide    Side
	Price        int64
	Amount       int64
	Created      time.Time
}

// PriceLevel aggregates the unfilled amount resting at one price.
type PriceLevel struct {
	Price  int64
	Amount int64
	Orders int
}
