// Package engine matches limit orders against a market's book with price-time
// priority and serializes matching per market through a Store.
package engine

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JhonesBR/go-ome/internal/book"
	"github.com/JhonesBR/go-ome/internal/exchange"
	"github.com/JhonesBR/go-ome/internal/store"
)

// Incoming is a limit order in base units.
type Incoming struct {
	UserId   uuid.UUID
	MarketId uuid.UUID
	Side     exchange.Side
	Price    int64
	Amount   int64
}

// Outcome is what one match produced. Changes carries the same effects as a
// mutation set for the store.
type Outcome struct {
	Taker    exchange.Order
	Fills    []exchange.Fill
	Residual *exchange.Order
	Changes  store.Changes
}

func (o Outcome) Filled() int64 {
	var n int64
	for _, f := range o.Fills {
		n += f.Amount
	}
	return n
}

// Validate checks an incoming order against its market without touching any
// book.
func Validate(m exchange.Market, in Incoming) error {
	if m.Id != in.MarketId {
		return fmt.Errorf("%w: market %s", ErrNotFound, in.MarketId)
	}
	if m.Obsolete {
		return fmt.Errorf("%w: market %s is obsolete", ErrNotFound, m.Id)
	}
	if in.UserId == uuid.Nil {
		return fmt.Errorf("%w: user is required", ErrInvalidOrder)
	}
	if !in.Side.Valid() {
		return fmt.Errorf("%w: side must be either \"buy\" or \"sell\"", ErrInvalidOrder)
	}
	if in.Price <= 0 || in.Amount <= 0 {
		return fmt.Errorf("%w: price and amount must be positive values", ErrInvalidOrder)
	}
	if m.LotSize <= 0 {
		return fmt.Errorf("%w: market %s has lot size %d", ErrInternal, m.Id, m.LotSize)
	}
	if in.Amount%m.LotSize != 0 {
		return fmt.Errorf("%w: amount %d is not a multiple of lot size %d", ErrLotSizeViolation, in.Amount, m.LotSize)
	}
	return nil
}

// Match runs a continuous double auction step for one incoming order against
// b, mutating b. The incoming order consumes makers in priority order while it
// crosses, each fill at the maker's price, and whatever remains rests on the
// book. Input that fails Validate leaves b untouched.
func Match(b *book.Book, m exchange.Market, in Incoming, now time.Time, newId func() uuid.UUID) (Outcome, error) {
	if err := Validate(m, in); err != nil {
		return Outcome{}, err
	}
	if b.MarketId() != m.Id {
		return Outcome{}, fmt.Errorf("%w: book of market %s used for market %s", ErrInternal, b.MarketId(), m.Id)
	}

	taker := exchange.Order{
		Id:       newId(),
		MarketId: m.Id,
		UserId:   in.UserId,
		Side:     in.Side,
		Price:    in.Price,
		Amount:   in.Amount,
		Unfilled: in.Amount,
		Active:   true,
		Created:  now,
	}
	out := Outcome{}

	for taker.Unfilled > 0 {
		maker, ok := b.Best(in.Side.Opposite())
		if !ok || !in.Side.Crosses(taker.Price, maker.Price) {
			break
		}

		matched := min(taker.Unfilled, maker.Unfilled)
		if _, err := b.Reduce(maker.Id, matched); err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", ErrInternal, err)
		}
		taker.Unfilled -= matched

		fill := exchange.Fill{
			Id:           newId(),
			MarketId:     m.Id,
			MakerOrderId: maker.Id,
			TakerOrderId: taker.Id,
			MakerUserId:  maker.UserId,
			TakerUserId:  taker.UserId,
			TakerSide:    taker.Side,
			Price:        maker.Price,
			Amount:       matched,
			Created:      now,
		}
		out.Fills = append(out.Fills, fill)
		out.Changes.Reductions = append(out.Changes.Reductions, store.Reduction{OrderId: maker.Id, Amount: matched})
	}
	out.Changes.Fills = out.Fills

	if taker.Unfilled > 0 {
		if err := b.Insert(taker); err != nil {
			return Outcome{}, fmt.Errorf("%w: %w", ErrInternal, err)
		}
		residual := taker
		out.Residual = &residual
		out.Changes.Resting = &residual
	} else {
		taker.Active = false
	}
	out.Taker = taker

	if b.Crossed() {
		return Outcome{}, fmt.Errorf("%w: book of market %s crossed after match", ErrInternal, m.Id)
	}
	return out, nil
}

// Cancel removes a resting order from b.
func Cancel(b *book.Book, orderId uuid.UUID) (exchange.Order, store.Changes, error) {
	o, err := b.Remove(orderId)
	if err != nil {
		return exchange.Order{}, store.Changes{}, fmt.Errorf("%w: order %s is not active", ErrNotFound, orderId)
	}
	return o, store.Changes{Cancelled: []uuid.UUID{orderId}}, nil
}
