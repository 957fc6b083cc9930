// Package book is the per-market in-memory order book.
//
// Each side is a btree of price levels, and each level is a FIFO list of resting
// orders. Bids are visited from the highest price, asks from the lowest, and
// orders within a level in arrival order. A partial fill never moves an order
// within its level.
//
// A Book is not safe for concurrent use. Stores hand each unit of work its own
// Clone and publish whole books, so a reader never sees a book being mutated.
package book

import (
	"container/list"
	"errors"
	"fmt"

	"github.com/google/btree"
	"github.com/google/uuid"

	"github.com/JhonesBR/go-ome/internal/exchange"
)

var (
	ErrUnknownOrder   = errors.New("order not in book")
	ErrDuplicateOrder = errors.New("order already in book")
	ErrInvalidOrder   = errors.New("order cannot rest")
	ErrOverfill       = errors.New("reduction exceeds unfilled amount")
)

const degree = 16

type level struct {
	price  int64
	orders *list.List // of *exchange.Order
}

func byPrice(a, b *level) bool { return a.price < b.price }

type Book struct {
	marketId uuid.UUID
	bids     *btree.BTreeG[*level]
	asks     *btree.BTreeG[*level]
	index    map[uuid.UUID]*list.Element
}

func New(marketId uuid.UUID) *Book {
	return &Book{
		marketId: marketId,
		bids:     btree.NewG[*level](degree, byPrice),
		asks:     btree.NewG[*level](degree, byPrice),
		index:    make(map[uuid.UUID]*list.Element),
	}
}

func (b *Book) MarketId() uuid.UUID { return b.marketId }

// Len is the number of resting orders on both sides.
func (b *Book) Len() int { return len(b.index) }

func (b *Book) side(s exchange.Side) *btree.BTreeG[*level] {
	if s == exchange.Buy {
		return b.bids
	}
	return b.asks
}

func (b *Book) bestLevel(s exchange.Side) (*level, bool) {
	if s == exchange.Buy {
		return b.bids.Max()
	}
	return b.asks.Min()
}

// Best returns the top priority order of a side.
func (b *Book) Best(s exchange.Side) (exchange.Order, bool) {
	lvl, ok := b.bestLevel(s)
	if !ok {
		return exchange.Order{}, false
	}
	return *lvl.orders.Front().Value.(*exchange.Order), true
}

func (b *Book) BestBid() (exchange.Order, bool) { return b.Best(exchange.Buy) }
func (b *Book) BestAsk() (exchange.Order, bool) { return b.Best(exchange.Sell) }

// Get returns a resting order by id.
func (b *Book) Get(id uuid.UUID) (exchange.Order, bool) {
	el, ok := b.index[id]
	if !ok {
		return exchange.Order{}, false
	}
	return *el.Value.(*exchange.Order), true
}

// Insert appends o to the back of its price level.
func (b *Book) Insert(o exchange.Order) error {
	if _, ok := b.index[o.Id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateOrder, o.Id)
	}
	if !o.Side.Valid() || o.Price <= 0 || o.Unfilled <= 0 || o.Unfilled > o.Amount || !o.Active {
		return fmt.Errorf("%w: %s side=%s price=%d unfilled=%d amount=%d active=%t",
			ErrInvalidOrder, o.Id, o.Side, o.Price, o.Unfilled, o.Amount, o.Active)
	}
	if o.MarketId != b.marketId {
		return fmt.Errorf("%w: %s belongs to market %s", ErrInvalidOrder, o.Id, o.MarketId)
	}

	tree := b.side(o.Side)
	lvl, ok := tree.Get(&level{price: o.Price})
	if !ok {
		lvl = &level{price: o.Price, orders: list.New()}
		tree.ReplaceOrInsert(lvl)
	}
	cp := o
	b.index[o.Id] = lvl.orders.PushBack(&cp)
	return nil
}

// Reduce takes amount off an order's unfilled quantity. An order that reaches
// zero is deactivated and leaves the book. The returned order reflects the
// state after the reduction.
func (b *Book) Reduce(id uuid.UUID, amount int64) (exchange.Order, error) {
	el, ok := b.index[id]
	if !ok {
		return exchange.Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	o := el.Value.(*exchange.Order)
	if amount <= 0 || amount > o.Unfilled {
		return *o, fmt.Errorf("%w: %s unfilled=%d reduce=%d", ErrOverfill, id, o.Unfilled, amount)
	}
	o.Unfilled -= amount
	if o.Unfilled == 0 {
		o.Active = false
		b.unlink(el)
	}
	return *o, nil
}

// Remove takes a resting order off the book, e.g. on cancellation.
func (b *Book) Remove(id uuid.UUID) (exchange.Order, error) {
	el, ok := b.index[id]
	if !ok {
		return exchange.Order{}, fmt.Errorf("%w: %s", ErrUnknownOrder, id)
	}
	o := el.Value.(*exchange.Order)
	o.Active = false
	b.unlink(el)
	return *o, nil
}

func (b *Book) unlink(el *list.Element) {
	o := el.Value.(*exchange.Order)
	tree := b.side(o.Side)
	lvl, ok := tree.Get(&level{price: o.Price})
	if ok {
		lvl.orders.Remove(el)
		if lvl.orders.Len() == 0 {
			tree.Delete(lvl)
		}
	}
	delete(b.index, o.Id)
}

// Walk visits the orders of a side in match priority until fn returns false.
func (b *Book) Walk(s exchange.Side, fn func(exchange.Order) bool) {
	visit := func(lvl *level) bool {
		for el := lvl.orders.Front(); el != nil; el = el.Next() {
			if !fn(*el.Value.(*exchange.Order)) {
				return false
			}
		}
		return true
	}
	if s == exchange.Buy {
		b.bids.Descend(visit)
	} else {
		b.asks.Ascend(visit)
	}
}

// Orders lists a side in match priority.
func (b *Book) Orders(s exchange.Side) []exchange.Order {
	var out []exchange.Order
	b.Walk(s, func(o exchange.Order) bool {
		out = append(out, o)
		return true
	})
	return out
}

// Depth aggregates up to limit price levels of a side, best first. A limit
// of zero or less means all levels.
func (b *Book) Depth(s exchange.Side, limit int) []exchange.PriceLevel {
	levels := make([]exchange.PriceLevel, 0)
	visit := func(lvl *level) bool {
		if limit > 0 && len(levels) >= limit {
			return false
		}
		pl := exchange.PriceLevel{Price: lvl.price}
		for el := lvl.orders.Front(); el != nil; el = el.Next() {
			pl.Amount += el.Value.(*exchange.Order).Unfilled
			pl.Orders++
		}
		levels = append(levels, pl)
		return true
	}
	if s == exchange.Buy {
		b.bids.Descend(visit)
	} else {
		b.asks.Ascend(visit)
	}
	return levels
}

// Spread is best ask minus best bid when both sides are populated.
func (b *Book) Spread() (int64, bool) {
	bid, okBid := b.bestLevel(exchange.Buy)
	ask, okAsk := b.bestLevel(exchange.Sell)
	if !okBid || !okAsk {
		return 0, false
	}
	return ask.price - bid.price, true
}

// Crossed reports best bid >= best ask. It must never hold once a match
// completes.
func (b *Book) Crossed() bool {
	spread, ok := b.Spread()
	return ok && spread <= 0
}

// Clone deep copies the book. Mutating the clone never touches b.
func (b *Book) Clone() *Book {
	c := New(b.marketId)
	copySide := func(src, dst *btree.BTreeG[*level]) {
		src.Ascend(func(lvl *level) bool {
			nl := &level{price: lvl.price, orders: list.New()}
			for el := lvl.orders.Front(); el != nil; el = el.Next() {
				cp := *el.Value.(*exchange.Order)
				c.index[cp.Id] = nl.orders.PushBack(&cp)
			}
			dst.ReplaceOrInsert(nl)
			return true
		})
	}
	copySide(b.bids, c.bids)
	copySide(b.asks, c.asks)
	return c
}
