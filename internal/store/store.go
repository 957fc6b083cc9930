// Package store defines the persistence contract of the engine. A Store hands
// out per-market sessions. A session reads a private copy of the book and
// commits a mutation set atomically, or reports ErrConflict when another
// session on the same market committed first.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/JhonesBR/go-ome/internal/book"
	"github.com/JhonesBR/go-ome/internal/exchange"
)

var (
	ErrConflict = errors.New("store: serialization conflict")
	ErrNotFound = errors.New("store: not found")
	ErrExists   = errors.New("store: already exists")
)

// Reduction takes Amount off the unfilled quantity of a resting order.
type Reduction struct {
	OrderId uuid.UUID
	Amount  int64
}

// Changes is the mutation set produced by one matching attempt.
type Changes struct {
	Reductions []Reduction
	Cancelled  []uuid.UUID
	Resting    *exchange.Order
	Fills      []exchange.Fill
}

type Session interface {
	// Book is the session's working copy. Mutating it is never visible to
	// other sessions.
	Book() *book.Book
	Commit(ctx context.Context, changes Changes) error
	// Release ends the session and rolls back anything uncommitted. Safe to
	// call more than once.
	Release(ctx context.Context)
}

type Store interface {
	Market(ctx context.Context, id uuid.UUID) (exchange.Market, error)
	Begin(ctx context.Context, marketId uuid.UUID) (Session, error)
}

// ConflictClassifier decides which store errors are serialization conflicts
// worth retrying.
type ConflictClassifier interface {
	IsConflict(err error) bool
}

type classifierFunc func(error) bool

func (f classifierFunc) IsConflict(err error) bool { return f(err) }

// Conflicts is the default classifier: anything wrapping ErrConflict.
var Conflicts ConflictClassifier = classifierFunc(func(err error) bool {
	return errors.Is(err, ErrConflict)
})

type OrderStatus string

const (
	StatusAny      OrderStatus = ""
	StatusActive   OrderStatus = "active"
	StatusInactive OrderStatus = "inactive"
)

type OrderFilter struct {
	UserId   uuid.UUID
	MarketId *uuid.UUID
	Status   OrderStatus
	Limit    int
	Offset   int
}

// FillFilter selects fills. UserId matches either the maker or the taker and
// OrderId either the maker or the taker order. Zero fields are ignored.
type FillFilter struct {
	UserId   *uuid.UUID
	MarketId *uuid.UUID
	OrderId  *uuid.UUID
	Limit    int
}

// Reader is the read-only projection side of a store.
type Reader interface {
	Markets(ctx context.Context) ([]exchange.Market, error)
	MarketBySymbol(ctx context.Context, base, quote string) (exchange.Market, error)
	Depth(ctx context.Context, marketId uuid.UUID, limit int) (bids, asks []exchange.PriceLevel, err error)
	Order(ctx context.Context, id uuid.UUID) (exchange.Order, error)
	Orders(ctx context.Context, filter OrderFilter) ([]exchange.Order, error)
	Fills(ctx context.Context, filter FillFilter) ([]exchange.Fill, error)
	Users(ctx context.Context) ([]exchange.User, error)
	User(ctx context.Context, id uuid.UUID) (exchange.User, error)
}

// Backend is a store that also serves the read projections and user
// registration.
type Backend interface {
	Store
	Reader
	CreateUser(ctx context.Context, email string) (exchange.User, error)
}
