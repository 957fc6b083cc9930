// Package memory is an in-process store with optimistic per-market
// versioning. Begin clones the committed book and remembers its version.
// Commit installs the session's book only if no other session of that market
// committed in between, and reports store.ErrConflict otherwise.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JhonesBR/go-ome/internal/book"
	"github.com/JhonesBR/go-ome/internal/exchange"
	"github.com/JhonesBR/go-ome/internal/store"
)

type marketState struct {
	mu      sync.RWMutex
	market  exchange.Market
	book    *book.Book
	version uint64
	fills   []exchange.Fill
}

type Store struct {
	mu      sync.RWMutex
	assets  map[string]exchange.Asset
	markets map[uuid.UUID]*marketState
	users   map[uuid.UUID]exchange.User
	// orders holds every offer ever rested, active or not. rested lists
	// their ids in commit order.
	orders map[uuid.UUID]*exchange.Order
	rested []uuid.UUID
	now    func() time.Time
}

var _ store.Backend = (*Store)(nil)

func New() *Store {
	return &Store{
		assets:  make(map[string]exchange.Asset),
		markets: make(map[uuid.UUID]*marketState),
		users:   make(map[uuid.UUID]exchange.User),
		orders:  make(map[uuid.UUID]*exchange.Order),
		now:     time.Now,
	}
}

func (s *Store) AddAsset(a exchange.Asset) error {
	if a.Symbol == "" || a.BaseUnitScale <= 0 {
		return fmt.Errorf("asset %q: base unit scale %d must be positive", a.Symbol, a.BaseUnitScale)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[a.Symbol]; ok {
		return fmt.Errorf("%w: asset %q", store.ErrExists, a.Symbol)
	}
	s.assets[a.Symbol] = a
	return nil
}

// AddMarket registers a market between two known assets. The base unit scale
// is taken from the base asset.
func (s *Store) AddMarket(base, quote string, lotSize int64) (exchange.Market, error) {
	if lotSize <= 0 {
		return exchange.Market{}, fmt.Errorf("lot size %d must be positive", lotSize)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.assets[base]
	if !ok {
		return exchange.Market{}, fmt.Errorf("%w: asset %q", store.ErrNotFound, base)
	}
	if _, ok := s.assets[quote]; !ok {
		return exchange.Market{}, fmt.Errorf("%w: asset %q", store.ErrNotFound, quote)
	}
	for _, ms := range s.markets {
		if ms.market.BaseSymbol == base && ms.market.QuoteSymbol == quote {
			return exchange.Market{}, fmt.Errorf("%w: market %s/%s", store.ErrExists, base, quote)
		}
	}
	m := exchange.Market{
		Id:            uuid.New(),
		BaseSymbol:    base,
		QuoteSymbol:   quote,
		BaseUnitScale: b.BaseUnitScale,
		LotSize:       lotSize,
		Created:       s.now(),
	}
	s.markets[m.Id] = &marketState{market: m, book: book.New(m.Id)}
	return m, nil
}

// SetObsolete retires a market. New orders are rejected from then on.
func (s *Store) SetObsolete(id uuid.UUID, obsolete bool) error {
	ms, err := s.state(id)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	ms.market.Obsolete = obsolete
	ms.mu.Unlock()
	return nil
}

func (s *Store) AddUser(email string) (exchange.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return exchange.User{}, fmt.Errorf("%w: user %q", store.ErrExists, email)
		}
	}
	u := exchange.User{Id: uuid.New(), Email: email, Created: s.now()}
	s.users[u.Id] = u
	return u, nil
}

func (s *Store) CreateUser(_ context.Context, email string) (exchange.User, error) {
	return s.AddUser(email)
}

func (s *Store) state(id uuid.UUID) (*marketState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ms, ok := s.markets[id]
	if !ok {
		return nil, fmt.Errorf("%w: market %s", store.ErrNotFound, id)
	}
	return ms, nil
}

func (s *Store) Market(_ context.Context, id uuid.UUID) (exchange.Market, error) {
	ms, err := s.state(id)
	if err != nil {
		return exchange.Market{}, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.market, nil
}

func (s *Store) Begin(_ context.Context, marketId uuid.UUID) (store.Session, error) {
	ms, err := s.state(marketId)
	if err != nil {
		return nil, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return &session{
		store:   s,
		state:   ms,
		book:    ms.book.Clone(),
		version: ms.version,
	}, nil
}

type session struct {
	store   *Store
	state   *marketState
	book    *book.Book
	version uint64
	done    bool
}

func (ss *session) Book() *book.Book { return ss.book }

func (ss *session) Commit(_ context.Context, changes store.Changes) error {
	if ss.done {
		return fmt.Errorf("memory: session already ended")
	}
	ms := ss.state
	ms.mu.Lock()
	if ms.version != ss.version {
		err := fmt.Errorf("%w: market %s moved from version %d to %d", store.ErrConflict, ms.market.Id, ss.version, ms.version)
		ms.mu.Unlock()
		ss.done = true
		return err
	}
	ms.book = ss.book
	ms.version++
	ms.fills = append(ms.fills, changes.Fills...)
	// history is written under the market lock so commits of one market
	// land in version order
	ss.store.record(changes)
	ms.mu.Unlock()

	ss.done = true
	ss.book = nil
	return nil
}

func (ss *session) Release(context.Context) {
	ss.done = true
	ss.book = nil
}

// record updates order history. The committed book is already authoritative
// for resting orders.
func (s *Store) record(changes store.Changes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range changes.Reductions {
		if o, ok := s.orders[r.OrderId]; ok {
			o.Unfilled -= r.Amount
			if o.Unfilled == 0 {
				o.Active = false
			}
		}
	}
	for _, id := range changes.Cancelled {
		if o, ok := s.orders[id]; ok {
			o.Active = false
		}
	}
	if changes.Resting != nil {
		cp := *changes.Resting
		s.orders[cp.Id] = &cp
		s.rested = append(s.rested, cp.Id)
	}
}

// Version is the number of commits on a market.
func (s *Store) Version(marketId uuid.UUID) (uint64, error) {
	ms, err := s.state(marketId)
	if err != nil {
		return 0, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.version, nil
}

// Snapshot returns a copy of the committed book of a market.
func (s *Store) Snapshot(marketId uuid.UUID) (*book.Book, error) {
	ms, err := s.state(marketId)
	if err != nil {
		return nil, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.book.Clone(), nil
}

func (s *Store) Markets(context.Context) ([]exchange.Market, error) {
	s.mu.RLock()
	states := make([]*marketState, 0, len(s.markets))
	for _, ms := range s.markets {
		states = append(states, ms)
	}
	s.mu.RUnlock()

	out := make([]exchange.Market, 0, len(states))
	for _, ms := range states {
		ms.mu.RLock()
		m := ms.market
		ms.mu.RUnlock()
		if !m.Obsolete {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BaseSymbol != out[j].BaseSymbol {
			return out[i].BaseSymbol < out[j].BaseSymbol
		}
		return out[i].QuoteSymbol < out[j].QuoteSymbol
	})
	return out, nil
}

func (s *Store) MarketBySymbol(ctx context.Context, base, quote string) (exchange.Market, error) {
	markets, err := s.Markets(ctx)
	if err != nil {
		return exchange.Market{}, err
	}
	base, quote = strings.ToUpper(base), strings.ToUpper(quote)
	for _, m := range markets {
		if m.BaseSymbol == base && m.QuoteSymbol == quote {
			return m, nil
		}
	}
	return exchange.Market{}, fmt.Errorf("%w: market %s/%s", store.ErrNotFound, base, quote)
}

func (s *Store) Depth(_ context.Context, marketId uuid.UUID, limit int) ([]exchange.PriceLevel, []exchange.PriceLevel, error) {
	ms, err := s.state(marketId)
	if err != nil {
		return nil, nil, err
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return ms.book.Depth(exchange.Buy, limit), ms.book.Depth(exchange.Sell, limit), nil
}

func (s *Store) Order(_ context.Context, id uuid.UUID) (exchange.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return exchange.Order{}, fmt.Errorf("%w: order %s", store.ErrNotFound, id)
	}
	return *o, nil
}

func (s *Store) Orders(_ context.Context, f store.OrderFilter) ([]exchange.Order, error) {
	s.mu.RLock()
	var out []exchange.Order
	// newest first
	for i := len(s.rested) - 1; i >= 0; i-- {
		o := s.orders[s.rested[i]]
		if o.UserId != f.UserId {
			continue
		}
		if f.MarketId != nil && o.MarketId != *f.MarketId {
			continue
		}
		if f.Status == store.StatusActive && !o.Active || f.Status == store.StatusInactive && o.Active {
			continue
		}
		out = append(out, *o)
	}
	s.mu.RUnlock()
	return page(out, f.Offset, f.Limit), nil
}

func (s *Store) Fills(_ context.Context, f store.FillFilter) ([]exchange.Fill, error) {
	s.mu.RLock()
	states := make([]*marketState, 0, len(s.markets))
	for id, ms := range s.markets {
		if f.MarketId == nil || *f.MarketId == id {
			states = append(states, ms)
		}
	}
	s.mu.RUnlock()

	var out []exchange.Fill
	for _, ms := range states {
		ms.mu.RLock()
		// newest first within a market; fills are appended in commit order
		for i := len(ms.fills) - 1; i >= 0; i-- {
			fill := ms.fills[i]
			if f.UserId != nil && fill.MakerUserId != *f.UserId && fill.TakerUserId != *f.UserId {
				continue
			}
			if f.OrderId != nil && fill.MakerOrderId != *f.OrderId && fill.TakerOrderId != *f.OrderId {
				continue
			}
			out = append(out, fill)
		}
		ms.mu.RUnlock()
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Created.After(out[j].Created) })
	return page(out, 0, f.Limit), nil
}

func (s *Store) Users(context.Context) ([]exchange.User, error) {
	s.mu.RLock()
	out := make([]exchange.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, u)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *Store) User(_ context.Context, id uuid.UUID) (exchange.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return exchange.User{}, fmt.Errorf("%w: user %s", store.ErrNotFound, id)
	}
	return u, nil
}

func page[T any](items []T, offset, limit int) []T {
	if offset > len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
