package memory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/JhonesBR/go-ome/internal/exchange"
	"github.com/JhonesBR/go-ome/internal/store"
)

func newStore(t *testing.T) (*Store, exchange.Market) {
	t.Helper()
	s := New()
	require.NoError(t, s.AddAsset(exchange.Asset{Symbol: "BTC", BaseUnitScale: 100_000_000}))
	require.NoError(t, s.AddAsset(exchange.Asset{Symbol: "USD", BaseUnitScale: 100}))
	m, err := s.AddMarket("BTC", "USD", 1)
	require.NoError(t, err)
	return s, m
}

func restingAsk(m exchange.Market, price, amount int64) exchange.Order {
	return exchange.Order{
		Id:       uuid.New(),
		MarketId: m.Id,
		UserId:   uuid.New(),
		Side:     exchange.Sell,
		Price:    price,
		Amount:   amount,
		Unfilled: amount,
		Active:   true,
		Created:  time.Now(),
	}
}

func rest(t *testing.T, sess store.Session, o exchange.Order) {
	t.Helper()
	require.NoError(t, sess.Book().Insert(o))
	require.NoError(t, sess.Commit(context.Background(), store.Changes{Resting: &o}))
}

func TestConcurrentSessionsConflict(t *testing.T) {
	ctx := context.Background()
	s, m := newStore(t)

	first, err := s.Begin(ctx, m.Id)
	require.NoError(t, err)
	defer first.Release(ctx)
	second, err := s.Begin(ctx, m.Id)
	require.NoError(t, err)
	defer second.Release(ctx)

	_, ok := first.Book().BestAsk()
	assert.False(t, ok)
	_, ok = second.Book().BestAsk()
	assert.False(t, ok)

	a := restingAsk(m, 50000, 100)
	rest(t, first, a)

	b := restingAsk(m, 50100, 100)
	require.NoError(t, second.Book().Insert(b))
	err = second.Commit(ctx, store.Changes{Resting: &b})
	require.ErrorIs(t, err, store.ErrConflict)

	// the first commit is what a retry now reads
	retry, err := s.Begin(ctx, m.Id)
	require.NoError(t, err)
	defer retry.Release(ctx)
	got, ok := retry.Book().BestAsk()
	require.True(t, ok)
	assert.Equal(t, a.Id, got.Id)
	assert.Equal(t, 1, retry.Book().Len())

	snap, err := s.Snapshot(m.Id)
	require.NoError(t, err)
	_, ok = snap.Get(b.Id)
	assert.False(t, ok, "conflicted session must leave no trace")
}

// TestRacingCommits starts every session at the same version and then commits
// them together, so all but one take the conflict path at once. Run with -race.
func TestRacingCommits(t *testing.T) {
	ctx := context.Background()
	s, m := newStore(t)

	const sessions = 16
	start := make(chan struct{})
	var won, lost atomic.Int32
	var eg errgroup.Group
	for i := 0; i < sessions; i++ {
		sess, err := s.Begin(ctx, m.Id)
		require.NoError(t, err)
		o := restingAsk(m, int64(100+i), 1)
		require.NoError(t, sess.Book().Insert(o))
		eg.Go(func() error {
			defer sess.Release(ctx)
			<-start
			err := sess.Commit(ctx, store.Changes{Resting: &o})
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, store.ErrConflict):
				lost.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	close(start)
	require.NoError(t, eg.Wait())

	assert.Equal(t, int32(1), won.Load())
	assert.Equal(t, int32(sessions-1), lost.Load())
	v, err := s.Version(m.Id)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	snap, err := s.Snapshot(m.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
}

func TestReleaseDiscardsWork(t *testing.T) {
	ctx := context.Background()
	s, m := newStore(t)

	sess, err := s.Begin(ctx, m.Id)
	require.NoError(t, err)
	require.NoError(t, sess.Book().Insert(restingAsk(m, 100, 1)))
	sess.Release(ctx)
	sess.Release(ctx)

	assert.Error(t, sess.Commit(ctx, store.Changes{}))
	v, err := s.Version(m.Id)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)
	snap, _ := s.Snapshot(m.Id)
	assert.Equal(t, 0, snap.Len())
}

func TestMarketsAreIndependent(t *testing.T) {
	ctx := context.Background()
	s, btc := newStore(t)
	require.NoError(t, s.AddAsset(exchange.Asset{Symbol: "ETH", BaseUnitScale: 1_000_000_000}))
	eth, err := s.AddMarket("ETH", "USD", 1)
	require.NoError(t, err)

	held, err := s.Begin(ctx, btc.Id)
	require.NoError(t, err)
	defer held.Release(ctx)

	other, err := s.Begin(ctx, eth.Id)
	require.NoError(t, err)
	rest(t, other, restingAsk(eth, 3000, 10))

	rest(t, held, restingAsk(btc, 50000, 10))
}

func TestHistoryFollowsCommits(t *testing.T) {
	ctx := context.Background()
	s, m := newStore(t)

	sess, _ := s.Begin(ctx, m.Id)
	o := restingAsk(m, 50000, 100)
	rest(t, sess, o)

	sess, _ = s.Begin(ctx, m.Id)
	_, err := sess.Book().Reduce(o.Id, 40)
	require.NoError(t, err)
	taker := uuid.New()
	fill := exchange.Fill{
		Id: uuid.New(), MarketId: m.Id, MakerOrderId: o.Id, TakerOrderId: uuid.New(),
		MakerUserId: o.UserId, TakerUserId: taker, Price: 50000, Amount: 40, Created: time.Now(),
	}
	require.NoError(t, sess.Commit(ctx, store.Changes{
		Reductions: []store.Reduction{{OrderId: o.Id, Amount: 40}},
		Fills:      []exchange.Fill{fill},
	}))

	got, err := s.Order(ctx, o.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(60), got.Unfilled)
	assert.True(t, got.Active)

	byTaker, err := s.Fills(ctx, store.FillFilter{UserId: &taker})
	require.NoError(t, err)
	require.Len(t, byTaker, 1)
	byOrder, err := s.Fills(ctx, store.FillFilter{OrderId: &o.Id})
	require.NoError(t, err)
	assert.Equal(t, byTaker, byOrder)

	sess, _ = s.Begin(ctx, m.Id)
	_, err = sess.Book().Remove(o.Id)
	require.NoError(t, err)
	require.NoError(t, sess.Commit(ctx, store.Changes{Cancelled: []uuid.UUID{o.Id}}))

	got, _ = s.Order(ctx, o.Id)
	assert.False(t, got.Active)
	active, err := s.Orders(ctx, store.OrderFilter{UserId: o.UserId, Status: store.StatusActive})
	require.NoError(t, err)
	assert.Empty(t, active)
	inactive, err := s.Orders(ctx, store.OrderFilter{UserId: o.UserId, Status: store.StatusInactive})
	require.NoError(t, err)
	assert.Len(t, inactive, 1)

	bids, asks, err := s.Depth(ctx, m.Id, 20)
	require.NoError(t, err)
	assert.Empty(t, bids)
	assert.Empty(t, asks)
}

func TestLookups(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, SeedDemo(s))

	markets, err := s.Markets(ctx)
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, "BTC", markets[0].BaseSymbol)
	assert.Equal(t, int64(100_000_000), markets[0].BaseUnitScale)

	m, err := s.MarketBySymbol(ctx, "eth", "usd")
	require.NoError(t, err)
	assert.Equal(t, "ETH", m.BaseSymbol)

	require.NoError(t, s.SetObsolete(m.Id, true))
	_, err = s.MarketBySymbol(ctx, "ETH", "USD")
	assert.ErrorIs(t, err, store.ErrNotFound)
	got, err := s.Market(ctx, m.Id)
	require.NoError(t, err)
	assert.True(t, got.Obsolete)

	_, err = s.Market(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Begin(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	users, err := s.Users(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice@example.com", users[0].Email)
	_, err = s.User(ctx, users[1].Id)
	assert.NoError(t, err)

	_, err = s.AddMarket("BTC", "USD", 5)
	assert.ErrorIs(t, err, store.ErrExists)
	_, err = s.CreateUser(ctx, "alice@example.com")
	assert.ErrorIs(t, err, store.ErrExists)
	_, err = s.AddMarket("DOGE", "USD", 5)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
