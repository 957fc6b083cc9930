package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JhonesBR/go-ome/internal/conversion"
	"github.com/JhonesBR/go-ome/internal/events"
	"github.com/JhonesBR/go-ome/internal/exchange"
	"github.com/JhonesBR/go-ome/internal/metrics"
	"github.com/JhonesBR/go-ome/internal/store"
)

// Stage is a step of one market-scoped matching attempt.
type Stage string

const (
	StageStarted         Stage = "started"
	StageValidated       Stage = "validated"
	StageBookSnapshotted Stage = "book_snapshotted"
	StageMutated         Stage = "mutated"
	StageCommitted       Stage = "committed"
	StageConflicted      Stage = "conflicted"
	StageRetried         Stage = "retried"
	StageFailed          Stage = "failed"
)

// Observer is told about every stage transition.
type Observer func(marketId uuid.UUID, attempt int, stage Stage)

type RetryPolicy struct {
	MaxAttempts int
	// Backoff is multiplied by the attempt number before each retry.
	Backoff time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, Backoff: 10 * time.Millisecond}
}

const publishTimeout = 2 * time.Second

// OrderRequest is a limit order as callers submit it, in decimal asset units.
type OrderRequest struct {
	UserId   uuid.UUID
	MarketId uuid.UUID
	Side     exchange.Side
	Price    decimal.Decimal
	Amount   decimal.Decimal
}

type Result struct {
	Market exchange.Market
	// Order is the incoming order after matching. It is inactive when fully
	// filled.
	Order    exchange.Order
	Fills    []exchange.Fill
	Offer    *exchange.Order
	Attempts int
}

func (r *Result) TotalFilled() int64 {
	return r.Order.Filled()
}

// Controller serializes matching per market. Each attempt snapshots the book
// through a store session, matches, and commits. A conflicting commit rolls
// the attempt back and replays it from the caller's original input.
type Controller struct {
	store      store.Store
	classifier store.ConflictClassifier
	policy     RetryPolicy
	logger     *zap.Logger
	metrics    *metrics.Metrics
	publisher  events.Publisher
	observer   Observer
	now        func() time.Time
	newId      func() uuid.UUID
}

type Option func(*Controller)

func WithLogger(l *zap.Logger) Option               { return func(c *Controller) { c.logger = l } }
func WithMetrics(m *metrics.Metrics) Option         { return func(c *Controller) { c.metrics = m } }
func WithPublisher(p events.Publisher) Option       { return func(c *Controller) { c.publisher = p } }
func WithRetryPolicy(p RetryPolicy) Option          { return func(c *Controller) { c.policy = p } }
func WithObserver(o Observer) Option                { return func(c *Controller) { c.observer = o } }
func WithClock(now func() time.Time) Option         { return func(c *Controller) { c.now = now } }
func WithIdGenerator(newId func() uuid.UUID) Option { return func(c *Controller) { c.newId = newId } }

func WithClassifier(cc store.ConflictClassifier) Option {
	return func(c *Controller) { c.classifier = cc }
}

func NewController(s store.Store, opts ...Option) *Controller {
	c := &Controller{
		store:      s,
		classifier: store.Conflicts,
		policy:     DefaultRetryPolicy(),
		logger:     zap.NewNop(),
		publisher:  events.Nop(),
		now:        time.Now,
		newId:      uuid.New,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.MaxAttempts < 1 {
		c.policy.MaxAttempts = 1
	}
	return c
}

// PlaceOrder matches a limit order and rests its remainder. Errors classify
// through KindOf. Only Contention is worth resubmitting.
func (c *Controller) PlaceOrder(ctx context.Context, req OrderRequest) (*Result, error) {
	start := time.Now()
	var res *Result
	attempts, err := c.run(ctx, req.MarketId, func(ctx context.Context, attempt int) error {
		r, err := c.placeAttempt(ctx, req, attempt)
		if err != nil {
			return err
		}
		res = r
		return nil
	})

	label := req.MarketId.String()
	if err != nil {
		err = internal(err)
		kind := KindOf(err)
		c.metrics.Done(label, string(kind), 0, time.Since(start))
		fields := []zap.Field{
			zap.String("market", label),
			zap.String("user", req.UserId.String()),
			zap.String("side", string(req.Side)),
			zap.String("price", req.Price.String()),
			zap.String("amount", req.Amount.String()),
			zap.Int("attempts", attempts),
			zap.Error(err),
		}
		switch kind {
		case KindInternal:
			c.logger.Error("order placement failed", fields...)
		case KindContention:
			c.logger.Warn("order placement gave up on contention", fields...)
		}
		return nil, err
	}

	res.Attempts = attempts
	c.metrics.Done(label, "ok", len(res.Fills), time.Since(start))
	c.publish(res.Fills)
	return res, nil
}

// CancelOrder takes a resting order off its market's book.
func (c *Controller) CancelOrder(ctx context.Context, marketId, orderId uuid.UUID) (exchange.Order, error) {
	var cancelled exchange.Order
	attempts, err := c.run(ctx, marketId, func(ctx context.Context, attempt int) error {
		m, err := c.market(ctx, marketId)
		if err != nil {
			return err
		}
		c.observe(m.Id, attempt, StageValidated)

		sess, err := c.store.Begin(ctx, m.Id)
		if err != nil {
			return err
		}
		defer sess.Release(ctx)
		c.observe(m.Id, attempt, StageBookSnapshotted)

		o, changes, err := Cancel(sess.Book(), orderId)
		if err != nil {
			return err
		}
		c.observe(m.Id, attempt, StageMutated)

		if err := sess.Commit(ctx, changes); err != nil {
			return err
		}
		cancelled = o
		return nil
	})
	if err != nil {
		err = internal(err)
		if KindOf(err) == KindInternal {
			c.logger.Error("order cancellation failed",
				zap.String("market", marketId.String()),
				zap.String("order", orderId.String()),
				zap.Int("attempts", attempts),
				zap.Error(err))
		}
		return exchange.Order{}, err
	}
	return cancelled, nil
}

func (c *Controller) placeAttempt(ctx context.Context, req OrderRequest, attempt int) (*Result, error) {
	m, err := c.market(ctx, req.MarketId)
	if err != nil {
		return nil, err
	}
	in, err := incoming(m, req)
	if err != nil {
		return nil, err
	}
	if err := Validate(m, in); err != nil {
		return nil, err
	}
	c.observe(m.Id, attempt, StageValidated)

	sess, err := c.store.Begin(ctx, m.Id)
	if err != nil {
		return nil, err
	}
	defer sess.Release(ctx)
	c.observe(m.Id, attempt, StageBookSnapshotted)

	out, err := Match(sess.Book(), m, in, c.now(), c.newId)
	if err != nil {
		return nil, err
	}
	c.observe(m.Id, attempt, StageMutated)

	if err := sess.Commit(ctx, out.Changes); err != nil {
		return nil, err
	}
	return &Result{
		Market: m,
		Order:  out.Taker,
		Fills:  out.Fills,
		Offer:  out.Residual,
	}, nil
}

// run drives the attempt state machine and returns how many attempts ran.
func (c *Controller) run(ctx context.Context, marketId uuid.UUID, attempt func(context.Context, int) error) (int, error) {
	label := marketId.String()
	for n := 1; ; n++ {
		c.observe(marketId, n, StageStarted)
		c.metrics.Attempt(label)

		err := attempt(ctx, n)
		if err == nil {
			c.observe(marketId, n, StageCommitted)
			return n, nil
		}
		if !c.classifier.IsConflict(err) {
			c.observe(marketId, n, StageFailed)
			return n, err
		}

		c.observe(marketId, n, StageConflicted)
		c.metrics.Conflict(label)
		if n >= c.policy.MaxAttempts {
			c.observe(marketId, n, StageFailed)
			return n, fmt.Errorf("%w: %d attempts on market %s", ErrContention, n, marketId)
		}

		wait := c.policy.Backoff * time.Duration(n)
		c.logger.Debug("serialization conflict, retrying",
			zap.String("market", label),
			zap.Int("attempt", n),
			zap.Int("max_attempts", c.policy.MaxAttempts),
			zap.Duration("backoff", wait))
		if err := sleep(ctx, wait); err != nil {
			c.observe(marketId, n, StageFailed)
			return n, fmt.Errorf("%w: abandoned while backing off: %w", ErrContention, err)
		}
		c.observe(marketId, n, StageRetried)
	}
}

func (c *Controller) market(ctx context.Context, id uuid.UUID) (exchange.Market, error) {
	m, err := c.store.Market(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return exchange.Market{}, fmt.Errorf("%w: market %s", ErrNotFound, id)
	}
	if err != nil {
		return exchange.Market{}, err
	}
	return m, nil
}

func (c *Controller) observe(marketId uuid.UUID, attempt int, stage Stage) {
	if c.observer != nil {
		c.observer(marketId, attempt, stage)
	}
}

func (c *Controller) publish(fills []exchange.Fill) {
	if len(fills) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := c.publisher.PublishFills(ctx, fills); err != nil {
		c.logger.Error("failed to publish fills",
			zap.String("market", fills[0].MarketId.String()),
			zap.Int("fills", len(fills)),
			zap.Error(err))
	}
}

func incoming(m exchange.Market, req OrderRequest) (Incoming, error) {
	if m.Obsolete {
		return Incoming{}, fmt.Errorf("%w: market %s is obsolete", ErrNotFound, m.Id)
	}
	if !req.Side.Valid() {
		return Incoming{}, fmt.Errorf("%w: side must be either \"buy\" or \"sell\"", ErrInvalidOrder)
	}
	price, err := conversion.ToPrice(req.Price)
	if err != nil {
		return Incoming{}, fmt.Errorf("%w: price: %w", ErrInvalidOrder, err)
	}
	amount, err := conversion.ToBaseUnits(req.Amount, m.BaseUnitScale)
	if err != nil {
		return Incoming{}, fmt.Errorf("%w: amount: %w", ErrInvalidOrder, err)
	}
	return Incoming{
		UserId:   req.UserId,
		MarketId: m.Id,
		Side:     req.Side,
		Price:    price,
		Amount:   amount,
	}, nil
}

// internal tags errors outside the domain taxonomy as ErrInternal.
func internal(err error) error {
	if KindOf(err) == KindInternal && !errors.Is(err, ErrInternal) {
		return fmt.Errorf("%w: %w", ErrInternal, err)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
