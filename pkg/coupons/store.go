// Package coupons implements coupon creation, lifecycle and the
// transactional redemption engine.
package coupons

import (
	"context"
	"sync"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/models"
)

// Tx is the view of the store available inside a transaction.
// It is only handed out by Store.RunInTransaction, so ConsumeUse can
// never run outside of one.
type Tx interface {
	// Coupon reads a coupon, returning nil when it does not exist
	Coupon(ctx context.Context, id string) (*models.Coupon, error)
	// HasRedemption reports whether userID already redeemed couponID
	HasRedemption(ctx context.Context, userID, couponID string) (bool, error)
	// ConsumeUse increments currentUses of c by one, conditioned on
	// the stored value still being c.CurrentUses
	ConsumeUse(ctx context.Context, c *models.Coupon) error
	InsertRedemption(ctx context.Context, rec *models.UsedCoupon) error
	InsertCoupon(ctx context.Context, c *models.Coupon) error
	FavoriteUsers(ctx context.Context, businessID string) ([]string, error)
	InsertNotifications(ctx context.Context, notifications []*models.Notification) error
}

// CouponUpdate holds the editable fields of a coupon. Nil fields are
// left untouched.
type CouponUpdate struct {
	Title       *string
	Description *string
	Discount    *int
	MaxUses     *int
	StartDate   *time.Time
	EndDate     *time.Time
	IsActive    *bool
}

// Store is the document store the coupon service runs on
type Store interface {
	// RunInTransaction runs fn atomically. Attempts that fail with
	// ErrConflict are retried; when the attempts run out the returned
	// error wraps ErrConflict. Any other error from fn aborts at once.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetCoupon(ctx context.Context, id string) (*models.Coupon, error)
	FindCouponByCode(ctx context.Context, businessID, code string) (*models.Coupon, error)
	ListCouponsByBusiness(ctx context.Context, businessID string) ([]*models.Coupon, error)
	UpdateCoupon(ctx context.Context, id string, update CouponUpdate) (*models.Coupon, error)
	DeleteCoupon(ctx context.Context, id string) error

	ListRedemptionsByUser(ctx context.Context, userID string) ([]*models.UsedCoupon, error)
	ListRedemptionsByBusiness(ctx context.Context, businessID string) ([]*models.UsedCoupon, error)
	ListRedemptionsByCoupon(ctx context.Context, couponID string) ([]*models.UsedCoupon, error)

	// WatchCoupon streams the coupon document every time it changes,
	// starting with its current state
	WatchCoupon(ctx context.Context, couponID string) (*Subscription, error)
}

// Publisher receives best-effort coupon events
type Publisher interface {
	Publish(topic string, payload interface{}) error
}

// Subscription is a cancellable stream of coupon snapshots.
// Close must be called to release it. C is never closed; consumers
// select on Done as well.
type Subscription struct {
	C <-chan *models.Coupon

	ch     chan *models.Coupon
	done   chan struct{}
	once   sync.Once
	cancel func()
}

// NewSubscription creates a subscription. The producer must stop
// sending once Done is closed. teardown runs once on Close.
func NewSubscription(buffer int, teardown func()) *Subscription {
	ch := make(chan *models.Coupon, buffer)
	return &Subscription{
		C:      ch,
		ch:     ch,
		done:   make(chan struct{}),
		cancel: teardown,
	}
}

// Send delivers a snapshot, dropping the oldest pending one when the
// consumer is slow. It returns false once the subscription is closed.
func (s *Subscription) Send(c *models.Coupon) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	for {
		select {
		case s.ch <- c:
			return true
		case <-s.done:
			return false
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// Done is closed when the subscription is torn down
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close tears the subscription down. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		if s.cancel != nil {
			s.cancel()
		}
	})
}
