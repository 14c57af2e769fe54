package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/logger"
	"github.com/PancyStudios/DirectorioGo/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const logPrefix = "Coupons"

// Actor is the identity performing a management operation
type Actor struct {
	UserID     string
	BusinessID string
	Admin      bool
}

// CanManage reports whether the actor administers businessID
func (a Actor) CanManage(businessID string) bool {
	if a.Admin {
		return true
	}
	return a.BusinessID != "" && a.BusinessID == businessID
}

// Service exposes the coupon operations. The redemption counter is only
// reachable through Redeem and RedeemCode.
type Service struct {
	store     Store
	publisher Publisher
	validate  *validator.Validate
	now       func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces time.Now, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithPublisher sets where coupon events are published
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

// NewService creates a coupon service on top of store
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:    store,
		validate: validator.New(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// checkRedeemable applies the coupon-level preconditions in order
func checkRedeemable(c *models.Coupon, now time.Time) error {
	if !c.IsActive {
		return &Error{Kind: KindInactive}
	}
	if c.CurrentUses >= c.MaxUses {
		return limitReached(c.MaxUses)
	}
	if now.Before(c.StartDate) {
		return &Error{Kind: KindNotYetStarted}
	}
	if now.After(c.EndDate) {
		return &Error{Kind: KindExpired}
	}
	return nil
}

// Redeem applies couponID for userID. Eligibility checks, the counter
// increment and the usage record all happen in one transaction.
func (s *Service) Redeem(ctx context.Context, userID, couponID string) (*models.UsedCoupon, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &Error{Kind: KindUnauthenticated}
	}
	if strings.TrimSpace(couponID) == "" {
		return nil, &Error{Kind: KindNotFound}
	}

	var (
		record *models.UsedCoupon
		after  models.Coupon
	)
	err := s.store.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		record = nil

		coupon, err := tx.Coupon(ctx, couponID)
		if err != nil {
			return err
		}
		if coupon == nil {
			return &Error{Kind: KindNotFound}
		}

		now := s.now()
		if err := checkRedeemable(coupon, now); err != nil {
			return err
		}

		used, err := tx.HasRedemption(ctx, userID, couponID)
		if err != nil {
			return err
		}
		if used {
			return &Error{Kind: KindAlreadyUsed}
		}

		if err := tx.ConsumeUse(ctx, coupon); err != nil {
			return err
		}

		rec := &models.UsedCoupon{
			ID:         uuid.NewString(),
			UserID:     userID,
			CouponID:   coupon.ID,
			BusinessID: coupon.BusinessID,
			Code:       coupon.Code,
			Title:      coupon.Title,
			Discount:   coupon.Discount,
			UsedAt:     now,
			ExpiresAt:  coupon.EndDate,
		}
		if err := tx.InsertRedemption(ctx, rec); err != nil {
			if errors.Is(err, ErrDuplicateRedemption) {
				return &Error{Kind: KindAlreadyUsed, Err: err}
			}
			return err
		}

		record = rec
		after = *coupon
		after.CurrentUses++
		return nil
	})
	if err != nil {
		return nil, s.redeemFailure(couponID, err)
	}

	logger.Info(fmt.Sprintf("Cupón %s canjeado por %s (%d/%d)", after.Code, userID, after.CurrentUses, after.MaxUses), logPrefix)
	s.publish(RedeemedTopic(after.BusinessID, after.ID), RedeemedEvent{
		CouponID:    after.ID,
		BusinessID:  after.BusinessID,
		UserID:      userID,
		Code:        after.Code,
		CurrentUses: after.CurrentUses,
		MaxUses:     after.MaxUses,
		UsedAt:      record.UsedAt,
	})
	return record, nil
}

func (s *Service) redeemFailure(couponID string, err error) error {
	if KindOf(err) != 0 {
		return err
	}
	if errors.Is(err, ErrConflict) {
		logger.Warn(fmt.Sprintf("Reintentos agotados al canjear el cupón %s", couponID), logPrefix)
		return &Error{Kind: KindTransactionConflict, Err: err}
	}
	logger.Error(fmt.Sprintf("Error al canjear el cupón %s: %v", couponID, err), logPrefix)
	return fmt.Errorf("redeem coupon %s: %w", couponID, err)
}

// RedeemCode resolves a human-entered code within a business and
// redeems the matching coupon
func (s *Service) RedeemCode(ctx context.Context, userID, businessID, code string) (*models.UsedCoupon, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, &Error{Kind: KindUnauthenticated}
	}
	normalized := models.NormalizeCode(code)
	if normalized == "" || businessID == "" {
		return nil, &Error{Kind: KindNotFound}
	}

	coupon, err := s.store.FindCouponByCode(ctx, businessID, normalized)
	if err != nil {
		return nil, err
	}
	if coupon == nil {
		return nil, &Error{Kind: KindNotFound}
	}
	return s.Redeem(ctx, userID, coupon.ID)
}

// Get returns a coupon by id
func (s *Service) Get(ctx context.Context, id string) (*models.Coupon, error) {
	c, err := s.store.GetCoupon(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, &Error{Kind: KindNotFound}
	}
	return c, nil
}

// ListByBusiness returns every coupon of a business
func (s *Service) ListByBusiness(ctx context.Context, businessID string) ([]*models.Coupon, error) {
	return s.store.ListCouponsByBusiness(ctx, businessID)
}

// History returns the redemptions of a user, newest first
func (s *Service) History(ctx context.Context, userID string) ([]*models.UsedCoupon, error) {
	if userID == "" {
		return nil, &Error{Kind: KindUnauthenticated}
	}
	return s.store.ListRedemptionsByUser(ctx, userID)
}

// BusinessHistory returns the redemptions of every coupon of a business
func (s *Service) BusinessHistory(ctx context.Context, actor Actor, businessID string) ([]*models.UsedCoupon, error) {
	if !actor.CanManage(businessID) {
		return nil, &Error{Kind: KindForbidden}
	}
	return s.store.ListRedemptionsByBusiness(ctx, businessID)
}

// CouponHistory returns the redemptions of one coupon
func (s *Service) CouponHistory(ctx context.Context, actor Actor, couponID string) ([]*models.UsedCoupon, error) {
	c, err := s.Get(ctx, couponID)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(c.BusinessID) {
		return nil, &Error{Kind: KindForbidden}
	}
	return s.store.ListRedemptionsByCoupon(ctx, couponID)
}

// Watch subscribes to changes of a coupon
func (s *Service) Watch(ctx context.Context, couponID string) (*Subscription, error) {
	if _, err := s.Get(ctx, couponID); err != nil {
		return nil, err
	}
	return s.store.WatchCoupon(ctx, couponID)
}

func (s *Service) publish(topic string, payload interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(topic, payload); err != nil {
		logger.Warn(fmt.Sprintf("No se pudo publicar el evento %s: %v", topic, err), logPrefix)
	}
}
