package coupons

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/logger"
	"github.com/PancyStudios/DirectorioGo/pkg/models"
)

// MemoryStoreOptions contains configuration for a MemoryStore
type MemoryStoreOptions struct {
	MaxAttempts int
}

// DefaultMemoryStoreOptions returns default options for MemoryStore
func DefaultMemoryStoreOptions() MemoryStoreOptions {
	return MemoryStoreOptions{
		MaxAttempts: 5,
	}
}

type memCoupon struct {
	coupon  models.Coupon
	version uint64
}

// MemoryStore is an in-process Store with optimistic concurrency:
// transactions record the versions they read and are validated at
// commit, exactly like a document store detecting conflicting writes.
type MemoryStore struct {
	mu            sync.RWMutex
	coupons       map[string]*memCoupon
	redemptions   map[string]*models.UsedCoupon
	byUserCoupon  map[string]string
	notifications []*models.Notification
	favorites     map[string][]string
	watchers      map[string]map[*Subscription]struct{}
	clock         uint64
	options       MemoryStoreOptions
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore(opts ...MemoryStoreOptions) *MemoryStore {
	options := DefaultMemoryStoreOptions()
	if len(opts) > 0 {
		options = opts[0]
	}
	if options.MaxAttempts <= 0 {
		options.MaxAttempts = 1
	}
	return &MemoryStore{
		coupons:      make(map[string]*memCoupon),
		redemptions:  make(map[string]*models.UsedCoupon),
		byUserCoupon: make(map[string]string),
		favorites:    make(map[string][]string),
		watchers:     make(map[string]map[*Subscription]struct{}),
		options:      options,
	}
}

func redemptionKey(userID, couponID string) string {
	return userID + "|" + couponID
}

// AddFavorite records that userID follows businessID
func (m *MemoryStore) AddFavorite(userID, businessID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.favorites[businessID] {
		if id == userID {
			return
		}
	}
	m.favorites[businessID] = append(m.favorites[businessID], userID)
}

// PutCoupon stores a coupon as-is, replacing any previous version.
// It is meant for seeding.
func (m *MemoryStore) PutCoupon(c models.Coupon) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeCoupon(c)
}

// Notifications returns the notifications addressed to userID
func (m *MemoryStore) Notifications(userID string) []*models.Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Notification
	for _, n := range m.notifications {
		if n.UserID == userID {
			copied := *n
			out = append(out, &copied)
		}
	}
	return out
}

// writeCoupon stores c with a fresh version and notifies watchers.
// Callers hold m.mu.
func (m *MemoryStore) writeCoupon(c models.Coupon) {
	m.clock++
	m.coupons[c.ID] = &memCoupon{coupon: c, version: m.clock}
	for sub := range m.watchers[c.ID] {
		snapshot := c
		sub.Send(&snapshot)
	}
}

func (m *MemoryStore) version(id string) uint64 {
	if mc, ok := m.coupons[id]; ok {
		return mc.version
	}
	return 0
}

// RunInTransaction runs fn against a private transaction and validates
// it at commit
func (m *MemoryStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	for attempt := 1; attempt <= m.options.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		tx := newMemTx(m)
		err := fn(ctx, tx)
		if err == nil {
			err = m.commit(tx)
		}
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrConflict) {
			return err
		}

		logger.Debug(fmt.Sprintf("Conflicto en la transacción (intento %d/%d)", attempt, m.options.MaxAttempts), "MemoryStore")
		if attempt < m.options.MaxAttempts {
			time.Sleep(time.Duration(rand.Intn(attempt*200)+1) * time.Microsecond)
		}
	}
	return fmt.Errorf("%w: %d attempts exhausted", ErrConflict, m.options.MaxAttempts)
}

func (m *MemoryStore) commit(tx *memTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, v := range tx.readVersions {
		if m.version(id) != v {
			return ErrConflict
		}
	}
	for key := range tx.checkedKeys {
		if _, exists := m.byUserCoupon[key]; exists {
			return ErrConflict
		}
	}
	for id, expected := range tx.consumes {
		mc, ok := m.coupons[id]
		if !ok || mc.coupon.CurrentUses != expected {
			return ErrConflict
		}
	}
	for _, c := range tx.coupons {
		if _, exists := m.coupons[c.ID]; exists {
			return fmt.Errorf("coupon %s already exists", c.ID)
		}
	}
	seen := make(map[string]struct{}, len(tx.redemptions))
	for _, rec := range tx.redemptions {
		key := redemptionKey(rec.UserID, rec.CouponID)
		if _, exists := m.byUserCoupon[key]; exists {
			return ErrDuplicateRedemption
		}
		if _, dup := seen[key]; dup {
			return ErrDuplicateRedemption
		}
		seen[key] = struct{}{}
	}

	for _, c := range tx.coupons {
		m.writeCoupon(*c)
	}
	for id := range tx.consumes {
		c := m.coupons[id].coupon
		c.CurrentUses++
		m.writeCoupon(c)
	}
	for _, rec := range tx.redemptions {
		copied := *rec
		m.redemptions[rec.ID] = &copied
		m.byUserCoupon[redemptionKey(rec.UserID, rec.CouponID)] = rec.ID
	}
	for _, n := range tx.notifications {
		copied := *n
		m.notifications = append(m.notifications, &copied)
	}
	return nil
}

// memTx buffers writes and records what it read
type memTx struct {
	store         *MemoryStore
	readVersions  map[string]uint64
	checkedKeys   map[string]struct{}
	consumes      map[string]int
	coupons       []*models.Coupon
	redemptions   []*models.UsedCoupon
	notifications []*models.Notification
}

func newMemTx(m *MemoryStore) *memTx {
	return &memTx{
		store:        m,
		readVersions: make(map[string]uint64),
		checkedKeys:  make(map[string]struct{}),
		consumes:     make(map[string]int),
	}
}

func (t *memTx) Coupon(_ context.Context, id string) (*models.Coupon, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	mc, ok := t.store.coupons[id]
	if !ok {
		t.readVersions[id] = 0
		return nil, nil
	}
	if prev, seen := t.readVersions[id]; seen && prev != mc.version {
		return nil, ErrConflict
	}
	t.readVersions[id] = mc.version
	c := mc.coupon
	return &c, nil
}

func (t *memTx) HasRedemption(_ context.Context, userID, couponID string) (bool, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	key := redemptionKey(userID, couponID)
	if _, exists := t.store.byUserCoupon[key]; exists {
		return true, nil
	}
	t.checkedKeys[key] = struct{}{}
	return false, nil
}

func (t *memTx) ConsumeUse(_ context.Context, c *models.Coupon) error {
	if _, pending := t.consumes[c.ID]; pending {
		return fmt.Errorf("coupon %s already consumed in this transaction", c.ID)
	}
	if c.CurrentUses >= c.MaxUses {
		return limitReached(c.MaxUses)
	}
	t.consumes[c.ID] = c.CurrentUses
	return nil
}

func (t *memTx) InsertRedemption(_ context.Context, rec *models.UsedCoupon) error {
	t.redemptions = append(t.redemptions, rec)
	return nil
}

func (t *memTx) InsertCoupon(_ context.Context, c *models.Coupon) error {
	copied := *c
	t.coupons = append(t.coupons, &copied)
	return nil
}

func (t *memTx) FavoriteUsers(_ context.Context, businessID string) ([]string, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return append([]string(nil), t.store.favorites[businessID]...), nil
}

func (t *memTx) InsertNotifications(_ context.Context, notifications []*models.Notification) error {
	t.notifications = append(t.notifications, notifications...)
	return nil
}

// GetCoupon returns a copy of the coupon, or nil when absent
func (m *MemoryStore) GetCoupon(_ context.Context, id string) (*models.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.coupons[id]
	if !ok {
		return nil, nil
	}
	c := mc.coupon
	return &c, nil
}

// FindCouponByCode returns the newest coupon of businessID with code
func (m *MemoryStore) FindCouponByCode(_ context.Context, businessID, code string) (*models.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *models.Coupon
	for _, mc := range m.coupons {
		if mc.coupon.BusinessID != businessID || mc.coupon.Code != code {
			continue
		}
		if found == nil || mc.coupon.CreatedAt.After(found.CreatedAt) {
			c := mc.coupon
			found = &c
		}
	}
	return found, nil
}

// ListCouponsByBusiness returns the coupons of a business, newest first
func (m *MemoryStore) ListCouponsByBusiness(_ context.Context, businessID string) ([]*models.Coupon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Coupon, 0)
	for _, mc := range m.coupons {
		if mc.coupon.BusinessID == businessID {
			c := mc.coupon
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateCoupon applies update with last-writer-wins semantics
func (m *MemoryStore) UpdateCoupon(_ context.Context, id string, update CouponUpdate) (*models.Coupon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	mc, ok := m.coupons[id]
	if !ok {
		return nil, nil
	}
	c := mc.coupon
	if update.MaxUses != nil && *update.MaxUses < c.CurrentUses {
		return nil, ErrUsesExceedCap
	}
	applyCouponUpdate(&c, update)
	c.UpdatedAt = time.Now()
	m.writeCoupon(c)

	out := c
	return &out, nil
}

// applyCouponUpdate copies the set fields of update onto c
func applyCouponUpdate(c *models.Coupon, update CouponUpdate) {
	if update.Title != nil {
		c.Title = *update.Title
	}
	if update.Description != nil {
		c.Description = *update.Description
	}
	if update.Discount != nil {
		c.Discount = *update.Discount
	}
	if update.MaxUses != nil {
		c.MaxUses = *update.MaxUses
	}
	if update.StartDate != nil {
		c.StartDate = *update.StartDate
	}
	if update.EndDate != nil {
		c.EndDate = *update.EndDate
	}
	if update.IsActive != nil {
		c.IsActive = *update.IsActive
	}
}

// DeleteCoupon removes a coupon; redemption records are untouched
func (m *MemoryStore) DeleteCoupon(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.coupons[id]; !ok {
		return nil
	}
	delete(m.coupons, id)
	for sub := range m.watchers[id] {
		sub.Send(nil)
	}
	return nil
}

func (m *MemoryStore) listRedemptions(match func(*models.UsedCoupon) bool) []*models.UsedCoupon {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.UsedCoupon, 0)
	for _, rec := range m.redemptions {
		if match(rec) {
			copied := *rec
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].UsedAt.After(out[j].UsedAt)
	})
	return out
}

// ListRedemptionsByUser returns the redemptions of a user, newest first
func (m *MemoryStore) ListRedemptionsByUser(_ context.Context, userID string) ([]*models.UsedCoupon, error) {
	return m.listRedemptions(func(r *models.UsedCoupon) bool { return r.UserID == userID }), nil
}

// ListRedemptionsByBusiness returns the redemptions of a business, newest first
func (m *MemoryStore) ListRedemptionsByBusiness(_ context.Context, businessID string) ([]*models.UsedCoupon, error) {
	return m.listRedemptions(func(r *models.UsedCoupon) bool { return r.BusinessID == businessID }), nil
}

// ListRedemptionsByCoupon returns the redemptions of a coupon, newest first
func (m *MemoryStore) ListRedemptionsByCoupon(_ context.Context, couponID string) ([]*models.UsedCoupon, error) {
	return m.listRedemptions(func(r *models.UsedCoupon) bool { return r.CouponID == couponID }), nil
}

// WatchCoupon subscribes to changes of one coupon. A nil snapshot means
// the coupon was deleted.
func (m *MemoryStore) WatchCoupon(ctx context.Context, couponID string) (*Subscription, error) {
	var sub *Subscription
	sub = NewSubscription(8, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.watchers[couponID], sub)
		if len(m.watchers[couponID]) == 0 {
			delete(m.watchers, couponID)
		}
	})

	m.mu.Lock()
	if m.watchers[couponID] == nil {
		m.watchers[couponID] = make(map[*Subscription]struct{})
	}
	m.watchers[couponID][sub] = struct{}{}
	if mc, ok := m.coupons[couponID]; ok {
		snapshot := mc.coupon
		sub.Send(&snapshot)
	}
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.Done():
		}
	}()
	return sub, nil
}
