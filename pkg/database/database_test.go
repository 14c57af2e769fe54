package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/PancyStudios/DirectorioGo/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestGenerateCacheKeyIsDeterministic(t *testing.T) {
	dm := NewDataManager[models.Coupon](models.CouponsCollection, NewDatabase())

	a := dm.generateCacheKey(bson.M{"businessId": "b1", "code": "PROMO"})
	b := dm.generateCacheKey(bson.M{"code": "PROMO", "businessId": "b1"})
	if a != b {
		t.Errorf("cache keys differ: %q vs %q", a, b)
	}
	if want := "coupons:{businessId=b1,code=PROMO}"; a != want {
		t.Errorf("cache key = %q, want %q", a, want)
	}
}

func TestCacheEviction(t *testing.T) {
	dm := NewDataManager[models.BlockedUser](models.BlockedUsersCollection, NewDatabase(), DataManagerOptions{MaxCacheSize: 2})
	dm.ClearCache()
	defer dm.ClearCache()

	for i := 0; i < 3; i++ {
		query := bson.M{"_id": fmt.Sprintf("user-%d", i)}
		dm.cachePut(dm.generateCacheKey(query), &models.BlockedUser{ID: fmt.Sprintf("user-%d", i)})
	}

	if got := dm.CacheSize(); got != 2 {
		t.Errorf("CacheSize() = %d, want 2", got)
	}
	if _, ok := dm.cacheGet(dm.generateCacheKey(bson.M{"_id": "user-0"})); ok {
		t.Error("oldest entry should have been evicted")
	}

	dm.Evict(bson.M{"_id": "user-2"})
	if _, ok := dm.cacheGet(dm.generateCacheKey(bson.M{"_id": "user-2"})); ok {
		t.Error("Evict should drop the entry")
	}
}

func TestOfflineWritesAreQueued(t *testing.T) {
	db := NewDatabase()
	dm := NewDataManager[models.BlockedUser](models.BlockedUsersCollection, db)

	result, err := dm.Set(bson.M{"_id": "u1"}, models.BlockedUser{ID: "u1"})
	if err != nil || result != nil {
		t.Fatalf("Set offline = (%v, %v), want (nil, nil)", result, err)
	}
	if err := dm.Delete(bson.M{"_id": "u2"}); err != nil {
		t.Fatalf("Delete offline returned error: %v", err)
	}
	if got := db.PendingWrites(); got != 2 {
		t.Errorf("PendingWrites() = %d, want 2", got)
	}

	if _, err := dm.Get(bson.M{"_id": "u3"}); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Get offline error = %v, want ErrNotConnected", err)
	}
}

func TestRunTransactionOffline(t *testing.T) {
	store := NewCouponStore(NewDatabase(), 3)
	err := store.RunInTransaction(context.Background(), func(ctx context.Context, tx coupons.Tx) error {
		t.Error("fn must not run while offline")
		return nil
	})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("RunInTransaction offline error = %v, want ErrNotConnected", err)
	}
}

func TestIsConflict(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"conflict sentinel", coupons.ErrConflict, true},
		{"wrapped sentinel", fmt.Errorf("commit: %w", coupons.ErrConflict), true},
		{"transient label", mongo.CommandError{Code: 251, Labels: []string{labelTransientTransaction}}, true},
		{"write conflict", mongo.CommandError{Code: codeWriteConflict}, true},
		{"other server error", mongo.CommandError{Code: 2}, false},
		{"plain error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isConflict(tt.err); got != tt.want {
				t.Errorf("isConflict(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestCouponUpdateDoc(t *testing.T) {
	title := "Nuevo título"
	maxUses := 20
	active := false

	doc := couponUpdateDoc(coupons.CouponUpdate{Title: &title, MaxUses: &maxUses, IsActive: &active})

	if len(doc) != 3 {
		t.Fatalf("update doc has %d fields, want 3: %v", len(doc), doc)
	}
	if doc["title"] != title || doc["maxUses"] != maxUses || doc["isActive"] != active {
		t.Errorf("unexpected update doc: %v", doc)
	}
	if _, ok := doc["currentUses"]; ok {
		t.Error("currentUses must never be part of an update")
	}
}

func TestIndexesIncludeUniqueRedemption(t *testing.T) {
	indexes := Indexes()[models.UsedCouponsCollection]

	for _, idx := range indexes {
		if idx.Options != nil && idx.Options.Unique != nil && *idx.Options.Unique {
			keys := idx.Keys.(bson.D)
			if len(keys) == 2 && keys[0].Key == "userId" && keys[1].Key == "couponId" {
				return
			}
		}
	}
	t.Error("expected a unique (userId, couponId) index on used_coupons")
}

func TestSnapshotFor(t *testing.T) {
	coupon := &models.Coupon{ID: "c1", CurrentUses: 3}

	if got, ok := snapshotFor(couponChange{OperationType: "update", FullDocument: coupon}); !ok || got != coupon {
		t.Errorf("update should forward the full document, got (%v, %v)", got, ok)
	}
	if got, ok := snapshotFor(couponChange{OperationType: "delete"}); !ok || got != nil {
		t.Errorf("delete should send nil, got (%v, %v)", got, ok)
	}
	if _, ok := snapshotFor(couponChange{OperationType: "invalidate"}); ok {
		t.Error("invalidate should be skipped")
	}
	if _, ok := snapshotFor(couponChange{OperationType: "update"}); ok {
		t.Error("update without document should be skipped")
	}
}

func TestConnectedNilSafe(t *testing.T) {
	var db *Database
	if db.Connected() {
		t.Error("nil database must not report connected")
	}
	if _, ok := db.GetStatus(); ok {
		t.Error("nil database must not report online")
	}
}

func TestMemoryBlocklist(t *testing.T) {
	bl := NewBlocklist(nil)

	if _, err := bl.Block("u1", "spam", "admin"); err != nil {
		t.Fatalf("Block() error: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := bl.Block("u2", "fraude", "admin"); err != nil {
		t.Fatalf("Block() error: %v", err)
	}
	if _, err := bl.Block("u1", "otra vez", "admin"); !errors.Is(err, ErrBlockedUserExists) {
		t.Errorf("second Block() error = %v, want ErrBlockedUserExists", err)
	}

	if !bl.IsBlocked("u1") || bl.IsBlocked("u3") {
		t.Error("IsBlocked returned unexpected result")
	}

	list := bl.List()
	if len(list) != 2 || list[0].ID != "u2" {
		t.Errorf("List() should return newest first, got %v", list)
	}

	if err := bl.Unblock("u1"); err != nil {
		t.Fatalf("Unblock() error: %v", err)
	}
	if err := bl.Unblock("u1"); !errors.Is(err, ErrBlockedUserNotFound) {
		t.Errorf("second Unblock() error = %v, want ErrBlockedUserNotFound", err)
	}
	if bl.Size() != 1 {
		t.Errorf("Size() = %d, want 1", bl.Size())
	}
}

func TestBlocklistOfflineQueuesWrite(t *testing.T) {
	db := NewDatabase()
	bl := NewBlocklist(NewDataManager[models.BlockedUser](models.BlockedUsersCollection, db))

	if _, err := bl.Block("u1", "spam", "admin"); err != nil {
		t.Fatalf("Block() offline error: %v", err)
	}
	if !bl.IsBlocked("u1") {
		t.Error("user should be blocked in memory while the write is queued")
	}
	if db.PendingWrites() != 1 {
		t.Errorf("PendingWrites() = %d, want 1", db.PendingWrites())
	}
}

func TestStaleIndexes(t *testing.T) {
	current := map[string][]string{
		models.CouponsCollection:     {"_id_", "business_created", "business_code", "code_1"},
		models.UsedCouponsCollection: {"_id_", "user_coupon_unique"},
		"unrelated":                  {"_id_", "whatever"},
	}

	stale := staleIndexes(current)

	if len(stale) != 1 {
		t.Fatalf("expected stale indexes in one collection, got %v", stale)
	}
	if got := stale[models.CouponsCollection]; len(got) != 1 || got[0] != "code_1" {
		t.Errorf("stale coupon indexes = %v, want [code_1]", got)
	}
}
