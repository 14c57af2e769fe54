package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/PancyStudios/DirectorioGo/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

const mockNS = mtest.TestDb + "." + models.CouponsCollection

// newMockDatabase returns a connected Database backed by the mock deployment of mt
func newMockDatabase(mt *mtest.T) *Database {
	db := NewDatabase()
	db.mu.Lock()
	db.markConnected(mt.Client, mtest.TestDb)
	db.mu.Unlock()
	return db
}

func couponDoc(currentUses, maxUses int) bson.D {
	now := time.Now()
	return bson.D{
		{Key: "_id", Value: "c1"},
		{Key: "businessId", Value: "biz-1"},
		{Key: "code", Value: "VERANO"},
		{Key: "title", Value: "Verano"},
		{Key: "description", Value: "10% en todo"},
		{Key: "discount", Value: 10},
		{Key: "maxUses", Value: maxUses},
		{Key: "currentUses", Value: currentUses},
		{Key: "startDate", Value: now.Add(-time.Hour)},
		{Key: "endDate", Value: now.Add(time.Hour)},
		{Key: "isActive", Value: true},
		{Key: "createdAt", Value: now.Add(-time.Hour)},
	}
}

// redeemAttemptResponses answers one transaction attempt of Redeem up
// to the conditional update
func redeemAttemptResponses(matched int) []bson.D {
	return []bson.D{
		mtest.CreateCursorResponse(0, mockNS, mtest.FirstBatch, couponDoc(1, 3)),
		mtest.CreateCursorResponse(0, mtest.TestDb+"."+models.UsedCouponsCollection, mtest.FirstBatch),
		mtest.CreateSuccessResponse(bson.E{Key: "n", Value: matched}, bson.E{Key: "nModified", Value: matched}),
	}
}

func TestMongoConsumeUse(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("applies the increment", func(mt *mtest.T) {
		tx := &mongoTx{store: NewCouponStore(newMockDatabase(mt), 3)}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		if err := tx.ConsumeUse(context.Background(), &models.Coupon{ID: "c1", CurrentUses: 1, MaxUses: 3}); err != nil {
			t.Fatalf("ConsumeUse() error = %v", err)
		}

		evt := mt.GetStartedEvent()
		if evt == nil || evt.CommandName != "update" {
			t.Fatalf("expected an update command, got %v", evt)
		}
		if cmd := evt.Command.String(); !strings.Contains(cmd, "currentUses") || !strings.Contains(cmd, "$inc") {
			t.Errorf("update is not conditional on currentUses: %s", cmd)
		}
	})

	mt.Run("no match means another redemption won", func(mt *mtest.T) {
		tx := &mongoTx{store: NewCouponStore(newMockDatabase(mt), 3)}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		err := tx.ConsumeUse(context.Background(), &models.Coupon{ID: "c1", CurrentUses: 1, MaxUses: 3})
		if !errors.Is(err, coupons.ErrConflict) {
			t.Errorf("ConsumeUse() error = %v, want ErrConflict", err)
		}
	})

	mt.Run("limit is checked before writing", func(mt *mtest.T) {
		tx := &mongoTx{store: NewCouponStore(newMockDatabase(mt), 3)}

		err := tx.ConsumeUse(context.Background(), &models.Coupon{ID: "c1", CurrentUses: 3, MaxUses: 3})
		if coupons.KindOf(err) != coupons.KindLimitReached {
			t.Errorf("ConsumeUse() error = %v, want LimitReached", err)
		}
		if evt := mt.GetStartedEvent(); evt != nil {
			t.Errorf("no command expected, got %s", evt.CommandName)
		}
	})

	mt.Run("write conflict is retryable", func(mt *mtest.T) {
		tx := &mongoTx{store: NewCouponStore(newMockDatabase(mt), 3)}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    codeWriteConflict,
			Message: "WriteConflict error",
			Name:    "WriteConflict",
		}))

		err := tx.ConsumeUse(context.Background(), &models.Coupon{ID: "c1", CurrentUses: 1, MaxUses: 3})
		if err == nil || !isConflict(err) {
			t.Errorf("ConsumeUse() error = %v, want a retryable conflict", err)
		}
	})
}

func TestMongoInsertRedemption(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	rec := &models.UsedCoupon{ID: "r1", UserID: "u1", CouponID: "c1"}

	mt.Run("inserts", func(mt *mtest.T) {
		tx := &mongoTx{store: NewCouponStore(newMockDatabase(mt), 3)}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		if err := tx.InsertRedemption(context.Background(), rec); err != nil {
			t.Errorf("InsertRedemption() error = %v", err)
		}
	})

	mt.Run("duplicate key is a duplicate redemption", func(mt *mtest.T) {
		tx := &mongoTx{store: NewCouponStore(newMockDatabase(mt), 3)}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error collection: test.used_coupons index: user_coupon_unique",
		}))

		err := tx.InsertRedemption(context.Background(), rec)
		if !errors.Is(err, coupons.ErrDuplicateRedemption) {
			t.Errorf("InsertRedemption() error = %v, want ErrDuplicateRedemption", err)
		}
	})
}

func TestMongoRedeem(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("unique index rejection is AlreadyUsed", func(mt *mtest.T) {
		svc := coupons.NewService(NewCouponStore(newMockDatabase(mt), 3))

		responses := redeemAttemptResponses(1)
		responses = append(responses,
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key error"}),
			mtest.CreateSuccessResponse(), // abortTransaction
		)
		mt.AddMockResponses(responses...)

		_, err := svc.Redeem(context.Background(), "u1", "c1")
		if !errors.Is(err, coupons.ErrAlreadyUsed) {
			t.Errorf("Redeem() error = %v, want AlreadyUsed", err)
		}
	})

	mt.Run("lost races end as TransactionConflict", func(mt *mtest.T) {
		const attempts = 2
		svc := coupons.NewService(NewCouponStore(newMockDatabase(mt), attempts))

		for i := 0; i < attempts; i++ {
			mt.AddMockResponses(append(redeemAttemptResponses(0), mtest.CreateSuccessResponse())...)
		}

		_, err := svc.Redeem(context.Background(), "u1", "c1")
		if coupons.KindOf(err) != coupons.KindTransactionConflict {
			t.Fatalf("Redeem() error = %v, want TransactionConflict", err)
		}
		if !errors.Is(err, coupons.ErrConflict) {
			t.Errorf("error should wrap ErrConflict: %v", err)
		}
	})
}

func TestRunTransactionRetries(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("transient errors are retried until exhausted", func(mt *mtest.T) {
		db := newMockDatabase(mt)
		calls := 0
		err := db.RunTransaction(context.Background(), 3, func(sc mongo.SessionContext) error {
			calls++
			return mongo.CommandError{Code: codeWriteConflict, Labels: []string{labelTransientTransaction}}
		})

		if calls != 3 {
			t.Errorf("fn ran %d times, want 3", calls)
		}
		if !errors.Is(err, coupons.ErrConflict) {
			t.Errorf("RunTransaction() error = %v, want ErrConflict", err)
		}
	})

	mt.Run("other errors stop right away", func(mt *mtest.T) {
		db := newMockDatabase(mt)
		boom := errors.New("boom")
		calls := 0
		err := db.RunTransaction(context.Background(), 3, func(sc mongo.SessionContext) error {
			calls++
			return boom
		})

		if calls != 1 || !errors.Is(err, boom) {
			t.Errorf("calls = %d, err = %v; want 1 call returning boom", calls, err)
		}
	})

	mt.Run("a later attempt can succeed", func(mt *mtest.T) {
		db := newMockDatabase(mt)
		calls := 0
		err := db.RunTransaction(context.Background(), 3, func(sc mongo.SessionContext) error {
			calls++
			if calls == 1 {
				return coupons.ErrConflict
			}
			return nil
		})

		if err != nil || calls != 2 {
			t.Errorf("calls = %d, err = %v; want success on the second attempt", calls, err)
		}
	})
}

func TestMockDatabasePing(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("ping", func(mt *mtest.T) {
		db := newMockDatabase(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		if _, err := db.Ping(); err != nil {
			t.Errorf("Ping() error = %v", err)
		}
	})
}

func TestOnConnectHooks(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("hooks", func(mt *mtest.T) {
		db := NewDatabase()
		calls := make(chan string, 2)
		db.OnConnect(func() { calls <- "before" })

		select {
		case c := <-calls:
			t.Fatalf("hook %q ran while offline", c)
		case <-time.After(20 * time.Millisecond):
		}

		db.mu.Lock()
		db.markConnected(mt.Client, mtest.TestDb)
		db.mu.Unlock()
		expectHook(t, calls, "before")

		db.OnConnect(func() { calls <- "after" })
		expectHook(t, calls, "after")
	})
}

func expectHook(t *testing.T, calls <-chan string, want string) {
	t.Helper()
	select {
	case got := <-calls:
		if got != want {
			t.Errorf("hook %q ran, want %q", got, want)
		}
	case <-time.After(time.Second):
		t.Errorf("hook %q did not run", want)
	}
}

func TestNewCouponStoreUsesGlobalDataManagers(t *testing.T) {
	db := NewDatabase()
	InitGlobalDataManagers(db)
	couponsDM := GlobalCouponDM

	s := NewCouponStore(db, 3)
	if s.couponsDM != couponsDM || s.usedDM != GlobalUsedCouponDM {
		t.Error("store should reuse the global DataManagers of its database")
	}

	other := NewDatabase()
	s = NewCouponStore(other, 3)
	if s.couponsDM != GlobalCouponDM || GlobalCouponDM.dbInstance != other {
		t.Error("globals should be reinitialized for a different database")
	}
}
