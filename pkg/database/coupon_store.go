package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/PancyStudios/DirectorioGo/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CouponStore is the MongoDB implementation of coupons.Store
type CouponStore struct {
	db          *Database
	couponsDM   *DataManager[models.Coupon]
	usedDM      *DataManager[models.UsedCoupon]
	maxAttempts int
}

var _ coupons.Store = (*CouponStore)(nil)

// NewCouponStore creates a store on top of db using the global
// DataManagers, initializing them for db when needed. maxAttempts
// bounds how many times a conflicting transaction is run.
func NewCouponStore(db *Database, maxAttempts int) *CouponStore {
	if GlobalCouponDM == nil || GlobalCouponDM.dbInstance != db {
		InitGlobalDataManagers(db)
	}
	return &CouponStore{
		db:          db,
		couponsDM:   GlobalCouponDM,
		usedDM:      GlobalUsedCouponDM,
		maxAttempts: maxAttempts,
	}
}

func (s *CouponStore) col(name string) (*mongo.Collection, error) {
	if !s.db.Connected() {
		return nil, ErrNotConnected
	}
	col := s.db.GetCollection(name)
	if col == nil {
		return nil, ErrNotConnected
	}
	return col, nil
}

// RunInTransaction runs fn in a Mongo transaction
func (s *CouponStore) RunInTransaction(ctx context.Context, fn func(ctx context.Context, tx coupons.Tx) error) error {
	return s.db.RunTransaction(ctx, s.maxAttempts, func(sc mongo.SessionContext) error {
		return fn(sc, &mongoTx{store: s})
	})
}

// mongoTx runs every operation on the session context it receives
type mongoTx struct {
	store *CouponStore
}

func (t *mongoTx) Coupon(ctx context.Context, id string) (*models.Coupon, error) {
	col, err := t.store.col(models.CouponsCollection)
	if err != nil {
		return nil, err
	}
	var c models.Coupon
	if err := col.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (t *mongoTx) HasRedemption(ctx context.Context, userID, couponID string) (bool, error) {
	col, err := t.store.col(models.UsedCouponsCollection)
	if err != nil {
		return false, err
	}
	n, err := col.CountDocuments(ctx, bson.M{"userId": userID, "couponId": couponID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ConsumeUse increments currentUses only if nobody else did since the
// coupon was read. Every redemption writes the coupon document, so two
// transactions on the same coupon always conflict.
func (t *mongoTx) ConsumeUse(ctx context.Context, c *models.Coupon) error {
	if c.CurrentUses >= c.MaxUses {
		return &coupons.Error{Kind: coupons.KindLimitReached, MaxUses: c.MaxUses}
	}
	col, err := t.store.col(models.CouponsCollection)
	if err != nil {
		return err
	}
	res, err := col.UpdateOne(ctx,
		bson.M{
			"_id":         c.ID,
			"currentUses": c.CurrentUses,
			"maxUses":     bson.M{"$gt": c.CurrentUses},
		},
		bson.M{"$inc": bson.M{"currentUses": 1}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return coupons.ErrConflict
	}
	return nil
}

func (t *mongoTx) InsertRedemption(ctx context.Context, rec *models.UsedCoupon) error {
	col, err := t.store.col(models.UsedCouponsCollection)
	if err != nil {
		return err
	}
	if _, err := col.InsertOne(ctx, rec); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return coupons.ErrDuplicateRedemption
		}
		return err
	}
	return nil
}

func (t *mongoTx) InsertCoupon(ctx context.Context, c *models.Coupon) error {
	col, err := t.store.col(models.CouponsCollection)
	if err != nil {
		return err
	}
	_, err = col.InsertOne(ctx, c)
	return err
}

func (t *mongoTx) FavoriteUsers(ctx context.Context, businessID string) ([]string, error) {
	col, err := t.store.col(models.FavoritesCollection)
	if err != nil {
		return nil, err
	}
	cursor, err := col.Find(ctx, bson.M{"businessId": businessID}, options.Find().SetProjection(bson.M{"userId": 1}))
	if err != nil {
		return nil, err
	}
	var favorites []models.Favorite
	if err := cursor.All(ctx, &favorites); err != nil {
		return nil, err
	}
	users := make([]string, 0, len(favorites))
	for _, f := range favorites {
		users = append(users, f.UserID)
	}
	return users, nil
}

func (t *mongoTx) InsertNotifications(ctx context.Context, notifications []*models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	col, err := t.store.col(models.NotificationsCollection)
	if err != nil {
		return err
	}
	docs := make([]interface{}, 0, len(notifications))
	for _, n := range notifications {
		docs = append(docs, n)
	}
	_, err = col.InsertMany(ctx, docs)
	return err
}

// GetCoupon reads a coupon straight from the database
func (s *CouponStore) GetCoupon(ctx context.Context, id string) (*models.Coupon, error) {
	return (&mongoTx{store: s}).Coupon(ctx, id)
}

// FindCouponByCode returns the newest coupon of businessID with code
func (s *CouponStore) FindCouponByCode(ctx context.Context, businessID, code string) (*models.Coupon, error) {
	found, err := s.couponsDM.Find(ctx,
		bson.M{"businessId": businessID, "code": code},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(1),
	)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

// ListCouponsByBusiness returns the coupons of a business, newest first
func (s *CouponStore) ListCouponsByBusiness(ctx context.Context, businessID string) ([]*models.Coupon, error) {
	return s.couponsDM.Find(ctx,
		bson.M{"businessId": businessID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}),
	)
}

// UpdateCoupon applies the set fields of update. currentUses is never
// written here; lowering maxUses below it is refused atomically.
func (s *CouponStore) UpdateCoupon(ctx context.Context, id string, update coupons.CouponUpdate) (*models.Coupon, error) {
	col, err := s.col(models.CouponsCollection)
	if err != nil {
		return nil, err
	}

	set := couponUpdateDoc(update)
	set["updatedAt"] = time.Now()

	filter := bson.M{"_id": id}
	if update.MaxUses != nil {
		filter["currentUses"] = bson.M{"$lte": *update.MaxUses}
	}

	var updated models.Coupon
	err = col.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if err == nil {
		return &updated, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}

	if update.MaxUses != nil {
		existing, getErr := s.GetCoupon(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if existing != nil {
			return nil, coupons.ErrUsesExceedCap
		}
	}
	return nil, nil
}

// couponUpdateDoc builds the $set document for update
func couponUpdateDoc(update coupons.CouponUpdate) bson.M {
	set := bson.M{}
	if update.Title != nil {
		set["title"] = *update.Title
	}
	if update.Description != nil {
		set["description"] = *update.Description
	}
	if update.Discount != nil {
		set["discount"] = *update.Discount
	}
	if update.MaxUses != nil {
		set["maxUses"] = *update.MaxUses
	}
	if update.StartDate != nil {
		set["startDate"] = *update.StartDate
	}
	if update.EndDate != nil {
		set["endDate"] = *update.EndDate
	}
	if update.IsActive != nil {
		set["isActive"] = *update.IsActive
	}
	return set
}

// DeleteCoupon removes a coupon; redemption records are kept
func (s *CouponStore) DeleteCoupon(ctx context.Context, id string) error {
	col, err := s.col(models.CouponsCollection)
	if err != nil {
		return err
	}
	if _, err := col.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("deleting coupon %s: %w", id, err)
	}
	return nil
}

func (s *CouponStore) listRedemptions(ctx context.Context, query bson.M) ([]*models.UsedCoupon, error) {
	return s.usedDM.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "usedAt", Value: -1}}))
}

// ListRedemptionsByUser returns the redemptions of a user, newest first
func (s *CouponStore) ListRedemptionsByUser(ctx context.Context, userID string) ([]*models.UsedCoupon, error) {
	return s.listRedemptions(ctx, bson.M{"userId": userID})
}

// ListRedemptionsByBusiness returns the redemptions of a business, newest first
func (s *CouponStore) ListRedemptionsByBusiness(ctx context.Context, businessID string) ([]*models.UsedCoupon, error) {
	return s.listRedemptions(ctx, bson.M{"businessId": businessID})
}

// ListRedemptionsByCoupon returns the redemptions of a coupon, newest first
func (s *CouponStore) ListRedemptionsByCoupon(ctx context.Context, couponID string) ([]*models.UsedCoupon, error) {
	return s.listRedemptions(ctx, bson.M{"couponId": couponID})
}
