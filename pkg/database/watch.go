package database

import (
	"context"
	"fmt"

	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/PancyStudios/DirectorioGo/pkg/errors"
	"github.com/PancyStudios/DirectorioGo/pkg/logger"
	"github.com/PancyStudios/DirectorioGo/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type couponChange struct {
	OperationType string         `bson:"operationType"`
	FullDocument  *models.Coupon `bson:"fullDocument"`
}

// snapshotFor turns a change event into what watchers receive. The
// second result is false for events that carry nothing to send.
func snapshotFor(change couponChange) (*models.Coupon, bool) {
	switch change.OperationType {
	case "delete":
		return nil, true
	case "insert", "update", "replace":
		if change.FullDocument == nil {
			return nil, false
		}
		return change.FullDocument, true
	default:
		return nil, false
	}
}

// WatchCoupon streams a coupon through a change stream. The stream is
// opened before the initial read so no change in between is lost.
func (s *CouponStore) WatchCoupon(ctx context.Context, couponID string) (*coupons.Subscription, error) {
	col, err := s.col(models.CouponsCollection)
	if err != nil {
		return nil, err
	}

	streamCtx, cancel := context.WithCancel(ctx)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"documentKey._id": couponID}}},
	}
	stream, err := col.Watch(streamCtx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, err
	}

	sub := coupons.NewSubscription(8, cancel)

	initial, err := s.GetCoupon(ctx, couponID)
	if err != nil {
		sub.Close()
		_ = stream.Close(context.Background())
		return nil, err
	}
	if initial != nil {
		sub.Send(initial)
	}

	errors.Go(func() {
		defer sub.Close()
		defer func() { _ = stream.Close(context.Background()) }()

		for stream.Next(streamCtx) {
			var change couponChange
			if err := stream.Decode(&change); err != nil {
				logger.Warn(fmt.Sprintf("Evento de cambio ilegible para el cupón %s: %v", couponID, err), "DB-Watch")
				continue
			}
			snapshot, ok := snapshotFor(change)
			if !ok {
				continue
			}
			if !sub.Send(snapshot) {
				return
			}
		}
		if err := stream.Err(); err != nil && streamCtx.Err() == nil {
			logger.Warn(fmt.Sprintf("Change stream del cupón %s terminó: %v", couponID, err), "DB-Watch")
		}
	})

	return sub, nil
}
