package database

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/coupons"
	"github.com/PancyStudios/DirectorioGo/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Mongo error labels and codes that mean "run the transaction again"
const (
	labelTransientTransaction = "TransientTransactionError"
	labelUnknownCommitResult  = "UnknownTransactionCommitResult"
	codeWriteConflict         = 112
	maxCommitRetries          = 3
)

// isConflict reports whether err means a concurrent transaction won
func isConflict(err error) bool {
	if errors.Is(err, coupons.ErrConflict) {
		return true
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		return se.HasErrorLabel(labelTransientTransaction) || se.HasErrorCode(codeWriteConflict)
	}
	return false
}

func hasLabel(err error, label string) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorLabel(label)
}

// RunTransaction runs fn inside a snapshot transaction. Write conflicts
// restart the whole transaction up to maxAttempts times; after that the
// returned error wraps coupons.ErrConflict.
func (d *Database) RunTransaction(ctx context.Context, maxAttempts int, fn func(sc mongo.SessionContext) error) error {
	client := d.Client()
	if client == nil || !d.Connected() {
		return ErrNotConnected
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	session, err := client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(context.Background())

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err = mongo.WithSession(ctx, session, func(sc mongo.SessionContext) error {
			if err := session.StartTransaction(txnOpts); err != nil {
				return err
			}
			if err := fn(sc); err != nil {
				_ = session.AbortTransaction(context.Background())
				return err
			}
			return commitWithRetry(sc, session)
		})
		if err == nil {
			return nil
		}
		if !isConflict(err) {
			return err
		}

		logger.Debug(fmt.Sprintf("Conflicto en la transacción (intento %d/%d)", attempt, maxAttempts), "DB-Tx")
		if attempt < maxAttempts {
			time.Sleep(time.Duration(rand.Intn(attempt*5)+1) * time.Millisecond)
		}
	}
	return fmt.Errorf("%w: %d attempts exhausted: %v", coupons.ErrConflict, maxAttempts, err)
}

// commitWithRetry commits, retrying while the outcome is unknown
func commitWithRetry(ctx context.Context, session mongo.Session) error {
	var err error
	for i := 0; i < maxCommitRetries; i++ {
		err = session.CommitTransaction(ctx)
		if err == nil || !hasLabel(err, labelUnknownCommitResult) {
			return err
		}
		logger.Warn("Resultado del commit desconocido, reintentando...", "DB-Tx")
	}
	return err
}
