// Package database provides the MongoDB connection, cached data access
// and the Mongo-backed coupon store.
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/errors"
	"github.com/PancyStudios/DirectorioGo/pkg/logger"
	"github.com/PancyStudios/DirectorioGo/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Queued operation kinds
const (
	OperationSet    = "set"
	OperationDelete = "delete"
)

// QueuedOperation represents a pending database operation
type QueuedOperation struct {
	CollectionName string
	Query          bson.M
	Operation      string // OperationSet u OperationDelete
	Data           interface{}
}

// Database manages the MongoDB connection and data managers
type Database struct {
	client          *mongo.Client
	db              *mongo.Database
	isConnected     bool
	writeQueue      []QueuedOperation
	reconnectTicker *time.Ticker
	stopReconnect   chan struct{}
	stopOnce        sync.Once
	mu              sync.RWMutex
	queueMu         sync.Mutex
	collections     map[string]*mongo.Collection
	onConnect       []func()
}

var (
	database *Database
	dbOnce   sync.Once
)

// Init initializes the global database instance
func Init(mongoURL, dbName string) (*Database, error) {
	var err error
	dbOnce.Do(func() {
		database = NewDatabase()
		err = database.Connect(mongoURL, dbName)
	})
	return database, err
}

// Get returns the global database instance
func Get() *Database {
	return database
}

// NewDatabase creates a new Database instance
func NewDatabase() *Database {
	return &Database{
		writeQueue:    make([]QueuedOperation, 0),
		stopReconnect: make(chan struct{}),
		collections:   make(map[string]*mongo.Collection),
	}
}

// Connect establishes a connection to MongoDB
func (d *Database) Connect(mongoURL, dbName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.isConnected {
		return nil
	}

	logger.System("Intentando conectar a la base de datos...", "DB")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clientOpts := options.Client().
		ApplyURI(mongoURL).
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		logger.Critical("Fallo al conectar con la base de datos.", "DB")
		d.scheduleReconnect(mongoURL, dbName)
		return err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		logger.Critical("Fallo al verificar conexión con la base de datos.", "DB")
		_ = client.Disconnect(context.Background())
		d.scheduleReconnect(mongoURL, dbName)
		return err
	}

	d.markConnected(client, dbName)
	logger.Success("Conectado exitosamente a la base de datos.", "DB")

	return nil
}

// markConnected switches to online mode, flushes the offline queue and
// runs the OnConnect hooks. Callers hold d.mu.
func (d *Database) markConnected(client *mongo.Client, dbName string) {
	d.client = client
	d.db = client.Database(dbName)
	d.collections = make(map[string]*mongo.Collection)
	d.isConnected = true

	if d.reconnectTicker != nil {
		d.reconnectTicker.Stop()
		d.reconnectTicker = nil
	}

	go d.syncOfflineWrites()
	runHooks(d.onConnect)
}

// OnConnect registers fn to run after every successful connection,
// reconnections included. If the database is already connected fn
// also runs right away. Hooks run in their own goroutine.
func (d *Database) OnConnect(fn func()) {
	d.mu.Lock()
	d.onConnect = append(d.onConnect, fn)
	connected := d.isConnected
	d.mu.Unlock()

	if connected {
		runHooks([]func(){fn})
	}
}

func runHooks(hooks []func()) {
	for _, hook := range hooks {
		errors.Go(hook)
	}
}

// scheduleReconnect starts reconnection attempts. Callers hold d.mu.
func (d *Database) scheduleReconnect(mongoURL, dbName string) {
	if d.isConnected {
		d.isConnected = false
		logger.Warn("Se perdió la conexión con la base de datos. Activando modo offline.", "DB")
	}

	if d.reconnectTicker != nil {
		return
	}
	ticker := time.NewTicker(15 * time.Second)
	d.reconnectTicker = ticker
	go func() {
		for {
			select {
			case <-ticker.C:
				logger.Info("Intentando reconectar a la base de datos...", "DB")
				if err := d.Connect(mongoURL, dbName); err == nil {
					return
				}
			case <-d.stopReconnect:
				return
			}
		}
	}()
}

// Disconnect closes the database connection
func (d *Database) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reconnectTicker != nil {
		d.reconnectTicker.Stop()
		d.reconnectTicker = nil
	}
	d.stopOnce.Do(func() { close(d.stopReconnect) })

	if d.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.client.Disconnect(ctx); err != nil {
			return err
		}
		d.isConnected = false
		logger.Warn("La base de datos ha sido desconectada", "DB")
	}
	return nil
}

// Connected reports whether the database is reachable
func (d *Database) Connected() bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.isConnected
}

// Ping measures the database response time
func (d *Database) Ping() (time.Duration, error) {
	if d == nil {
		return 0, fmt.Errorf("not connected to database")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.isConnected || d.client == nil {
		return 0, fmt.Errorf("not connected to database")
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := d.client.Ping(ctx, readpref.Primary())
	return time.Since(start), err
}

// GetStatus returns the database connection status
func (d *Database) GetStatus() (string, bool) {
	if d == nil {
		return "🔴 | Desconectado", false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.client == nil {
		return "🔴 | Desconectado", false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := d.client.Ping(ctx, readpref.Primary()); err != nil {
		return "🔴 | Desconectado", false
	}
	return "🟢 | En linea", true
}

// GetCollection returns a MongoDB collection, or nil when offline
func (d *Database) GetCollection(name string) *mongo.Collection {
	d.mu.RLock()
	if col, exists := d.collections[name]; exists {
		d.mu.RUnlock()
		return col
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}

	col := d.db.Collection(name)
	d.collections[name] = col
	return col
}

// AddToWriteQueue adds an operation to the offline write queue
func (d *Database) AddToWriteQueue(op QueuedOperation) {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	d.writeQueue = append(d.writeQueue, op)
}

// PendingWrites returns how many operations wait for the connection
func (d *Database) PendingWrites() int {
	d.queueMu.Lock()
	defer d.queueMu.Unlock()
	return len(d.writeQueue)
}

// syncOfflineWrites syncs queued operations with the database
func (d *Database) syncOfflineWrites() {
	d.queueMu.Lock()
	if len(d.writeQueue) == 0 {
		d.queueMu.Unlock()
		return
	}

	logger.System(fmt.Sprintf("Sincronizando %d operaciones pendientes con la DB...", len(d.writeQueue)), "DB-Sync")

	operations := make([]QueuedOperation, len(d.writeQueue))
	copy(operations, d.writeQueue)
	d.writeQueue = make([]QueuedOperation, 0)
	d.queueMu.Unlock()

	failedOps := make([]QueuedOperation, 0)

	for _, op := range operations {
		col := d.GetCollection(op.CollectionName)
		if col == nil {
			logger.Error(fmt.Sprintf("Colección '%s' no encontrada durante la sincronización.", op.CollectionName), "DB-Sync")
			failedOps = append(failedOps, op)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		var err error
		switch op.Operation {
		case OperationSet:
			opts := options.Update().SetUpsert(true)
			_, err = col.UpdateOne(ctx, op.Query, bson.M{"$set": op.Data}, opts)
		case OperationDelete:
			_, err = col.DeleteOne(ctx, op.Query)
		}

		cancel()

		if err != nil {
			logger.Error(fmt.Sprintf("Error al sincronizar operación para '%s'. La operación se volverá a encolar.", op.CollectionName), "DB-Sync")
			failedOps = append(failedOps, op)
		}
	}

	if len(failedOps) > 0 {
		d.queueMu.Lock()
		d.writeQueue = append(d.writeQueue, failedOps...)
		d.queueMu.Unlock()
		logger.Warn(fmt.Sprintf("%d operaciones no pudieron sincronizarse y se reintentarán.", len(failedOps)), "DB-Sync")
	} else {
		logger.Success("Sincronización completada exitosamente.", "DB-Sync")
	}
}

// Client returns the underlying MongoDB client
func (d *Database) Client() *mongo.Client {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.client
}

// DB returns the underlying MongoDB database
func (d *Database) DB() *mongo.Database {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// Indexes returns the indexes every collection needs. The unique
// (userId, couponId) index is what makes a second redemption by the
// same user impossible even across processes.
func Indexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		models.CouponsCollection: {
			{
				Keys:    bson.D{{Key: "businessId", Value: 1}, {Key: "createdAt", Value: -1}},
				Options: options.Index().SetName("business_created"),
			},
			{
				Keys:    bson.D{{Key: "businessId", Value: 1}, {Key: "code", Value: 1}},
				Options: options.Index().SetName("business_code"),
			},
		},
		models.UsedCouponsCollection: {
			{
				Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "couponId", Value: 1}},
				Options: options.Index().SetName("user_coupon_unique").SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "businessId", Value: 1}, {Key: "usedAt", Value: -1}},
				Options: options.Index().SetName("business_used"),
			},
			{
				Keys:    bson.D{{Key: "couponId", Value: 1}, {Key: "usedAt", Value: -1}},
				Options: options.Index().SetName("coupon_used"),
			},
		},
		models.NotificationsCollection: {
			{
				Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
				Options: options.Index().SetName("user_created"),
			},
		},
		models.FavoritesCollection: {
			{
				Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "businessId", Value: 1}},
				Options: options.Index().SetName("user_business_unique").SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "businessId", Value: 1}},
				Options: options.Index().SetName("business"),
			},
		},
	}
}

// EnsureIndexes creates every index returned by Indexes
func (d *Database) EnsureIndexes(ctx context.Context) error {
	if !d.Connected() {
		return fmt.Errorf("not connected to database")
	}

	for name, indexes := range Indexes() {
		col := d.GetCollection(name)
		if col == nil {
			return fmt.Errorf("collection %s not available", name)
		}
		created, err := col.Indexes().CreateMany(ctx, indexes)
		if err != nil {
			return fmt.Errorf("creating indexes on %s: %w", name, err)
		}
		logger.Info(fmt.Sprintf("Índices de '%s' sincronizados: %v", name, created), "DB")
	}
	return nil
}

// ListIndexes returns the index names currently present per collection
func (d *Database) ListIndexes(ctx context.Context) (map[string][]string, error) {
	if !d.Connected() {
		return nil, fmt.Errorf("not connected to database")
	}

	out := make(map[string][]string)
	for name := range Indexes() {
		col := d.GetCollection(name)
		if col == nil {
			continue
		}
		cursor, err := col.Indexes().List(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing indexes on %s: %w", name, err)
		}
		var found []bson.M
		if err := cursor.All(ctx, &found); err != nil {
			return nil, err
		}
		for _, idx := range found {
			if indexName, ok := idx["name"].(string); ok {
				out[name] = append(out[name], indexName)
			}
		}
	}
	return out, nil
}

// staleIndexes returns, per collection, the indexes present in current
// that Indexes does not declare. The _id index is never stale.
func staleIndexes(current map[string][]string) map[string][]string {
	stale := make(map[string][]string)
	for name, declared := range Indexes() {
		wanted := map[string]bool{"_id_": true}
		for _, idx := range declared {
			if idx.Options != nil && idx.Options.Name != nil {
				wanted[*idx.Options.Name] = true
			}
		}
		for _, present := range current[name] {
			if !wanted[present] {
				stale[name] = append(stale[name], present)
			}
		}
	}
	return stale
}

// DropStaleIndexes removes indexes that are no longer declared and
// returns what was dropped per collection
func (d *Database) DropStaleIndexes(ctx context.Context) (map[string][]string, error) {
	current, err := d.ListIndexes(ctx)
	if err != nil {
		return nil, err
	}

	stale := staleIndexes(current)
	for name, indexes := range stale {
		col := d.GetCollection(name)
		if col == nil {
			return nil, fmt.Errorf("collection %s not available", name)
		}
		for _, idx := range indexes {
			if _, err := col.Indexes().DropOne(ctx, idx); err != nil {
				return nil, fmt.Errorf("dropping index %s on %s: %w", idx, name, err)
			}
			logger.Warn(fmt.Sprintf("Índice obsoleto '%s' eliminado de '%s'", idx, name), "DB")
		}
	}
	return stale, nil
}
