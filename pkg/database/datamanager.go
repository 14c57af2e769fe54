package database

import (
	"container/list"
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/logger"
	"github.com/PancyStudios/DirectorioGo/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotConnected is returned by reads while the database is offline
var ErrNotConnected = fmt.Errorf("database not connected")

// DataManagerOptions contains configuration for a DataManager
type DataManagerOptions struct {
	MaxCacheSize int
}

// CacheManager provides shared caching across DataManagers
type CacheManager struct {
	cache     map[string]*list.Element
	cacheList *list.List
	mu        sync.Mutex
}

type cacheEntry struct {
	key   string
	value interface{}
}

// globalCacheManager is shared across all DataManager instances
var globalCacheManager = &CacheManager{
	cache:     make(map[string]*list.Element),
	cacheList: list.New(),
}

// global DataManagers for shared collections
var (
	GlobalCouponDM      *DataManager[models.Coupon]
	GlobalUsedCouponDM  *DataManager[models.UsedCoupon]
	GlobalBlockedUserDM *DataManager[models.BlockedUser]
)

// InitGlobalDataManagers initializes shared DataManager instances
func InitGlobalDataManagers(db *Database) {
	GlobalCouponDM = NewDataManager[models.Coupon](models.CouponsCollection, db)
	GlobalUsedCouponDM = NewDataManager[models.UsedCoupon](models.UsedCouponsCollection, db)
	GlobalBlockedUserDM = NewDataManager[models.BlockedUser](models.BlockedUsersCollection, db)
}

// DataManager provides cached access to a MongoDB collection
type DataManager[T any] struct {
	collectionName string
	dbInstance     *Database
	options        DataManagerOptions
}

// DefaultDataManagerOptions returns default options for DataManager
func DefaultDataManagerOptions() DataManagerOptions {
	return DataManagerOptions{
		MaxCacheSize: 1000,
	}
}

// NewDataManager creates a new DataManager for a collection
func NewDataManager[T any](collectionName string, db *Database, opts ...DataManagerOptions) *DataManager[T] {
	dmOptions := DefaultDataManagerOptions()
	if len(opts) > 0 {
		dmOptions = opts[0]
	}

	return &DataManager[T]{
		collectionName: collectionName,
		dbInstance:     db,
		options:        dmOptions,
	}
}

// Name returns the collection name
func (dm *DataManager[T]) Name() string {
	return dm.collectionName
}

// collection resolves the live collection, nil while offline
func (dm *DataManager[T]) collection() *mongo.Collection {
	if !dm.dbInstance.Connected() {
		return nil
	}
	return dm.dbInstance.GetCollection(dm.collectionName)
}

// generateCacheKey creates a unique, deterministic key from a query.
// Keys are sorted so map iteration order does not matter.
func (dm *DataManager[T]) generateCacheKey(query bson.M) string {
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, query[k]))
	}

	return fmt.Sprintf("%s:{%s}", dm.collectionName, strings.Join(parts, ","))
}

func (dm *DataManager[T]) cacheGet(key string) (*T, bool) {
	globalCacheManager.mu.Lock()
	defer globalCacheManager.mu.Unlock()

	elem, exists := globalCacheManager.cache[key]
	if !exists {
		return nil, false
	}
	globalCacheManager.cacheList.MoveToFront(elem)
	return elem.Value.(*cacheEntry).value.(*T), true
}

func (dm *DataManager[T]) cachePut(key string, value *T) {
	globalCacheManager.mu.Lock()
	defer globalCacheManager.mu.Unlock()

	entry := &cacheEntry{key: key, value: value}
	if elem, exists := globalCacheManager.cache[key]; exists {
		elem.Value = entry
		globalCacheManager.cacheList.MoveToFront(elem)
		return
	}

	globalCacheManager.cache[key] = globalCacheManager.cacheList.PushFront(entry)

	if dm.options.MaxCacheSize > 0 && globalCacheManager.cacheList.Len() > dm.options.MaxCacheSize {
		if oldest := globalCacheManager.cacheList.Back(); oldest != nil {
			delete(globalCacheManager.cache, oldest.Value.(*cacheEntry).key)
			globalCacheManager.cacheList.Remove(oldest)
		}
	}
}

// Evict drops the cached document for query, if any
func (dm *DataManager[T]) Evict(query bson.M) {
	key := dm.generateCacheKey(query)

	globalCacheManager.mu.Lock()
	defer globalCacheManager.mu.Unlock()
	if elem, exists := globalCacheManager.cache[key]; exists {
		globalCacheManager.cacheList.Remove(elem)
		delete(globalCacheManager.cache, key)
	}
}

// Get retrieves a document from cache or database. A missing document
// is returned as nil without error.
func (dm *DataManager[T]) Get(query bson.M) (*T, error) {
	cacheKey := dm.generateCacheKey(query)
	if cached, ok := dm.cacheGet(cacheKey); ok {
		return cached, nil
	}

	col := dm.collection()
	if col == nil {
		return nil, ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var result T
	if err := col.FindOne(ctx, query).Decode(&result); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		logger.Warn(fmt.Sprintf("Fallo al leer de la DB (%s)", dm.collectionName), "DataManager")
		return nil, err
	}

	dm.cachePut(cacheKey, &result)
	return &result, nil
}

// GetAll retrieves all documents matching a query from the database
func (dm *DataManager[T]) GetAll(query bson.M) ([]*T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return dm.Find(ctx, query)
}

// Find runs a query with options, bypassing the cache
func (dm *DataManager[T]) Find(ctx context.Context, query bson.M, opts ...*options.FindOptions) ([]*T, error) {
	col := dm.collection()
	if col == nil {
		return nil, ErrNotConnected
	}

	cursor, err := col.Find(ctx, query, opts...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	results := make([]*T, 0)
	for cursor.Next(ctx) {
		var doc T
		if err := cursor.Decode(&doc); err != nil {
			logger.Warn(fmt.Sprintf("Documento ilegible en '%s': %v", dm.collectionName, err), "DataManager")
			continue
		}
		results = append(results, &doc)
	}

	return results, cursor.Err()
}

// Set updates or inserts a document in the database and cache.
// While offline the write is queued and (nil, nil) is returned.
func (dm *DataManager[T]) Set(query bson.M, data interface{}) (*T, error) {
	cacheKey := dm.generateCacheKey(query)

	col := dm.collection()
	if col == nil {
		logger.Warn(fmt.Sprintf("DB offline. Encolando escritura para '%s'", dm.collectionName), "DataManager")
		dm.dbInstance.AddToWriteQueue(QueuedOperation{
			CollectionName: dm.collectionName,
			Query:          query,
			Operation:      OperationSet,
			Data:           data,
		})
		dm.Evict(query)
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var result T
	if err := col.FindOneAndUpdate(ctx, query, bson.M{"$set": data}, opts).Decode(&result); err != nil {
		logger.Error("Error en 'set' con DB conectada. Encolando por seguridad.", "DataManager")
		dm.dbInstance.AddToWriteQueue(QueuedOperation{
			CollectionName: dm.collectionName,
			Query:          query,
			Operation:      OperationSet,
			Data:           data,
		})
		dm.Evict(query)
		return nil, err
	}

	dm.cachePut(cacheKey, &result)
	return &result, nil
}

// Delete removes a document from the database and cache
func (dm *DataManager[T]) Delete(query bson.M) error {
	dm.Evict(query)

	col := dm.collection()
	if col == nil {
		logger.Warn(fmt.Sprintf("DB offline. Encolando eliminación para '%s'", dm.collectionName), "DataManager")
		dm.dbInstance.AddToWriteQueue(QueuedOperation{
			CollectionName: dm.collectionName,
			Query:          query,
			Operation:      OperationDelete,
		})
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := col.DeleteOne(ctx, query); err != nil {
		logger.Error("Error en 'delete' con DB conectada. Encolando por seguridad.", "DataManager")
		dm.dbInstance.AddToWriteQueue(QueuedOperation{
			CollectionName: dm.collectionName,
			Query:          query,
			Operation:      OperationDelete,
		})
		return err
	}

	return nil
}

// ClearCache clears the entire cache
func (dm *DataManager[T]) ClearCache() {
	globalCacheManager.mu.Lock()
	defer globalCacheManager.mu.Unlock()

	globalCacheManager.cache = make(map[string]*list.Element)
	globalCacheManager.cacheList = list.New()
}

// CacheSize returns the current cache size
func (dm *DataManager[T]) CacheSize() int {
	globalCacheManager.mu.Lock()
	defer globalCacheManager.mu.Unlock()
	return globalCacheManager.cacheList.Len()
}

// PrimeCache logs that the cache is ready (caches are filled on demand)
func (dm *DataManager[T]) PrimeCache() {
	logger.System(fmt.Sprintf("Caché para '%s' preparada (tamaño máx: %d). Se llenará bajo demanda.", dm.collectionName, dm.options.MaxCacheSize), "DataManager")
}
