package database

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	apperrors "github.com/PancyStudios/DirectorioGo/pkg/errors"
	"github.com/PancyStudios/DirectorioGo/pkg/logger"
	"github.com/PancyStudios/DirectorioGo/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	ErrBlockedUserNotFound = errors.New("el usuario no está bloqueado")
	ErrBlockedUserExists   = errors.New("el usuario ya está bloqueado")
)

// Blocklist keeps the blocked users in memory so the API can check
// every request without a database round trip. With a nil DataManager
// it works purely in memory.
type Blocklist struct {
	dm          *DataManager[models.BlockedUser]
	entries     map[string]*models.BlockedUser
	mu          sync.RWMutex
	stopRefresh chan struct{}
	refreshing  bool
}

// NewBlocklist creates a blocklist backed by dm
func NewBlocklist(dm *DataManager[models.BlockedUser]) *Blocklist {
	return &Blocklist{
		dm:      dm,
		entries: make(map[string]*models.BlockedUser),
	}
}

// Refresh reloads every blocked user from the database
func (b *Blocklist) Refresh() error {
	if b.dm == nil {
		return nil
	}

	entries, err := b.dm.GetAll(bson.M{})
	if err != nil {
		logger.Error("Error obteniendo usuarios bloqueados: "+err.Error(), "Blocklist")
		return err
	}

	fresh := make(map[string]*models.BlockedUser, len(entries))
	for _, entry := range entries {
		fresh[entry.ID] = entry
	}

	b.mu.Lock()
	b.entries = fresh
	b.mu.Unlock()

	logger.Info(fmt.Sprintf("Caché de bloqueos cargada: %d entradas", len(fresh)), "Blocklist")
	return nil
}

// StartAutoRefresh refreshes the cache every interval until
// StopAutoRefresh is called. A running refresher is replaced.
func (b *Blocklist) StartAutoRefresh(interval time.Duration) {
	b.mu.Lock()
	if b.refreshing {
		close(b.stopRefresh)
	}
	b.refreshing = true
	b.stopRefresh = make(chan struct{})
	stopChan := b.stopRefresh
	b.mu.Unlock()

	apperrors.Go(func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		logger.System("Refresco de bloqueos iniciado (cada "+interval.String()+")", "Blocklist")

		for {
			select {
			case <-ticker.C:
				if err := b.Refresh(); err != nil {
					logger.Error("Fallo el refresco automático: "+err.Error(), "Blocklist")
				}
			case <-stopChan:
				return
			}
		}
	})
}

// StopAutoRefresh stops the automatic refresh
func (b *Blocklist) StopAutoRefresh() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.refreshing {
		close(b.stopRefresh)
		b.refreshing = false
	}
}

// Block adds userID to the blocklist
func (b *Blocklist) Block(userID, reason, createdBy string) (*models.BlockedUser, error) {
	if b.IsBlocked(userID) {
		return nil, ErrBlockedUserExists
	}

	entry := &models.BlockedUser{
		ID:        userID,
		Reason:    reason,
		CreatedAt: time.Now(),
		CreatedBy: createdBy,
	}

	if b.dm != nil {
		stored, err := b.dm.Set(bson.M{"_id": userID}, entry)
		if err != nil {
			return nil, err
		}
		// nil means the write was queued while offline
		if stored != nil {
			entry = stored
		}
	}

	b.mu.Lock()
	b.entries[userID] = entry
	b.mu.Unlock()

	logger.Warn(fmt.Sprintf("Usuario %s bloqueado por %s: %s", userID, createdBy, reason), "Blocklist")
	return entry, nil
}

// Unblock removes userID from the blocklist
func (b *Blocklist) Unblock(userID string) error {
	if !b.IsBlocked(userID) {
		return ErrBlockedUserNotFound
	}

	if b.dm != nil {
		if err := b.dm.Delete(bson.M{"_id": userID}); err != nil {
			return err
		}
	}

	b.mu.Lock()
	delete(b.entries, userID)
	b.mu.Unlock()

	logger.Info(fmt.Sprintf("Usuario %s desbloqueado", userID), "Blocklist")
	return nil
}

// Get returns the entry for userID
func (b *Blocklist) Get(userID string) (*models.BlockedUser, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	entry, exists := b.entries[userID]
	return entry, exists
}

// IsBlocked reports whether userID is blocked
func (b *Blocklist) IsBlocked(userID string) bool {
	_, exists := b.Get(userID)
	return exists
}

// List returns every blocked user, most recent first
func (b *Blocklist) List() []*models.BlockedUser {
	b.mu.RLock()
	result := make([]*models.BlockedUser, 0, len(b.entries))
	for _, entry := range b.entries {
		result = append(result, entry)
	}
	b.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result
}

// Size returns the number of blocked users
func (b *Blocklist) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}
