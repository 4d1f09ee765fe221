// Package kvstore implements the client-local persistence contract: a
// key-value store of JSON payloads under fixed keys, tolerant of missing or
// corrupt data. Callers keep their in-memory defaults when a load fails;
// save failures are logged and never propagate.
package kvstore

import (
	"encoding/json"
	"sync"

	"fleetwatch/internal/logger"
	"fleetwatch/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store is the load/save seam. A durable multi-user deployment replaces the
// gorm-backed implementation behind this interface.
type Store interface {
	// Load unmarshals the value stored under key into the given pointer.
	// Returns false when the key is absent or the payload is corrupt, in
	// which case into is left untouched.
	Load(key string, into interface{}) bool

	// Save stores the value under key, replacing any previous payload.
	// Failures are logged, not returned.
	Save(key string, value interface{})
}

// DBStore persists values into the kv_entries table
type DBStore struct {
	db *gorm.DB
}

func NewDBStore(db *gorm.DB) *DBStore {
	return &DBStore{db: db}
}

func (s *DBStore) Load(key string, into interface{}) bool {
	var entry models.KVEntry
	if err := s.db.First(&entry, "key = ?", key).Error; err != nil {
		if err != gorm.ErrRecordNotFound {
			logger.Warn("Failed to read kv entry, using defaults",
				zap.String("key", key),
				zap.Error(err))
		}
		return false
	}

	if err := json.Unmarshal([]byte(entry.Value), into); err != nil {
		logger.Warn("Corrupt kv entry, using defaults",
			zap.String("key", key),
			zap.Error(err))
		return false
	}

	return true
}

func (s *DBStore) Save(key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		logger.Warn("Failed to marshal kv entry",
			zap.String("key", key),
			zap.Error(err))
		return
	}

	entry := models.KVEntry{Key: key, Value: string(data)}
	if err := s.db.Save(&entry).Error; err != nil {
		logger.Warn("Failed to write kv entry",
			zap.String("key", key),
			zap.Error(err))
	}
}

// MemoryStore is an in-process Store used in tests and when no database is
// configured
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

func (s *MemoryStore) Load(key string, into interface{}) bool {
	s.mu.RLock()
	raw, ok := s.data[key]
	s.mu.RUnlock()
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), into); err != nil {
		logger.Warn("Corrupt kv entry, using defaults",
			zap.String("key", key),
			zap.Error(err))
		return false
	}
	return true
}

func (s *MemoryStore) Save(key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		logger.Warn("Failed to marshal kv entry",
			zap.String("key", key),
			zap.Error(err))
		return
	}
	s.mu.Lock()
	s.data[key] = string(data)
	s.mu.Unlock()
}
