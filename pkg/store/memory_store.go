package store

import (
	"fmt"
	"sync"

	"prdgen/pkg/domain"
)

// MemoryStore keeps accounts and records in-process. Used in tests and as a
// datastore-free dev mode.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]domain.UsageAccount    // key: user ID
	records  map[string]domain.GenerationRecord // key: record ID
	order    []string                          // record IDs in insertion order
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]domain.UsageAccount),
		records:  make(map[string]domain.GenerationRecord),
	}
}

// GetUsageAccount returns the account for a user, if one exists.
func (m *MemoryStore) GetUsageAccount(userID string) (domain.UsageAccount, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	acct, ok := m.accounts[userID]
	return acct, ok, nil
}

// CreateUsageAccount inserts a new account.
func (m *MemoryStore) CreateUsageAccount(acct domain.UsageAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.accounts[acct.UserID]; exists {
		return fmt.Errorf("account exists: %s", acct.UserID)
	}
	m.accounts[acct.UserID] = acct
	return nil
}

// UpdateUsageAccount replaces an existing account.
func (m *MemoryStore) UpdateUsageAccount(acct domain.UsageAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.accounts[acct.UserID]; !exists {
		return fmt.Errorf("account not found: %s", acct.UserID)
	}
	m.accounts[acct.UserID] = acct
	return nil
}

// CreateGenerationRecord stores one record and tracks insertion order.
func (m *MemoryStore) CreateGenerationRecord(rec domain.GenerationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[rec.ID]; exists {
		return fmt.Errorf("record exists: %s", rec.ID)
	}
	m.records[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return nil
}

// GetGenerationRecord retrieves one record by ID.
func (m *MemoryStore) GetGenerationRecord(id string) (domain.GenerationRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	return rec, ok, nil
}

// ListGenerationRecordsByUser returns a user's records, newest first.
func (m *MemoryStore) ListGenerationRecordsByUser(userID string, limit int) ([]domain.GenerationRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.GenerationRecord, 0, limit)
	for i := len(m.order) - 1; i >= 0 && len(res) < limit; i-- {
		if rec, ok := m.records[m.order[i]]; ok && rec.UserID == userID {
			res = append(res, rec)
		}
	}
	return res, nil
}
