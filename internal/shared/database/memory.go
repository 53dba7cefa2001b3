package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mayankbot01/localllm-gateway/internal/shared/models"
)

// Memory is an in-memory store with the same contract as DB. It backs
// tests and keeps the atomic-increment semantics honest without a
// running Postgres: every method that touches a key's counters holds
// the store mutex for the whole read-modify-write.
type Memory struct {
	mu   sync.Mutex
	keys map[string]*models.APIKey
	logs []models.UsageLog

	// Now is the clock used for rollover checks. Overridable in tests.
	Now func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		keys: make(map[string]*models.APIKey),
		Now:  time.Now,
	}
}

func (m *Memory) FindKeyByHash(_ context.Context, hash string) (*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range m.keys {
		if key.KeyHash == hash && key.IsActive {
			cp := *key
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Memory) CreateKey(_ context.Context, keyHash, label string, ownerEmail *string, ratePerMin int, monthlyTokens int64) (*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range m.keys {
		if key.KeyHash == keyHash {
			return nil, fmt.Errorf("duplicate key hash")
		}
	}

	now := m.Now()
	key := &models.APIKey{
		ID:                uuid.NewString(),
		KeyHash:           keyHash,
		Label:             label,
		OwnerEmail:        ownerEmail,
		RateLimitPerMin:   ratePerMin,
		MonthlyTokenLimit: monthlyTokens,
		MonthResetAt:      startOfNextMonth(now),
		IsActive:          true,
		CreatedAt:         now,
	}
	m.keys[key.ID] = key
	cp := *key
	return &cp, nil
}

func (m *Memory) DeactivateKey(_ context.Context, keyID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.keys[keyID]
	if !ok || !key.IsActive {
		return false, nil
	}
	key.IsActive = false
	return true, nil
}

func (m *Memory) ListKeys(_ context.Context) ([]models.APIKeySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	summaries := make([]models.APIKeySummary, 0, len(m.keys))
	for _, key := range m.keys {
		summaries = append(summaries, models.APIKeySummary{
			ID:                key.ID,
			Label:             key.Label,
			OwnerEmail:        key.OwnerEmail,
			RateLimitPerMin:   key.RateLimitPerMin,
			MonthlyTokenLimit: key.MonthlyTokenLimit,
			TokensUsedMonth:   key.TokensUsedMonth,
			IsActive:          key.IsActive,
			CreatedAt:         key.CreatedAt,
			LastUsedAt:        key.LastUsedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

func (m *Memory) MarkLastUsed(_ context.Context, keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if key, ok := m.keys[keyID]; ok {
		now := m.Now()
		key.LastUsedAt = &now
	}
	return nil
}

// IncrementUsage mirrors the Postgres statement: rollover comparison
// and counter write under one lock, anchor advanced one month from its
// prior value.
func (m *Memory) IncrementUsage(_ context.Context, keyID string, tokens int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.keys[keyID]
	if !ok {
		return fmt.Errorf("unknown key %s", keyID)
	}

	if !m.Now().Before(key.MonthResetAt) {
		key.TokensUsedMonth = tokens
		key.MonthResetAt = key.MonthResetAt.AddDate(0, 1, 0)
	} else {
		key.TokensUsedMonth += tokens
	}
	return nil
}

func (m *Memory) InsertUsageLog(_ context.Context, log *models.UsageLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := *log
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = m.Now()
	}
	m.logs = append(m.logs, entry)
	return nil
}

func (m *Memory) KeyUsage(_ context.Context, keyID string) (*models.KeyUsageStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("unknown key %s", keyID)
	}

	stats := &models.KeyUsageStats{
		KeyID:               keyID,
		Label:               key.Label,
		MonthlyTokenLimit:   key.MonthlyTokenLimit,
		TokensUsedThisMonth: key.TokensUsedMonth,
		MonthResetsAt:       key.MonthResetAt,
		LastUsedAt:          key.LastUsedAt,
	}
	for i := len(m.logs) - 1; i >= 0 && len(stats.RecentRequests) < 20; i-- {
		if m.logs[i].APIKeyID != keyID {
			continue
		}
		stats.RecentRequests = append(stats.RecentRequests, models.RecentUsage{
			Model:       m.logs[i].Model,
			Endpoint:    m.logs[i].Endpoint,
			TotalTokens: m.logs[i].TotalTokens,
			CreatedAt:   m.logs[i].CreatedAt,
		})
	}
	return stats, nil
}

// GetKey returns a copy of a key by id, for tests.
func (m *Memory) GetKey(keyID string) (*models.APIKey, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key, ok := m.keys[keyID]
	if !ok {
		return nil, false
	}
	cp := *key
	return &cp, true
}

// UsageLogCount returns how many usage records have been appended.
func (m *Memory) UsageLogCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs)
}

func startOfNextMonth(now time.Time) time.Time {
	y, mo, _ := now.Date()
	return time.Date(y, mo, 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
}
