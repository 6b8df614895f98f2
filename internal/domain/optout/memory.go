package optout

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is an in-process, hand-rolled fake Repository used by
// tests (no mocking framework).
type MemoryRepository struct {
	mu       sync.Mutex
	optouts  map[string]Record
	consents map[string]ConsentRecord
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		optouts:  make(map[string]Record),
		consents: make(map[string]ConsentRecord),
	}
}

func (m *MemoryRepository) Add(ctx context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.optouts[r.Phone] = r
	return nil
}

func (m *MemoryRepository) IsOptedOut(ctx context.Context, phone string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.optouts[phone]
	return ok, nil
}

func (m *MemoryRepository) All(ctx context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.optouts))
	for _, r := range m.optouts {
		out = append(out, r)
	}
	return out, nil
}

func (m *MemoryRepository) GrantConsent(ctx context.Context, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consents[phone] = ConsentRecord{Phone: phone, GrantedAt: time.Now()}
	return nil
}

func (m *MemoryRepository) HasConsent(ctx context.Context, phone string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.consents[phone]
	return ok, nil
}

var _ Repository = (*MemoryRepository)(nil)
