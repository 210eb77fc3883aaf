package services

import (
	"context"
	"sync"
)

// MockPriceService is a fixed-rate price oracle for testing
type MockPriceService struct {
	mu   sync.RWMutex
	Rate float64
	Err  error // returned by GetRate when set
}

// NewMockPriceService creates a mock oracle returning the given rate
func NewMockPriceService(rate float64) *MockPriceService {
	return &MockPriceService{Rate: rate}
}

// GetRate returns the configured rate or error
func (m *MockPriceService) GetRate(ctx context.Context, baseCurrency, quoteCurrency string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Rate, nil
}

// SetError scripts a failure for subsequent GetRate calls
func (m *MockPriceService) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}
