package services

import (
	"context"
	"fmt"
	"sync"
)

// MockCartService is an in-memory implementation of CartInterface for testing
type MockCartService struct {
	mu    sync.Mutex
	carts map[uint][]CheckoutLine
}

// NewMockCartService creates a new mock cart service
func NewMockCartService() *MockCartService {
	return &MockCartService{carts: make(map[uint][]CheckoutLine)}
}

// GetCart returns the consumer's cart lines
func (m *MockCartService) GetCart(ctx context.Context, consumerID uint) ([]CheckoutLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]CheckoutLine{}, m.carts[consumerID]...), nil
}

// PutLine adds or replaces a product line
func (m *MockCartService) PutLine(ctx context.Context, consumerID uint, line CheckoutLine) ([]CheckoutLine, error) {
	if line.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	lines := m.carts[consumerID]
	replaced := false
	for i := range lines {
		if lines[i].ProductID == line.ProductID {
			lines[i].Quantity = line.Quantity
			replaced = true
			break
		}
	}
	if !replaced {
		lines = append(lines, line)
	}
	m.carts[consumerID] = lines
	return append([]CheckoutLine{}, lines...), nil
}

// RemoveLine removes a product line
func (m *MockCartService) RemoveLine(ctx context.Context, consumerID uint, productID uint) ([]CheckoutLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	lines := m.carts[consumerID]
	kept := make([]CheckoutLine, 0, len(lines))
	for _, line := range lines {
		if line.ProductID != productID {
			kept = append(kept, line)
		}
	}
	m.carts[consumerID] = kept
	return append([]CheckoutLine{}, kept...), nil
}

// ClearCart removes the consumer's cart
func (m *MockCartService) ClearCart(ctx context.Context, consumerID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, consumerID)
	return nil
}
