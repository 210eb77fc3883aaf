package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"
)

// MockEscrowService is an in-memory implementation of EscrowInterface for
// testing. Deposits are assigned sequential on-chain order IDs; failures
// can be scripted per operation.
type MockEscrowService struct {
	mu             sync.Mutex
	nextOrderID    int64
	deposits       map[string]*DepositResult // keyed by tx hash
	entries        map[string]bool           // on-chain order id -> open entry
	confirmed      map[string]string         // on-chain order id -> confirmation tx hash
	DepositErr     error                     // returned by Deposit when set
	ConfirmErr     error                     // returned by ConfirmDelivery when set
	DepositCalls   int
	ConfirmCalls   int
	FailAfterCalls int // when > 0, Deposit fails once this many calls succeeded
}

// NewMockEscrowService creates a new mock escrow service
func NewMockEscrowService() *MockEscrowService {
	return &MockEscrowService{
		nextOrderID: 1,
		deposits:    make(map[string]*DepositResult),
		entries:     make(map[string]bool),
		confirmed:   make(map[string]string),
	}
}

// Deposit records a deposit and returns a synthetic tx hash and order ID
func (m *MockEscrowService) Deposit(ctx context.Context, sellerAddress string, amountWei *big.Int) (*DepositResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.DepositCalls++
	if m.DepositErr != nil {
		return nil, m.DepositErr
	}
	if m.FailAfterCalls > 0 && m.DepositCalls > m.FailAfterCalls {
		return nil, fmt.Errorf("%w: scripted failure", ErrTransactionRejected)
	}

	id := m.nextOrderID
	m.nextOrderID++

	result := &DepositResult{
		TxHash:         fmt.Sprintf("0xmock%064d", id),
		OnChainOrderID: fmt.Sprintf("%d", id),
		AmountWei:      new(big.Int).Set(amountWei),
	}
	m.deposits[result.TxHash] = result
	m.entries[result.OnChainOrderID] = true
	return result, nil
}

// ConfirmDelivery releases a previously recorded deposit
func (m *MockEscrowService) ConfirmDelivery(ctx context.Context, onChainOrderID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ConfirmCalls++
	if m.ConfirmErr != nil {
		return "", m.ConfirmErr
	}
	if !m.entries[onChainOrderID] {
		return "", fmt.Errorf("%w: id %s", ErrOrderNotFound, onChainOrderID)
	}

	txHash := fmt.Sprintf("0xconfirm%s", onChainOrderID)
	m.confirmed[onChainOrderID] = txHash
	return txHash, nil
}

// OrderIDFromReceipt returns the order ID recorded for a deposit tx hash
func (m *MockEscrowService) OrderIDFromReceipt(ctx context.Context, txHash string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deposit, ok := m.deposits[txHash]
	if !ok {
		return "", fmt.Errorf("%w: transaction %s", ErrEventNotFound, txHash)
	}
	return deposit.OnChainOrderID, nil
}

// Confirmed reports whether the given on-chain order ID has been released
func (m *MockEscrowService) Confirmed(onChainOrderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.confirmed[onChainOrderID]
	return ok
}

// RegisterEntry adds an escrow entry without a deposit, for seeding tests
func (m *MockEscrowService) RegisterEntry(onChainOrderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[onChainOrderID] = true
}
