package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/params"
	"gorm.io/gorm"

	"github.com/agriconnect/agriconnect-api/config"
	"github.com/agriconnect/agriconnect-api/models"
)

// Oracle currency identifiers for the ETH/INR rate
const (
	ledgerCurrency = "ethereum"
	stableCurrency = "inr"
)

// CheckoutLine is one product/quantity pair of a cart checkout
type CheckoutLine struct {
	ProductID uint `json:"product_id" binding:"required"`
	Quantity  int  `json:"quantity" binding:"required,gt=0"`
}

// PartialCheckoutError reports a checkout that failed after at least one
// escrow deposit was mined. The committed orders are consistent with the
// ledger; the remaining lines were released. The mined hashes are included
// so the failure can be reconciled manually.
type PartialCheckoutError struct {
	MinedTxHashes []string
	Err           error
}

func (e *PartialCheckoutError) Error() string {
	return fmt.Sprintf("checkout failed after deposits %s were mined: %v",
		strings.Join(e.MinedTxHashes, ", "), e.Err)
}

func (e *PartialCheckoutError) Unwrap() error {
	return e.Err
}

// OrderService is the authoritative bridge between ledger state and
// application state. Only it mutates order status and sold quantities.
//
// Checkout follows a reserve/deposit/commit discipline: stock is reserved
// with an atomic conditional decrement before the ledger is touched, so two
// concurrent buyers cannot both pass the stock check, and a failed deposit
// deterministically releases the reservation. No exclusive lock is held
// while waiting on the ledger.
type OrderService struct{}

// NewOrderService creates a new order service
func NewOrderService() *OrderService {
	return &OrderService{}
}

// sellerGroup aggregates the cart lines of a single farmer. The escrow
// contract keys deposits by seller, so one deposit is submitted per group.
type sellerGroup struct {
	farmer   models.User
	lines    []CheckoutLine
	totalINR float64
	deposit  *DepositResult
}

// PlaceOrder reserves stock for every line, submits one escrow deposit per
// farmer, and creates one Active order row per line carrying its group's
// transaction hash and on-chain order ID.
//
// Failure behavior: validation, oracle and stock failures abort before any
// ledger call with no state committed. A deposit failure before any deposit
// mined releases every reservation. A deposit failure after an earlier
// group's deposit mined commits the paid groups, releases the rest, and
// returns a PartialCheckoutError carrying the mined hashes.
func (s *OrderService) PlaceOrder(ctx context.Context, consumer *models.User, lines []CheckoutLine) ([]models.Order, error) {
	if consumer == nil {
		return nil, fmt.Errorf("%w: missing consumer", ErrValidation)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty cart", ErrValidation)
	}
	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity must be positive for product %d", ErrValidation, line.ProductID)
		}
	}

	ledger := GetEscrowService()
	if ledger == nil {
		return nil, fmt.Errorf("%w: no wallet configured", ErrLedgerUnavailable)
	}

	db := config.GetDB()

	products, err := s.loadProducts(db, lines)
	if err != nil {
		return nil, err
	}

	// Resolve the rate before reserving anything, so an unreachable oracle
	// rejects the checkout with no side effects.
	rate, err := GetPriceService().GetRate(ctx, ledgerCurrency, stableCurrency)
	if err != nil {
		return nil, err
	}

	// Phase 1: reserve stock for the whole cart. Partial fulfillment is
	// disallowed, so the first miss releases everything taken so far.
	var reserved []CheckoutLine
	for _, line := range lines {
		ok, err := reserveStock(db, line.ProductID, line.Quantity)
		if err != nil {
			s.releaseLines(db, reserved)
			return nil, fmt.Errorf("failed to reserve stock for product %d: %w", line.ProductID, err)
		}
		if !ok {
			s.releaseLines(db, reserved)
			return nil, fmt.Errorf("%w: product %d", ErrInsufficientStock, line.ProductID)
		}
		reserved = append(reserved, line)
	}

	groups := s.groupBySeller(lines, products)

	// Phase 2: one deposit per farmer group, aggregate amount.
	var minedHashes []string
	for i, group := range groups {
		deposit, err := ledger.Deposit(ctx, group.farmer.WalletAddress, inrToWei(group.totalINR, rate))
		if err != nil {
			// Release the unpaid groups' reservations.
			for _, unpaid := range groups[i:] {
				s.releaseLines(db, unpaid.lines)
			}
			if len(minedHashes) == 0 {
				return nil, err
			}
			// Funds already moved for earlier groups; commit those rows so
			// the database reflects the ledger, then report the failure.
			committed, commitErr := s.commitGroups(ctx, db, consumer, products, groups[:i])
			if commitErr != nil {
				err = fmt.Errorf("%v (and committing paid orders failed: %w)", err, commitErr)
			}
			return committed, &PartialCheckoutError{MinedTxHashes: minedHashes, Err: err}
		}
		groups[i].deposit = deposit
		minedHashes = append(minedHashes, deposit.TxHash)
	}

	// Phase 3: commit all order rows.
	orders, err := s.commitGroups(ctx, db, consumer, products, groups)
	if err != nil {
		// Dual-write window: deposits mined but rows could not be written.
		// Reservations are kept (the goods are paid for) and the hashes are
		// surfaced for manual reconciliation via ReconcileByHash.
		return orders, &PartialCheckoutError{MinedTxHashes: minedHashes, Err: err}
	}
	return orders, nil
}

// ConfirmDelivery releases the escrow entry behind an Active order and
// transitions it to Delivered. The transition is terminal; a second call
// fails with ErrOrderFinal. On ledger failure the order stays Active and
// the error is surfaced for manual retry.
func (s *OrderService) ConfirmDelivery(ctx context.Context, orderID uint) (*models.Order, error) {
	db := config.GetDB()

	var order models.Order
	if err := db.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrValidation, orderID)
		}
		return nil, err
	}

	if order.Terminal() {
		return nil, fmt.Errorf("%w: order %d is %s", ErrOrderFinal, order.ID, order.Status)
	}
	if order.Status != models.OrderActive {
		return nil, fmt.Errorf("%w: order %d is %s, not Active", ErrValidation, order.ID, order.Status)
	}
	if order.BlockchainOrderID == nil || *order.BlockchainOrderID == "" {
		// Legacy or malformed row; permanently unsettleable on-chain.
		return nil, fmt.Errorf("%w: order %d", ErrMissingLedgerReference, order.ID)
	}

	ledger := GetEscrowService()
	if ledger == nil {
		return nil, fmt.Errorf("%w: no wallet configured", ErrLedgerUnavailable)
	}

	txHash, err := ledger.ConfirmDelivery(ctx, *order.BlockchainOrderID)
	if err != nil {
		return nil, err
	}

	// Guarded update so a concurrent confirmation cannot double-apply.
	result := db.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, models.OrderActive).
		Updates(map[string]interface{}{
			"status":           models.OrderDelivered,
			"delivery_tx_hash": txHash,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("delivery confirmed on ledger (tx %s) but order %d could not be updated: %w", txHash, order.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: order %d (ledger tx %s)", ErrOrderFinal, order.ID, txHash)
	}

	order.Status = models.OrderDelivered
	order.DeliveryTxHash = &txHash
	publishOrderEvent(ctx, EventOrderDelivered, &order)
	return &order, nil
}

// CancelOrder administratively cancels an Active order and releases its
// reservation. Terminal.
func (s *OrderService) CancelOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	db := config.GetDB()

	var order models.Order
	if err := db.First(&order, orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: order %d", ErrValidation, orderID)
		}
		return nil, err
	}
	if order.Terminal() {
		return nil, fmt.Errorf("%w: order %d is %s", ErrOrderFinal, order.ID, order.Status)
	}
	if order.Status != models.OrderActive {
		return nil, fmt.Errorf("%w: order %d is %s, not Active", ErrValidation, order.ID, order.Status)
	}

	result := db.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, models.OrderActive).
		Update("status", models.OrderCancelled)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: order %d", ErrOrderFinal, order.ID)
	}

	if err := releaseStock(db, order.ProductID, order.Quantity); err != nil {
		log.Printf("warning: failed to release stock for cancelled order %d: %v", order.ID, err)
	}

	order.Status = models.OrderCancelled
	publishOrderEvent(ctx, EventOrderCancelled, &order)
	return &order, nil
}

// ReconcileByHash backfills missing on-chain order IDs for rows that stored
// a deposit hash but crashed before the identifier was written. Idempotent:
// keyed by transaction hash, a no-op when every row is already populated.
func (s *OrderService) ReconcileByHash(ctx context.Context, txHash string) (int, error) {
	if txHash == "" {
		return 0, fmt.Errorf("%w: missing transaction hash", ErrValidation)
	}

	db := config.GetDB()

	var pending []models.Order
	if err := db.Where("transaction_hash = ? AND blockchain_order_id IS NULL", txHash).Find(&pending).Error; err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	ledger := GetEscrowService()
	if ledger == nil {
		return 0, fmt.Errorf("%w: no wallet configured", ErrLedgerUnavailable)
	}

	onChainID, err := ledger.OrderIDFromReceipt(ctx, txHash)
	if err != nil {
		return 0, err
	}

	result := db.Model(&models.Order{}).
		Where("transaction_hash = ? AND blockchain_order_id IS NULL", txHash).
		Update("blockchain_order_id", onChainID)
	if result.Error != nil {
		return 0, result.Error
	}

	log.Printf("Reconciled %d order(s) for tx %s with on-chain id %s", result.RowsAffected, txHash, onChainID)
	return int(result.RowsAffected), nil
}

// loadProducts fetches every distinct product of the cart with its farmer
func (s *OrderService) loadProducts(db *gorm.DB, lines []CheckoutLine) (map[uint]*models.Product, error) {
	products := make(map[uint]*models.Product, len(lines))
	for _, line := range lines {
		if _, ok := products[line.ProductID]; ok {
			continue
		}
		var product models.Product
		if err := db.Preload("Farmer").First(&product, line.ProductID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("%w: product %d not found", ErrValidation, line.ProductID)
			}
			return nil, fmt.Errorf("failed to load product %d: %w", line.ProductID, err)
		}
		products[line.ProductID] = &product
	}
	return products, nil
}

// groupBySeller splits cart lines into per-farmer groups, preserving the
// order in which farmers first appear
func (s *OrderService) groupBySeller(lines []CheckoutLine, products map[uint]*models.Product) []sellerGroup {
	var groups []sellerGroup
	index := make(map[uint]int)
	for _, line := range lines {
		product := products[line.ProductID]
		i, ok := index[product.FarmerID]
		if !ok {
			i = len(groups)
			index[product.FarmerID] = i
			groups = append(groups, sellerGroup{farmer: product.Farmer})
		}
		groups[i].lines = append(groups[i].lines, line)
		groups[i].totalINR += product.PriceINR * float64(line.Quantity)
	}
	return groups
}

// commitGroups creates the order rows for every deposited group
func (s *OrderService) commitGroups(ctx context.Context, db *gorm.DB, consumer *models.User, products map[uint]*models.Product, groups []sellerGroup) ([]models.Order, error) {
	var orders []models.Order
	for _, group := range groups {
		if group.deposit == nil {
			continue
		}
		for _, line := range group.lines {
			product := products[line.ProductID]
			onChainID := group.deposit.OnChainOrderID
			order := models.Order{
				ConsumerID:        consumer.ID,
				FarmerID:          product.FarmerID,
				ProductID:         product.ID,
				Quantity:          line.Quantity,
				TotalPrice:        product.PriceINR * float64(line.Quantity),
				TransactionHash:   group.deposit.TxHash,
				BlockchainOrderID: &onChainID,
				Status:            models.OrderActive,
			}
			if err := db.Create(&order).Error; err != nil {
				return orders, fmt.Errorf("failed to record order for product %d (deposit %s): %w", product.ID, group.deposit.TxHash, err)
			}
			orders = append(orders, order)
			publishOrderEvent(ctx, EventOrderPlaced, &order)
		}
	}
	s.markSoldOut(db, orders)
	return orders, nil
}

// markSoldOut flips the listing status of fully committed products
func (s *OrderService) markSoldOut(db *gorm.DB, orders []models.Order) {
	for _, order := range orders {
		err := db.Model(&models.Product{}).
			Where("id = ? AND sold_quantity >= quantity", order.ProductID).
			Update("status", models.ProductSoldOut).Error
		if err != nil {
			log.Printf("warning: failed to update status for product %d: %v", order.ProductID, err)
		}
	}
}

// releaseLines rolls back the reservations of the given lines
func (s *OrderService) releaseLines(db *gorm.DB, lines []CheckoutLine) {
	for _, line := range lines {
		if err := releaseStock(db, line.ProductID, line.Quantity); err != nil {
			log.Printf("warning: failed to release %d units of product %d: %v", line.Quantity, line.ProductID, err)
		}
	}
}

// reserveStock takes a reservation with a single atomic conditional update.
// Returns false when available quantity is insufficient. Two concurrent
// checkouts against the same product serialize here, at the store level.
func reserveStock(db *gorm.DB, productID uint, quantity int) (bool, error) {
	result := db.Model(&models.Product{}).
		Where("id = ? AND sold_quantity + ? <= quantity", productID, quantity).
		UpdateColumn("sold_quantity", gorm.Expr("sold_quantity + ?", quantity))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// releaseStock returns a reservation, clamped so sold_quantity never goes
// negative, and restores the listing status
func releaseStock(db *gorm.DB, productID uint, quantity int) error {
	result := db.Model(&models.Product{}).
		Where("id = ? AND sold_quantity >= ?", productID, quantity).
		UpdateColumn("sold_quantity", gorm.Expr("sold_quantity - ?", quantity))
	if result.Error != nil {
		return result.Error
	}
	return db.Model(&models.Product{}).
		Where("id = ? AND sold_quantity < quantity AND status = ?", productID, models.ProductSoldOut).
		Update("status", models.ProductAvailable).Error
}

// inrToWei converts a stable-currency amount into ledger wei at the given
// INR-per-ETH rate
func inrToWei(amountINR, ratePerETH float64) *big.Int {
	eth := new(big.Float).Quo(big.NewFloat(amountINR), big.NewFloat(ratePerETH))
	wei, _ := new(big.Float).Mul(eth, big.NewFloat(params.Ether)).Int(nil)
	return wei
}
