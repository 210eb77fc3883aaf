package services

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/agriconnect/agriconnect-api/config"
	"github.com/agriconnect/agriconnect-api/models"
)

// openOrderTestDB opens a shared-cache in-memory database limited to a
// single connection, so concurrent goroutines exercise the conditional
// updates against one store instead of separate empty databases.
func openOrderTestDB(t *testing.T, name string) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.User{}, &models.Product{}, &models.Order{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

func seedOrderTestData(t *testing.T, db *gorm.DB, quantity int) (models.User, models.User, models.Product) {
	farmer := models.User{
		FullName:      "Test Farmer",
		Email:         "farmer@example.com",
		Role:          models.RoleFarmer,
		WalletAddress: "0xfarmer",
	}
	if err := db.Create(&farmer).Error; err != nil {
		t.Fatalf("Failed to seed farmer: %v", err)
	}

	consumer := models.User{FullName: "Test Consumer", Email: "consumer@example.com", Role: models.RoleConsumer}
	if err := db.Create(&consumer).Error; err != nil {
		t.Fatalf("Failed to seed consumer: %v", err)
	}

	product := models.Product{
		FarmerID:    farmer.ID,
		CropName:    "Basmati Rice",
		Category:    models.CategoryGrains,
		HarvestDate: time.Now().AddDate(0, -1, 0),
		ExpiryDate:  time.Now().AddDate(0, 6, 0),
		PriceINR:    500,
		Quantity:    quantity,
		Status:      models.ProductAvailable,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("Failed to seed product: %v", err)
	}
	return farmer, consumer, product
}

func TestPlaceOrder_ConcurrentBuyers_NeverOversell(t *testing.T) {
	db := openOrderTestDB(t, "ordersvc_concurrent")
	config.SetDB(db)

	escrow := NewMockEscrowService()
	SetEscrowService(escrow)
	SetPriceService(NewMockPriceService(200000))
	SetEventPublisher(nil)

	_, consumer, product := seedOrderTestData(t, db, 10)

	// 20 buyers race for 10 units, 2 each: at most 5 can win
	const buyers = 20
	const perOrder = 2

	svc := NewOrderService()
	var wg sync.WaitGroup
	results := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.PlaceOrder(context.Background(), &consumer, []CheckoutLine{
				{ProductID: product.ID, Quantity: perOrder},
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		// Every loser fails on stock, nothing else
		assert.ErrorIs(t, err, ErrInsufficientStock)
	}
	assert.Equal(t, 5, successes)

	// Losers never reached the ledger
	assert.Equal(t, 5, escrow.DepositCalls)

	// Sold quantity lands exactly on capacity
	var reloaded models.Product
	db.First(&reloaded, product.ID)
	assert.Equal(t, 10, reloaded.SoldQuantity)
	assert.Equal(t, models.ProductSoldOut, reloaded.Status)

	var count int64
	db.Model(&models.Order{}).Count(&count)
	assert.Equal(t, int64(5), count)
}

func TestPlaceOrder_LinksLedgerIdentifiers(t *testing.T) {
	db := openOrderTestDB(t, "ordersvc_linkage")
	config.SetDB(db)

	escrow := NewMockEscrowService()
	SetEscrowService(escrow)
	SetPriceService(NewMockPriceService(200000))
	SetEventPublisher(nil)

	_, consumer, product := seedOrderTestData(t, db, 10)

	svc := NewOrderService()
	orders, err := svc.PlaceOrder(context.Background(), &consumer, []CheckoutLine{
		{ProductID: product.ID, Quantity: 4},
	})
	assert.NoError(t, err)
	assert.Len(t, orders, 1)

	order := orders[0]
	assert.Equal(t, models.OrderActive, order.Status)
	assert.NotEmpty(t, order.TransactionHash)
	assert.NotNil(t, order.BlockchainOrderID)

	// The stored identifier matches what the receipt decodes to
	decoded, err := escrow.OrderIDFromReceipt(context.Background(), order.TransactionHash)
	assert.NoError(t, err)
	assert.Equal(t, decoded, *order.BlockchainOrderID)
}

func TestPlaceOrder_ValidationFailures(t *testing.T) {
	db := openOrderTestDB(t, "ordersvc_validation")
	config.SetDB(db)

	escrow := NewMockEscrowService()
	SetEscrowService(escrow)
	SetPriceService(NewMockPriceService(200000))
	SetEventPublisher(nil)

	_, consumer, product := seedOrderTestData(t, db, 10)
	svc := NewOrderService()

	tests := []struct {
		name  string
		user  *models.User
		lines []CheckoutLine
		want  error
	}{
		{"Missing consumer", nil, []CheckoutLine{{ProductID: product.ID, Quantity: 1}}, ErrValidation},
		{"Empty cart", &consumer, nil, ErrValidation},
		{"Non-positive quantity", &consumer, []CheckoutLine{{ProductID: product.ID, Quantity: 0}}, ErrValidation},
		{"Unknown product", &consumer, []CheckoutLine{{ProductID: 9999, Quantity: 1}}, ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.PlaceOrder(context.Background(), tt.user, tt.lines)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// None of the rejected carts touched the ledger
	assert.Equal(t, 0, escrow.DepositCalls)
}

func TestPlaceOrder_NoLedgerConfigured(t *testing.T) {
	db := openOrderTestDB(t, "ordersvc_noledger")
	config.SetDB(db)

	SetEscrowService(nil)
	SetPriceService(NewMockPriceService(200000))
	SetEventPublisher(nil)

	_, consumer, product := seedOrderTestData(t, db, 10)

	svc := NewOrderService()
	_, err := svc.PlaceOrder(context.Background(), &consumer, []CheckoutLine{
		{ProductID: product.ID, Quantity: 1},
	})
	assert.ErrorIs(t, err, ErrLedgerUnavailable)

	var reloaded models.Product
	db.First(&reloaded, product.ID)
	assert.Equal(t, 0, reloaded.SoldQuantity)
}

func TestConfirmDelivery_StateMachine(t *testing.T) {
	db := openOrderTestDB(t, "ordersvc_statemachine")
	config.SetDB(db)

	escrow := NewMockEscrowService()
	SetEscrowService(escrow)
	SetEventPublisher(nil)

	farmer, consumer, product := seedOrderTestData(t, db, 10)
	svc := NewOrderService()

	makeOrder := func(status string, onChainID *string) models.Order {
		order := models.Order{
			ConsumerID:        consumer.ID,
			FarmerID:          farmer.ID,
			ProductID:         product.ID,
			Quantity:          1,
			TotalPrice:        500,
			TransactionHash:   "0xdeposit",
			BlockchainOrderID: onChainID,
			Status:            status,
		}
		if err := db.Create(&order).Error; err != nil {
			t.Fatalf("Failed to seed order: %v", err)
		}
		return order
	}

	id := "11"
	escrow.RegisterEntry(id)

	t.Run("Pending orders cannot skip to Delivered", func(t *testing.T) {
		order := makeOrder(models.OrderPending, &id)
		_, err := svc.ConfirmDelivery(context.Background(), order.ID)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, 0, escrow.ConfirmCalls)
	})

	t.Run("Cancelled orders are final", func(t *testing.T) {
		order := makeOrder(models.OrderCancelled, &id)
		_, err := svc.ConfirmDelivery(context.Background(), order.ID)
		assert.ErrorIs(t, err, ErrOrderFinal)
	})

	t.Run("Active order delivers exactly once", func(t *testing.T) {
		order := makeOrder(models.OrderActive, &id)

		updated, err := svc.ConfirmDelivery(context.Background(), order.ID)
		assert.NoError(t, err)
		assert.Equal(t, models.OrderDelivered, updated.Status)
		assert.True(t, escrow.Confirmed(id))

		_, err = svc.ConfirmDelivery(context.Background(), order.ID)
		assert.ErrorIs(t, err, ErrOrderFinal)
	})

	t.Run("No on-chain reference is a permanent failure", func(t *testing.T) {
		order := makeOrder(models.OrderActive, nil)
		_, err := svc.ConfirmDelivery(context.Background(), order.ID)
		assert.ErrorIs(t, err, ErrMissingLedgerReference)
	})
}

func TestCancelOrder_ReleasesReservation(t *testing.T) {
	db := openOrderTestDB(t, "ordersvc_cancel")
	config.SetDB(db)

	escrow := NewMockEscrowService()
	SetEscrowService(escrow)
	SetPriceService(NewMockPriceService(200000))
	SetEventPublisher(nil)

	_, consumer, product := seedOrderTestData(t, db, 5)

	svc := NewOrderService()
	orders, err := svc.PlaceOrder(context.Background(), &consumer, []CheckoutLine{
		{ProductID: product.ID, Quantity: 5},
	})
	assert.NoError(t, err)

	var soldOut models.Product
	db.First(&soldOut, product.ID)
	assert.Equal(t, models.ProductSoldOut, soldOut.Status)

	cancelled, err := svc.CancelOrder(context.Background(), orders[0].ID)
	assert.NoError(t, err)
	assert.Equal(t, models.OrderCancelled, cancelled.Status)

	// The units come back and the listing reopens
	var reloaded models.Product
	db.First(&reloaded, product.ID)
	assert.Equal(t, 0, reloaded.SoldQuantity)
	assert.Equal(t, models.ProductAvailable, reloaded.Status)
}

func TestReserveStock_Clamps(t *testing.T) {
	db := openOrderTestDB(t, "ordersvc_reserve")
	config.SetDB(db)

	_, _, product := seedOrderTestData(t, db, 3)

	ok, err := reserveStock(db, product.ID, 2)
	assert.NoError(t, err)
	assert.True(t, ok)

	// Only one unit left, two cannot be taken
	ok, err = reserveStock(db, product.ID, 2)
	assert.NoError(t, err)
	assert.False(t, ok)

	ok, err = reserveStock(db, product.ID, 1)
	assert.NoError(t, err)
	assert.True(t, ok)

	// Releasing more than was sold is refused rather than going negative
	assert.NoError(t, releaseStock(db, product.ID, 2))
	var reloaded models.Product
	db.First(&reloaded, product.ID)
	assert.Equal(t, 1, reloaded.SoldQuantity)

	assert.NoError(t, releaseStock(db, product.ID, 2))
	db.First(&reloaded, product.ID)
	assert.Equal(t, 1, reloaded.SoldQuantity)
}

func TestReconcileByHash(t *testing.T) {
	db := openOrderTestDB(t, "ordersvc_reconcile")
	config.SetDB(db)

	escrow := NewMockEscrowService()
	SetEscrowService(escrow)
	SetEventPublisher(nil)

	farmer, consumer, product := seedOrderTestData(t, db, 10)

	deposit, err := escrow.Deposit(context.Background(), farmer.WalletAddress, big.NewInt(1))
	assert.NoError(t, err)

	order := models.Order{
		ConsumerID:      consumer.ID,
		FarmerID:        farmer.ID,
		ProductID:       product.ID,
		Quantity:        1,
		TotalPrice:      500,
		TransactionHash: deposit.TxHash,
		Status:          models.OrderActive,
	}
	db.Create(&order)

	svc := NewOrderService()

	healed, err := svc.ReconcileByHash(context.Background(), deposit.TxHash)
	assert.NoError(t, err)
	assert.Equal(t, 1, healed)

	var reloaded models.Order
	db.First(&reloaded, order.ID)
	assert.NotNil(t, reloaded.BlockchainOrderID)
	assert.Equal(t, deposit.OnChainOrderID, *reloaded.BlockchainOrderID)

	// Idempotent on replay, and validation still applies
	healed, err = svc.ReconcileByHash(context.Background(), deposit.TxHash)
	assert.NoError(t, err)
	assert.Equal(t, 0, healed)

	_, err = svc.ReconcileByHash(context.Background(), "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestInrToWei(t *testing.T) {
	// At 200000 INR/ETH, 200000 INR is exactly one ether
	wei := inrToWei(200000, 200000)
	assert.Equal(t, "1000000000000000000", wei.String())

	// Half an ether
	wei = inrToWei(100000, 200000)
	assert.Equal(t, "500000000000000000", wei.String())
}

func TestPartialCheckoutError_Unwraps(t *testing.T) {
	inner := fmt.Errorf("%w: scripted", ErrTransactionRejected)
	err := &PartialCheckoutError{MinedTxHashes: []string{"0xabc"}, Err: inner}

	assert.True(t, errors.Is(err, ErrTransactionRejected))
	assert.Contains(t, err.Error(), "0xabc")
}
