package models

import (
	"time"

	"gorm.io/gorm"
)

// Order statuses. Delivered and Cancelled are terminal; no transition
// skips Active.
const (
	OrderPending   = "Pending"
	OrderActive    = "Active"
	OrderDelivered = "Delivered"
	OrderCancelled = "Cancelled"
)

// Order represents a paid line of a checkout, tied to an escrow deposit on
// the ledger. TransactionHash is the deposit transaction; BlockchainOrderID
// is the identifier the escrow contract assigned to the deposit, decoded
// from its OrderPlaced event. BlockchainOrderID is nullable: legacy rows
// predate the escrow contract and cannot be settled on-chain.
// Status is mutated only by services.OrderService.
type Order struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	ConsumerID        uint           `gorm:"not null;index" json:"consumer_id"`
	Consumer          User           `gorm:"foreignKey:ConsumerID" json:"consumer"`
	FarmerID          uint           `gorm:"not null;index" json:"farmer_id"`
	Farmer            User           `gorm:"foreignKey:FarmerID" json:"farmer"`
	ProductID         uint           `gorm:"not null;index" json:"product_id"`
	Product           Product        `gorm:"foreignKey:ProductID" json:"product"`
	Quantity          int            `gorm:"not null;check:quantity > 0" json:"quantity"`
	TotalPrice        float64        `gorm:"not null" json:"total_price"` // stable currency (INR)
	TransactionHash   string         `gorm:"index" json:"transaction_hash"`
	BlockchainOrderID *string        `json:"blockchain_order_id"`
	DeliveryTxHash    *string        `json:"delivery_tx_hash,omitempty"`
	Status            string         `gorm:"not null;default:'Active'" json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}

// Terminal reports whether the order is in a final state
func (o *Order) Terminal() bool {
	return o.Status == OrderDelivered || o.Status == OrderCancelled
}
