package models

import (
	"time"

	"gorm.io/gorm"
)

// Product categories
const (
	CategoryGrains     = "Grains"
	CategoryVegetables = "Vegetables"
	CategoryFruits     = "Fruits"
)

// Product statuses
const (
	ProductAvailable = "Available"
	ProductSoldOut   = "Sold Out"
	ProductInTransit = "In Transit"
)

// Product represents a crop listing owned by a farmer.
// Quantity is the initial total; SoldQuantity tracks committed sales, so
// sold_quantity <= quantity must hold at all times. Reservations are taken
// by incrementing SoldQuantity with an atomic conditional update (see
// services.OrderService) rather than a read-then-write pair.
type Product struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	FarmerID      uint           `gorm:"not null;index" json:"farmer_id"`
	Farmer        User           `gorm:"foreignKey:FarmerID" json:"farmer"`
	CropName      string         `gorm:"not null" json:"crop_name"`
	Category      string         `gorm:"not null;default:'Grains'" json:"category"` // Grains, Vegetables, Fruits
	HarvestDate   time.Time      `gorm:"not null" json:"harvest_date"`
	ExpiryDate    time.Time      `gorm:"not null" json:"expiry_date"`
	PriceINR      float64        `gorm:"not null;check:price_inr >= 0" json:"price_inr"` // unit price, stable currency
	Quantity      int            `gorm:"not null;check:quantity >= 0" json:"quantity"`
	SoldQuantity  int            `gorm:"not null;default:0;check:sold_quantity >= 0" json:"sold_quantity"`
	ImageS3Key    *string        `json:"image_s3_key"`
	ImageURL      *string        `gorm:"-" json:"image_url,omitempty"` // computed field, presigned URL for image
	ManualAddress string         `json:"manual_address"`
	Latitude      *float64       `json:"latitude,omitempty"`
	Longitude     *float64       `json:"longitude,omitempty"`
	Status        string         `gorm:"not null;default:'Available'" json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Product model
func (Product) TableName() string {
	return "products"
}

// Available returns the quantity still open for sale
func (p *Product) Available() int {
	return p.Quantity - p.SoldQuantity
}

// ValidCategory reports whether the given category is one of the known values
func ValidCategory(category string) bool {
	switch category {
	case CategoryGrains, CategoryVegetables, CategoryFruits:
		return true
	}
	return false
}
