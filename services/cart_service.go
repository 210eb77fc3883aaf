package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agriconnect/agriconnect-api/config"
)

// cartTTL expires abandoned carts
const cartTTL = 7 * 24 * time.Hour

// CartInterface stores the per-consumer cart server-side
type CartInterface interface {
	GetCart(ctx context.Context, consumerID uint) ([]CheckoutLine, error)
	PutLine(ctx context.Context, consumerID uint, line CheckoutLine) ([]CheckoutLine, error)
	RemoveLine(ctx context.Context, consumerID uint, productID uint) ([]CheckoutLine, error)
	ClearCart(ctx context.Context, consumerID uint) error
}

// RedisCartService keeps each consumer's cart as a JSON document in redis
type RedisCartService struct {
	client *redis.Client
}

var cartServiceInstance CartInterface

// InitCartService initializes the cart store. Returns nil when no redis URL
// is configured; cart endpoints are then unavailable.
func InitCartService(cfg *config.Config) (CartInterface, error) {
	if cfg.RedisURL == "" {
		log.Println("REDIS_URL not set, server-side cart disabled")
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	cartServiceInstance = &RedisCartService{client: redis.NewClient(opts)}
	return cartServiceInstance, nil
}

// GetCartService returns the initialized cart service instance
func GetCartService() CartInterface {
	return cartServiceInstance
}

// SetCartService sets the cart service instance (primarily for testing)
func SetCartService(service CartInterface) {
	cartServiceInstance = service
}

// RedisClient exposes the underlying client for shared use (rate cache)
func (s *RedisCartService) RedisClient() *redis.Client {
	return s.client
}

func cartKey(consumerID uint) string {
	return fmt.Sprintf("cart:%d", consumerID)
}

// GetCart returns the consumer's cart lines
func (s *RedisCartService) GetCart(ctx context.Context, consumerID uint) ([]CheckoutLine, error) {
	raw, err := s.client.Get(ctx, cartKey(consumerID)).Result()
	if err == redis.Nil {
		return []CheckoutLine{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}

	var lines []CheckoutLine
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, fmt.Errorf("corrupt cart for consumer %d: %w", consumerID, err)
	}
	return lines, nil
}

// PutLine adds or replaces a product line in the consumer's cart
func (s *RedisCartService) PutLine(ctx context.Context, consumerID uint, line CheckoutLine) ([]CheckoutLine, error) {
	if line.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}

	lines, err := s.GetCart(ctx, consumerID)
	if err != nil {
		return nil, err
	}

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

	if err := s.save(ctx, consumerID, lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// RemoveLine removes a product line from the consumer's cart
func (s *RedisCartService) RemoveLine(ctx context.Context, consumerID uint, productID uint) ([]CheckoutLine, error) {
	lines, err := s.GetCart(ctx, consumerID)
	if err != nil {
		return nil, err
	}

	kept := lines[:0]
	for _, line := range lines {
		if line.ProductID != productID {
			kept = append(kept, line)
		}
	}

	if err := s.save(ctx, consumerID, kept); err != nil {
		return nil, err
	}
	return kept, nil
}

// ClearCart removes the consumer's cart entirely
func (s *RedisCartService) ClearCart(ctx context.Context, consumerID uint) error {
	if err := s.client.Del(ctx, cartKey(consumerID)).Err(); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}

func (s *RedisCartService) save(ctx context.Context, consumerID uint, lines []CheckoutLine) error {
	raw, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to encode cart: %w", err)
	}
	if err := s.client.Set(ctx, cartKey(consumerID), raw, cartTTL).Err(); err != nil {
		return fmt.Errorf("failed to store cart: %w", err)
	}
	return nil
}
