package shop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ammar0144/specstore/pkg/redis"
)

// DefaultCartTTL is how long an untouched cart is kept
const DefaultCartTTL = 30 * 24 * time.Hour

var (
	// ErrCartStoreUnavailable is returned when the cart store has no enabled Redis manager
	ErrCartStoreUnavailable = errors.New("cart store requires an enabled redis manager")

	// ErrCartIDRequired is returned when storing a cart without an id
	ErrCartIDRequired = errors.New("cart id is required")
)

type CartItem struct {
	ProductID   int             `json:"productId"`
	ProductName string          `json:"productName"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	PictureURL  string          `json:"pictureUrl"`
	Brand       string          `json:"brand"`
	Type        string          `json:"type"`
}

// ShoppingCart is a buyer's cart. It lives in Redis only and never in the
// database.
type ShoppingCart struct {
	ID               string     `json:"id"`
	Items            []CartItem `json:"items"`
	DeliveryMethodID *int       `json:"deliveryMethodId,omitempty"`
	ClientSecret     string     `json:"clientSecret,omitempty"`
	PaymentIntentID  string     `json:"paymentIntentId,omitempty"`
}

// Subtotal sums price times quantity over the items
func (c *ShoppingCart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// CartStore keeps shopping carts in Redis under <prefix>:cart:<id>. Every
// write restarts the cart's TTL.
type CartStore struct {
	redis *redis.Manager
	ttl   time.Duration
}

// NewCartStore creates a cart store. A ttl of zero or less uses DefaultCartTTL.
func NewCartStore(redisManager *redis.Manager, ttl time.Duration) (*CartStore, error) {
	if !redisManager.Enabled() {
		return nil, ErrCartStoreUnavailable
	}
	if ttl <= 0 {
		ttl = DefaultCartTTL
	}
	return &CartStore{redis: redisManager, ttl: ttl}, nil
}

func (s *CartStore) key(id string) string {
	return s.redis.Key("cart", id)
}

// Get returns the cart, or nil when it does not exist or has expired
func (s *CartStore) Get(ctx context.Context, id string) (*ShoppingCart, error) {
	var cart ShoppingCart
	err := s.redis.GetValue(ctx, s.key(id), &cart)
	if redis.IsKeyNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cart %s: %w", id, err)
	}
	return &cart, nil
}

// Set stores the whole cart, replacing any previous version
func (s *CartStore) Set(ctx context.Context, cart *ShoppingCart) (*ShoppingCart, error) {
	if cart == nil || cart.ID == "" {
		return nil, ErrCartIDRequired
	}
	if err := s.redis.SetValueWithTTL(ctx, s.key(cart.ID), cart, s.ttl); err != nil {
		return nil, fmt.Errorf("set cart %s: %w", cart.ID, err)
	}
	return s.Get(ctx, cart.ID)
}

// Delete removes the cart. Deleting a missing cart is not an error.
func (s *CartStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Delete(ctx, s.key(id)); err != nil {
		return fmt.Errorf("delete cart %s: %w", id, err)
	}
	return nil
}
