package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const keyPrefix = "cart:"

// CartRepository stores each cart as a JSON document under cart:{userID}.
// Every write refreshes the TTL.
type CartRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCartRepository creates a Redis-backed cart store.
func NewCartRepository(client *redis.Client, ttl time.Duration) *CartRepository {
	return &CartRepository{client: client, ttl: ttl}
}

func key(userID string) string { return keyPrefix + userID }

// Get returns the user's cart or a NotFound error.
func (r *CartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	data, err := r.client.Get(ctx, key(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cart", userID)
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}
	return decode(data)
}

// Save overwrites the user's cart.
func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	if err := r.client.Set(ctx, key(cart.UserID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

// SaveIfVersion writes cart inside WATCH/MULTI so a concurrent writer that
// changed the key first makes this write fail with a Conflict.
func (r *CartRepository) SaveIfVersion(ctx context.Context, cart *domain.Cart, expected int) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}
	return r.ifVersion(ctx, cart.UserID, expected, func(pipe redis.Pipeliner, k string) {
		pipe.Set(ctx, k, data, r.ttl)
	})
}

// DeleteIfVersion removes the cart only if the stored version still equals
// expected, under the same WATCH/MULTI guard as SaveIfVersion.
func (r *CartRepository) DeleteIfVersion(ctx context.Context, userID string, expected int) error {
	return r.ifVersion(ctx, userID, expected, func(pipe redis.Pipeliner, k string) {
		pipe.Del(ctx, k)
	})
}

// ifVersion runs write in a MULTI block once the stored version matches
// expected. A missing cart has version 0.
func (r *CartRepository) ifVersion(ctx context.Context, userID string, expected int, write func(redis.Pipeliner, string)) error {
	k := key(userID)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		current := 0
		raw, err := tx.Get(ctx, k).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("redis get cart: %w", err)
		default:
			stored, err := decode(raw)
			if err != nil {
				return err
			}
			current = stored.Version
		}
		if current != expected {
			return apperrors.Conflict("cart was modified concurrently, please retry")
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(pipe, k)
			return nil
		})
		return err
	}, k)

	if errors.Is(err, redis.TxFailedErr) {
		return apperrors.Conflict("cart was modified concurrently, please retry")
	}
	return err
}

// Delete removes the user's cart. Deleting a missing cart is not an error.
func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("redis del cart: %w", err)
	}
	return nil
}

func decode(data []byte) (*domain.Cart, error) {
	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	if cart.Lines == nil {
		cart.Lines = []domain.CartLine{}
	}
	return &cart, nil
}
