package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/eggnunes/crmidea-sub003/internal/domain/subscription"

	"github.com/redis/go-redis/v9"
)

// subscriptionCacheTTL is short so status changes from webhooks show up quickly.
const subscriptionCacheTTL = time.Second

type SubscriptionReader interface {
	GetByOriginalTransactionID(ctx context.Context, id string) (*subscription.Subscription, error)
}

type GetSubscription struct {
	redisClient *redis.Client
	subs        SubscriptionReader
}

func NewGetSubscription(redisClient *redis.Client, subs SubscriptionReader) *GetSubscription {
	return &GetSubscription{
		redisClient: redisClient,
		subs:        subs,
	}
}

func (uc *GetSubscription) Execute(ctx context.Context, originalTransactionID string) (*subscription.Subscription, error) {
	cacheKey := fmt.Sprintf("subscription:%s", originalTransactionID)

	if uc.redisClient != nil {
		val, err := uc.redisClient.Get(ctx, cacheKey).Bytes()
		if err == nil {
			var s subscription.Subscription
			if err := json.Unmarshal(val, &s); err == nil {
				return &s, nil
			}
		}
	}

	s, err := uc.subs.GetByOriginalTransactionID(ctx, originalTransactionID)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if s == nil {
		return nil, fmt.Errorf("subscription %s: %w", originalTransactionID, ErrNotFound)
	}

	if uc.redisClient != nil {
		if data, err := json.Marshal(s); err == nil {
			uc.redisClient.Set(ctx, cacheKey, data, subscriptionCacheTTL)
		}
	}

	return s, nil
}
