package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/thxForu/perp-futures/internal/domain/pricing"
	"github.com/thxForu/perp-futures/pkg/errors"
)

// Compile-time check
var _ pricing.Source = (*PriceFeed)(nil)

// PriceFeed implements pricing.Source over Redis keys written by an external
// ticker. Feed values are decimal strings; they are shifted by scale digits
// and truncated into the fixed-point integers the engines consume.
type PriceFeed struct {
	client *redis.Client
	scale  int32
}

// NewPriceFeed creates a price feed reading prices scaled by 10^scale.
func NewPriceFeed(client *redis.Client, scale int32) *PriceFeed {
	return &PriceFeed{client: client, scale: scale}
}

// CurrentPrice retrieves and scales the pair's latest price
func (f *PriceFeed) CurrentPrice(ctx context.Context, pairIndex uint32) (int64, error) {
	key := f.getKey(pairIndex)

	raw, err := f.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, errors.Wrapf(errors.ErrPriceUnavailable, "pair %d", pairIndex)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "failed to get price from redis: pair=%d", pairIndex)
	}

	value, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrPriceUnavailable, "pair %d: malformed price %q", pairIndex, raw)
	}

	price := value.Shift(f.scale).IntPart()
	if price <= 0 {
		return 0, errors.Wrapf(errors.ErrPriceUnavailable, "pair %d: non-positive price %s", pairIndex, raw)
	}
	return price, nil
}

func (f *PriceFeed) getKey(pairIndex uint32) string {
	return fmt.Sprintf("price:%d", pairIndex)
}
