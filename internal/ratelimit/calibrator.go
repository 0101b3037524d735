// Package ratelimit derives the polling cadence from the exchange's
// advertised request budget for the quoting endpoint.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spreadbot/internal/domain"
)

// requestsPerCycle is the number of quote requests one trade cycle spends
// (one buy offer plus one sell offer).
const requestsPerCycle = 2

// burstDivisor quarters the surplus quota so bursts keep headroom.
const burstDivisor = 4

// Calibration is the result of a one-off startup calibration.
type Calibration struct {
	Limit       domain.RateLimit
	MinInterval time.Duration // smallest interval the limit allows
	Interval    time.Duration // operating interval
	BurstMax    int           // burst ceiling funded by Interval - MinInterval
}

// Calibrate computes the minimum polling interval for limit and checks the
// configured interval against it. A zero configured interval adopts the
// minimum. An interval below the minimum is a configuration error.
//
//	minInterval = 2 * windowMs / maxRequests / 1000 seconds
//	burstMax    = floor((interval - minInterval) / minInterval / 4 * maxRequests)
func Calibrate(limit domain.RateLimit, configured time.Duration) (Calibration, error) {
	if limit.WindowMs <= 0 || limit.MaxRequests <= 0 {
		return Calibration{}, fmt.Errorf("ratelimit: window=%dms max=%d: %w",
			limit.WindowMs, limit.MaxRequests, domain.ErrInvalidRateLimit)
	}
	if configured < 0 {
		return Calibration{}, fmt.Errorf("ratelimit: negative interval %s: %w", configured, domain.ErrIntervalTooShort)
	}

	maxReq := decimal.NewFromInt(limit.MaxRequests)
	minMs := decimal.NewFromInt(requestsPerCycle * limit.WindowMs).Div(maxReq)
	minDur := ceilDuration(minMs)

	cal := Calibration{
		Limit:       limit,
		MinInterval: minDur,
		Interval:    minDur,
	}
	if configured == 0 {
		return cal, nil
	}

	intervalMs := decimal.NewFromInt(configured.Nanoseconds()).Div(decimal.NewFromInt(int64(time.Millisecond)))
	if intervalMs.LessThan(minMs) {
		return Calibration{}, fmt.Errorf("ratelimit: interval %s < minimum %s: %w",
			configured, minDur, domain.ErrIntervalTooShort)
	}
	cal.Interval = configured

	surplus := intervalMs.Sub(minMs)
	if surplus.IsPositive() {
		burst := surplus.Mul(maxReq).Div(minMs.Mul(decimal.NewFromInt(burstDivisor)))
		cal.BurstMax = int(burst.Floor().IntPart())
	}
	return cal, nil
}

// ceilDuration converts a millisecond decimal to a Duration, rounding up to
// the next nanosecond so the result never undercuts the limit.
func ceilDuration(ms decimal.Decimal) time.Duration {
	ns := ms.Mul(decimal.NewFromInt(int64(time.Millisecond))).Ceil()
	return time.Duration(ns.IntPart())
}

// String renders the calibration for logs.
func (c Calibration) String() string {
	return fmt.Sprintf("interval=%s min=%s burst_max=%d (window=%dms max=%d)",
		c.Interval, c.MinInterval, c.BurstMax, c.Limit.WindowMs, c.Limit.MaxRequests)
}
