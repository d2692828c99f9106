package ratelimit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Budget allows Requests per Interval with up to Burst requests back to back.
type Budget struct {
	Requests int
	Interval time.Duration
	Burst    int
}

// PerSecond and PerMinute build common budgets with a burst of one.
func PerSecond(n int) Budget { return Budget{Requests: n, Interval: time.Second, Burst: 1} }
func PerMinute(n int) Budget { return Budget{Requests: n, Interval: time.Minute, Burst: 1} }

var errBadBudget = errors.New("budget must look like 1/s, 30/m, 100/h or 2s")

// ParseBudget accepts "<n>/<unit>" with unit s, m or h (or a Go duration
// such as 10s), or a bare duration meaning one request per that interval.
func ParseBudget(raw string) (Budget, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Budget{}, errBadBudget
	}

	countPart, unitPart, found := strings.Cut(raw, "/")
	if !found {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			return Budget{}, errBadBudget
		}
		return Budget{Requests: 1, Interval: d, Burst: 1}, nil
	}

	n, err := strconv.Atoi(strings.TrimSpace(countPart))
	if err != nil || n <= 0 {
		return Budget{}, errBadBudget
	}

	var interval time.Duration
	switch unit := strings.TrimSpace(unitPart); unit {
	case "s", "sec", "second":
		interval = time.Second
	case "m", "min", "minute":
		interval = time.Minute
	case "h", "hour":
		interval = time.Hour
	default:
		interval, err = time.ParseDuration(unit)
		if err != nil || interval <= 0 {
			return Budget{}, errBadBudget
		}
	}

	return Budget{Requests: n, Interval: interval, Burst: 1}, nil
}

// Limit converts the budget to a token refill rate.
func (b Budget) Limit() rate.Limit {
	if b.Requests <= 0 || b.Interval <= 0 {
		return rate.Inf
	}
	return rate.Every(b.Interval / time.Duration(b.Requests))
}

func (b Budget) burst() int {
	if b.Burst <= 0 {
		return 1
	}
	return b.Burst
}

func (b Budget) String() string {
	return fmt.Sprintf("%d/%s", b.Requests, b.Interval)
}
