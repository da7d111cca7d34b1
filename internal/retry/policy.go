// Package retry содержит повтор операций с экспоненциальной задержкой и джиттером.
package retry

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	// DefaultMaxDelay: верхняя граница задержки между попытками.
	DefaultMaxDelay = 30 * time.Second
	defaultJitterLo = 0.7
	defaultJitterHi = 1.3
)

// Policy задаёт число попыток и форму задержки.
// Задержка перед попыткой n+1: InitialDelay * 2^(n-1) * jitter, jitter ∈ [0.7, 1.3],
// не более MaxDelay.
type Policy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Rand возвращает число в [0, 1); nil означает math/rand/v2.
	Rand func() float64
}

// Backoff возвращает задержку после неудачной попытки attempt (нумерация с 1).
func (p Policy) Backoff(attempt int) time.Duration {
	if p.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}

	random := p.Rand
	if random == nil {
		random = rand.Float64
	}
	jitter := defaultJitterLo + random()*(defaultJitterHi-defaultJitterLo)

	delay := float64(p.InitialDelay) * math.Pow(2, float64(attempt-1)) * jitter
	if delay > float64(maxDelay) || math.IsInf(delay, 1) {
		return maxDelay
	}
	return time.Duration(math.Round(delay))
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
