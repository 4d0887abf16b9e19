package feed

import (
	"sync"
	"time"
)

// PriceBook holds the latest tick per code. It sits between the stream
// and the intraday exit monitor: the stream writes, the monitor reads a
// snapshot at its own pace.
type PriceBook struct {
	mu     sync.RWMutex
	prices map[string]float64
	asOf   time.Time
}

// NewPriceBook creates an empty book.
func NewPriceBook() *PriceBook {
	return &PriceBook{prices: make(map[string]float64)}
}

// Update records a tick. Zero or negative prices are ignored.
func (b *PriceBook) Update(q Quote) {
	if q.Price <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.prices[q.Code] = q.Price
	if q.Time.After(b.asOf) {
		b.asOf = q.Time
	}
}

// Consume drains the quote channel into the book until it closes.
func (b *PriceBook) Consume(quotes <-chan Quote) {
	for q := range quotes {
		b.Update(q)
	}
}

// Snapshot copies the current prices.
func (b *PriceBook) Snapshot() map[string]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]float64, len(b.prices))
	for code, price := range b.prices {
		out[code] = price
	}
	return out
}

// AsOf returns the time of the newest tick seen.
func (b *PriceBook) AsOf() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.asOf
}

// Len returns the number of codes with a live price.
func (b *PriceBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.prices)
}
