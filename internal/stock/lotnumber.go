package stock

import (
	"fmt"
	"time"
)

// LotNumberGenerator produces collision-free lot numbers during bulk ingestion.
// The number combines a base timestamp captured at construction, the global row
// index, the product ID and a per-product occurrence counter, so no two rows of
// one import ever collide even inside the same second.
//
// A generator is not safe for concurrent use; every import job must own a
// private instance.
type LotNumberGenerator struct {
	base    string
	perProd map[int64]int
	nowFunc func() time.Time
}

// NewLotNumberGenerator captures the base timestamp and starts a fresh epoch.
func NewLotNumberGenerator() *LotNumberGenerator {
	g := &LotNumberGenerator{nowFunc: time.Now, perProd: make(map[int64]int)}
	g.base = g.nowFunc().UTC().Format("20060102150405")
	return g
}

// Generate returns the lot number for one import row.
func (g *LotNumberGenerator) Generate(productID int64, globalIndex int) string {
	g.perProd[productID]++
	return fmt.Sprintf("LOT-%s-%06d-%d-%04d", g.base, globalIndex, productID, g.perProd[productID])
}

// Reset clears the per-product counters and recaptures the base timestamp,
// starting a new generation epoch.
func (g *LotNumberGenerator) Reset() {
	g.perProd = make(map[int64]int)
	g.base = g.nowFunc().UTC().Format("20060102150405")
}
