package pricing

import (
	"math"
	"testing"

	"github.com/haasonsaas/praxis/pkg/models"
)

func approx(got, want float64) bool {
	return math.Abs(got-want) < 1e-9
}

func TestLookupPrefixMatch(t *testing.T) {
	if _, ok := Lookup("claude-sonnet-4-5-20250929"); !ok {
		t.Error("versioned model name did not match")
	}
	if _, ok := Lookup("unknown-model"); ok {
		t.Error("unknown model matched")
	}
	// gpt-4o-mini must not fall back to the gpt-4o rate.
	rate, ok := Lookup("gpt-4o-mini-2024-07-18")
	if !ok || !approx(rate.InputUSD, 0.15) {
		t.Errorf("mini rate = %+v", rate)
	}
}

func TestCostExcludesCacheFromBaseInput(t *testing.T) {
	usage := []models.Usage{{
		InputTokens:         1_000_000,
		CacheCreationTokens: 200_000,
		CacheReadTokens:     300_000,
		OutputTokens:        100_000,
	}}
	cost := Cost("claude-sonnet-4-5", usage)

	// 500k base input at $3/M, 200k cache write at $3.75/M,
	// 300k cache read at $0.30/M, 100k output at $15/M.
	if !approx(cost.BaseInputUSD, 1.5) {
		t.Errorf("base input = %v", cost.BaseInputUSD)
	}
	if !approx(cost.CacheWriteUSD, 0.75) {
		t.Errorf("cache write = %v", cost.CacheWriteUSD)
	}
	if !approx(cost.CacheReadUSD, 0.09) {
		t.Errorf("cache read = %v", cost.CacheReadUSD)
	}
	if !approx(cost.OutputUSD, 1.5) {
		t.Errorf("output = %v", cost.OutputUSD)
	}
	if !approx(cost.TotalUSD, 3.84) {
		t.Errorf("total = %v", cost.TotalUSD)
	}
}

func TestCostLongContextMultiplier(t *testing.T) {
	short := Cost("claude-sonnet-4-5", []models.Usage{{InputTokens: 100_000, OutputTokens: 1000}})
	long := Cost("claude-sonnet-4-5", []models.Usage{{InputTokens: 250_000, OutputTokens: 1000}})

	// 250k at the doubled rate: 250000/1e6 * 3 * 2 = 1.5.
	if !approx(long.BaseInputUSD, 1.5) {
		t.Errorf("long-context input = %v", long.BaseInputUSD)
	}
	if !approx(long.OutputUSD, short.OutputUSD*1.5) {
		t.Errorf("long-context output = %v, short = %v", long.OutputUSD, short.OutputUSD)
	}
}

func TestCostSumsSteps(t *testing.T) {
	one := models.Usage{InputTokens: 10_000, OutputTokens: 2_000}
	single := Cost("claude-sonnet-4-5", []models.Usage{one})
	double := Cost("claude-sonnet-4-5", []models.Usage{one, one})
	if !approx(double.TotalUSD, single.TotalUSD*2) {
		t.Errorf("two steps = %v, one step = %v", double.TotalUSD, single.TotalUSD)
	}
}

func TestCostUnknownModelIsZero(t *testing.T) {
	cost := Cost("mystery-9000", []models.Usage{{InputTokens: 1_000_000}})
	if cost.TotalUSD != 0 {
		t.Errorf("unknown model cost = %v", cost.TotalUSD)
	}
}

func TestCostNeverNegative(t *testing.T) {
	// Cache tokens reported larger than input must clamp, not go negative.
	cost := Cost("claude-sonnet-4-5", []models.Usage{{
		InputTokens:     1000,
		CacheReadTokens: 5000,
	}})
	if cost.BaseInputUSD < 0 || cost.TotalUSD < 0 {
		t.Errorf("negative cost: %+v", cost)
	}
}
