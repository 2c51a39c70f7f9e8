// Package pricing derives dollar costs from per-step token usage.
package pricing

import (
	"strings"

	"github.com/haasonsaas/praxis/pkg/models"
)

const tokensPerMillion = 1_000_000

// Rate holds per-million-token prices for one model family. Long-context
// multipliers apply per step when that step's input exceeds the
// threshold.
type Rate struct {
	InputUSD      float64
	CacheWriteUSD float64
	CacheReadUSD  float64
	OutputUSD     float64

	LongContextThreshold  int64
	LongContextInputMult  float64
	LongContextOutputMult float64
}

// rates maps model name prefixes to prices. Longest matching prefix
// wins, mirroring how providers version model names.
var rates = map[string]Rate{
	"claude-opus-4": {
		InputUSD:      15,
		CacheWriteUSD: 18.75,
		CacheReadUSD:  1.50,
		OutputUSD:     75,
	},
	"claude-sonnet-4": {
		InputUSD:              3,
		CacheWriteUSD:         3.75,
		CacheReadUSD:          0.30,
		OutputUSD:             15,
		LongContextThreshold:  200_000,
		LongContextInputMult:  2,
		LongContextOutputMult: 1.5,
	},
	"claude-haiku-4": {
		InputUSD:      1,
		CacheWriteUSD: 1.25,
		CacheReadUSD:  0.10,
		OutputUSD:     5,
	},
	"gpt-4o-mini": {
		InputUSD:     0.15,
		CacheReadUSD: 0.075,
		OutputUSD:    0.60,
	},
	"gpt-4o": {
		InputUSD:     2.50,
		CacheReadUSD: 1.25,
		OutputUSD:    10,
	},
}

// Lookup resolves the rate for a model by longest prefix match.
func Lookup(model string) (Rate, bool) {
	best := ""
	var rate Rate
	for prefix, r := range rates {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
			rate = r
		}
	}
	return rate, best != ""
}

// Cost sums per-step usage into a cost breakdown. Base input excludes
// cache tokens so nothing is counted twice; unknown models cost zero.
func Cost(model string, steps []models.Usage) models.CostBreakdown {
	rate, ok := Lookup(model)
	if !ok {
		return models.CostBreakdown{}
	}

	var out models.CostBreakdown
	for _, step := range steps {
		inputMult, outputMult := 1.0, 1.0
		if rate.LongContextThreshold > 0 && step.InputTokens > rate.LongContextThreshold {
			if rate.LongContextInputMult > 0 {
				inputMult = rate.LongContextInputMult
			}
			if rate.LongContextOutputMult > 0 {
				outputMult = rate.LongContextOutputMult
			}
		}

		base := step.InputTokens - step.CacheCreationTokens - step.CacheReadTokens
		if base < 0 {
			base = 0
		}
		out.BaseInputUSD += tokens(base) * rate.InputUSD * inputMult
		out.CacheWriteUSD += tokens(step.CacheCreationTokens) * rate.CacheWriteUSD * inputMult
		out.CacheReadUSD += tokens(step.CacheReadTokens) * rate.CacheReadUSD * inputMult
		out.OutputUSD += tokens(step.OutputTokens) * rate.OutputUSD * outputMult
	}
	out.TotalUSD = out.BaseInputUSD + out.CacheWriteUSD + out.CacheReadUSD + out.OutputUSD
	return out
}

func tokens(n int64) float64 {
	return float64(n) / tokensPerMillion
}
