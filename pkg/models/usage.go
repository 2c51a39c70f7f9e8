package models

// Usage counts tokens for a single step. Cache creation and cache read
// tokens are a subset of input tokens by provider contract.
type Usage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_tokens,omitempty"`
	CacheReadTokens     int64 `json:"cache_read_tokens,omitempty"`
}

// Add accumulates another usage record into this one.
func (u *Usage) Add(other Usage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationTokens += other.CacheCreationTokens
	u.CacheReadTokens += other.CacheReadTokens
}

// CostBreakdown is a per-run dollar cost derived from per-step usage and
// a pricing table. Base input excludes cache tokens so nothing is counted
// twice.
type CostBreakdown struct {
	BaseInputUSD  float64 `json:"base_input_usd"`
	CacheWriteUSD float64 `json:"cache_write_usd"`
	CacheReadUSD  float64 `json:"cache_read_usd"`
	OutputUSD     float64 `json:"output_usd"`
	TotalUSD      float64 `json:"total_usd"`
}
