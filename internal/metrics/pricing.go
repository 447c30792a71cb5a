package metrics

import "github.com/ShayCichocki/nova/pkg/models"

// Pricing contains USD prices per 1M tokens for each token category.
type Pricing struct {
	InputPerMillion         float64 `mapstructure:"input_per_million" json:"input_per_million"`
	OutputPerMillion        float64 `mapstructure:"output_per_million" json:"output_per_million"`
	CacheReadPerMillion     float64 `mapstructure:"cache_read_per_million" json:"cache_read_per_million"`
	CacheCreationPerMillion float64 `mapstructure:"cache_creation_per_million" json:"cache_creation_per_million"`
}

// DefaultPricing returns Claude Sonnet list prices.
func DefaultPricing() Pricing {
	return Pricing{
		InputPerMillion:         3.00,
		OutputPerMillion:        15.00,
		CacheReadPerMillion:     0.30,
		CacheCreationPerMillion: 3.75,
	}
}

// Cost returns the USD cost of usage. It is pure and never rounds; callers
// aggregating many tasks must price the summed usage, not sum the prices.
func (p Pricing) Cost(usage models.TokenUsage) float64 {
	return (float64(usage.Input)*p.InputPerMillion +
		float64(usage.Output)*p.OutputPerMillion +
		float64(usage.CacheRead)*p.CacheReadPerMillion +
		float64(usage.CacheCreation)*p.CacheCreationPerMillion) / 1_000_000
}

// Metrics builds the metrics record for one attempt.
func (p Pricing) Metrics(usage models.TokenUsage, durationSeconds float64) *models.Metrics {
	return &models.Metrics{
		TokenUsage:      usage,
		DurationSeconds: durationSeconds,
		CostUSD:         p.Cost(usage),
	}
}
