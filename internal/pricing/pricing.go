// Package pricing computes request costs from vendor-reported token usage.
package pricing

import (
	_ "embed"
	"encoding/json"
	"strings"
	"sync"

	"github.com/praxisllmlab/piliangLLM/internal/model"
)

//go:embed model_prices.json
var modelPricesJSON []byte

// ModelInfo holds per-token pricing data for a model.
type ModelInfo struct {
	InputCostPerToken  float64 `json:"input_cost_per_token"`
	OutputCostPerToken float64 `json:"output_cost_per_token"`
	MaxTokens          int     `json:"max_tokens,omitempty"`
	Mode               string  `json:"mode,omitempty"`
	Provider           string  `json:"provider,omitempty"`
}

// Calculator computes costs from token counts. Pure function of
// (usage, pricing table, discount policy); no I/O after construction.
type Calculator struct {
	mu        sync.RWMutex
	models    map[string]ModelInfo
	overrides map[string]ModelInfo
}

var defaultCalculator *Calculator
var once sync.Once

// Default returns the singleton calculator loaded from embedded data.
func Default() *Calculator {
	once.Do(func() {
		defaultCalculator = &Calculator{
			models:    make(map[string]ModelInfo),
			overrides: make(map[string]ModelInfo),
		}
		var raw map[string]json.RawMessage
		_ = json.Unmarshal(modelPricesJSON, &raw)

		for name, data := range raw {
			var info ModelInfo
			if err := json.Unmarshal(data, &info); err == nil {
				defaultCalculator.models[name] = info
			}
		}
	})
	return defaultCalculator
}

// Cost returns (promptCost, completionCost) in USD at synchronous rates,
// and whether pricing data was found for the model.
func (c *Calculator) Cost(modelName string, promptTokens, completionTokens int) (float64, float64, bool) {
	info := c.lookup(modelName)
	if info == nil {
		return 0, 0, false
	}
	return float64(promptTokens) * info.InputCostPerToken,
		float64(completionTokens) * info.OutputCostPerToken,
		true
}

// BatchCost returns the total cost of a batch-processed response after
// applying the backend's documented discount (e.g. 0.5 for a 50% batch
// discount). Returns nil when the model has no pricing data: cost unknown
// must never be reported as zero spend.
func (c *Calculator) BatchCost(modelName string, usage model.TokenUsage, discount float64) *float64 {
	prompt, completion, ok := c.Cost(modelName, usage.PromptTokens, usage.CompletionTokens)
	if !ok {
		return nil
	}
	cost := (prompt + completion) * (1 - discount)
	return &cost
}

// SetCustomPricing registers a pricing override for a model.
func (c *Calculator) SetCustomPricing(modelName string, info ModelInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.overrides[modelName] = info
}

// GetModelInfo returns pricing data for the given model, or nil.
func (c *Calculator) GetModelInfo(modelName string) *ModelInfo {
	return c.lookup(modelName)
}

// lookup finds model info, checking overrides first, then embedded data.
// Tries exact match, then with the provider prefix stripped.
func (c *Calculator) lookup(modelName string) *ModelInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if info, ok := c.overrides[modelName]; ok {
		return &info
	}
	if info, ok := c.models[modelName]; ok {
		return &info
	}

	// "mistral/mistral-large-latest" → "mistral-large-latest"
	if idx := strings.Index(modelName, "/"); idx >= 0 {
		bare := modelName[idx+1:]
		if info, ok := c.overrides[bare]; ok {
			return &info
		}
		if info, ok := c.models[bare]; ok {
			return &info
		}
	}

	return nil
}
