// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Mnemo Contributors

package llm

import (
	"context"

	"github.com/mnemo-dev/mnemo/internal/store"
)

// LedgerNamespace is the reserved document namespace for per-call usage
// records.
const LedgerNamespace = "llm_calls"

// pricing is USD per one million tokens, input and output.
type pricing struct {
	input  float64
	output float64
}

var modelPricing = map[string]pricing{
	"gpt-4o-mini":  {input: 0.15, output: 0.60},
	"gpt-4o":       {input: 2.50, output: 10.00},
	"gpt-4.1":      {input: 2.00, output: 8.00},
	"gpt-4.1-mini": {input: 0.40, output: 1.60},
	"o4-mini":      {input: 1.10, output: 4.40},
}

// Cost returns the USD cost of a call, and whether the model's pricing is
// known. Unknown models cost zero.
func Cost(model string, inputTokens, outputTokens int64) (float64, bool) {
	p, ok := modelPricing[model]
	if !ok {
		return 0, false
	}
	return float64(inputTokens)/1e6*p.input + float64(outputTokens)/1e6*p.output, true
}

// Ledger records LLM usage in the document store, one document per call.
// Records are grouped by an opaque caller-supplied key (a conversation id,
// typically) so spend can be summed per group.
type Ledger struct {
	docs store.DocumentStore
}

func NewLedger(docs store.DocumentStore) *Ledger {
	return &Ledger{docs: docs}
}

// Record writes one usage entry and returns its cost.
func (l *Ledger) Record(ctx context.Context, model, group string, inputTokens, outputTokens int64) (float64, error) {
	cost, _ := Cost(model, inputTokens, outputTokens)
	_, err := l.docs.InsertOne(ctx, LedgerNamespace, map[string]any{
		"model":  model,
		"group":  group,
		"input":  inputTokens,
		"output": outputTokens,
		"cost":   cost,
	})
	return cost, err
}

// TotalCost sums the cost of every recorded call in a group.
func (l *Ledger) TotalCost(ctx context.Context, group string) (float64, error) {
	docs, err := l.docs.Find(ctx, LedgerNamespace, map[string]any{"group": group})
	if err != nil {
		return 0, err
	}

	var total float64
	for _, doc := range docs {
		if cost, ok := asFloat(doc.Fields["cost"]); ok {
			total += cost
		}
	}
	return total, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}
