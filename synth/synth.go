// Package synth synthesizes the embedding vectors of delexicalized placeholder tokens (like
// "_city_") from the vectors of the words observed as values of their slot.
//
// Example:
//
//	result, err := synth.Synthesize(synth.Inputs{
//		Delex:     delexVocab,
//		Text:      textVocab,
//		Catalog:   catalog,
//		Tokenizer: tokenizer,
//	}, synth.PolicyMacro)
package synth

import (
	"fmt"
	"strings"

	"github.com/gomlx/go-slotembed/slots"
	"github.com/gomlx/go-slotembed/tokenizers"
	"github.com/gomlx/go-slotembed/tokenizers/api"
	"github.com/gomlx/go-slotembed/vocab"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	// ErrUnknownAggregationPolicy is returned by ParsePolicy for unknown names.
	ErrUnknownAggregationPolicy = errors.New("unknown aggregation policy")

	// ErrUnknownSlot is returned when a placeholder's slot is not in the catalog, which means the
	// catalog and the vocabulary were built from different corpora.
	ErrUnknownSlot = errors.New("unknown slot")

	// ErrEmptySlotAggregate is returned when none of the words observed for a slot has a vector.
	ErrEmptySlotAggregate = errors.New("no word vectors to aggregate for slot")
)

// Policy selects how the word vectors of a slot's values are combined.
type Policy int

const (
	// PolicyNone leaves the placeholder vectors untouched.
	PolicyNone Policy = iota

	// PolicyMicro averages all word vectors of all values of the slot.
	PolicyMicro

	// PolicyMacro averages the per-value averages, so long values don't dominate short ones.
	PolicyMacro
)

var policyNames = []string{"none", "micro", "macro"}

// String implements fmt.Stringer.
func (p Policy) String() string {
	if p < 0 || int(p) >= len(policyNames) {
		return fmt.Sprintf("Policy(%d)", int(p))
	}
	return policyNames[p]
}

// ParsePolicy converts a policy name ("none", "micro" or "macro", case-insensitive) to a Policy.
// The empty string is PolicyNone.
func ParsePolicy(name string) (Policy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return PolicyNone, nil
	}
	for ii, policyName := range policyNames {
		if name == policyName {
			return Policy(ii), nil
		}
	}
	return PolicyNone, errors.Wrapf(ErrUnknownAggregationPolicy, "%q (valid values: %q)", name, policyNames)
}

// Inputs of Synthesize.
type Inputs struct {
	// Delex is the vocabulary of the delexicalized utterances. Its placeholder rows are overwritten.
	Delex *vocab.Vocabulary

	// Text is the vocabulary of the raw utterances, used to resolve the words of slot values.
	Text *vocab.Vocabulary

	// Catalog lists the observed values of each slot.
	Catalog *slots.Catalog

	// Tokenizer splits slot values into words, the same way the utterances were split.
	Tokenizer api.Tokenizer

	// Lowercase the words of slot values before resolving them.
	Lowercase bool
}

// SlotStats describes the synthesis of one placeholder.
type SlotStats struct {
	Slot        string
	Placeholder string

	// Index of the placeholder in the delexicalized vocabulary.
	Index int

	// Values is the number of observed values of the slot; EmptyValues of those had no resolved word.
	Values, EmptyValues int

	// Resolved and Skipped count the words of the values found, and not found, in the text vocabulary.
	Resolved, Skipped int
}

// Result of Synthesize.
type Result struct {
	Policy Policy

	// Slots lists the synthesized placeholders, in vocabulary order.
	Slots []SlotStats
}

// Synthesize overwrites the vector of every placeholder token of in.Delex with the aggregate,
// under policy, of the in.Text vectors of the words observed as values of its slot.
//
// Words unknown to in.Text are discarded. It fails with ErrUnknownSlot if a placeholder's slot
// is not in the catalog, and with ErrEmptySlotAggregate if no word of any value of the slot is known.
// With PolicyNone nothing is changed.
func Synthesize(in Inputs, policy Policy) (Result, error) {
	result := Result{Policy: policy}
	switch policy {
	case PolicyNone:
		return result, nil
	case PolicyMicro, PolicyMacro:
	default:
		return result, errors.Wrapf(ErrUnknownAggregationPolicy, "%s", policy)
	}
	if err := in.validate(); err != nil {
		return result, err
	}

	for idx, token := range in.Delex.Itos {
		slot, ok := slots.ParsePlaceholder(token)
		if !ok {
			continue
		}
		if !in.Catalog.Has(slot) {
			return result, errors.Wrapf(ErrUnknownSlot, "placeholder %q: slot %q is not in the catalog", token, slot)
		}
		stats := SlotStats{Slot: slot, Placeholder: token, Index: idx}
		perValue := in.resolveValues(slot, &stats)
		vector, err := aggregate(perValue, in.Text.Vectors.Dim, policy)
		if err != nil {
			return result, errors.WithMessagef(err, "placeholder %q (%d values, %d unknown words)",
				token, stats.Values, stats.Skipped)
		}
		if stats.EmptyValues > 0 {
			klog.Warningf("slot %q: %d of %d values have no known word", slot, stats.EmptyValues, stats.Values)
		}
		in.Delex.Vectors.SetRow(idx, vector)
		if in.Delex.Covered != nil {
			in.Delex.Covered[idx] = true
		}
		klog.V(1).Infof("synthesized %q from %d words (%d unknown) of %d values", token, stats.Resolved, stats.Skipped, stats.Values)
		result.Slots = append(result.Slots, stats)
	}
	klog.Infof("synthesized %d placeholder vectors with %s aggregation", len(result.Slots), policy)
	return result, nil
}

func (in Inputs) validate() error {
	switch {
	case in.Delex == nil || in.Text == nil:
		return errors.New("both the delexicalized and the text vocabularies are required")
	case in.Delex.Vectors == nil || in.Text.Vectors == nil:
		return errors.New("both vocabularies must have embedding vectors")
	case in.Delex.Vectors.Dim != in.Text.Vectors.Dim:
		return errors.Errorf("delexicalized vectors have dimension %d, text vectors %d",
			in.Delex.Vectors.Dim, in.Text.Vectors.Dim)
	case in.Catalog == nil:
		return errors.New("a slot catalog is required")
	case in.Tokenizer == nil:
		return errors.New("a tokenizer is required")
	}
	return nil
}

// resolveValues returns, for each value of slot, the text vectors of its known words.
func (in Inputs) resolveValues(slot string, stats *SlotStats) [][][]float32 {
	values := in.Catalog.Values(slot)
	stats.Values = len(values)
	perValue := make([][][]float32, 0, len(values))
	for _, value := range values {
		words := in.Tokenizer.Tokenize(value)
		if in.Lowercase {
			words = tokenizers.Lower(words)
		}
		var vectors [][]float32
		for _, word := range words {
			idx, found := in.Text.Lookup(word)
			if !found || (in.Text.HasSpecials() && idx == vocab.UnknownIndex) {
				stats.Skipped++
				continue
			}
			vectors = append(vectors, in.Text.Vectors.Row(idx))
			stats.Resolved++
		}
		if len(vectors) == 0 {
			stats.EmptyValues++
		}
		perValue = append(perValue, vectors)
	}
	return perValue
}

// aggregate combines the word vectors grouped per value. Values without vectors are ignored.
// Sums are accumulated in float64.
func aggregate(perValue [][][]float32, dim int, policy Policy) ([]float32, error) {
	sum := make([]float64, dim)
	count := 0
	for _, vectors := range perValue {
		if len(vectors) == 0 {
			continue
		}
		switch policy {
		case PolicyMicro:
			for _, v := range vectors {
				for ii, x := range v {
					sum[ii] += float64(x)
				}
				count++
			}
		case PolicyMacro:
			mean := make([]float64, dim)
			for _, v := range vectors {
				for ii, x := range v {
					mean[ii] += float64(x)
				}
			}
			for ii := range mean {
				sum[ii] += mean[ii] / float64(len(vectors))
			}
			count++
		default:
			return nil, errors.Wrapf(ErrUnknownAggregationPolicy, "%s", policy)
		}
	}
	if count == 0 {
		return nil, ErrEmptySlotAggregate
	}
	result := make([]float32, dim)
	for ii, s := range sum {
		result[ii] = float32(s / float64(count))
	}
	return result, nil
}
