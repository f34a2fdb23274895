// Package spans groups the tokens of a labeled utterance into contiguous spans: plain text spans
// (label "O") and named-slot spans (labels "B-<slot>" / "I-<slot>").
package spans

import (
	"strings"

	"github.com/pkg/errors"
)

// Outside is the label of tokens that don't belong to any slot.
const Outside = "O"

// Prefixes of the BIO labeling scheme.
const (
	BeginPrefix  = "B-"
	InsidePrefix = "I-"
)

// ErrShapeMismatch is returned when an utterance and its labels have different lengths.
var ErrShapeMismatch = errors.New("utterance and labels have different lengths")

// Group is a maximal contiguous run of tokens sharing label behavior.
type Group struct {
	// IsSlot is true for slot spans.
	IsSlot bool

	// SlotName is the slot of the span, empty if IsSlot is false.
	SlotName string

	// Text is the span's tokens joined by a single space.
	Text string
}

// Extract groups utterance tokens according to their labels. utterance and labels must have the
// same length, otherwise it returns an error wrapping ErrShapeMismatch.
//
// Consecutive "O" tokens form one plain group. A slot group starts at a "B-x" label, or at an
// "I-x" (or bare "x") label following a token that isn't part of slot x, and continues over
// the following "I-x" labels. Groups of different slots are never merged.
func Extract(utterance, labels []string) ([]Group, error) {
	if len(utterance) != len(labels) {
		return nil, errors.Wrapf(ErrShapeMismatch, "%d tokens but %d labels", len(utterance), len(labels))
	}
	var groups []Group
	var words []string
	current := Group{}
	flush := func() {
		if len(words) == 0 {
			return
		}
		current.Text = strings.Join(words, " ")
		groups = append(groups, current)
		words = words[:0]
	}

	for ii, token := range utterance {
		slot, begin := parseLabel(labels[ii])
		isSlot := slot != ""
		switch {
		case len(words) == 0:
			// First token.
		case !isSlot && !current.IsSlot:
			// Continue plain span.
		case isSlot && current.IsSlot && !begin && slot == current.SlotName:
			// Continue slot span.
		default:
			flush()
		}
		if len(words) == 0 {
			current = Group{IsSlot: isSlot, SlotName: slot}
		}
		words = append(words, token)
	}
	flush()
	return groups, nil
}

// parseLabel returns the slot name of label (empty for Outside) and whether it begins a span.
func parseLabel(label string) (slot string, begin bool) {
	switch {
	case label == Outside || label == "":
		return "", false
	case strings.HasPrefix(label, BeginPrefix):
		return label[len(BeginPrefix):], true
	case strings.HasPrefix(label, InsidePrefix):
		return label[len(InsidePrefix):], false
	}
	return label, false
}

// Join reconstructs the text of a list of groups, with the same joining rule used by Extract.
func Join(groups []Group) string {
	texts := make([]string, len(groups))
	for ii, g := range groups {
		texts[ii] = g.Text
	}
	return strings.Join(texts, " ")
}
