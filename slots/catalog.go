// Package slots builds the catalog of values observed for each slot of a labeled corpus, and
// handles delexicalised placeholder tokens ("_<slot>_").
//
// Example:
//
//	b := slots.NewBuilder()
//	for ii, rec := range train {
//		if err := b.Add(rec.Utterance, rec.Labels); err != nil {
//			return errors.WithMessagef(err, "record #%d", ii)
//		}
//	}
//	catalog := b.Catalog()
//	fmt.Println(catalog.Values("city"))
package slots

import (
	"slices"
	"sort"

	"github.com/gomlx/go-slotembed/spans"
	"github.com/pkg/errors"
)

// PlaceholderDelimiter wraps slot names in delexicalised texts.
const PlaceholderDelimiter = "_"

// Catalog maps each slot name to the distinct values observed for it, in first-seen order.
//
// It also keeps every occurrence (with duplicates), which is exposed read-only through
// Occurrences and Count.
type Catalog struct {
	values      map[string][]string
	seen        map[string]map[string]struct{}
	occurrences map[string][]string
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		values:      make(map[string][]string),
		seen:        make(map[string]map[string]struct{}),
		occurrences: make(map[string][]string),
	}
}

// Observe records one occurrence of value for slot.
func (c *Catalog) Observe(slot, value string) {
	seen, found := c.seen[slot]
	if !found {
		seen = make(map[string]struct{})
		c.seen[slot] = seen
		c.values[slot] = nil
	}
	if _, dup := seen[value]; !dup {
		seen[value] = struct{}{}
		c.values[slot] = append(c.values[slot], value)
	}
	c.occurrences[slot] = append(c.occurrences[slot], value)
}

// Has returns whether slot was observed.
func (c *Catalog) Has(slot string) bool {
	_, found := c.values[slot]
	return found
}

// Values returns the distinct values of slot in first-seen order, or nil if slot is unknown.
// The returned slice must not be modified.
func (c *Catalog) Values(slot string) []string {
	return c.values[slot]
}

// Occurrences returns a copy of all observed values of slot, duplicates included, in corpus order.
func (c *Catalog) Occurrences(slot string) []string {
	return slices.Clone(c.occurrences[slot])
}

// Count returns how many times value was observed for slot.
func (c *Catalog) Count(slot, value string) int {
	count := 0
	for _, v := range c.occurrences[slot] {
		if v == value {
			count++
		}
	}
	return count
}

// Slots returns the sorted slot names.
func (c *Catalog) Slots() []string {
	names := make([]string, 0, len(c.values))
	for name := range c.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of slots.
func (c *Catalog) Len() int {
	return len(c.values)
}

// Builder builds a Catalog from (utterance, labels) pairs in one linear pass.
type Builder struct {
	catalog *Catalog
	records int
}

// NewBuilder returns a Builder with an empty catalog.
func NewBuilder() *Builder {
	return &Builder{catalog: NewCatalog()}
}

// Add extracts the slot spans of one record and records their texts.
// It returns an error wrapping spans.ErrShapeMismatch if utterance and labels lengths differ.
func (b *Builder) Add(utterance, labels []string) error {
	groups, err := spans.Extract(utterance, labels)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if g.IsSlot {
			b.catalog.Observe(g.SlotName, g.Text)
		}
	}
	b.records++
	return nil
}

// Records returns the number of records added so far.
func (b *Builder) Records() int {
	return b.records
}

// Catalog returns the catalog built so far.
func (b *Builder) Catalog() *Catalog {
	return b.catalog
}

// Record is an (utterance, labels) pair.
type Record struct {
	Utterance []string
	Labels    []string
}

// Build creates the catalog of the given records. Errors are annotated with the offending record
// index and abort the build.
func Build(records []Record) (*Catalog, error) {
	b := NewBuilder()
	for ii, rec := range records {
		if err := b.Add(rec.Utterance, rec.Labels); err != nil {
			return nil, errors.WithMessagef(err, "record #%d (%q)", ii, rec.Utterance)
		}
	}
	return b.Catalog(), nil
}

// Placeholder returns the delexicalised token for slot, e.g. "_city_".
func Placeholder(slot string) string {
	return PlaceholderDelimiter + slot + PlaceholderDelimiter
}

// ParsePlaceholder returns the slot name of a delexicalised token "_<slot>_".
// The slot name must be non-empty.
//
// Only one delimiter is stripped from each side, so "__x__" is slot "_x_", not "x". This keeps
// Placeholder and ParsePlaceholder inverse of each other for slot names with underscores.
func ParsePlaceholder(token string) (slot string, ok bool) {
	d := len(PlaceholderDelimiter)
	if len(token) <= 2*d || token[:d] != PlaceholderDelimiter || token[len(token)-d:] != PlaceholderDelimiter {
		return "", false
	}
	return token[d : len(token)-d], true
}
