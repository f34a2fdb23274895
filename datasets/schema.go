// Package datasets reads the train and validation corpora of the supported datasets into
// tokenized records.
//
// Each dataset has a fixed column Layout: which column holds the utterance, the slot labels,
// the delexicalized utterance and the intent. Datasets form a closed set, see Schema.
package datasets

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownDataset is returned by ParseSchema for unsupported dataset names.
var ErrUnknownDataset = errors.New("unknown dataset")

// Field of a Record held by a column.
type Field int

const (
	// FieldIgnore marks a column that is not read.
	FieldIgnore Field = iota
	FieldUtterance
	FieldLabels
	FieldDelex
	FieldIntent
	numFields
)

var fieldNames = []string{"", "utterance", "labels", "delexicalised", "intent"}

// String implements fmt.Stringer. It returns the column name used in Parquet files.
func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// Layout describes the columns of a CSV corpus.
type Layout struct {
	// SkipHeader is set if the first row holds column names.
	SkipHeader bool

	// Columns lists the field of each column, by position.
	Columns []Field
}

// Column returns the position of field, or -1 if the layout doesn't have it.
func (l Layout) Column(field Field) int {
	for ii, f := range l.Columns {
		if f == field {
			return ii
		}
	}
	return -1
}

// Has returns whether the layout has the field.
func (l Layout) Has(field Field) bool {
	return l.Column(field) >= 0
}

// Schema enumerates the supported datasets.
type Schema int

const (
	SchemaSnips Schema = iota
	SchemaATIS
	SchemaSentiment
	SchemaYelp
	SchemaSpam
	SchemaBank
	SchemaCount
)

var schemaNames = []string{"snips", "atis", "sentiment", "yelp", "spam", "bank"}

// String implements fmt.Stringer.
func (s Schema) String() string {
	if s < 0 || s >= SchemaCount {
		return fmt.Sprintf("Schema(%d)", int(s))
	}
	return schemaNames[s]
}

// ParseSchema returns the Schema with the given name (case-insensitive).
func ParseSchema(name string) (Schema, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for ii, schemaName := range schemaNames {
		if name == schemaName {
			return Schema(ii), nil
		}
	}
	return SchemaCount, errors.Wrapf(ErrUnknownDataset, "%q (valid values: %q)", name, schemaNames)
}

// Layout returns the column layout of the dataset.
func (s Schema) Layout() Layout {
	const (
		u = FieldUtterance
		l = FieldLabels
		d = FieldDelex
		i = FieldIntent
		x = FieldIgnore
	)
	switch s {
	case SchemaSnips:
		return Layout{SkipHeader: true, Columns: []Field{u, l, d, i}}
	case SchemaATIS:
		return Layout{SkipHeader: true, Columns: []Field{x, u, x, i}}
	case SchemaSentiment:
		return Layout{SkipHeader: true, Columns: []Field{i, x, x, x, x, u}}
	case SchemaYelp:
		return Layout{SkipHeader: true, Columns: []Field{x, x, x, i, x, u, x, x, x}}
	case SchemaSpam:
		return Layout{SkipHeader: true, Columns: []Field{u, i}}
	case SchemaBank:
		return Layout{Columns: []Field{u}}
	}
	return Layout{}
}

// HasSlots returns whether the dataset is annotated with slot labels and delexicalized utterances.
func (s Schema) HasSlots() bool {
	layout := s.Layout()
	return layout.Has(FieldLabels) && layout.Has(FieldDelex)
}
