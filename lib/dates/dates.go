package dates

import (
	"slices"
	"strings"

	"github.com/artie-labs/tenantsync/lib/batch"
)

// DefaultSynonyms are words that, when they appear as a part of a column name, mark the column as a date.
var DefaultSynonyms = []string{"embauche", "sortie", "debut", "fin", "hire", "exit", "start", "end"}

type ColumnResult struct {
	Column    string
	Class     Class
	Sample    any
	Converted int
	// Total is the number of non-nil values before conversion.
	Total int
}

// Failed returns how many non-nil values were discarded because they could not be converted.
func (c ColumnResult) Failed() int {
	return c.Total - c.Converted
}

type Normalizer struct {
	synonyms []string
}

func NewNormalizer(synonyms ...string) Normalizer {
	if len(synonyms) == 0 {
		synonyms = DefaultSynonyms
	}

	lowered := make([]string, len(synonyms))
	for i, synonym := range synonyms {
		lowered[i] = strings.ToLower(synonym)
	}

	return Normalizer{synonyms: lowered}
}

// Normalize uses the default synonyms, see [Normalizer.Normalize].
func Normalize(b *batch.Batch, declared []string) (*batch.Batch, []ColumnResult) {
	return NewNormalizer().Normalize(b, declared)
}

// IsCandidate returns whether [column] looks like a date column by name alone.
func (n Normalizer) IsCandidate(column string) bool {
	lowered := strings.ToLower(column)
	if strings.Contains(lowered, "date") {
		return true
	}

	for _, part := range strings.Split(lowered, "_") {
		if slices.Contains(n.synonyms, part) {
			return true
		}
	}

	return false
}

// Candidates returns the indices of the columns to normalize: the declared date columns that are present in [b]
// plus every column that [IsCandidate] matches.
func (n Normalizer) Candidates(b *batch.Batch, declared []string) []int {
	var indices []int
	for idx, col := range b.Columns() {
		isDeclared := slices.ContainsFunc(declared, func(name string) bool { return strings.EqualFold(name, col) })
		if isDeclared || n.IsCandidate(col) {
			indices = append(indices, idx)
		}
	}
	return indices
}

// Normalize returns a copy of [b] where every candidate column holds YYYY-MM-DD strings or nil.
// The encoding of each column is decided from its first non-nil value and applied to every value in the column.
func (n Normalizer) Normalize(b *batch.Batch, declared []string) (*batch.Batch, []ColumnResult) {
	out := b.Clone()
	columns := out.Columns()

	var results []ColumnResult
	for _, idx := range n.Candidates(out, declared) {
		values := out.Column(idx)
		result := ColumnResult{Column: columns[idx]}
		for _, value := range values {
			if value == nil {
				continue
			}

			if result.Total == 0 {
				result.Sample = value
			}
			result.Total++
		}

		result.Class = Classify(result.Sample)
		converted := make([]any, len(values))
		for i, value := range values {
			if formatted, ok := Convert(value, result.Class); ok {
				converted[i] = formatted
				result.Converted++
			}
		}

		// Lengths always match since [converted] is derived from the same column.
		_ = out.SetColumn(idx, converted)
		results = append(results, result)
	}

	return out, results
}
