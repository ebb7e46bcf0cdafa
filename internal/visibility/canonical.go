// Package visibility evaluates parent -> child visibility rules over
// canonicalized answers and diffs visible sets across a write.
package visibility

import (
	"math"
	"strconv"

	"screenflow/internal/model"
)

// Canonicalize returns the single string form used for equality comparisons.
// Priority is boolean, then text, then number. ok is false when nothing is set.
func Canonicalize(text *string, number *float64, boolean *bool) (string, bool) {
	switch {
	case boolean != nil:
		return strconv.FormatBool(*boolean), true
	case text != nil:
		return *text, true
	case number != nil:
		return FormatNumber(*number), true
	}
	return "", false
}

// CanonicalizeAnswer canonicalizes a stored row; nil rows have no value
func CanonicalizeAnswer(a *model.Answer) (string, bool) {
	if a == nil {
		return "", false
	}
	return Canonicalize(a.Text, a.Number, a.Bool)
}

// CanonicalizeValue canonicalizes a value about to be written
func CanonicalizeValue(v model.AnswerValue) (string, bool) {
	return Canonicalize(v.Text, v.Number, v.Bool)
}

// FormatNumber renders integral values without a fractional part
func FormatNumber(n float64) string {
	if !math.IsInf(n, 0) && !math.IsNaN(n) && n == math.Trunc(n) && math.Abs(n) < 1e15 {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// CanonicalizeNumberToken canonicalizes a number carried as a raw string.
// Unparseable input is returned unchanged.
func CanonicalizeNumberToken(raw string) string {
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw
	}
	return FormatNumber(n)
}
