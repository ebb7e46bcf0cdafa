package visibility

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"screenflow/internal/model"
)

// ErrIncompatible is returned when a rule's visible_if value cannot apply to its parent
var ErrIncompatible = errors.New("INCOMPATIBLE_WITH_PARENT_ANSWER_KIND")

func normalizeToken(s string) string {
	switch strings.ToLower(s) {
	case "true":
		return "true"
	case "false":
		return "false"
	}
	return s
}

// IsChildVisible reports whether a parent value satisfies visibleIf.
// Equality only: a nil parent or an empty list never matches.
func IsChildVisible(parent *string, visibleIf []string) bool {
	if parent == nil || len(visibleIf) == 0 {
		return false
	}
	want := normalizeToken(*parent)
	for _, v := range visibleIf {
		if normalizeToken(v) == want {
			return true
		}
	}
	return false
}

// ComputeVisibleSet returns the visible question ids. parents holds the
// canonical parent values; a missing key means the parent has no answer.
func ComputeVisibleSet(rules map[string]model.VisibilityRule, parents map[string]string) map[string]bool {
	visible := make(map[string]bool, len(rules))
	for id, rule := range rules {
		if rule.Unconditional() {
			visible[id] = true
			continue
		}
		var p *string
		if v, ok := parents[rule.ParentID]; ok {
			p = &v
		}
		if IsChildVisible(p, rule.VisibleIfValues) {
			visible[id] = true
		}
	}
	return visible
}

// ParentIDs returns the distinct parents referenced by rules, sorted
func ParentIDs(rules map[string]model.VisibilityRule) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rules {
		if r.Unconditional() || seen[r.ParentID] {
			continue
		}
		seen[r.ParentID] = true
		out = append(out, r.ParentID)
	}
	sort.Strings(out)
	return out
}

// ChildrenOf returns the ids whose rule names parentID, sorted
func ChildrenOf(rules map[string]model.VisibilityRule, parentID string) []string {
	var out []string
	for id, r := range rules {
		if r.ParentID == parentID {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// SortedIDs flattens a set
func SortedIDs(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ValidateCompatibility checks a visible_if value against the parent's kind.
// Only boolean parents may carry one, and only "true"/"false" tokens
// (scalar or list, bool or string) are accepted.
func ValidateCompatibility(parentKind model.AnswerKind, visibleIf interface{}) error {
	if visibleIf == nil {
		return nil
	}
	if parentKind != model.AnswerKindBoolean {
		return fmt.Errorf("%w: parent kind %q does not accept visible_if", ErrIncompatible, parentKind)
	}
	tokens, err := VisibleIfTokens(visibleIf)
	if err != nil {
		return err
	}
	for _, t := range tokens {
		if t != "true" && t != "false" {
			return fmt.Errorf("%w: %q is not a boolean token", ErrIncompatible, t)
		}
	}
	return nil
}

// VisibleIfTokens flattens a scalar or list visible_if value into normalized tokens
func VisibleIfTokens(visibleIf interface{}) ([]string, error) {
	switch v := visibleIf.(type) {
	case nil:
		return nil, nil
	case bool:
		return []string{fmt.Sprint(v)}, nil
	case string:
		return []string{normalizeToken(v)}, nil
	case []string:
		out := make([]string, 0, len(v))
		for _, s := range v {
			out = append(out, normalizeToken(s))
		}
		return out, nil
	case []bool:
		out := make([]string, 0, len(v))
		for _, b := range v {
			out = append(out, fmt.Sprint(b))
		}
		return out, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			switch t := item.(type) {
			case bool:
				out = append(out, fmt.Sprint(t))
			case string:
				out = append(out, normalizeToken(t))
			default:
				return nil, fmt.Errorf("%w: unsupported visible_if element %v", ErrIncompatible, item)
			}
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: unsupported visible_if value %v", ErrIncompatible, visibleIf)
}
