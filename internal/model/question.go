package model

// AnswerKind defines which answer variant a question accepts
type AnswerKind string

const (
	AnswerKindBoolean     AnswerKind = "boolean"
	AnswerKindNumber      AnswerKind = "number"
	AnswerKindShortString AnswerKind = "short_string"
	AnswerKindLongText    AnswerKind = "long_text"
	AnswerKindEnumSingle  AnswerKind = "enum_single"
)

// Valid reports whether k is one of the known answer kinds
func (k AnswerKind) Valid() bool {
	switch k {
	case AnswerKindBoolean, AnswerKindNumber, AnswerKindShortString, AnswerKindLongText, AnswerKindEnumSingle:
		return true
	}
	return false
}

// IsText reports whether the kind stores free text
func (k AnswerKind) IsText() bool {
	return k == AnswerKindShortString || k == AnswerKindLongText
}

// Option is one selectable choice of an enum_single question
type Option struct {
	ID    string `json:"id" bson:"id"`       // UUID-shaped option reference
	Value string `json:"value" bson:"value"` // canonical token used by visibility rules
	Label string `json:"label,omitempty" bson:"label,omitempty"`
}

// Question belongs to exactly one screen
type Question struct {
	ID        string     `json:"question_id" bson:"_id"`
	ScreenKey string     `json:"screen_key" bson:"screen_key"`
	Position  int        `json:"position" bson:"position"` // ordering within the screen
	Kind      AnswerKind `json:"answer_kind" bson:"answer_kind"`
	Prompt    string     `json:"prompt" bson:"prompt"`
	Mandatory bool       `json:"mandatory" bson:"mandatory"`

	// Conditional visibility. Empty ParentID means always visible.
	ParentID        string   `json:"parent_question_id,omitempty" bson:"parent_question_id,omitempty"`
	VisibleIfValues []string `json:"visible_if_values,omitempty" bson:"visible_if_values,omitempty"`

	Options []Option `json:"options,omitempty" bson:"options,omitempty"` // enum_single only
}

// Rule returns the visibility rule carried by the question
func (q *Question) Rule() VisibilityRule {
	return VisibilityRule{ParentID: q.ParentID, VisibleIfValues: q.VisibleIfValues}
}

// FindOption resolves an option by id or by its value/label token
func (q *Question) FindOption(idOrToken string) (*Option, bool) {
	for i := range q.Options {
		o := &q.Options[i]
		if o.ID == idOrToken || o.Value == idOrToken || (o.Label != "" && o.Label == idOrToken) {
			return o, true
		}
	}
	return nil, false
}

// VisibilityRule maps a child question to its parent and the parent values that show it
type VisibilityRule struct {
	ParentID        string   `json:"parent_question_id,omitempty"`
	VisibleIfValues []string `json:"visible_if_values,omitempty"`
}

// Unconditional reports whether the rule has no parent
func (r VisibilityRule) Unconditional() bool {
	return r.ParentID == ""
}
