package model

import "time"

// AnswerValue is the tagged union written for one question.
// Kind decides which of the pointers is legal; the others stay nil.
type AnswerValue struct {
	Kind     AnswerKind `json:"kind"`
	Text     *string    `json:"text,omitempty"`
	Number   *float64   `json:"number,omitempty"`
	Bool     *bool      `json:"bool,omitempty"`
	OptionID *string    `json:"option_id,omitempty"`
}

// BoolValue builds a boolean answer
func BoolValue(b bool) AnswerValue {
	return AnswerValue{Kind: AnswerKindBoolean, Bool: &b}
}

// NumberValue builds a number answer
func NumberValue(n float64) AnswerValue {
	return AnswerValue{Kind: AnswerKindNumber, Number: &n}
}

// TextValue builds a free text answer of the given kind
func TextValue(kind AnswerKind, s string) AnswerValue {
	return AnswerValue{Kind: kind, Text: &s}
}

// OptionValue builds an enum_single answer. The option token is kept as text
// so the stored row canonicalizes to the token visibility rules compare against.
func OptionValue(optionID, token string) AnswerValue {
	return AnswerValue{Kind: AnswerKindEnumSingle, OptionID: &optionID, Text: &token}
}

// Answer is the stored row for (response set, question)
type Answer struct {
	ResponseSetID string    `json:"response_set_id" bson:"response_set_id"`
	QuestionID    string    `json:"question_id" bson:"question_id"`
	OptionID      *string   `json:"option_id,omitempty" bson:"option_id,omitempty"`
	Text          *string   `json:"text,omitempty" bson:"text,omitempty"`
	Number        *float64  `json:"number,omitempty" bson:"number,omitempty"`
	Bool          *bool     `json:"bool,omitempty" bson:"bool,omitempty"`
	Version       int64     `json:"version" bson:"version"`
	UpdatedAt     time.Time `json:"updated_at" bson:"updated_at"`
}

// HasValue reports whether any variant is populated
func (a *Answer) HasValue() bool {
	return a != nil && (a.OptionID != nil || a.Text != nil || a.Number != nil || a.Bool != nil)
}

// AnswerView is the hydrated answer attached to a screen question
type AnswerView struct {
	Value    interface{} `json:"value,omitempty"`
	OptionID string      `json:"option_id,omitempty"`
}

// View picks the structural variant in boolean, number, option, text order
func (a *Answer) View() *AnswerView {
	if !a.HasValue() {
		return nil
	}
	switch {
	case a.Bool != nil:
		return &AnswerView{Value: *a.Bool}
	case a.Number != nil:
		return &AnswerView{Value: *a.Number}
	case a.OptionID != nil:
		v := &AnswerView{OptionID: *a.OptionID}
		if a.Text != nil {
			v.Value = *a.Text
		}
		return v
	default:
		return &AnswerView{Value: *a.Text}
	}
}
