package service

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"screenflow/internal/apierr"
	"screenflow/internal/model"
)

var validate = validator.New()

// nonFiniteTokens are string spellings a client might use for NaN or infinity
var nonFiniteTokens = map[string]bool{
	"nan":       true,
	"inf":       true,
	"+inf":      true,
	"-inf":      true,
	"infinity":  true,
	"+infinity": true,
	"-infinity": true,
}

// validateEnvelope checks struct tags on request envelopes
func validateEnvelope(v interface{}) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return apierr.Validation(apierr.CodePayloadShape, "field %s failed %s", f.Namespace(), f.Tag())
		}
		return apierr.Validation(apierr.CodePayloadShape, "%v", err)
	}
	return nil
}

// resolveValue validates a patch against the question's answer kind.
// A nil value with a nil error means the patch clears the answer.
func resolveValue(q *model.Question, p *model.AnswerPatch) (*model.AnswerValue, error) {
	if p.Clear {
		return nil, nil
	}
	hasValue, hasOption := p.HasValue(), p.OptionID != nil
	if hasValue == hasOption {
		return nil, apierr.Validation(apierr.CodePayloadShape, "exactly one of value or option_id is required")
	}

	if hasOption {
		if q.Kind != model.AnswerKindEnumSingle {
			return nil, apierr.Validation(apierr.CodePayloadShape, "option_id only applies to enum_single questions")
		}
		return resolveOptionID(q, *p.OptionID)
	}

	var raw interface{}
	dec := json.NewDecoder(bytes.NewReader(p.Value))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, apierr.Validation(apierr.CodePayloadShape, "value is not valid JSON")
	}

	switch q.Kind {
	case model.AnswerKindBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, typeMismatch(q, raw)
		}
		v := model.BoolValue(b)
		return &v, nil

	case model.AnswerKindNumber:
		return resolveNumber(q, raw)

	case model.AnswerKindShortString, model.AnswerKindLongText:
		s, ok := raw.(string)
		if !ok {
			return nil, typeMismatch(q, raw)
		}
		v := model.TextValue(q.Kind, s)
		return &v, nil

	case model.AnswerKindEnumSingle:
		token, ok := raw.(string)
		if !ok {
			return nil, typeMismatch(q, raw)
		}
		opt, ok := q.FindOption(token)
		if !ok {
			return nil, apierr.Validation(apierr.CodeTokenUnknown, "%q is not an option of question %s", token, q.ID)
		}
		v := model.OptionValue(opt.ID, opt.Value)
		return &v, nil
	}
	return nil, apierr.Validation(apierr.CodeTypeMismatch, "question %s has unsupported kind %q", q.ID, q.Kind)
}

func resolveOptionID(q *model.Question, optionID string) (*model.AnswerValue, error) {
	if _, err := uuid.Parse(optionID); err != nil {
		return nil, apierr.Validation(apierr.CodeOptionMalformed, "option_id %q is not a UUID", optionID)
	}
	for _, o := range q.Options {
		if strings.EqualFold(o.ID, optionID) {
			v := model.OptionValue(o.ID, o.Value)
			return &v, nil
		}
	}
	return nil, apierr.Validation(apierr.CodeTokenUnknown, "option %s does not belong to question %s", optionID, q.ID)
}

func resolveNumber(q *model.Question, raw interface{}) (*model.AnswerValue, error) {
	switch n := raw.(type) {
	case json.Number:
		f, err := strconv.ParseFloat(n.String(), 64)
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, apierr.Validation(apierr.CodeNotFinite, "value %s is not a finite number", n.String())
		}
		v := model.NumberValue(f)
		return &v, nil
	case string:
		if nonFiniteTokens[strings.ToLower(strings.TrimSpace(n))] {
			return nil, apierr.Validation(apierr.CodeNotFinite, "value %q is not a finite number", n)
		}
	}
	return nil, typeMismatch(q, raw)
}

func typeMismatch(q *model.Question, raw interface{}) error {
	return apierr.Validation(apierr.CodeTypeMismatch, "question %s expects %s, got %s", q.ID, q.Kind, jsonType(raw))
}

func jsonType(raw interface{}) string {
	switch raw.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []interface{}:
		return "array"
	case map[string]interface{}:
		return "object"
	}
	return fmt.Sprintf("%T", raw)
}
