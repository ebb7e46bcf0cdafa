package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"screenflow/internal/model"
	"screenflow/internal/visibility"
)

// Questionnaire is the authoring format for screens and their questions
type Questionnaire struct {
	Screens []ScreenDef `yaml:"screens" validate:"required,min=1,dive"`
}

// ScreenDef lists questions in display order
type ScreenDef struct {
	Key       string        `yaml:"key" validate:"required"`
	Questions []QuestionDef `yaml:"questions" validate:"required,min=1,dive"`
}

// QuestionDef is one authored question. VisibleIf may be a scalar or a list.
type QuestionDef struct {
	ID        string      `yaml:"id" validate:"required"`
	Kind      string      `yaml:"kind" validate:"required,oneof=boolean number short_string long_text enum_single"`
	Prompt    string      `yaml:"prompt"`
	Mandatory bool        `yaml:"mandatory"`
	Parent    string      `yaml:"parent"`
	VisibleIf interface{} `yaml:"visible_if"`
	Options   []OptionDef `yaml:"options" validate:"omitempty,dive"`
}

// OptionDef is one enum_single choice
type OptionDef struct {
	ID    string `yaml:"id" validate:"required,uuid"`
	Value string `yaml:"value" validate:"required"`
	Label string `yaml:"label"`
}

var questionnaireValidator = validator.New()

// LoadQuestionnaire reads and validates a questionnaire file
func LoadQuestionnaire(path string) (*Questionnaire, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read questionnaire: %w", err)
	}
	return ParseQuestionnaire(data)
}

// ParseQuestionnaire decodes YAML and checks ids, kinds and visibility rules
func ParseQuestionnaire(data []byte) (*Questionnaire, error) {
	var q Questionnaire
	if err := yaml.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("parse questionnaire: %w", err)
	}
	if err := questionnaireValidator.Struct(&q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("questionnaire field %s failed %s", verrs[0].Namespace(), verrs[0].Tag())
		}
		return nil, err
	}
	if err := q.check(); err != nil {
		return nil, err
	}
	return &q, nil
}

func (q *Questionnaire) check() error {
	type placed struct {
		screen string
		kind   model.AnswerKind
	}
	seenScreens := make(map[string]bool)
	byID := make(map[string]placed)
	for _, s := range q.Screens {
		if seenScreens[s.Key] {
			return fmt.Errorf("screen %q defined twice", s.Key)
		}
		seenScreens[s.Key] = true
		for _, def := range s.Questions {
			if _, dup := byID[def.ID]; dup {
				return fmt.Errorf("question %q defined twice", def.ID)
			}
			byID[def.ID] = placed{screen: s.Key, kind: model.AnswerKind(def.Kind)}
			if def.Kind == string(model.AnswerKindEnumSingle) && len(def.Options) == 0 {
				return fmt.Errorf("question %q: enum_single needs options", def.ID)
			}
			if def.Kind != string(model.AnswerKindEnumSingle) && len(def.Options) > 0 {
				return fmt.Errorf("question %q: options only apply to enum_single", def.ID)
			}
		}
	}

	for _, s := range q.Screens {
		for _, def := range s.Questions {
			if def.Parent == "" {
				if def.VisibleIf != nil {
					return fmt.Errorf("question %q: visible_if without parent", def.ID)
				}
				continue
			}
			if def.VisibleIf == nil {
				return fmt.Errorf("question %q: parent without visible_if", def.ID)
			}
			if def.Parent == def.ID {
				return fmt.Errorf("question %q: cannot be its own parent", def.ID)
			}
			parent, ok := byID[def.Parent]
			if !ok {
				return fmt.Errorf("question %q: unknown parent %q", def.ID, def.Parent)
			}
			if parent.screen != s.Key {
				return fmt.Errorf("question %q: parent %q is on screen %q", def.ID, def.Parent, parent.screen)
			}
			if err := visibility.ValidateCompatibility(parent.kind, def.VisibleIf); err != nil {
				return fmt.Errorf("question %q: %w", def.ID, err)
			}
		}
	}
	return nil
}

// Questions flattens the questionnaire into catalog rows
func (q *Questionnaire) Questions() ([]model.Question, error) {
	var out []model.Question
	for _, s := range q.Screens {
		for i, def := range s.Questions {
			tokens, err := visibility.VisibleIfTokens(def.VisibleIf)
			if err != nil {
				return nil, fmt.Errorf("question %q: %w", def.ID, err)
			}
			question := model.Question{
				ID:              def.ID,
				ScreenKey:       s.Key,
				Position:        i + 1,
				Kind:            model.AnswerKind(def.Kind),
				Prompt:          def.Prompt,
				Mandatory:       def.Mandatory,
				ParentID:        def.Parent,
				VisibleIfValues: tokens,
			}
			for _, o := range def.Options {
				question.Options = append(question.Options, model.Option{ID: o.ID, Value: o.Value, Label: o.Label})
			}
			out = append(out, question)
		}
	}
	return out, nil
}

// ScreenKeys returns the screen keys in file order
func (q *Questionnaire) ScreenKeys() []string {
	keys := make([]string, 0, len(q.Screens))
	for _, s := range q.Screens {
		keys = append(keys, s.Key)
	}
	return keys
}
