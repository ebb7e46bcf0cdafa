package model

// ScreenQuestion is a visible question with its current answer, if any
type ScreenQuestion struct {
	QuestionID string      `json:"question_id"`
	Kind       AnswerKind  `json:"answer_kind"`
	Prompt     string      `json:"prompt,omitempty"`
	Mandatory  bool        `json:"mandatory"`
	Options    []Option    `json:"options,omitempty"`
	Answer     *AnswerView `json:"answer,omitempty"`
}

// ScreenView is derived on every read and after every write; never stored
type ScreenView struct {
	ScreenKey string           `json:"screen_key"`
	Questions []ScreenQuestion `json:"questions"`
	ETag      string           `json:"etag"`
}

// VisibilityDelta describes what one write changed on the screen
type VisibilityDelta struct {
	NowVisible []ScreenQuestion `json:"now_visible"`
	NowHidden  []string         `json:"now_hidden"`
}
