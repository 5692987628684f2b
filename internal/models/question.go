package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Question is one multiple-choice item of a quiz.
type Question struct {
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	CorrectOptionID int      `json:"correct_option_id"`
	Explanation     string   `json:"explanation"`
}

// UnmarshalJSON accepts the legacy "scenario" key as the question text.
func (q *Question) UnmarshalJSON(data []byte) error {
	var raw struct {
		Question        string   `json:"question"`
		Scenario        string   `json:"scenario"`
		Options         []string `json:"options"`
		CorrectOptionID int      `json:"correct_option_id"`
		Explanation     string   `json:"explanation"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	q.Question = raw.Question
	if q.Question == "" {
		q.Question = raw.Scenario
	}
	q.Options = raw.Options
	q.CorrectOptionID = raw.CorrectOptionID
	q.Explanation = raw.Explanation
	return nil
}

// Validate checks that the question can be rendered and graded.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Question) == "" {
		return errors.New("question text is empty")
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("question %q needs at least two options", q.Question)
	}
	if q.CorrectOptionID < 0 || q.CorrectOptionID >= len(q.Options) {
		return fmt.Errorf("question %q: correct option %d out of range", q.Question, q.CorrectOptionID)
	}
	return nil
}

// EncodeQuestions serializes questions for storage.
func EncodeQuestions(questions []Question) ([]byte, error) {
	if questions == nil {
		questions = []Question{}
	}
	return json.Marshal(questions)
}

// DecodeQuestions reads a stored question list. The column may hold a JSON
// array or a JSON string that itself encodes the array.
func DecodeQuestions(raw []byte) ([]Question, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("decode questions string: %w", err)
		}
		return DecodeQuestions([]byte(inner))
	}
	var questions []Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}
	return questions, nil
}

// EncodeHints stores hints as a JSON array string.
func EncodeHints(hints []string) (string, error) {
	if hints == nil {
		hints = []string{}
	}
	b, err := json.Marshal(hints)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeHints reads the hints column. Plain text from older rows becomes a
// single hint.
func DecodeHints(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var hints []string
		if err := json.Unmarshal([]byte(raw), &hints); err == nil {
			if len(hints) == 0 {
				return nil
			}
			return hints
		}
	}
	return []string{raw}
}
