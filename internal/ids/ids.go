// Package ids resolves opaque external identifiers into typed, validated
// internal keys. Conversion happens once at the API boundary; everything
// below works with canonical keys only.
package ids

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/askloop/askloop/server/internal/model"
)

// QuestionID is a validated question key.
type QuestionID string

// AnswerID is a validated answer key.
type AnswerID string

func (id QuestionID) String() string { return string(id) }
func (id AnswerID) String() string   { return string(id) }

// Ref returns the typed target reference for a question.
func (id QuestionID) Ref() model.TargetRef {
	return model.TargetRef{Kind: model.TargetQuestion, ID: string(id)}
}

// Ref returns the typed target reference for an answer.
func (id AnswerID) Ref() model.TargetRef {
	return model.TargetRef{Kind: model.TargetAnswer, ID: string(id)}
}

// ParseQuestionID validates a raw external identifier as a question key.
func ParseQuestionID(raw string) (QuestionID, error) {
	if err := validate(raw); err != nil {
		return "", fmt.Errorf("question id %q: %w", raw, err)
	}
	return QuestionID(raw), nil
}

// ParseAnswerID validates a raw external identifier as an answer key.
func ParseAnswerID(raw string) (AnswerID, error) {
	if err := validate(raw); err != nil {
		return "", fmt.Errorf("answer id %q: %w", raw, err)
	}
	return AnswerID(raw), nil
}

// ParseTarget resolves a (kind, raw id) pair from the request layer into a
// typed target reference.
func ParseTarget(kind, raw string) (model.TargetRef, error) {
	var k model.TargetKind
	switch model.TargetKind(kind) {
	case model.TargetQuestion:
		k = model.TargetQuestion
	case model.TargetAnswer:
		k = model.TargetAnswer
	default:
		return model.TargetRef{}, fmt.Errorf("target kind %q: %w", kind, model.ErrValidation)
	}
	if err := validate(raw); err != nil {
		return model.TargetRef{}, fmt.Errorf("target id %q: %w", raw, err)
	}
	return model.TargetRef{Kind: k, ID: raw}, nil
}

// ParseVoteKind validates a raw vote direction.
func ParseVoteKind(raw string) (model.VoteKind, error) {
	switch model.VoteKind(raw) {
	case model.VoteUp:
		return model.VoteUp, nil
	case model.VoteDown:
		return model.VoteDown, nil
	default:
		return "", fmt.Errorf("vote kind %q: %w", raw, model.ErrValidation)
	}
}

// NewQuestionID mints a fresh question key.
func NewQuestionID() QuestionID { return QuestionID(uuid.New().String()) }

// NewAnswerID mints a fresh answer key.
func NewAnswerID() AnswerID { return AnswerID(uuid.New().String()) }

func validate(raw string) error {
	if raw == "" {
		return fmt.Errorf("empty: %w", model.ErrValidation)
	}
	if _, err := uuid.Parse(raw); err != nil {
		return fmt.Errorf("malformed: %w", model.ErrValidation)
	}
	return nil
}
