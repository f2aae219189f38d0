package ids

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/askloop/askloop/server/internal/model"
)

func TestParseTarget(t *testing.T) {
	id := uuid.New().String()

	ref, err := ParseTarget("question", id)
	if err != nil {
		t.Fatalf("ParseTarget: %v", err)
	}
	if ref.Kind != model.TargetQuestion || ref.ID != id {
		t.Fatalf("unexpected ref %+v", ref)
	}

	if _, err := ParseTarget("comment", id); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for unknown kind, got %v", err)
	}
	if _, err := ParseTarget("answer", "not-a-uuid"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for malformed id, got %v", err)
	}
	if _, err := ParseTarget("answer", ""); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error for empty id, got %v", err)
	}
}

func TestParseVoteKind(t *testing.T) {
	for _, raw := range []string{"up", "down"} {
		k, err := ParseVoteKind(raw)
		if err != nil {
			t.Fatalf("ParseVoteKind(%q): %v", raw, err)
		}
		if string(k) != raw {
			t.Fatalf("got %q, want %q", k, raw)
		}
	}
	if _, err := ParseVoteKind("sideways"); !errors.Is(err, model.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMintedIDsRoundTrip(t *testing.T) {
	qid := NewQuestionID()
	if _, err := ParseQuestionID(qid.String()); err != nil {
		t.Fatalf("minted question id rejected: %v", err)
	}
	aid := NewAnswerID()
	if _, err := ParseAnswerID(aid.String()); err != nil {
		t.Fatalf("minted answer id rejected: %v", err)
	}
	if NewQuestionID() == qid {
		t.Fatal("question ids must be unique")
	}
}
