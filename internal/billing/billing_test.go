package billing

import (
	"context"
	"errors"
	"testing"
)

type failingCollaborator struct{}

func (failingCollaborator) Deduct(ctx context.Context, executionID, imageID string) error {
	return errors.New("billing service unreachable")
}

func TestNoopCollaboratorNeverFails(t *testing.T) {
	if err := (NoopCollaborator{}).Deduct(context.Background(), "exec-1", "img-1"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestDeductSwallowsFailure(t *testing.T) {
	// Deduct must not panic or return an error signal of any kind even
	// when the collaborator fails — processing continues regardless.
	Deduct(context.Background(), failingCollaborator{}, "exec-1", "img-1")
}

func TestDeductHandlesNilCollaborator(t *testing.T) {
	Deduct(context.Background(), nil, "exec-1", "img-1")
}
