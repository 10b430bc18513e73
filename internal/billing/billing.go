// Package billing defines the worker's boundary to the external
// token-billing collaborator. The collaborator itself — the account,
// balance, and ledger system — is out of scope for this pipeline; all
// this package owns is the call site and the rule that a failed
// deduction never aborts image processing.
package billing

import (
	"context"
	"log"
)

// Collaborator deducts one token for a successfully analyzed image.
// Implementations are expected to be at-least-once: a deduction call
// that times out after the remote side already recorded it is an
// acceptable double-charge from this pipeline's point of view, since
// consuming the RPC (and thus its cost) already happened.
type Collaborator interface {
	Deduct(ctx context.Context, executionID string, imageID string) error
}

// NoopCollaborator is used when no billing integration is configured. It
// accepts every deduction without contacting anything, which is the
// correct behavior for local/test runs where there's no account to
// charge.
type NoopCollaborator struct{}

func (NoopCollaborator) Deduct(ctx context.Context, executionID string, imageID string) error {
	return nil
}

// Deduct calls c.Deduct and logs (rather than propagates) any failure —
// per the spec's rule, token deduction failures do not abort processing.
func Deduct(ctx context.Context, c Collaborator, executionID, imageID string) {
	if c == nil {
		return
	}
	if err := c.Deduct(ctx, executionID, imageID); err != nil {
		log.Printf("billing: token deduction failed for image %s: %v", imageID, err)
	}
}
