package store

import (
	"context"

	"github.com/healthharbor/prevcare/pkg/alerts"
	"github.com/healthharbor/prevcare/pkg/clinical"
	"github.com/healthharbor/prevcare/pkg/member"
)

// MemberTx is the view handed to an ingestion callback: the resolved member,
// idempotent event upserts, and the engine's state interface. All writes are
// part of one atomic unit scoped to that member.
type MemberTx interface {
	Member() member.Member
	UpsertLabResult(ctx context.Context, in clinical.LabResultInput) error
	UpsertImmunization(ctx context.Context, in clinical.ImmunizationInput) error
	State() alerts.MemberState
}

// Runner executes member-scoped transactions. RunMemberTx resolves the member
// under a per-member lock, runs fn, and commits; any error rolls everything
// back, leaving prior state intact. An unknown public id fails with
// member.ErrMemberNotFound before any write.
type Runner interface {
	RunMemberTx(ctx context.Context, publicID string, fn func(ctx context.Context, tx MemberTx) error) error
	EnrollMember(ctx context.Context) (member.Member, error)
}
