package acl

import (
	"context"

	"github.com/hearthdav/caldavd/internal/model"
)

// Provider computes the effective privileges a principal holds on a
// collection, from ownership and group membership rather than an external
// ACL store — this model has no per-property ACL mutation surface
// (explicit non-goal), so privilege computation never itself fails.
type Provider interface {
	Effective(ctx context.Context, principal *model.Principal, owner string, readOnly bool) Effective
}

// OwnershipACL is the only Provider this repo ships: a principal gets
// PrivAll on a collection it owns (directly, or via group membership
// reaching the owner), PrivReadOnly on a collection mirrored from a
// subscription URL, and nothing otherwise.
type OwnershipACL struct{}

func NewOwnershipACL() *OwnershipACL { return &OwnershipACL{} }

func (OwnershipACL) Effective(_ context.Context, principal *model.Principal, owner string, readOnly bool) Effective {
	if principal == nil || !principal.HasIdentity(owner) {
		return Effective{}
	}
	if readOnly {
		return NewEffective(PrivReadOnly)
	}
	return NewEffective(PrivAll)
}
