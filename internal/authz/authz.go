// Package authz decides whether an authenticated identity may perform
// an operation. Two independent checks compose: a declarative
// role-based policy evaluated per route, and a per-resource ownership
// check evaluated before mutations.
package authz

import (
	"context"
	"errors"
	"strings"
)

// ErrForbidden is returned when an identity is authenticated but not
// permitted to perform the operation.
var ErrForbidden = errors.New("forbidden")

// ErrNotFound is returned by ownership checks when the resource does
// not exist. Existence is reported to authenticated users rather than
// hidden behind ErrForbidden.
var ErrNotFound = errors.New("resource not found")

// Identity is the authenticated caller as decoded from its token.
type Identity struct {
	ID    int
	Email string
	Role  string
}

// Policy is the set of roles allowed to perform an operation,
// declared as data on the route rather than as inline conditionals.
// An empty Policy admits any authenticated identity.
type Policy []string

// Allow builds a Policy from the given roles.
func Allow(roles ...string) Policy {
	return Policy(roles)
}

// Permits reports whether an identity with the given role passes the
// policy. Role comparison is case-insensitive.
func (p Policy) Permits(identity Identity) bool {
	if len(p) == 0 {
		return true
	}
	for _, role := range p {
		if strings.EqualFold(identity.Role, role) {
			return true
		}
	}
	return false
}

// Check evaluates the policy and returns ErrForbidden when the
// identity's role is not a member of the allowed set.
func (p Policy) Check(identity Identity) error {
	if !p.Permits(identity) {
		return ErrForbidden
	}
	return nil
}

// OwnerLoader resolves a resource id to its owning user id. When the
// resource does not exist it must return ErrNotFound or a store-level
// sentinel the caller translates.
type OwnerLoader func(ctx context.Context, resourceID int) (int, error)

// RequireOwner loads the owner of resourceID and verifies it matches
// the requester. Outcomes, in order:
//
//  1. resource absent: the loader's not-found error propagates, so the
//     caller reports 404 rather than 403 (existence is not hidden).
//  2. owner mismatch: ErrForbidden.
//  3. owner match: nil; the caller may proceed to mutate.
//
// The subsequent write keys on the same resource id, so a concurrent
// delete surfaces as a second not-found failure, never as a silent
// success against another row.
func RequireOwner(ctx context.Context, load OwnerLoader, resourceID int, requester Identity) error {
	ownerID, err := load(ctx, resourceID)
	if err != nil {
		return err
	}
	if ownerID != requester.ID {
		return ErrForbidden
	}
	return nil
}

// SelfOrAdmin permits an identity to act on a user resource when it is
// the target user or holds the admin role.
func SelfOrAdmin(identity Identity, targetUserID int) error {
	if identity.ID == targetUserID {
		return nil
	}
	return Allow("admin").Check(identity)
}
