package auth

import (
	"context"
	"errors"
)

type Role string

const (
	RoleBusinessOwner Role = "business_owner"
	RoleCustomer      Role = "customer"
)

func (r Role) Valid() bool {
	return r == RoleBusinessOwner || r == RoleCustomer
}

// Identity is the authenticated caller. It is produced once per request and
// passed down through the context.
type Identity struct {
	ID   string
	Role Role
}

func (i Identity) IsBusinessOwner() bool {
	return i.Role == RoleBusinessOwner
}

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
)

type ctxKey int

const ctxKeyIdentity ctxKey = iota

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return id, ok && id.ID != ""
}

// Require returns the caller identity, or ErrUnauthenticated when absent.
func Require(ctx context.Context) (Identity, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	return id, nil
}

// RequireRole is Require plus a role check; a wrong role yields ErrForbidden.
func RequireRole(ctx context.Context, role Role) (Identity, error) {
	id, err := Require(ctx)
	if err != nil {
		return Identity{}, err
	}
	if id.Role != role {
		return Identity{}, ErrForbidden
	}
	return id, nil
}
