// Package identity models the caller attached to a request by the upstream
// authentication layer.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrAnonymousRejected is returned when anonymous callers are not allowed.
var ErrAnonymousRejected = errors.New("anonymous callers are not allowed")

// Caller is either an authenticated owner or anonymous. The zero value is
// anonymous.
type Caller struct {
	id string
}

// Owner returns an authenticated caller.
func Owner(id string) Caller { return Caller{id: id} }

// Anonymous returns the anonymous caller.
func Anonymous() Caller { return Caller{} }

// IsAnonymous reports whether no identity was supplied.
func (c Caller) IsAnonymous() bool { return c.id == "" }

// ID returns the owner id and whether the caller is authenticated.
func (c Caller) ID() (string, bool) { return c.id, c.id != "" }

// OwnerRef returns a pointer suitable for a nullable owner column.
func (c Caller) OwnerRef() *string {
	if c.id == "" {
		return nil
	}
	id := c.id
	return &id
}

// Owns reports whether c is the authenticated owner of a record.
func (c Caller) Owns(owner *string) bool {
	return c.id != "" && owner != nil && *owner == c.id
}

// CanAccess reports whether c may act on a record with the given owner.
// Ownerless records belong to the shared anonymous bucket.
func (c Caller) CanAccess(owner *string) bool {
	return owner == nil || c.Owns(owner)
}

func (c Caller) String() string {
	if c.id == "" {
		return "anonymous"
	}
	return c.id
}

// Policy decides what happens to anonymous callers.
type Policy string

const (
	// PolicyShared files anonymous uploads into a single ownerless bucket.
	PolicyShared Policy = "shared"
	// PolicyReject refuses anonymous callers.
	PolicyReject Policy = "reject"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyShared, PolicyReject:
		return p, nil
	}
	return "", fmt.Errorf("unknown anonymous policy %q (want shared or reject)", s)
}

// Admit applies the policy to c.
func (p Policy) Admit(c Caller) error {
	if c.IsAnonymous() && p == PolicyReject {
		return ErrAnonymousRejected
	}
	return nil
}

type ctxKey struct{}

// NewContext returns a copy of ctx carrying c.
func NewContext(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the caller in ctx, or Anonymous.
func FromContext(ctx context.Context) Caller {
	c, _ := ctx.Value(ctxKey{}).(Caller)
	return c
}

// Middleware reads the caller id from a trusted header set by the upstream
// authentication proxy and stores it in the request context.
func Middleware(header string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := Anonymous()
			if id := strings.TrimSpace(r.Header.Get(header)); id != "" {
				c = Owner(id)
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), c)))
		})
	}
}
