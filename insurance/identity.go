package insurance

import "context"

type Role string

const (
	RoleAdmin    Role = "admin"
	RoleStaff    Role = "staff"
	RoleCustomer Role = "customer"
)

// Caller is the identity supplied by the authentication collaborator for
// every engine call. The engine trusts it and only checks roles and
// ownership equality.
type Caller struct {
	CallerID   string
	Role       Role
	CustomerID string // set for customer callers
}

// System is the caller used by scheduled jobs.
var System = Caller{CallerID: "system", Role: RoleAdmin}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

// IsStaff reports whether the caller is back-office (staff or admin).
func (c Caller) IsStaff() bool { return c.Role == RoleStaff || c.Role == RoleAdmin }

func requireAdmin(c Caller) error {
	if !c.IsAdmin() {
		return forbidden("admin role required")
	}
	return nil
}

func requireStaff(c Caller) error {
	if !c.IsStaff() {
		return forbidden("staff or admin role required")
	}
	return nil
}

// requireOwner lets staff act for anyone and customers only for themselves.
func requireOwner(c Caller, customerID string) error {
	if c.IsStaff() {
		return nil
	}
	if c.Role == RoleCustomer && c.CustomerID != "" && c.CustomerID == customerID {
		return nil
	}
	return forbidden("not allowed to act for customer %s", customerID)
}

// ScopeCustomer returns the customer id a list call must be restricted to.
// Customers always see their own records; staff see what they asked for.
func ScopeCustomer(c Caller, requested string) string {
	if c.IsStaff() {
		return requested
	}
	return c.CustomerID
}

type callerKey struct{}

// WithCaller stores the caller in ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom extracts the caller placed by WithCaller.
func CallerFrom(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(Caller)
	return c, ok
}
