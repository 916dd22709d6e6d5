/*
catalog.go - Policies, customers and vehicles

PURPOSE:
  The reference data every lifecycle operation reads: insurance products
  (admin-managed), customers, and the vehicles customers register.

INVARIANTS:
  - Policy names are unique case-insensitively (storage unique key).
  - Policies are never deleted; deactivation is the deletion surrogate.
  - Plates are normalized upper-case, match PlatePattern, and are unique.
  - A vehicle can be deleted only while it has no paid premiums, no pending
    premiums and no pending/under-review claims. The check and the delete
    run in one storage transaction.
*/
package insurance

import (
	"context"
	"errors"
	"fmt"
)

// =============================================================================
// INPUTS
// =============================================================================

// PolicyInput creates or replaces a policy.
type PolicyInput struct {
	Name           string       `json:"name" validate:"required,min=3,max=100"`
	Description    string       `json:"description" validate:"max=500"`
	CoverageType   CoverageType `json:"coverageType" validate:"required,oneof=third_party comprehensive own_damage"`
	DurationMonths int          `json:"durationMonths" validate:"required,oneof=12 24 36"`
	BaseAmount     float64      `json:"baseAmount" validate:"gte=0"`
	PricingRules   PricingRules `json:"-"`
	IsActive       *bool        `json:"isActive"`
}

// Validate checks the fields and the pricing rules together.
func (in PolicyInput) Validate() error {
	ve := &ValidationError{}
	if err := validateStruct(in); err != nil {
		var inner *ValidationError
		if !errors.As(err, &inner) {
			return err
		}
		ve.Fields = append(ve.Fields, inner.Fields...)
	}
	if err := in.PricingRules.Validate(); err != nil {
		var inner *ValidationError
		if errors.As(err, &inner) {
			ve.Fields = append(ve.Fields, inner.Fields...)
		}
	}
	return ve.OrNil()
}

type CustomerInput struct {
	Name  string `json:"name" validate:"required,min=2,max=100"`
	Email string `json:"email" validate:"required,email"`
}

type VehicleInput struct {
	CustomerID       string      `json:"customerId" validate:"required"`
	PlateNumber      string      `json:"plateNumber" validate:"required,plate"`
	VehicleType      VehicleType `json:"vehicleType" validate:"required,oneof=two_wheeler four_wheeler commercial"`
	Model            string      `json:"model" validate:"required,max=100"`
	RegistrationYear int         `json:"registrationYear" validate:"required,gte=1990"`
}

// =============================================================================
// CATALOG SERVICE
// =============================================================================

// Catalog manages policies, customers and vehicles.
type Catalog struct {
	deps
}

// NewCatalog constructs a Catalog.
func NewCatalog(store TxStore, opts ...Option) *Catalog {
	return &Catalog{deps: newDeps(store, opts)}
}

// CreatePolicy registers a new product. Admin only.
func (c *Catalog) CreatePolicy(ctx context.Context, caller Caller, in PolicyInput) (*Policy, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var policy Policy
	err := c.store.WithTx(ctx, func(tx Store) error {
		code, err := c.mintCode(ctx, tx, CounterPolicy, PrefixPolicy)
		if err != nil {
			return err
		}
		now := c.clock()
		policy = Policy{
			ID:             c.newID(),
			Code:           code,
			Name:           in.Name,
			Description:    in.Description,
			CoverageType:   in.CoverageType,
			DurationMonths: in.DurationMonths,
			BaseAmount:     NewMoney(in.BaseAmount),
			PricingRules:   in.PricingRules.Normalize(),
			IsActive:       in.IsActive == nil || *in.IsActive,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return c.policyWriteErr(tx.CreatePolicy(ctx, policy), in.Name)
	})
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "policy created", "policy_id", policy.ID, "code", policy.Code)
	return &policy, nil
}

// UpdatePolicy replaces a policy's fields. Admin only.
func (c *Catalog) UpdatePolicy(ctx context.Context, caller Caller, id string, in PolicyInput) (*Policy, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	var policy *Policy
	err := c.store.WithTx(ctx, func(tx Store) error {
		var err error
		policy, err = tx.GetPolicy(ctx, id)
		if err != nil {
			return lookupErr("policy", id, err)
		}
		policy.Name = in.Name
		policy.Description = in.Description
		policy.CoverageType = in.CoverageType
		policy.DurationMonths = in.DurationMonths
		policy.BaseAmount = NewMoney(in.BaseAmount)
		policy.PricingRules = in.PricingRules.Normalize()
		if in.IsActive != nil {
			policy.IsActive = *in.IsActive
		}
		policy.UpdatedAt = c.clock()
		return c.policyWriteErr(tx.UpdatePolicy(ctx, *policy), in.Name)
	})
	if err != nil {
		return nil, err
	}
	return policy, nil
}

// SetPolicyActive toggles a policy. Deactivated policies cannot be purchased.
func (c *Catalog) SetPolicyActive(ctx context.Context, caller Caller, id string, active bool) (*Policy, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	var policy *Policy
	err := c.store.WithTx(ctx, func(tx Store) error {
		var err error
		policy, err = tx.GetPolicy(ctx, id)
		if err != nil {
			return lookupErr("policy", id, err)
		}
		policy.IsActive = active
		policy.UpdatedAt = c.clock()
		return tx.UpdatePolicy(ctx, *policy)
	})
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "policy activation changed", "policy_id", id, "active", active)
	return policy, nil
}

func (c *Catalog) policyWriteErr(err error, name string) error {
	if errors.Is(err, ErrConflict) {
		return conflict("policy", "a policy named %q already exists", name)
	}
	return err
}

// GetPolicy returns a policy by id.
func (c *Catalog) GetPolicy(ctx context.Context, id string) (*Policy, error) {
	p, err := c.store.GetPolicy(ctx, id)
	if err != nil {
		return nil, lookupErr("policy", id, err)
	}
	return p, nil
}

// ListPolicies pages through policies. Customers only see active ones.
func (c *Catalog) ListPolicies(ctx context.Context, caller Caller, f PolicyFilter, q ListQuery) (Page[Policy], error) {
	if !caller.IsStaff() {
		f.ActiveOnly = true
	}
	q = q.Normalize()
	items, total, err := c.store.ListPolicies(ctx, f, q)
	if err != nil {
		return Page[Policy]{}, fmt.Errorf("list policies: %w", err)
	}
	return newPage(items, q, total), nil
}

// CreateCustomer registers a customer. Staff only.
func (c *Catalog) CreateCustomer(ctx context.Context, caller Caller, in CustomerInput) (*Customer, error) {
	if err := requireStaff(caller); err != nil {
		return nil, err
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	var customer Customer
	err := c.store.WithTx(ctx, func(tx Store) error {
		code, err := c.mintCode(ctx, tx, CounterCustomer, PrefixCustomer)
		if err != nil {
			return err
		}
		customer = Customer{
			ID:        c.newID(),
			Code:      code,
			Name:      in.Name,
			Email:     in.Email,
			CreatedAt: c.clock(),
		}
		return tx.CreateCustomer(ctx, customer)
	})
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetCustomer returns a customer the caller may see.
func (c *Catalog) GetCustomer(ctx context.Context, caller Caller, id string) (*Customer, error) {
	if err := requireOwner(caller, id); err != nil {
		return nil, err
	}
	cust, err := c.store.GetCustomer(ctx, id)
	if err != nil {
		return nil, lookupErr("customer", id, err)
	}
	return cust, nil
}

// RegisterVehicle adds a vehicle to a customer.
func (c *Catalog) RegisterVehicle(ctx context.Context, caller Caller, in VehicleInput) (*Vehicle, error) {
	in.PlateNumber = NormalizePlate(in.PlateNumber)
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if year := c.clock().Year(); in.RegistrationYear > year {
		ve := &ValidationError{}
		ve.Add("registrationYear", in.RegistrationYear, fmt.Sprintf("must be less than or equal to %d", year))
		return nil, ve
	}
	if err := requireOwner(caller, in.CustomerID); err != nil {
		return nil, err
	}

	var vehicle Vehicle
	err := c.store.WithTx(ctx, func(tx Store) error {
		if _, err := tx.GetCustomer(ctx, in.CustomerID); err != nil {
			return lookupErr("customer", in.CustomerID, err)
		}
		code, err := c.mintCode(ctx, tx, CounterVehicle, PrefixVehicle)
		if err != nil {
			return err
		}
		vehicle = Vehicle{
			ID:               c.newID(),
			Code:             code,
			CustomerID:       in.CustomerID,
			PlateNumber:      in.PlateNumber,
			VehicleType:      in.VehicleType,
			Model:            in.Model,
			RegistrationYear: in.RegistrationYear,
			CreatedAt:        c.clock(),
		}
		err = tx.CreateVehicle(ctx, vehicle)
		if errors.Is(err, ErrConflict) {
			return conflict("vehicle", "plate %s is already registered", in.PlateNumber)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "vehicle registered", "vehicle_id", vehicle.ID, "customer_id", vehicle.CustomerID)
	return &vehicle, nil
}

// GetVehicle returns a vehicle the caller may see.
func (c *Catalog) GetVehicle(ctx context.Context, caller Caller, id string) (*Vehicle, error) {
	v, err := c.store.GetVehicle(ctx, id)
	if err != nil {
		return nil, lookupErr("vehicle", id, err)
	}
	if err := requireOwner(caller, v.CustomerID); err != nil {
		return nil, err
	}
	return v, nil
}

// ListVehicles pages through vehicles, scoped to the caller.
func (c *Catalog) ListVehicles(ctx context.Context, caller Caller, customerID string, q ListQuery) (Page[Vehicle], error) {
	q = q.Normalize()
	f := VehicleFilter{CustomerID: ScopeCustomer(caller, customerID)}
	items, total, err := c.store.ListVehicles(ctx, f, q)
	if err != nil {
		return Page[Vehicle]{}, fmt.Errorf("list vehicles: %w", err)
	}
	return newPage(items, q, total), nil
}

// DeleteVehicle removes a vehicle that has no paid/pending premiums and no
// open claims.
func (c *Catalog) DeleteVehicle(ctx context.Context, caller Caller, id string) error {
	return c.store.WithTx(ctx, func(tx Store) error {
		v, err := tx.GetVehicle(ctx, id)
		if err != nil {
			return lookupErr("vehicle", id, err)
		}
		if err := requireOwner(caller, v.CustomerID); err != nil {
			return err
		}
		usage, err := tx.VehicleUsage(ctx, id)
		if err != nil {
			return fmt.Errorf("vehicle usage: %w", err)
		}
		if usage.InUse() {
			return conflict("vehicle",
				"vehicle %s cannot be deleted: %d paid premiums, %d pending premiums, %d open claims",
				v.Code, usage.PaidPremiums, usage.PendingPremiums, usage.OpenClaims)
		}
		return tx.DeleteVehicle(ctx, id)
	})
}
