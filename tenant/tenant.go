// Package tenant checks company membership of profiles.
package tenant

import (
	"context"
	"errors"
	"fmt"

	milow "github.com/milow-app/milow-functions"
)

// ErrNotMember is returned when a user is missing or belongs to another company.
var ErrNotMember = errors.New("tenant: user not found in company")

// Backend loads profiles.
type Backend interface {
	GetProfile(ctx context.Context, id string) (*milow.Profile, error)
}

// Checker validates that users belong to a company.
type Checker struct {
	backend Backend
}

// New creates a Checker.
func New(backend Backend) *Checker {
	return &Checker{backend: backend}
}

// ValidateMembership reports whether userID belongs to companyID. A missing
// profile is not an error.
func (c *Checker) ValidateMembership(ctx context.Context, companyID, userID string) (bool, error) {
	if companyID == "" || userID == "" {
		return false, nil
	}
	p, err := c.backend.GetProfile(ctx, userID)
	if errors.Is(err, milow.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("tenant: %w", err)
	}
	return p != nil && p.CompanyID == companyID, nil
}

// RequireMember is ValidateMembership returning ErrNotMember on false.
func (c *Checker) RequireMember(ctx context.Context, companyID, userID string) error {
	ok, err := c.ValidateMembership(ctx, companyID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotMember
	}
	return nil
}
