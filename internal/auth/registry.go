// Package auth implements the two-tier admin / super-admin capability check
// gating every mutating engine operation.
package auth

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrUnauthorized = errors.New("caller does not hold the required role")
	ErrZeroAddress  = errors.New("address cannot be zero")
)

// Registry tracks role membership. The super-admin is fixed at bootstrap and
// only manages admin membership; it does not implicitly hold the admin role.
type Registry struct {
	mu         sync.RWMutex
	superAdmin common.Address
	admins     map[common.Address]struct{}
}

// NewRegistry bootstraps the role registry. The super-admin is required; the
// initial admin set may be empty.
func NewRegistry(superAdmin common.Address, initialAdmins []common.Address) (*Registry, error) {
	if superAdmin == (common.Address{}) {
		return nil, fmt.Errorf("%w: super admin", ErrZeroAddress)
	}

	admins := make(map[common.Address]struct{}, len(initialAdmins))
	for _, admin := range initialAdmins {
		if admin == (common.Address{}) {
			return nil, fmt.Errorf("%w: initial admin", ErrZeroAddress)
		}
		admins[admin] = struct{}{}
	}

	return &Registry{superAdmin: superAdmin, admins: admins}, nil
}

// RequireAdmin fails unless caller holds the admin role.
func (r *Registry) RequireAdmin(caller common.Address) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.admins[caller]; !ok {
		return fmt.Errorf("%w: %s is not an admin", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// RequireSuperAdmin fails unless caller is the super-admin.
func (r *Registry) RequireSuperAdmin(caller common.Address) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if caller != r.superAdmin {
		return fmt.Errorf("%w: %s is not the super admin", ErrUnauthorized, caller.Hex())
	}
	return nil
}

// IsAdmin reports whether addr holds the admin role.
func (r *Registry) IsAdmin(addr common.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.admins[addr]
	return ok
}

// SuperAdmin returns the bootstrap principal.
func (r *Registry) SuperAdmin() common.Address {
	return r.superAdmin
}

// AddAdmin grants the admin role. Super-admin only.
func (r *Registry) AddAdmin(caller, admin common.Address) error {
	if err := r.RequireSuperAdmin(caller); err != nil {
		return err
	}
	if admin == (common.Address{}) {
		return fmt.Errorf("%w: admin", ErrZeroAddress)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.admins[admin] = struct{}{}
	return nil
}

// RemoveAdmin revokes the admin role. Super-admin only; removing an address
// that never held the role is a no-op.
func (r *Registry) RemoveAdmin(caller, admin common.Address) error {
	if err := r.RequireSuperAdmin(caller); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.admins, admin)
	return nil
}

// Admins returns the current admin membership. Order is unspecified.
func (r *Registry) Admins() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]common.Address, 0, len(r.admins))
	for admin := range r.admins {
		out = append(out, admin)
	}
	return out
}
