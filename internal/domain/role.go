package domain

import (
	"fmt"
	"strings"
)

// Role of a supply-chain participant. Checkpoints record the role of the
// party that handled the batch at that point.
type Role string

const (
	RoleAdmin        Role = "Admin"
	RoleManufacturer Role = "Manufacturer"
	RoleDistributor  Role = "Distributor"
	RoleRetailer     Role = "Retailer"
	RoleInspector    Role = "Inspector"
	RoleCustomer     Role = "Customer"
)

// Roles lists every role in display order.
var Roles = []Role{RoleAdmin, RoleManufacturer, RoleDistributor, RoleRetailer, RoleInspector, RoleCustomer}

func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole matches a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	for _, known := range Roles {
		if strings.EqualFold(s, string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// User of the dashboard. Held only in the simulated session record.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
	Name  string `json:"name"`
}
