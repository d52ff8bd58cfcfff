package models

// Role is an ordered account role: user < accountant < admin.
type Role string

const (
	RoleUser       Role = "user"
	RoleAccountant Role = "accountant"
	RoleAdmin      Role = "admin"
)

var roleRank = map[Role]int{
	RoleUser:       1,
	RoleAccountant: 2,
	RoleAdmin:      3,
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, ok := roleRank[r]
	return ok
}

// AtLeast reports whether r ranks at or above other in the role order.
// Unknown roles rank below every valid role.
func (r Role) AtLeast(other Role) bool {
	return roleRank[r] >= roleRank[other]
}
