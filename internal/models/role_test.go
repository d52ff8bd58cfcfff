package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleOrdering(t *testing.T) {
	assert.True(t, RoleAdmin.AtLeast(RoleAccountant))
	assert.True(t, RoleAdmin.AtLeast(RoleUser))
	assert.True(t, RoleAccountant.AtLeast(RoleUser))
	assert.True(t, RoleUser.AtLeast(RoleUser))

	assert.False(t, RoleUser.AtLeast(RoleAccountant))
	assert.False(t, RoleAccountant.AtLeast(RoleAdmin))
}

func TestRoleUnknownRanksBelowEverything(t *testing.T) {
	unknown := Role("superuser")

	assert.False(t, unknown.Valid())
	assert.False(t, unknown.AtLeast(RoleUser))
	assert.True(t, RoleUser.AtLeast(unknown))
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAccountant.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("").Valid())
}
