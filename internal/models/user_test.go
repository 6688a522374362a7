package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func loadUser(storeID *uint) User {
	return User{ID: 9, Name: "Kandy SSO", Role: RoleSubStoreOfficer, StoreID: storeID, IsActive: true}
}

func TestActorFromReturnedUser(t *testing.T) {
	store := uint(4)
	actor := loadUser(&store).Actor()

	assert.Equal(t, Actor{ID: 9, Name: "Kandy SSO", Role: RoleSubStoreOfficer, StoreID: &store}, actor)
}
