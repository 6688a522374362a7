package models

import "time"

type UserRole string

const (
	RoleSuperAdmin         UserRole = "SUPER_ADMIN"
	RoleRequester          UserRole = "REQUESTER"
	RoleAreaManager        UserRole = "AREA_MANAGER"
	RoleStoresManager      UserRole = "STORES_MANAGER"
	RoleOSPManager         UserRole = "OSP_MANAGER"
	RoleStoresAssistant    UserRole = "STORES_ASSISTANT"
	RoleSubStoreOfficer    UserRole = "SUB_STORE_OFFICER"
	RoleProcurementOfficer UserRole = "PROCUREMENT_OFFICER"
)

var allRoles = []UserRole{
	RoleSuperAdmin,
	RoleRequester,
	RoleAreaManager,
	RoleStoresManager,
	RoleOSPManager,
	RoleStoresAssistant,
	RoleSubStoreOfficer,
	RoleProcurementOfficer,
}

func (r UserRole) Valid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

type User struct {
	ID           uint `gorm:"primaryKey"`
	StoreID      *uint
	Store        *Store
	Name         string   `gorm:"size:100;not null"`
	Email        string   `gorm:"size:100;uniqueIndex;not null"`
	PasswordHash string   `gorm:"size:255;not null"`
	Role         UserRole `gorm:"size:30;not null"`
	IsActive     bool     `gorm:"not null;default:true"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Actor: the authenticated user performing an operation, loaded server-side.
type Actor struct {
	ID      uint
	Name    string
	Role    UserRole
	StoreID *uint
}

func (u User) Actor() Actor {
	return Actor{ID: u.ID, Name: u.Name, Role: u.Role, StoreID: u.StoreID}
}
