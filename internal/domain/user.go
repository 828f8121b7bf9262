package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role console role enum
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleUser          Role = "user"
)

// User console user entity
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Username     string    `gorm:"type:varchar(255);not null;unique;index" json:"username"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	Role         Role      `gorm:"type:role_enum;not null;default:'user';index" json:"role"`
	IsActive     bool      `gorm:"not null;default:true;index" json:"is_active"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
	CreatedAt    time.Time  `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null;default:now()" json:"updated_at"`

	// Clusters the user is allowed to manage (many-to-many).
	Clusters []*Cluster `gorm:"many2many:user_clusters" json:"clusters,omitempty"`
}

// TableName specifies the table name
func (User) TableName() string {
	return "users"
}

// IsAdministrator reports whether the user holds the administrator role.
func (u *User) IsAdministrator() bool {
	return u.Role == RoleAdministrator
}

// CanAccessCluster checks membership in the user's assigned clusters.
// Administrators can access every cluster.
func (u *User) CanAccessCluster(clusterID uuid.UUID) bool {
	if u.IsAdministrator() {
		return true
	}
	for _, c := range u.Clusters {
		if c.ID == clusterID {
			return true
		}
	}
	return false
}
