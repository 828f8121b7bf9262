package domain

import (
	"time"

	"github.com/google/uuid"
)

// Cluster a managed RabbitMQ cluster connection. ApiUrl points at the
// management API of one node; credentials are for the management user the
// console proxies as.
type Cluster struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null;unique;index" json:"name"`
	ApiUrl      string    `gorm:"type:varchar(512);not null" json:"api_url"`
	Username    string    `gorm:"type:varchar(255);not null" json:"username"`
	Password    string    `gorm:"type:varchar(255);not null" json:"-"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	IsActive    bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt   time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

// TableName specifies the table name
func (Cluster) TableName() string {
	return "clusters"
}
