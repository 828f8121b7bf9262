package domain

import (
	"time"

	"github.com/google/uuid"
)

// OperationType enumerates the mutating cluster operations that get audited.
// The set is closed: adding an operation means extending the DB enum, the API
// validation and the UI labels together.
type OperationType string

const (
	OpCreateExchange         OperationType = "CREATE_EXCHANGE"
	OpDeleteExchange         OperationType = "DELETE_EXCHANGE"
	OpCreateQueue            OperationType = "CREATE_QUEUE"
	OpDeleteQueue            OperationType = "DELETE_QUEUE"
	OpPurgeQueue             OperationType = "PURGE_QUEUE"
	OpCreateBindingExchange  OperationType = "CREATE_BINDING_EXCHANGE"
	OpCreateBindingQueue     OperationType = "CREATE_BINDING_QUEUE"
	OpDeleteBinding          OperationType = "DELETE_BINDING"
	OpPublishMessageExchange OperationType = "PUBLISH_MESSAGE_EXCHANGE"
	OpPublishMessageQueue    OperationType = "PUBLISH_MESSAGE_QUEUE"
	OpMoveMessagesQueue      OperationType = "MOVE_MESSAGES_QUEUE"
)

// OperationTypes lists every valid operation type, in declaration order.
func OperationTypes() []OperationType {
	return []OperationType{
		OpCreateExchange,
		OpDeleteExchange,
		OpCreateQueue,
		OpDeleteQueue,
		OpPurgeQueue,
		OpCreateBindingExchange,
		OpCreateBindingQueue,
		OpDeleteBinding,
		OpPublishMessageExchange,
		OpPublishMessageQueue,
		OpMoveMessagesQueue,
	}
}

// Valid reports whether the value is a member of the closed enum.
func (t OperationType) Valid() bool {
	for _, known := range OperationTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// AuditStatus outcome of an intercepted operation
type AuditStatus string

const (
	StatusSuccess AuditStatus = "SUCCESS"
	StatusFailure AuditStatus = "FAILURE"
	// StatusPartial is reserved for multi-target operations where some
	// destinations succeed and some fail. No current operation produces it.
	StatusPartial AuditStatus = "PARTIAL"
)

// Valid reports whether the value is a member of the status enum.
func (s AuditStatus) Valid() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusPartial
}

// Resource type groupings used for filtering and display. Looser than
// OperationType on purpose.
const (
	ResourceExchange = "exchange"
	ResourceQueue    = "queue"
	ResourceBinding  = "binding"
	ResourceMessage  = "message"
)

// ResourceTypes lists the known resource groupings.
func ResourceTypes() []string {
	return []string{ResourceExchange, ResourceQueue, ResourceBinding, ResourceMessage}
}

// ValidResourceType reports whether v is a known resource grouping.
func ValidResourceType(v string) bool {
	for _, known := range ResourceTypes() {
		if v == known {
			return true
		}
	}
	return false
}

// AuditRecord is the immutable ledger entry for one intercepted write
// operation. Username and ClusterName are denormalized snapshots taken at
// write time so a later rename or delete cannot rewrite history; the foreign
// references stay for joins and are deletion-protected (ON DELETE RESTRICT).
// No update path exists: records are created once and only ever removed in
// bulk by retention cleanup.
type AuditRecord struct {
	ID              uuid.UUID     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	ActorID         uuid.UUID     `gorm:"type:uuid;not null;index" json:"actorId"`
	ActorUsername   string        `gorm:"type:varchar(255);not null;index" json:"actorUsername"`
	ClusterID       uuid.UUID     `gorm:"type:uuid;not null;index" json:"clusterId"`
	ClusterName     string        `gorm:"type:varchar(255);not null;index" json:"clusterName"`
	OperationType   OperationType `gorm:"type:operation_type_enum;not null;index" json:"operationType"`
	ResourceType    string        `gorm:"type:varchar(32);not null;index" json:"resourceType"`
	ResourceName    string        `gorm:"type:varchar(512);not null" json:"resourceName"`
	ResourceDetails JSONB         `gorm:"type:jsonb;default:'{}'" json:"resourceDetails,omitempty"`
	Status          AuditStatus   `gorm:"type:audit_status_enum;not null;index" json:"status"`
	ErrorMessage    *string       `gorm:"type:varchar(2000)" json:"errorMessage,omitempty"`
	// Timestamp is when the RabbitMQ operation ran (business time);
	// CreatedAt is when the row was persisted and can lag under async
	// processing.
	Timestamp time.Time `gorm:"not null;index:,sort:desc" json:"timestamp"`
	CreatedAt time.Time `gorm:"not null;default:now()" json:"createdAt"`
	ClientIP  *string   `gorm:"type:varchar(64)" json:"clientIp,omitempty"`
	UserAgent *string   `gorm:"type:text" json:"userAgent,omitempty"`

	Actor   *User    `gorm:"foreignKey:ActorID" json:"-"`
	Cluster *Cluster `gorm:"foreignKey:ClusterID" json:"-"`
}

// TableName specifies the table name
func (AuditRecord) TableName() string {
	return "audit_records"
}

// PartialError signals a mixed outcome from a multi-target operation: the
// call as a whole went through but some destinations failed. The interceptor
// maps it to StatusPartial while still propagating it to the caller.
type PartialError struct {
	Message string
}

func (e *PartialError) Error() string {
	return e.Message
}
