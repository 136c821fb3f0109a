package workorders

import "time"

// Status is the internal lifecycle state of a work order.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusOnHold     Status = "on_hold"
	StatusCancelled  Status = "cancelled"
)

// ValidStatuses lists every status a stored work order may carry.
var ValidStatuses = []Status{
	StatusPending,
	StatusInProgress,
	StatusCompleted,
	StatusOnHold,
	StatusCancelled,
}

// Valid reports whether s is one of ValidStatuses.
func (s Status) Valid() bool {
	for _, v := range ValidStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// ClientWorkOrder is the record shape exchanged with the Client system as JSON files.
// Pointer fields distinguish "absent" from zero values.
type ClientWorkOrder struct {
	OrderNo        *int64  `json:"orderNo" validate:"required,gt=0"`
	Summary        *string `json:"summary" validate:"required"`
	CreationDate   *string `json:"creationDate" validate:"required"`
	LastUpdateDate *string `json:"lastUpdateDate,omitempty"`
	IsDeleted      bool    `json:"isDeleted"`
	IsDone         bool    `json:"isDone"`
	IsCanceled     bool    `json:"isCanceled"`
	IsOnHold       bool    `json:"isOnHold"`
	IsPending      bool    `json:"isPending"`
	IsActive       bool    `json:"isActive"`
	DeletedDate    *string `json:"deletedDate"`
}

// WorkOrder is the internal document-store representation.
// A zero Number, empty Title/Status or zero CreatedAt/UpdatedAt count as absent.
type WorkOrder struct {
	Number      int64      `json:"number" bson:"number" dynamodbav:"number"`
	Title       string     `json:"title" bson:"title" dynamodbav:"title"`
	Description string     `json:"description" bson:"description" dynamodbav:"description"`
	Status      Status     `json:"status" bson:"status" dynamodbav:"status"`
	CreatedAt   time.Time  `json:"createdAt" bson:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt" bson:"updatedAt" dynamodbav:"updatedAt"`
	Deleted     bool       `json:"deleted" bson:"deleted" dynamodbav:"deleted"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty" bson:"deletedAt,omitempty" dynamodbav:"deletedAt,omitempty"`
	IsSynced    bool       `json:"isSynced" bson:"isSynced" dynamodbav:"isSynced"`
	SyncedAt    *time.Time `json:"syncedAt,omitempty" bson:"syncedAt,omitempty" dynamodbav:"syncedAt,omitempty"`
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
