package model

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// LockType tells which kind of key a lock guards
type LockType string

const (
	LockTypeJob     LockType = "job"
	LockTypeTrigger LockType = "trigger"
)

// Key identifies a job or a trigger inside the scheduler's catalog
type Key struct {
	Group string `json:"group" bson:"key_group"`
	Name  string `json:"name" bson:"key_name"`
}

// NewKey creates a key from group and name
func NewKey(group, name string) Key {
	return Key{Group: group, Name: name}
}

// String returns the key in group.name form
func (k Key) String() string {
	return k.Group + "." + k.Name
}

// Lock represents exclusive ownership of a job or trigger key by one scheduler instance
type Lock struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Type       LockType           `json:"lock_type" bson:"lock_type"`
	KeyGroup   string             `json:"key_group" bson:"key_group"`
	KeyName    string             `json:"key_name" bson:"key_name"`
	InstanceID string             `json:"instance_id" bson:"instance_id"` // Owning scheduler instance
	Time       time.Time          `json:"lock_time" bson:"lock_time"`     // Acquisition or last refresh
}

// NewLock creates a lock record for key owned by instanceID
func NewLock(lockType LockType, key Key, instanceID string, at time.Time) Lock {
	return Lock{
		ID:         primitive.NewObjectID(),
		Type:       lockType,
		KeyGroup:   key.Group,
		KeyName:    key.Name,
		InstanceID: instanceID,
		Time:       at,
	}
}

// Key returns the job or trigger key guarded by the lock
func (l Lock) Key() Key {
	return Key{Group: l.KeyGroup, Name: l.KeyName}
}

// String implements fmt.Stringer for log output
func (l Lock) String() string {
	return fmt.Sprintf("Lock{id=%s, type=%s, key=%s, instance_id=%s, time=%s}",
		l.ID.Hex(), l.Type, l.Key(), l.InstanceID, l.Time.Format(time.RFC3339Nano))
}
