package model

// Scheduler is the membership record of one scheduler instance in the cluster
type Scheduler struct {
	Name            string `json:"scheduler_name" bson:"scheduler_name"`
	InstanceID      string `json:"instance_id" bson:"instance_id"`
	LastCheckinTime int64  `json:"last_checkin_time" bson:"last_checkin_time"` // Epoch millis
	CheckinInterval int64  `json:"checkin_interval" bson:"checkin_interval"`   // Lease duration in millis
}

// IsDefunct reports whether the instance's lease has run out at nowMillis.
// An instance exactly at its lease boundary is still alive.
func (s Scheduler) IsDefunct(nowMillis int64) bool {
	return nowMillis-s.LastCheckinTime > s.CheckinInterval
}

// LeaseExpiresAt returns the epoch millisecond after which the instance is defunct
func (s Scheduler) LeaseExpiresAt() int64 {
	return s.LastCheckinTime + s.CheckinInterval
}
