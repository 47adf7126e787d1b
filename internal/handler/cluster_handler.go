package handler

import (
	"context"
	"net/http"

	"github.com/dandantas/cronlease/internal/model"
)

// NodeSource lists membership records
type NodeSource interface {
	InstanceID() string
	FindAll(ctx context.Context) ([]model.Scheduler, error)
	IsSelf(s model.Scheduler) bool
}

// LockSource lists the trigger locks of an instance
type LockSource interface {
	FindLocks(ctx context.Context, instanceID string) ([]model.Lock, error)
}

// DefunctChecker decides whether a node's lease ran out
type DefunctChecker interface {
	IsDefunct(s model.Scheduler) bool
}

// ClusterHandler exposes cluster membership and lock ownership
type ClusterHandler struct {
	nodes  NodeSource
	locks  LockSource
	expiry DefunctChecker
}

// NewClusterHandler creates a new cluster handler
func NewClusterHandler(nodes NodeSource, locks LockSource, expiry DefunctChecker) *ClusterHandler {
	return &ClusterHandler{
		nodes:  nodes,
		locks:  locks,
		expiry: expiry,
	}
}

// NodeView is a membership record with its liveness as seen by this instance
type NodeView struct {
	model.Scheduler
	LeaseExpiresAt int64 `json:"lease_expires_at"`
	Defunct        bool  `json:"defunct"`
	Self           bool  `json:"self"`
}

// NodeListResponse represents the node list response
type NodeListResponse struct {
	InstanceID string     `json:"instance_id"`
	Total      int        `json:"total"`
	Nodes      []NodeView `json:"nodes"`
}

// LockListResponse represents the lock list response
type LockListResponse struct {
	InstanceID string       `json:"instance_id"`
	Total      int          `json:"total"`
	Locks      []model.Lock `json:"locks"`
}

// Nodes handles GET /api/v1/cluster/nodes
func (h *ClusterHandler) Nodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	records, err := h.nodes.FindAll(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	views := make([]NodeView, 0, len(records))
	for _, rec := range records {
		self := h.nodes.IsSelf(rec)
		views = append(views, NodeView{
			Scheduler:      rec,
			LeaseExpiresAt: rec.LeaseExpiresAt(),
			Defunct:        !self && h.expiry.IsDefunct(rec),
			Self:           self,
		})
	}

	writeJSON(w, http.StatusOK, NodeListResponse{
		InstanceID: h.nodes.InstanceID(),
		Total:      len(views),
		Nodes:      views,
	})
}

// Locks handles GET /api/v1/cluster/locks?instance_id=
func (h *ClusterHandler) Locks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	instanceID := r.URL.Query().Get("instance_id")
	if instanceID == "" {
		instanceID = h.nodes.InstanceID()
	}

	locks, err := h.locks.FindLocks(r.Context(), instanceID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if locks == nil {
		locks = []model.Lock{}
	}

	writeJSON(w, http.StatusOK, LockListResponse{
		InstanceID: instanceID,
		Total:      len(locks),
		Locks:      locks,
	})
}
