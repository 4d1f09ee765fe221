// Package snapshot models the read-only cluster state consumed by rule
// evaluation. A snapshot is refreshed once per evaluation cycle by whichever
// Provider owns cluster discovery and passed into evaluators explicitly;
// nothing in this package is mutated after construction.
package snapshot

import "time"

// Cluster is the summary view of one monitored cluster
type Cluster struct {
	Name      string `json:"name"`
	Healthy   bool   `json:"healthy"`
	NodeCount int    `json:"node_count"`
	Message   string `json:"message,omitempty"` // set when unhealthy

	// Aggregate resource pool across the cluster's nodes. Zero capacity
	// means the pool was not reported.
	Allocated float64 `json:"allocated"`
	Capacity  float64 `json:"capacity"`
}

// PodIssue is one problem pod reported by the introspection API
type PodIssue struct {
	Cluster   string `json:"cluster"`
	Namespace string `json:"namespace"`
	Name      string `json:"name"`
	Restarts  int    `json:"restarts"`
	Status    string `json:"status"` // e.g. CrashLoopBackOff, Pending
	Reason    string `json:"reason,omitempty"`
}

// Snapshot is one consistent view of the fleet
type Snapshot struct {
	Clusters  []Cluster  `json:"clusters"`
	PodIssues []PodIssue `json:"pod_issues"`
	TakenAt   time.Time  `json:"taken_at"`
}
