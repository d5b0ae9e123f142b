package platform

import (
	"strings"
	"time"

	"github.com/geetools/exportsched/internal/core"
)

// Operation is a long-running operation resource.
type Operation struct {
	// Name is the full resource name, projects/{project}/operations/{id}.
	Name     string            `json:"name"`
	Metadata OperationMetadata `json:"metadata"`
	Done     bool              `json:"done"`
	Error    *OperationError   `json:"error,omitempty"`
}

// OperationMetadata carries the task progress reported by the platform.
type OperationMetadata struct {
	State       string    `json:"state"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type,omitempty"`
	Priority    int       `json:"priority,omitempty"`
	Progress    float64   `json:"progress,omitempty"`
	CreateTime  time.Time `json:"createTime,omitzero"`
	UpdateTime  time.Time `json:"updateTime,omitzero"`
	StartTime   time.Time `json:"startTime,omitzero"`
	EndTime     time.Time `json:"endTime,omitzero"`
}

// OperationError is the failure reason of a done operation.
type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type listOperationsResponse struct {
	Operations    []Operation `json:"operations"`
	NextPageToken string      `json:"nextPageToken"`
}

// ID returns the last segment of the operation name.
func (o *Operation) ID() string {
	if i := strings.LastIndex(o.Name, "/"); i >= 0 {
		return o.Name[i+1:]
	}
	return o.Name
}

// State maps the operation onto a remote job state. A done operation that
// carries an error is FAILED regardless of its reported state.
func (o *Operation) State() core.State {
	if o.Done && o.Error != nil {
		return core.StateFailed
	}
	switch strings.ToUpper(o.Metadata.State) {
	case "PENDING":
		return core.StateReady
	case "RUNNING":
		return core.StateRunning
	case "CANCELLING":
		return core.StateCancelRequested
	case "SUCCEEDED":
		return core.StateCompleted
	case "CANCELLED":
		return core.StateCancelled
	case "FAILED":
		return core.StateFailed
	}
	if o.Done {
		return core.StateCompleted
	}
	return core.StateReady
}
