package api

import (
	"github.com/fleetdesk/fleetdesk/pkg/permissions"
)

// CheckPermissionRequest is the body of POST /api/v1/permissions/check
type CheckPermissionRequest struct {
	Permission string                     `json:"permission"`
	Entity     *permissions.EntityContext `json:"entity,omitempty"`
}

// CheckPermissionResponse reports a single decision
type CheckPermissionResponse struct {
	Permission string `json:"permission"`
	Allowed    bool   `json:"allowed"`
}

// BatchCheckRequest is the body of POST /api/v1/permissions/batch
type BatchCheckRequest struct {
	Permissions []string                   `json:"permissions"`
	Entity      *permissions.EntityContext `json:"entity,omitempty"`
}

// BatchCheckResponse maps every requested permission to its decision
type BatchCheckResponse struct {
	Results map[string]bool `json:"results"`
}

// maxBatchPermissions caps a single batch request
const maxBatchPermissions = 100
