// Package api exposes the permission engine and the team access resolver over HTTP.
//
// Routes:
//
//	POST   /api/v1/permissions/check                  single permission decision
//	POST   /api/v1/permissions/batch                  several decisions for one entity
//	DELETE /api/v1/permissions/cache                  drop cached decisions (org owner/admin)
//	GET    /api/v1/teams/{teamID}/access              resolve team access for the caller
//	POST   /api/v1/teams/{teamID}/membership/repair   add the caller to the team as manager
//	GET    /health/live, /health/ready                probes
//	GET    /metrics                                   Prometheus
//
// Every /api/v1 route requires "Authorization: Bearer fdk_...".
package api
