// Package httputil provides the JSON response and request helpers shared by
// fleetdesk HTTP handlers.
//
// Error bodies always have the shape {"error": "...", "request_id": "..."} so
// clients can correlate a failure with server logs:
//
//	var req CheckRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // 400 already written
//	}
//	httputil.WriteSuccess(w, resp)
package httputil
