// Package client is a small HTTP client for the fleetdesk API.
//
// Client implements teamaccess.Checker, so it can be wrapped in a
// teamaccess.Verifier for interactive retries:
//
//	c := client.New("https://fleetdesk.internal", token)
//	v := teamaccess.NewVerifier(c)
//	result, err := v.Verify(ctx, userID, teamID, onUpdate)
package client
