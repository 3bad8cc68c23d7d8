// Package cli implements fleetctl, the command-line client for fleetdesk.
//
// # Commands
//
// access: verify team access, retrying transient failures
//
//	fleetctl access --team 2f1c...
//
// check: evaluate permissions for the session user
//
//	fleetctl check --team 2f1c... equipment.view equipment.edit
//
// repair: add yourself to a team as manager
//
//	fleetctl repair --team 2f1c...
//
// policy-validate: load and compile a policy file locally
//
//	fleetctl policy-validate --file policy.yaml
//
// API commands read the server URL from --server or $FLEETDESK_SERVER and the
// session token from --token or $FLEETDESK_TOKEN.
package cli
