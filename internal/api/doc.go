// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It acts as an adapter between external clients
// and the account, trial, assistant and billing services.
//
// Every route behind the entitlement middleware finds the guard decision in
// its request context; handlers of metered features pass the decision's
// snapshot to the trial counter before doing any work.
package api
