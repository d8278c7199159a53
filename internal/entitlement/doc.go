// Package entitlement derives the effective access profile of an account at a
// point in time. Derive is a pure function of its inputs: it performs no I/O,
// reads no clock and holds no state, so any number of goroutines may call it.
package entitlement
