// Package store defines the account store contract shared by the postgres,
// redis and in-memory implementations, the sentinel errors they return, and
// the transaction helper used by the SQL store.
package store
