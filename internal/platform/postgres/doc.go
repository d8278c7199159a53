// Package postgres provides the PostgreSQL implementation of the account
// store defined in internal/store, together with the embedded schema
// migrations and connection helpers it needs.
//
// Accounts live in two tables: accounts holds the scalar fields and
// account_feature_trials holds one row per (account, feature) counter, so a
// trial use can be consumed with a single conditional UPDATE.
package postgres
