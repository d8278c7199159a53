// Package testdb provides utilities specifically for postgres integration
// tests. Tests that call Open are skipped unless DATABASE_URL points at a
// disposable database.
package testdb
