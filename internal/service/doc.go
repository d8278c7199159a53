// Package service contains the application use cases that sit between the
// HTTP layer and the account store: provisioning new accounts, applying paid
// upgrades and describing an account's current entitlements.
//
// Services receive their store and clock through constructor injection and
// never depend on a specific store implementation.
package service
