// Package domain contains the account entities of the service: the persisted
// Account document, the ordered subscription Tier and the metered Features
// with their default trial allowances. It has no infrastructure dependencies.
package domain
