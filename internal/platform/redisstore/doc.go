// Package redisstore implements the account store on Redis. Each account is
// one hash under "account:{id}"; trial counters are fields named
// "trial:<feature>" so a Lua script can consume them atomically.
package redisstore
