// Package redis provides the Redis/Valkey client used for cross-instance
// coordination, plus RedLock-based distributed locks.
//
// Supported deployment modes include standalone, sentinel, and cluster.
// Authentication supports static passwords; TLS validation is configured
// through a base64-encoded CA bundle.
package redis
