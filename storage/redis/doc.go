// Package redis provides the Redis-backed session store used by the staged
// search pipeline. Stage outputs, the session record, and the final response
// are stored as separate keys under one session namespace, each carrying the
// session TTL so interrupted sessions evaporate on their own.
package redis
