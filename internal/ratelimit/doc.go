// Package ratelimit implements the shared fixed-window admission counter.
//
// A window is anchored at the first request for a key. Each call atomically
// reads the counter and increments it with the remaining TTL preserved; the
// call is limited when the count before the increment had already reached
// the maximum. Backend failures fail open.
package ratelimit
