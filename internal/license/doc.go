// Package license implements the verification and distribution pipelines.
//
// Both pipelines evaluate one request as an ordered series of checks and stop
// at the first denial. Every outcome, including success, is a Verdict carrying
// a stable Code. Policy failures are never returned as Go errors; only
// infrastructure faults become CodeInternalError, with the cause kept on the
// verdict for logging and never rendered to the caller.
//
// Persistence is reached through Store, admission control through
// RateLimiter, artifact bytes through ArtifactStore and bytecode watermarking
// through Watermarker. Time comes from a quartz.Clock so expiration, seat and
// IP-limit windows can be tested deterministically.
package license
