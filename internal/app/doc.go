// Package app wires the license gate together and manages its lifecycle.
//
// # Initialization Flow
//
//  1. Load configuration from defaults, an optional YAML file and env
//  2. Initialize logging and OpenTelemetry
//  3. Open the policy store (memory with an optional seed, or Postgres)
//  4. Connect Redis for the admission limiter
//  5. Build artifact storage, the watermark client and the event sink
//  6. Assemble the verification and distribution pipelines
//  7. Mount handlers and middleware, start the HTTP server and the
//     request log retention job
//
// # Graceful Shutdown
//
// SIGINT and SIGTERM stop the server first so in-flight downloads can
// finish within the shutdown timeout. The retention job, the event sink,
// Redis, the store and the telemetry providers are closed afterwards in
// reverse order of creation.
//
// Initialization errors are returned to the caller; the package never
// calls os.Exit.
package app
