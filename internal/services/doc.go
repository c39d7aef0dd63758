// Package services is the layer between the HTTP handlers and the license
// pipelines.
//
// LicenseService runs a pipeline, records the attempt metric, logs the
// outcome with the license key masked and publishes one request log per
// attempt. HealthService aggregates dependency checks for the readiness
// probe.
package services
