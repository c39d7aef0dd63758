// Package events publishes request logs and audit records.
//
// A Sink never fails the request that produced the event: publish errors
// are logged and dropped. KafkaSink writes asynchronously keyed by license
// so records for one license stay ordered within a partition.
package events
