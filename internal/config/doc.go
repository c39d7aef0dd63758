// Package config provides centralized configuration management for the license gate.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//  1. Environment variables (highest priority)
//  2. A YAML file (LICENSEGATE_CONFIG_FILE or licensegate.yaml)
//  3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern LICENSEGATE_<SECTION>_<FIELD>:
//
//	LICENSEGATE_SERVER_PORT=8080
//	LICENSEGATE_SECURITY_LOOKUP_SECRET=...
//	LICENSEGATE_SECURITY_ENCRYPTION_SECRET=...
//	LICENSEGATE_DATABASE_DRIVER=postgres
//	LICENSEGATE_DATABASE_DSN=postgres://...
//	LICENSEGATE_REDIS_URL=redis://localhost:6379/0
//	LICENSEGATE_STORAGE_BACKEND=s3
//	LICENSEGATE_EVENTS_SINK=kafka
//	LICENSEGATE_EVENTS_BROKERS=kafka-1:9092,kafka-2:9092
//
// The two security secrets have no default and Load fails without them.
package config
