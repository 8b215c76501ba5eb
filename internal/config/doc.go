// Package config provides 12-factor configuration for the client runtime.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Server: HTTP surface settings (port, host)
//   - Worker: background-script registration (script URL, scope)
//   - Push: push subscription settings (VAPID public key, registry URL)
//   - Storage: durable local state location
//   - Loading: loading-simulation bounds
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting configuration
//
// Environment Variables:
//   - PORT, HOST
//   - WORKER_SCRIPT_URL, WORKER_SCOPE, UPDATE_CHECK_INTERVAL
//   - VAPID_PUBLIC_KEY, REGISTRY_URL, USER_ID
//   - STORAGE_PATH
//   - MIN_LOAD_TIME_MS, MAX_LOAD_TIME_MS
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
