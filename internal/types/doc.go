// Package types provides shared data structures for the client runtime.
//
// This package defines the core types used across runtime components,
// ensuring consistent data structures between the lifecycle manager,
// the loading scheduler, and the notification engine.
//
// Core Types:
//   - AppRuntimeState: Installable-app status snapshot
//   - NetworkProfile, DeviceProfile: Sampled platform signals
//   - LoadingStrategy: Derived resource-loading parameters
//   - Preferences: Persisted notification preferences
//   - Subscription: Push subscription key material
//   - Notification: Display contract for notifications
package types
