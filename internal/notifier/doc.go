// Package notifier provides a lightweight operator notification service.
//
// Notifications are small, high-signal messages intended for operators
// (live-stream edges, cycle completions, rejected signals). A notification
// carries a priority and a target chat.
//
// # Transport
//
// Delivery is delegated to a transport.Adapter implementation (the Telegram
// adapter today). Queueing, rate limiting, retry and dedup live here so
// emitters stay fire-and-forget.
//
// # History
//
// For debugging and /status visibility, the service keeps a small in-memory
// history of recently sent notifications.
package notifier
