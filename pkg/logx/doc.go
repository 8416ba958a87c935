// Package logx configures rotabot's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional Telegram sink (min-level + rate limiting)
//
// Loggers created from a Service stay "live": Service.Apply swaps sinks and
// levels at runtime without invalidating existing Logger values.
package logx
