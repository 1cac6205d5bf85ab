// Package logx configures tgadder's structured logging.
//
// A small wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured, one line per event
//   - An optional operator sink (min-level + rate limiting) that forwards
//     warnings to a Telegram chat through a Sender
package logx
