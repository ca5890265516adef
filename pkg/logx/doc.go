// Package logx configures plugbridge's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional relay sink posting high-level events to a chat channel
//     (min-level + rate limiting)
package logx
