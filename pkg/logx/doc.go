// Package logx configures massdm's structured logging.
//
// This repo uses a small wrapper (logx.Logger) on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - Optional stream sink feeding the in-process log buffer that backs
//     the /logs endpoint (min-level filtered)
package logx
