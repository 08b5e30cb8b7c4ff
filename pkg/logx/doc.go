// Package logx wraps zerolog behind a small structured logging API.
//
// Logger is a value type: derive scoped loggers with With(), pass them into
// services, and let Service swap sinks at runtime without touching callers.
//
// Sinks
//
// Console and file sinks are configured up front. A third, optional sink
// forwards records at or above a minimum level to the platform's diagnostics
// channels through whatever Sender the application installs. Forwarding is
// rate limited and strictly best-effort: it never blocks logging and drops
// on overflow.
package logx
