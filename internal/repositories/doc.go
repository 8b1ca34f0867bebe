// Package repositories implements SQLite persistence for the CLI and TUI.
//
// The browser surface keeps its session in cookies; commands running outside a
// browser need the same [session.Store] semantics backed by a local database
// instead, so tokens survive between invocations.
//
// Key Implementations:
//   - [SessionRepository] : single local session plus the single-use OAuth state nonce
//   - [DeviceRepository] : last known playback device, reconciled on startup
package repositories
