// Package tasks runs catalogue operations with real-time progress reporting.
//
// # Core Operations
//
//  1. [CatalogueEngine.SyncCatalogue] : copy the remote song catalogue into the local database
//     - Pages through GET /songs until the reported total is reached or a short page arrives
//     - Upserts every song through a [SongStore] (repositories.SongRepository)
//     - Collects songs the store rejects instead of aborting
//
//  2. [CatalogueEngine.PrefetchStatuses] : warm the like and favourite caches
//     - Fans subjects out to a bounded worker pool sharing one rate limiter
//     - Refreshes through a [StatusReader] (toggle.Controller), so pending toggles are never overwritten
//     - Per-subject errors are collected, not fatal
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
