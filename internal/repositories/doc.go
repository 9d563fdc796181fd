// Package repositories implements SQLite persistence for the scorebook client.
//
// Key Implementations:
//   - [SongRepository] : local copy of the song catalogue, filled by tasks.SyncCatalogue
//   - [LocalCatalogue] : read-only services.Catalogue over the repository, used when the API is unreachable
//   - [ToggleJournal] : append-only history of settled toggles, written by the toggle controller
//
// Songs are soft deleted via deleted_at and excluded from queries by default. Syncing a song
// that was deleted restores it.
//
// Sequence numbers provide stable ordering independent of server ids and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
