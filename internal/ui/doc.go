// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI is a single song list:
//   - l toggles the like of the selected song, f its favourite
//   - r refreshes both statuses of the selected song
//   - / filters the list, esc clears the last error
//
// Toggles go through the optimistic [toggle.Controller] of each kind, so a row flips as soon as the
// key is pressed and shows a pending marker until the server settles it. Controller events arrive as
// [Msg] values; a rolled back toggle restores the row and puts its error in the status line.
//
// The (view) [Model] owns a context that is cancelled when the view is left, which abandons any
// toggle still in flight.
package ui
