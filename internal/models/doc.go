// Package models defines domain entities and persistence interfaces for the scorebook client.
//
// The package contains three groups of types:
//
// 1. Toggle state, shared by the controller, the store and the services
//   - [Status] : one subject's boolean and counter for a [Kind]
//   - [LikeStatus], [FavouriteStatus] : wire schemas validated at the network boundary
//
// 2. Catalogue data
//   - [Song] : song metadata returned by the remote API
//   - [PersistedSong] : a song cached in sqlite for offline listing
//
// 3. Diagnostics
//   - [ToggleRecord] : a settled toggle appended to the local journal
//
// Persistent entities implement the [Model] interface; [Repository] defines standard CRUD operations.
// Status values are never persisted; the server is their only source of truth.
package models
