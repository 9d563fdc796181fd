// Package toggle implements optimistic like and favourite toggles.
//
// A [Controller] owns one [models.Kind]. [Controller.Toggle] writes the flipped status to the
// [store.StatusStore] before the request leaves and returns a [Pending] handle; the request runs in
// its own goroutine. When it settles the controller either keeps the optimistic value and marks the
// configured aggregate keys stale, or restores the last server-confirmed value and marks it stale
// so the next read refetches the truth.
//
// Toggles of one subject form a FIFO lane. Only the head of the lane has a request in flight; each
// later toggle computes its target from the state the previous one settled to, so every user action
// costs exactly one round trip and the counter never drifts by more than one.
//
// Reads ([Controller.GetStatus]) honour the store's staleness window and never overwrite a value
// written by a toggle that started after the read: every write bumps a per-key version that a
// refresh checks before storing its result.
//
// State transitions happen under a single mutex. Visible changes are published on
// [Controller.Events] without blocking.
package toggle
