package tasks

import (
	"fmt"

	"github.com/desertthunder/scorebook/internal/models"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase (zero when unknown)
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	FetchPage Phase = iota
	StoreSongs
	SyncComplete
	PrefetchStatus
	PrefetchComplete
)

func (p Phase) String() string {
	switch p {
	case FetchPage:
		return "fetch_page"
	case StoreSongs:
		return "store_songs"
	case SyncComplete:
		return "sync_complete"
	case PrefetchStatus:
		return "prefetch_status"
	case PrefetchComplete:
		return "prefetch_complete"
	default:
		return ""
	}
}

func fetchPageUpdate(page, fetched, total int) ProgressUpdate {
	msg := fmt.Sprintf("Fetching page %d...", page)
	if total > 0 {
		msg = fmt.Sprintf("Fetching page %d (%d/%d songs)...", page, fetched, total)
	}
	return ProgressUpdate{
		Phase:   FetchPage,
		Step:    fetched,
		Total:   total,
		Message: msg,
	}
}

func storeSongUpdate(step, total int, song models.Song) ProgressUpdate {
	return ProgressUpdate{
		Phase:   StoreSongs,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] %s", step, total, song.Title),
		Data:    song,
	}
}

func syncCompleteUpdate(r *SyncResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   SyncComplete,
		Step:    r.Fetched,
		Total:   r.Total,
		Message: fmt.Sprintf("Synced %d songs (%d new, %d updated, %d failed)", r.Fetched, r.Created, r.Updated, len(r.Failed)),
		Data:    r,
	}
}

func prefetchedUpdate(step, total int, item StatusResult) ProgressUpdate {
	if item.Error != nil {
		return ProgressUpdate{
			Phase:   PrefetchStatus,
			Step:    step,
			Total:   total,
			Message: fmt.Sprintf("[%d/%d] ✗ %s %s: %v", step, total, item.Kind, item.SubjectID, item.Error),
			Data:    item,
		}
	}
	return ProgressUpdate{
		Phase:   PrefetchStatus,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, item.Status),
		Data:    item,
	}
}

func prefetchCompleteUpdate(r *PrefetchResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   PrefetchComplete,
		Step:    r.Succeeded + r.Failed,
		Total:   r.Requested,
		Message: fmt.Sprintf("Prefetched %d statuses (%d failed)", r.Succeeded, r.Failed),
		Data:    r,
	}
}
