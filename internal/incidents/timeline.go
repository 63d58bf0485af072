package incidents

import (
	"context"
	"time"

	"github.com/statusdeck-dev/statusdeck/internal/models"
	"github.com/statusdeck-dev/statusdeck/internal/store"
)

// appendTimeline writes one immutable audit entry inside the caller's
// transaction. There is no update or delete counterpart by design;
// corrections are new entries. createdBy is nil for system-generated
// entries.
func appendTimeline(ctx context.Context, tx store.Tx, incidentID uint, entryType models.TimelineEntryType, content string, createdBy *uint) (*models.TimelineEntry, error) {
	entry := &models.TimelineEntry{
		IncidentID: incidentID,
		OccurredAt: time.Now().UTC(),
		EntryType:  entryType,
		Content:    content,
		CreatedBy:  createdBy,
	}
	if err := tx.AppendTimelineEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
