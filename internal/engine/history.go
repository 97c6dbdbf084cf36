package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/JineeshTS/GanakysPortal-sub004/internal/store"
)

// historyEntry builds an entry for inst without details.
func historyEntry(instanceID, action, from, to, actor string, at time.Time) *store.HistoryEntry {
	return &store.HistoryEntry{
		InstanceID: instanceID,
		Action:     action,
		FromNode:   from,
		ToNode:     to,
		ActorID:    actor,
		Timestamp:  at,
	}
}

// appendHistory encodes details onto entry and writes it inside the
// operation's transaction. Empty detail maps are omitted. The store assigns
// the per-instance sequence number, so a rolled-back attempt never leaves a
// gap visible to readers.
func appendHistory(ctx context.Context, tx store.Tx, entry *store.HistoryEntry, details map[string]any) error {
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err != nil {
			return fmt.Errorf("encode %s history details: %w", entry.Action, err)
		}
		entry.Details = raw
	}
	if err := tx.AppendHistory(ctx, entry); err != nil {
		return fmt.Errorf("append %s history: %w", entry.Action, err)
	}
	return nil
}
