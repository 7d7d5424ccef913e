package event

import (
	"context"
	"fmt"

	"example.com/sdrmodel/internal/common"
)

// Entry converts ev to an event log entry. Ids are written as 0x-prefixed
// hex, the way the radio prints them.
func (e Event) Entry() common.EventEntry {
	return common.EventEntry{
		Type:     e.Type.String(),
		Kind:     e.Kind,
		ID:       fmt.Sprintf("0x%08X", e.ID),
		Property: e.Property,
		Old:      e.Old,
		New:      e.New,
		Ts:       e.Time.UTC(),
	}
}

// Journal appends every event from sub to log until ctx is done or sub is
// closed. Meter value changes are skipped unless withValues is set; they
// arrive at the meter packet rate.
func Journal(ctx context.Context, sub *Subscription, log *common.EventLog, withValues bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sub.C():
			if !ok {
				return nil
			}
			if !withValues && ev.Type == PropertyChanged && ev.Kind == "meter" && ev.Property == "value" {
				continue
			}
			if err := log.Append(ev.Entry()); err != nil {
				common.Throttled("event-log", "event log: %v", err)
			}
		}
	}
}
