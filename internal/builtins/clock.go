// ABOUTME: Clock pack: lizi_watch reports the local date, time and weekday.

package builtins

import (
	"context"
	"encoding/json"
	"time"

	"github.com/2389/lizi-tools/internal/packs"
)

// ClockPack creates the clock pack. now and loc may be nil for the system clock and zone.
func ClockPack(now func() time.Time, loc *time.Location) *packs.BuiltinPack {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.Local
	}
	c := &clockHandlers{now: now, loc: loc}
	return &packs.BuiltinPack{
		ID: "builtin:clock",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:            "lizi_watch",
					Description:     "Look at the watch: current local date, time and weekday",
					InputSchemaJSON: `{"type":"object","properties":{}}`,
				},
				Handler: c.Watch,
			},
		},
	}
}

type clockHandlers struct {
	now func() time.Time
	loc *time.Location
}

func (c *clockHandlers) Watch(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error) {
	t := c.now().In(c.loc)
	zone, _ := t.Zone()
	return json.Marshal(map[string]string{
		"now":      t.Format("2006-01-02 15:04:05"),
		"weekday":  t.Weekday().String(),
		"timezone": zone,
		"rfc3339":  t.Format(time.RFC3339),
	})
}
