// quirks.go provides the table of pipeline behaviors the sink bridge
// handles differently from the event semantics.

package avbridge

import (
	"context"

	"github.com/xaionaro-go/avbridge/pipeline"
)

type quirk struct {
	Description string
	Match       func(ev pipeline.Event) bool
	Condition   func(f *Filter) bool
	Action      func(ctx context.Context, port *OutputPort, ev pipeline.Event) bool
}

func isTearingDown(f *Filter) bool {
	return f.suppressFlush.Load()
}

// quirks are checked in order; the first matching entry applies.
var quirks = []quirk{
	{
		// decoders send flush-start to their peers when going to ready,
		// and never a flush-stop; the next run would stay flushing
		Description: "flush-start during teardown",
		Match: func(ev pipeline.Event) bool {
			_, ok := ev.(*pipeline.EventFlushStart)
			return ok
		},
		Condition: isTearingDown,
		Action: func(ctx context.Context, port *OutputPort, ev pipeline.Event) bool {
			if port.sinkPad != nil {
				port.sinkPad.ClearFlushing()
			}
			return true
		},
	},
	{
		Description: "flush-stop during teardown",
		Match: func(ev pipeline.Event) bool {
			_, ok := ev.(*pipeline.EventFlushStop)
			return ok
		},
		Condition: isTearingDown,
		Action: func(ctx context.Context, port *OutputPort, ev pipeline.Event) bool {
			return true
		},
	},
}

func findQuirk(f *Filter, ev pipeline.Event) *quirk {
	for idx := range quirks {
		q := &quirks[idx]
		if q.Match(ev) && q.Condition(f) {
			return q
		}
	}
	return nil
}
