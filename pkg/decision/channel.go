package decision

import (
	"context"

	"github.com/aobuilder/aob/pkg/events"
)

// ChannelSink hands every Decision Record to a bounded channel for an
// out-of-process exporter to drain and batch into columnar files or
// whatever downstream wants. Record never blocks the engine step that
// produced the record: a full channel drops the record and reports it
// through Dropped rather than backpressuring the workflow.
type ChannelSink struct {
	out     chan *events.DecisionRecord
	Dropped func(rec *events.DecisionRecord)
}

// NewChannelSink constructs a ChannelSink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{out: make(chan *events.DecisionRecord, buffer)}
}

// Out exposes the channel for an exporter goroutine to range over.
func (c *ChannelSink) Out() <-chan *events.DecisionRecord {
	return c.out
}

// Record implements Sink.
func (c *ChannelSink) Record(_ context.Context, rec *events.DecisionRecord) error {
	select {
	case c.out <- rec:
	default:
		if c.Dropped != nil {
			c.Dropped(rec)
		}
	}
	return nil
}

// Close stops accepting new records and closes the output channel. Call
// only after every producer has stopped calling Record.
func (c *ChannelSink) Close() {
	close(c.out)
}
