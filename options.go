package fstream

// Signal names a kind of stream signal.
type Signal string

const (
	SignalNext     Signal = "next"
	SignalError    Signal = "error"
	SignalComplete Signal = "complete"
)

// Dropped describes a signal that arrived after the stream was cancelled
// or had already terminated and was therefore discarded.
type Dropped struct {
	Signal Signal
	Err    error // set for SignalError
	Bytes  int   // set for SignalNext
}

// DroppedHook observes discarded signals. It must not block.
type DroppedHook func(d Dropped)

// Option configures a source or sink.
type Option func(*options)

type options struct {
	dropped DroppedHook
}

// WithDroppedHook installs a hook that is called for every signal discarded
// after cancellation or termination. Without it such signals vanish silently.
func WithDroppedHook(h DroppedHook) Option {
	return func(o *options) { o.dropped = h }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

func (o *options) drop(d Dropped) {
	if o.dropped != nil {
		o.dropped(d)
	}
}
