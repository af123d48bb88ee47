package statsd

import "time"

type fanout []Sink

// Fanout returns a Sink that forwards every metric to each non-nil sink.
// It returns nil when no sinks remain.
func Fanout(sinks ...Sink) Sink {
	var out fanout
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return out
	}
}

func (f fanout) Count(name string, value int64, tags map[string]string) {
	for _, s := range f {
		s.Count(name, value, tags)
	}
}

func (f fanout) Gauge(name string, value float64, tags map[string]string) {
	for _, s := range f {
		s.Gauge(name, value, tags)
	}
}

func (f fanout) Timing(name string, value time.Duration, tags map[string]string) {
	for _, s := range f {
		s.Timing(name, value, tags)
	}
}
