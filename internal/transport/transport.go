// Package transport delivers published STI results to external consumers:
// WebSocket broadcast for browser clients, UDP binary packets for plotting
// tools, and a logging sink for diagnostics.
package transport

// Transport is a generic sink for processed results or events.
// Implementations must be safe for concurrent use.
type Transport interface {
	Send(data any) error
	Close() error
}

// Fanout delivers every Send to each wrapped transport in order. The first
// delivery error aborts the fanout and is returned, so a failing consumer
// surfaces to the session loop instead of being silently dropped.
type Fanout []Transport

// Send implements Transport.
func (f Fanout) Send(data any) error {
	for _, t := range f {
		if err := t.Send(data); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every wrapped transport, returning the first error.
func (f Fanout) Close() error {
	var first error
	for _, t := range f {
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ Transport = (Fanout)(nil)
