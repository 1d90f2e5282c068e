package transport

import (
	applog "sti/internal/log"
	"sti/internal/sti"
)

// LoggingTransport is a diagnostics sink: it logs a one-line summary per
// iteration at debug level and never fails a delivery.
type LoggingTransport struct{}

// NewLoggingTransport creates a LoggingTransport.
func NewLoggingTransport() *LoggingTransport {
	return &LoggingTransport{}
}

// Send implements Transport.
func (lt *LoggingTransport) Send(data any) error {
	if it, ok := data.(sti.Iteration); ok && it.Cube != nil {
		applog.Debugf("transport: iteration %d of %s: cube (%d, %d, %d), progress %.0f%%",
			it.Index, it.Entry, it.Cube.NFFT, it.Cube.NTime, it.Cube.NumSub, it.Progress*100)
	}
	return nil
}

// Close implements Transport.
func (lt *LoggingTransport) Close() error {
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
