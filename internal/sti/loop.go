package sti

import (
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"sti/internal/config"
	"sti/internal/drf"
	applog "sti/internal/log"
)

// Reason classifies why a session's loop terminated. Code 0 is a clean,
// user-requested stop and never produces an error message.
type Reason int

const (
	ReasonStopped           Reason = 0 // user-initiated abort
	ReasonArchiveMissing    Reason = 1 // archive path has no readable metadata
	ReasonStreamUnavailable Reason = 2 // channel entry missing or unreadable
	ReasonInitTimeout       Reason = 3 // construction barrier timed out
	ReasonLoopError         Reason = 4 // unclassified failure inside the loop body
	ReasonCallbackError     Reason = 5 // consumer transport rejected a publish
)

// Message returns the user-facing description of a termination reason.
func (r Reason) Message() string {
	switch r {
	case ReasonStopped:
		return "processing stopped"
	case ReasonArchiveMissing:
		return "archive path is missing or holds no readable data"
	case ReasonStreamUnavailable:
		return "requested channel is unavailable"
	case ReasonInitTimeout:
		return "processor initialization timed out"
	case ReasonLoopError:
		return "processing failed; check archive and FFT parameters"
	case ReasonCallbackError:
		return "result delivery to the consumer failed"
	default:
		return "unknown termination reason"
	}
}

// State is the lifecycle of one Processor.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
	StateErrored
)

// Transport delivers iteration results to an external consumer.
// Implementations must be safe for use from the loop goroutine.
type Transport interface {
	Send(data any) error
}

// Iteration is one published STI result.
type Iteration struct {
	Index       int
	Entry       string
	Times       []float64 // epoch seconds per time bin, parallel to the cube
	Frequencies []float64 // Hz, centered, parallel to the cube
	Cube        *Cube
	Median      [][]float64 // per-subchannel median spectrum
	Progress    float64     // fraction of the archive covered by the window end
}

// Termination is the final event of a session, published exactly once.
type Termination struct {
	ID     int
	Entry  string
	Reason Reason
	Err    error
}

// Events carries one session's output. Iterated and Settings hold at most
// one pending value — a newer result overwrites an older undisplayed one —
// so a slow consumer never builds a backlog of stale cubes.
type Events struct {
	Iterated   chan Iteration
	Settings   chan Effective
	Terminated chan Termination
}

func newEvents() *Events {
	return &Events{
		Iterated:   make(chan Iteration, 1),
		Settings:   make(chan Effective, 1),
		Terminated: make(chan Termination, 1),
	}
}

// pushLatest delivers v with at-most-one-pending semantics: if the
// consumer has not drained the previous value, it is dropped in favor of v.
func pushLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

// Options configures one Processor's loop behavior.
type Options struct {
	Streaming         bool          // slide the window with archive growth
	WindowSpan        float64       // streaming window span, seconds
	StreamingInterval time.Duration // pacing sleep in streaming mode
	PlaybackInterval  time.Duration // pacing sleep in playback mode
	BarrierRetries    int           // init barrier polls before reason 3
	BarrierInterval   time.Duration // pause between barrier polls
	Transport         Transport     // optional external result sink
}

func (o Options) withDefaults() Options {
	if o.WindowSpan <= 0 {
		o.WindowSpan = config.DefaultStreamingWindowSeconds
	}
	if o.StreamingInterval <= 0 {
		o.StreamingInterval = config.DefaultStreamingInterval
	}
	if o.PlaybackInterval <= 0 {
		o.PlaybackInterval = config.DefaultPlaybackInterval
	}
	if o.BarrierRetries <= 0 {
		o.BarrierRetries = config.DefaultBarrierRetries
	}
	if o.BarrierInterval <= 0 {
		o.BarrierInterval = config.DefaultBarrierInterval
	}
	return o
}

// Processor runs one channel entry's STI loop. The loop goroutine owns the
// archive read cursor and the live settings snapshot; consumers only ever
// receive copies. Within a session everything is sequential — plan, read,
// compute, publish — so the only synchronization is the settings pointer
// swap and the abort flag, both checked at iteration boundaries.
type Processor struct {
	id      int
	entry   string
	channel string
	sub     int
	acc     *drf.Accessor
	rate    *big.Rat
	opts    Options

	settings      atomic.Pointer[Settings]
	state         atomic.Int32
	ready         atomic.Bool
	aborted       atomic.Bool
	pendingReason atomic.Int32
	pendingErr    error // set before ready/pendingReason publish it
	termOnce      atomic.Bool
	events        *Events
	done          chan struct{}

	engine *Engine
	freqs  []float64
}

// NewProcessor builds a processor over an already-open accessor. The
// returned processor is Idle; call Run (usually in its own goroutine) to
// start it. Construction problems are not returned here — they surface as
// a termination event when Run starts, mirroring how the loop reports all
// other failures.
func NewProcessor(id int, acc *drf.Accessor, entry string, initial Settings, opts Options) *Processor {
	p := &Processor{
		id:     id,
		entry:  entry,
		acc:    acc,
		opts:   opts.withDefaults(),
		events: newEvents(),
		done:   make(chan struct{}),
	}
	norm := initial.Normalized()
	p.settings.Store(&norm)

	channel, sub, err := acc.ResolveEntry(entry)
	if err != nil {
		p.fail(ReasonStreamUnavailable, err)
		return p
	}
	rate, err := acc.SampleRate(channel)
	if err != nil {
		p.fail(ReasonStreamUnavailable, err)
		return p
	}

	p.channel = channel
	p.sub = sub
	p.rate = rate
	p.ready.Store(true)
	return p
}

// NewProcessorPath opens the archive at path and builds a processor for
// entry. An unopenable path yields a processor that terminates with
// reason 1 when run.
func NewProcessorPath(id int, path, entry string, initial Settings, opts Options) *Processor {
	acc, err := drf.Open(path)
	if err != nil {
		p := &Processor{
			id:     id,
			entry:  entry,
			opts:   opts.withDefaults(),
			events: newEvents(),
			done:   make(chan struct{}),
		}
		norm := initial.Normalized()
		p.settings.Store(&norm)
		p.fail(ReasonArchiveMissing, err)
		return p
	}
	return NewProcessor(id, acc, entry, initial, opts)
}

// fail records a construction failure for Run to report. pendingErr is
// written before the pendingReason store that publishes it.
func (p *Processor) fail(reason Reason, err error) {
	p.pendingErr = err
	p.pendingReason.Store(int32(reason))
}

// Events returns the session's event channels.
func (p *Processor) Events() *Events {
	return p.events
}

// State returns the current lifecycle state.
func (p *Processor) State() State {
	return State(p.state.Load())
}

// Done is closed when Run has finished, after the termination event.
func (p *Processor) Done() <-chan struct{} {
	return p.done
}

// Entry returns the channel entry this processor serves.
func (p *Processor) Entry() string {
	return p.entry
}

// UpdateSettings stores a new settings snapshot. The running loop applies
// it wholesale at the top of its next iteration, never mid-computation.
func (p *Processor) UpdateSettings(s Settings) {
	norm := s.Normalized()
	p.settings.Store(&norm)
}

// Abort requests a clean stop. Idempotent, safe on an already-stopped
// session. An abort that lands during a read does not truncate it: the
// in-flight iteration still publishes its cube, and the loop stops at the
// next iteration boundary.
func (p *Processor) Abort() {
	p.aborted.Store(true)
}

// Run executes the loop to termination. It begins with a bounded barrier
// so a loop scheduled before construction fully completed cannot touch
// half-built state; a barrier timeout terminates with reason 3 without the
// loop body ever running.
func (p *Processor) Run() {
	defer close(p.done)

	for retries := 0; !p.ready.Load(); retries++ {
		if r := Reason(p.pendingReason.Load()); r != ReasonStopped {
			p.terminate(r, p.pendingErr)
			return
		}
		if retries >= p.opts.BarrierRetries {
			p.terminate(ReasonInitTimeout, errors.New("initialization barrier timed out"))
			return
		}
		time.Sleep(p.opts.BarrierInterval)
	}
	// Re-check after the barrier releases: a failure may have landed
	// between the ready store and now.
	if r := Reason(p.pendingReason.Load()); r != ReasonStopped {
		p.terminate(r, p.pendingErr)
		return
	}

	p.state.Store(int32(StateRunning))
	applog.Infof("sti: session %d processing %s (streaming=%v)", p.id, p.entry, p.opts.Streaming)

	for i := 0; ; i++ {
		if p.aborted.Load() {
			p.terminate(ReasonStopped, nil)
			return
		}

		if err := p.iterate(i); err != nil {
			p.terminate(reasonFor(err), err)
			return
		}

		if p.opts.Streaming {
			time.Sleep(p.opts.StreamingInterval)
		} else {
			time.Sleep(p.opts.PlaybackInterval)
		}
	}
}

// callbackError marks a transport delivery failure so terminate can report
// reason 5 instead of the generic loop error.
type callbackError struct {
	err error
}

func (e callbackError) Error() string { return "callback: " + e.err.Error() }
func (e callbackError) Unwrap() error { return e.err }

func reasonFor(err error) Reason {
	var cb callbackError
	if errors.As(err, &cb) {
		return ReasonCallbackError
	}
	return ReasonLoopError
}

// iterate runs one pass: settings snapshot, bounds refresh, window
// derivation, plan, read, compute, publish.
func (p *Processor) iterate(i int) error {
	s := *p.settings.Load()

	if p.engine == nil || p.engine.NFFT() != s.FFTLength {
		engine, err := NewEngine(s.FFTLength)
		if err != nil {
			return err
		}
		p.engine = engine
		p.freqs = engine.FrequencyAxis(p.rate)
	}

	bnds, err := p.acc.Bounds(p.channel)
	if err != nil {
		return fmt.Errorf("refreshing bounds: %w", err)
	}

	var start, end int64
	if p.opts.Streaming {
		start, end = StreamingWindow(bnds, p.rate, p.opts.WindowSpan)
	} else if s.WindowStart == 0 && s.WindowEnd == 0 {
		// No window chosen yet: show the whole archive.
		start, end = bnds.First, bnds.Last
	} else {
		if start, err = p.acc.TimeToSample(p.channel, s.WindowStart); err != nil {
			return err
		}
		if end, err = p.acc.TimeToSample(p.channel, s.WindowEnd); err != nil {
			return err
		}
	}

	plan := Plan(bnds, start, end, s.FFTLength, s.Integrations, s.TimeBins)

	numSub := 1
	if p.sub < 0 {
		if numSub, err = p.acc.SubchannelCount(p.channel); err != nil {
			return err
		}
	}

	cube := NewCube(s.FFTLength, s.TimeBins, numSub)
	cube.Frequencies = append([]float64(nil), p.freqs...)

	for t, req := range plan {
		data, span, err := p.acc.Read(p.entry, req.Start, req.Count, true)
		if err != nil {
			return fmt.Errorf("reading bin %d: %w", t, err)
		}
		for sub := range data {
			if err := p.engine.Periodogram(data[sub], s.Integrations, cube.Spectrum(t, sub)); err != nil {
				return err
			}
		}
		if cube.Times[t], err = p.acc.SampleToTime(p.channel, span.Start); err != nil {
			return err
		}
	}

	median := cube.Median()

	progress := 1.0
	if bnds.Last > bnds.First {
		progress = float64(end-bnds.First) / float64(bnds.Last-bnds.First)
		if progress < 0 {
			progress = 0
		}
		if progress > 1 {
			progress = 1
		}
	}

	iteration := Iteration{
		Index:       i,
		Entry:       p.entry,
		Times:       cube.Times,
		Frequencies: cube.Frequencies,
		Cube:        cube,
		Median:      median,
		Progress:    progress,
	}
	pushLatest(p.events.Iterated, iteration)

	sr, _ := p.rate.Float64()
	first, last := p.acc.TimeBounds()
	pushLatest(p.events.Settings, Effective{
		Settings:    s,
		Entry:       p.entry,
		SampleRate:  new(big.Rat).Set(p.rate),
		BinWidth:    sr / float64(s.FFTLength),
		Frequencies: cube.Frequencies,
		Bounds:      bnds,
		TimeFirst:   first,
		TimeLast:    last,
	})

	if p.opts.Transport != nil {
		if err := p.opts.Transport.Send(iteration); err != nil {
			return callbackError{err: err}
		}
	}
	return nil
}

// terminate publishes the final state exactly once. The consumer always
// receives the last consistent cube before this event; termination is only
// ever decided at iteration boundaries.
func (p *Processor) terminate(reason Reason, err error) {
	if !p.termOnce.CompareAndSwap(false, true) {
		return
	}
	if reason == ReasonStopped {
		p.state.Store(int32(StateStopped))
		applog.Infof("sti: session %d stopped", p.id)
	} else {
		p.state.Store(int32(StateErrored))
		applog.Errorf("sti: session %d terminated (reason %d): %s: %v", p.id, reason, reason.Message(), err)
	}
	p.events.Terminated <- Termination{ID: p.id, Entry: p.entry, Reason: reason, Err: err}
}
