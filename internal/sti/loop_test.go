package sti

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"sti/internal/drf"
	"sti/pkg/utils"
)

const eventTimeout = 5 * time.Second

func fastOpts() Options {
	return Options{
		PlaybackInterval:  time.Millisecond,
		StreamingInterval: time.Millisecond,
		BarrierInterval:   time.Millisecond,
		BarrierRetries:    50,
	}
}

// newToneArchive builds an in-memory single-channel archive at 8 kHz
// holding a complex exponential at freq Hz.
func newToneArchive(t *testing.T, seconds, freq float64) (*drf.MemStore, *drf.Accessor) {
	t.Helper()
	store := drf.NewMemStore()
	store.AddChannel("ch0", drf.Properties{
		SampleRateNumerator:   8000,
		SampleRateDenominator: 1,
		NumSubchannels:        1,
		FloatSamples:          true,
	}, 0)
	if err := store.Append("ch0", utils.GenerateTone(int(seconds*8000), 8000, freq)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	acc, err := drf.NewAccessor(store)
	if err != nil {
		t.Fatalf("NewAccessor: %v", err)
	}
	return store, acc
}

func waitIteration(t *testing.T, ev *Events) Iteration {
	t.Helper()
	select {
	case it := <-ev.Iterated:
		return it
	case term := <-ev.Terminated:
		t.Fatalf("terminated before iterating: reason %d, err %v", term.Reason, term.Err)
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for an iteration")
	}
	return Iteration{}
}

func waitTermination(t *testing.T, ev *Events) Termination {
	t.Helper()
	select {
	case term := <-ev.Terminated:
		return term
	case <-time.After(eventTimeout):
		t.Fatal("timed out waiting for termination")
	}
	return Termination{}
}

func TestProcessorEndToEnd(t *testing.T) {
	_, acc := newToneArchive(t, 10, 1000)

	p := NewProcessor(0, acc, "ch0:0", Settings{FFTLength: 1024, Integrations: 1, TimeBins: 50}, fastOpts())
	go p.Run()

	it := waitIteration(t, p.Events())

	cube := it.Cube
	if cube.NFFT != 1024 || cube.NTime != 50 || cube.NumSub != 1 {
		t.Fatalf("cube shape = (%d, %d, %d), want (1024, 50, 1)", cube.NFFT, cube.NTime, cube.NumSub)
	}

	// 1 kHz at 8 kHz with 1024 bins: 7.8125 Hz/bin, peak 128 bins above DC.
	wantBin := 1024/2 + 128
	if it.Frequencies[1024/2] != 0 {
		t.Errorf("DC frequency = %v, want 0", it.Frequencies[1024/2])
	}
	for tbin := 0; tbin < cube.NTime; tbin++ {
		if got := utils.FindPeakBin(cube.Spectrum(tbin, 0), 0, cube.NFFT-1); got != wantBin {
			t.Fatalf("time bin %d peak at %d, want %d", tbin, got, wantBin)
		}
	}
	if got := utils.FindPeakBin(it.Median[0], 0, cube.NFFT-1); got != wantBin {
		t.Errorf("median peak at %d, want %d", got, wantBin)
	}

	for i := 1; i < len(it.Times); i++ {
		if it.Times[i] <= it.Times[i-1] {
			t.Fatalf("timestamps not increasing at bin %d: %v then %v", i, it.Times[i-1], it.Times[i])
		}
	}
	if it.Times[0] < 0 || it.Times[len(it.Times)-1] > 10 {
		t.Errorf("timestamps [%v, %v] escape the archive's 10 s extent",
			it.Times[0], it.Times[len(it.Times)-1])
	}

	select {
	case eff := <-p.Events().Settings:
		if eff.FFTLength != 1024 {
			t.Errorf("effective FFTLength = %d, want 1024", eff.FFTLength)
		}
		if eff.BinWidth != 8000.0/1024 {
			t.Errorf("BinWidth = %v, want %v", eff.BinWidth, 8000.0/1024)
		}
		if eff.Bounds.First != 0 {
			t.Errorf("bounds first = %d, want 0", eff.Bounds.First)
		}
	case <-time.After(eventTimeout):
		t.Fatal("no settings event published")
	}

	p.Abort()
	term := waitTermination(t, p.Events())
	if term.Reason != ReasonStopped || term.Err != nil {
		t.Errorf("termination = (%d, %v), want (0, nil)", term.Reason, term.Err)
	}
	<-p.Done()
	if p.State() != StateStopped {
		t.Errorf("state = %d, want StateStopped", p.State())
	}
}

func TestProcessorAllSubchannels(t *testing.T) {
	store := drf.NewMemStore()
	store.AddChannel("ch0", drf.Properties{
		SampleRateNumerator:   8000,
		SampleRateDenominator: 1,
		NumSubchannels:        2,
		FloatSamples:          true,
	}, 0)

	// Distinct tones per subchannel, interleaved sample-major.
	const n = 40000
	a := utils.GenerateTone(n, 8000, 1000)
	b := utils.GenerateTone(n, 8000, -2000)
	interleaved := make([]complex128, 2*n)
	for i := 0; i < n; i++ {
		interleaved[2*i] = a[i]
		interleaved[2*i+1] = b[i]
	}
	if err := store.Append("ch0", interleaved); err != nil {
		t.Fatalf("Append: %v", err)
	}
	acc, err := drf.NewAccessor(store)
	if err != nil {
		t.Fatalf("NewAccessor: %v", err)
	}

	p := NewProcessor(0, acc, "ch0", Settings{FFTLength: 1024, Integrations: 1, TimeBins: 10}, fastOpts())
	go p.Run()
	defer func() {
		p.Abort()
		<-p.Done()
	}()

	it := waitIteration(t, p.Events())
	if it.Cube.NumSub != 2 {
		t.Fatalf("NumSub = %d, want 2", it.Cube.NumSub)
	}
	if got, want := utils.FindPeakBin(it.Median[0], 0, 1023), 512+128; got != want {
		t.Errorf("sub 0 peak at %d, want %d", got, want)
	}
	if got, want := utils.FindPeakBin(it.Median[1], 0, 1023), 512-256; got != want {
		t.Errorf("sub 1 peak at %d, want %d", got, want)
	}
}

func TestProcessorAbortDuringReadCompletesIteration(t *testing.T) {
	store, acc := newToneArchive(t, 10, 500)

	p := NewProcessor(0, acc, "ch0:0", Settings{FFTLength: 512, Integrations: 1, TimeBins: 20}, fastOpts())
	store.ReadHook = func(string) { p.Abort() }

	go p.Run()
	term := waitTermination(t, p.Events())
	if term.Reason != ReasonStopped || term.Err != nil {
		t.Fatalf("termination = (%d, %v), want (0, nil)", term.Reason, term.Err)
	}

	// The abort landed mid-read of iteration 0; that iteration must still
	// have finished and published its cube.
	select {
	case it := <-p.Events().Iterated:
		if it.Index != 0 {
			t.Errorf("final iteration index = %d, want 0", it.Index)
		}
		if it.Cube.NTime != 20 {
			t.Errorf("final cube NTime = %d, want 20", it.Cube.NTime)
		}
	default:
		t.Fatal("aborted session published no final iteration")
	}

	// Exactly one termination event.
	select {
	case extra := <-p.Events().Terminated:
		t.Fatalf("second termination published: %+v", extra)
	default:
	}
}

func TestProcessorStreamingTracksGrowth(t *testing.T) {
	store, acc := newToneArchive(t, 2, 700)

	opts := fastOpts()
	opts.Streaming = true
	opts.WindowSpan = 1.0

	p := NewProcessor(0, acc, "ch0:0", Settings{FFTLength: 256, Integrations: 1, TimeBins: 10}, opts)
	go p.Run()
	defer func() {
		p.Abort()
		<-p.Done()
	}()

	first := waitIteration(t, p.Events())
	lastSeen := first.Times[len(first.Times)-1]

	if err := store.Append("ch0", utils.GenerateTone(8000, 8000, 700)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	deadline := time.After(eventTimeout)
	for {
		select {
		case it := <-p.Events().Iterated:
			if end := it.Times[len(it.Times)-1]; end > lastSeen {
				return // window slid forward with the archive
			}
		case term := <-p.Events().Terminated:
			t.Fatalf("terminated while streaming: reason %d, err %v", term.Reason, term.Err)
		case <-deadline:
			t.Fatal("streaming window never advanced past appended data")
		}
	}
}

func TestProcessorAppliesSettingsAtIterationTop(t *testing.T) {
	_, acc := newToneArchive(t, 10, 1000)

	p := NewProcessor(0, acc, "ch0:0", Settings{FFTLength: 512, Integrations: 1, TimeBins: 10}, fastOpts())
	go p.Run()
	defer func() {
		p.Abort()
		<-p.Done()
	}()

	if it := waitIteration(t, p.Events()); it.Cube.NFFT != 512 {
		t.Fatalf("initial NFFT = %d, want 512", it.Cube.NFFT)
	}

	p.UpdateSettings(Settings{FFTLength: 1023, Integrations: 2, TimeBins: 5})

	deadline := time.After(eventTimeout)
	for {
		select {
		case it := <-p.Events().Iterated:
			if it.Cube.NFFT == 512 {
				continue // published before the swap was picked up
			}
			// Odd length normalized up; the whole snapshot applies at once.
			if it.Cube.NFFT != 1024 || it.Cube.NTime != 5 {
				t.Fatalf("cube shape = (%d, %d), want (1024, 5)", it.Cube.NFFT, it.Cube.NTime)
			}
			return
		case term := <-p.Events().Terminated:
			t.Fatalf("terminated during settings change: reason %d, err %v", term.Reason, term.Err)
		case <-deadline:
			t.Fatal("updated settings never took effect")
		}
	}
}

func TestProcessorPathMissingArchive(t *testing.T) {
	t.Parallel()

	p := NewProcessorPath(0, t.TempDir()+"/nope", "ch0", Settings{FFTLength: 256}, fastOpts())
	go p.Run()

	term := waitTermination(t, p.Events())
	if term.Reason != ReasonArchiveMissing {
		t.Errorf("reason = %d, want %d", term.Reason, ReasonArchiveMissing)
	}
	if term.Err == nil || !errors.Is(term.Err, drf.ErrNotFound) {
		t.Errorf("err = %v, want wrapped ErrNotFound", term.Err)
	}
	<-p.Done()
	if p.State() != StateErrored {
		t.Errorf("state = %d, want StateErrored", p.State())
	}
}

func TestProcessorUnknownEntry(t *testing.T) {
	_, acc := newToneArchive(t, 1, 100)

	p := NewProcessor(0, acc, "ch9:3", Settings{FFTLength: 256}, fastOpts())
	go p.Run()

	term := waitTermination(t, p.Events())
	if term.Reason != ReasonStreamUnavailable {
		t.Errorf("reason = %d, want %d", term.Reason, ReasonStreamUnavailable)
	}
}

func TestProcessorBarrierTimeout(t *testing.T) {
	_, acc := newToneArchive(t, 1, 100)

	opts := fastOpts()
	opts.BarrierRetries = 3
	p := NewProcessor(0, acc, "ch0:0", Settings{FFTLength: 256}, opts)
	p.ready.Store(false) // construction never completes

	go p.Run()
	term := waitTermination(t, p.Events())
	if term.Reason != ReasonInitTimeout {
		t.Errorf("reason = %d, want %d", term.Reason, ReasonInitTimeout)
	}
	<-p.Done()
	if p.State() != StateErrored {
		t.Errorf("state = %d, want StateErrored", p.State())
	}
}

type failingTransport struct {
	calls atomic.Int32
}

func (f *failingTransport) Send(any) error {
	f.calls.Add(1)
	return errors.New("sink closed")
}

func TestProcessorTransportFailure(t *testing.T) {
	_, acc := newToneArchive(t, 2, 100)

	sink := &failingTransport{}
	opts := fastOpts()
	opts.Transport = sink

	p := NewProcessor(0, acc, "ch0:0", Settings{FFTLength: 256, Integrations: 1, TimeBins: 4}, opts)
	go p.Run()

	term := waitTermination(t, p.Events())
	if term.Reason != ReasonCallbackError {
		t.Errorf("reason = %d, want %d", term.Reason, ReasonCallbackError)
	}
	if sink.calls.Load() != 1 {
		t.Errorf("transport called %d times, want 1", sink.calls.Load())
	}

	// The cube was published before delivery was attempted.
	select {
	case <-p.Events().Iterated:
	default:
		t.Error("no iteration published before transport failure")
	}
}

func TestReasonMessages(t *testing.T) {
	t.Parallel()

	for r := Reason(0); r <= 5; r++ {
		if r.Message() == "" {
			t.Errorf("reason %d has no message", r)
		}
	}
	if Reason(99).Message() == "" {
		t.Error("unknown reason has no message")
	}
}

func TestPushLatestDropsStale(t *testing.T) {
	t.Parallel()

	ch := make(chan int, 1)
	pushLatest(ch, 1)
	pushLatest(ch, 2)
	pushLatest(ch, 3)
	if got := <-ch; got != 3 {
		t.Errorf("received %d, want the newest value 3", got)
	}
	select {
	case v := <-ch:
		t.Errorf("stale value %d survived", v)
	default:
	}
}
