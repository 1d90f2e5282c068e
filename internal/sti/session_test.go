package sti

import (
	"errors"
	"testing"
)

func TestManagerSessionCap(t *testing.T) {
	_, acc := newToneArchive(t, 2, 100)
	m := NewManager(acc, 2)

	settings := Settings{FFTLength: 256, Integrations: 1, TimeBins: 4}
	id0, _, err := m.Start("ch0:0", settings, fastOpts())
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if _, _, err := m.Start("ch0:0", settings, fastOpts()); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if _, _, err := m.Start("ch0:0", settings, fastOpts()); !errors.Is(err, ErrTooManySessions) {
		t.Fatalf("third Start err = %v, want ErrTooManySessions", err)
	}

	// Stopping a session frees its slot for the next Start.
	p, ok := m.Session(id0)
	if !ok {
		t.Fatalf("session %d not found", id0)
	}
	m.Abort(id0)
	<-p.Done()

	if _, _, err := m.Start("ch0:0", settings, fastOpts()); err != nil {
		t.Fatalf("Start after reap: %v", err)
	}

	m.AbortAll()
	if got := m.Active(); got != 0 {
		t.Errorf("Active after AbortAll = %d, want 0", got)
	}
}

func TestManagerDefaultCap(t *testing.T) {
	_, acc := newToneArchive(t, 1, 100)
	m := NewManager(acc, 0)
	if m.max != 7 {
		t.Errorf("default cap = %d, want 7", m.max)
	}
}

func TestManagerAbortIdempotent(t *testing.T) {
	_, acc := newToneArchive(t, 2, 100)
	m := NewManager(acc, 0)

	id, p, err := m.Start("ch0:0", Settings{FFTLength: 256, Integrations: 1, TimeBins: 4}, fastOpts())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	m.Abort(id)
	m.Abort(id) // repeat on a stopping session
	<-p.Done()
	m.Abort(id)  // repeat on a finished, reaped session
	m.Abort(999) // unknown ID

	term := waitTermination(t, p.Events())
	if term.Reason != ReasonStopped {
		t.Errorf("reason = %d, want 0", term.Reason)
	}
	select {
	case extra := <-p.Events().Terminated:
		t.Fatalf("second termination published: %+v", extra)
	default:
	}
}

func TestManagerUpdateSettingsForwarding(t *testing.T) {
	_, acc := newToneArchive(t, 2, 100)
	m := NewManager(acc, 0)

	id, p, err := m.Start("ch0:0", Settings{FFTLength: 256, Integrations: 1, TimeBins: 4}, fastOpts())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		m.Abort(id)
		<-p.Done()
	}()

	m.UpdateSettings(id, Settings{FFTLength: 512, Integrations: 1, TimeBins: 4})
	if got := p.settings.Load().FFTLength; got != 512 {
		t.Errorf("stored FFTLength = %d, want 512", got)
	}
	m.UpdateSettings(999, Settings{}) // unknown ID is a no-op
}

func TestManagerOpenMissingPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(t.TempDir()+"/absent", 0); err == nil {
		t.Fatal("Open accepted a missing archive path")
	}
}
