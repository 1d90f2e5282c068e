package udp

import (
	"encoding/binary"
	"math"
	"net"
	"testing"
	"time"

	"sti/internal/sti"
)

func TestPublisherPacketLayout(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer listener.Close()

	sender, err := NewSender(listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	defer sender.Close()

	pub, err := NewPublisher(5*time.Millisecond, sender)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}

	median := []float64{1.0, 100.0, 0.0, 2.5}
	if err := pub.Send(sti.Iteration{Entry: "ch0:0", Median: [][]float64{median}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	pub.Start()
	defer pub.Stop()

	buf := make([]byte, 65536)
	listener.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, _, err := listener.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}

	const headerLen = 4 + 8 + 2
	if want := headerLen + len(median)*4; n != want {
		t.Fatalf("packet length = %d, want %d", n, want)
	}
	if seq := binary.BigEndian.Uint32(buf[0:4]); seq != 1 {
		t.Errorf("sequence = %d, want 1", seq)
	}
	if ts := int64(binary.BigEndian.Uint64(buf[4:12])); ts <= 0 {
		t.Errorf("timestamp = %d, want positive nanoseconds", ts)
	}
	if count := binary.BigEndian.Uint16(buf[12:14]); count != uint16(len(median)) {
		t.Fatalf("bin count = %d, want %d", count, len(median))
	}
	for i, v := range median {
		bits := binary.BigEndian.Uint32(buf[headerLen+i*4:])
		got := float64(math.Float32frombits(bits))
		want := sti.ToDB(v)
		if math.Abs(got-want) > 1e-4 {
			t.Errorf("bin %d = %v, want %v dB", i, got, want)
		}
	}
}

func TestPublisherRequiresSender(t *testing.T) {
	t.Parallel()

	if _, err := NewPublisher(time.Second, nil); err == nil {
		t.Fatal("NewPublisher accepted a nil sender")
	}
}

func TestPublisherStopIdempotent(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP: %v", err)
	}
	defer listener.Close()

	sender, err := NewSender(listener.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewSender: %v", err)
	}
	defer sender.Close()

	pub, err := NewPublisher(time.Millisecond, sender)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	pub.Start()
	pub.Start() // repeat is a no-op
	if err := pub.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := pub.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}
