package udp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	applog "sti/internal/log"
	"sti/internal/sti"
)

/*
Packet layout (BigEndian):

	| Sequence | Timestamp | Bin Count |  Median Spectrum  |
	|  uint32  |   int64   |  uint16   |   N * float32     |

Sequence increases monotonically per packet, Timestamp is nanoseconds
since epoch at pack time, and the payload is the dB-converted median
spectrum of the first subchannel, one float32 per frequency bin.
*/

// Publisher decouples UDP pacing from the session loop: Send stores the
// newest iteration, and a ticker goroutine packs and transmits the latest
// stored result at a fixed interval. Iterations arriving faster than the
// tick rate overwrite each other; only the freshest spectrum goes out.
type Publisher struct {
	sender   *Sender
	interval time.Duration

	latest atomic.Pointer[sti.Iteration]

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex // guards ticker/doneChan across Start/Stop

	sequenceNum  uint32
	f32Buffer    []float32
	packetBuffer *bytes.Buffer
}

// NewPublisher creates a publisher over an established sender. An invalid
// interval falls back to the default send rate.
func NewPublisher(interval time.Duration, sender *Sender) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("udp publisher: sender cannot be nil")
	}
	if interval <= 0 {
		interval = 100 * time.Millisecond
		applog.Warnf("udp: invalid publish interval, defaulting to %s", interval)
	}
	return &Publisher{
		sender:       sender,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Send implements the session transport contract: it stores the iteration
// as the newest publishable result and returns immediately. Non-iteration
// payloads are ignored.
func (p *Publisher) Send(data any) error {
	if it, ok := data.(sti.Iteration); ok {
		p.latest.Store(&it)
	}
	return nil
}

// Start launches the publishing goroutine. Safe to call on a running
// publisher; the repeat call is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}

	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		applog.Infof("udp: publisher started (interval %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.packAndSend()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop terminates the publishing goroutine and waits for it. Idempotent.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Infof("udp: publisher stopped")
	return nil
}

// packAndSend transmits the newest stored iteration, if any arrived since
// the last tick.
func (p *Publisher) packAndSend() {
	it := p.latest.Swap(nil)
	if it == nil || len(it.Median) == 0 {
		return
	}
	median := it.Median[0]

	if len(p.f32Buffer) != len(median) {
		p.f32Buffer = make([]float32, len(median))
	}
	for i, v := range median {
		p.f32Buffer[i] = float32(sti.ToDB(v))
	}

	p.sequenceNum++
	p.packetBuffer.Reset()

	err := binary.Write(p.packetBuffer, binary.BigEndian, p.sequenceNum)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, time.Now().UnixNano())
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, uint16(len(p.f32Buffer)))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.f32Buffer)
	}
	if err != nil {
		applog.Errorf("udp: packing packet: %v", err)
		return
	}

	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		applog.Warnf("udp: send failed: %v", err)
		return
	}
	applog.Debugf("udp: sent packet %d (%d bytes)", p.sequenceNum, p.packetBuffer.Len())
}

// Close stops the publisher.
func (p *Publisher) Close() error {
	return p.Stop()
}
