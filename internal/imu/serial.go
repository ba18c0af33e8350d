package imu

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.bug.st/serial"

	"github.com/gaitworks/flexion/internal/monitoring"
)

// StrapPortInterface abstracts the serial link to the strap's UART bridge so
// tests and dev mode can substitute canned data.
type StrapPortInterface interface {
	Samples() <-chan Sample
	Monitor(ctx context.Context) error
	Close() error
}

// StrapPort reads the firmware's binary packets from a serial port and emits
// decoded relative-rate samples.
type StrapPort struct {
	port    serial.Port
	decoder *Decoder
	samples chan Sample
}

// NewStrapPort opens the named serial port at the firmware's fixed settings.
func NewStrapPort(portName string, axis Axis) (*StrapPort, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: 1,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open strap port %s: %w", portName, err)
	}

	return &StrapPort{
		port:    port,
		decoder: NewDecoder(axis),
		samples: make(chan Sample, 64),
	}, nil
}

// Samples returns the channel of decoded samples produced by Monitor.
func (p *StrapPort) Samples() <-chan Sample {
	return p.samples
}

// Monitor reads fixed-size packets until the context is cancelled or the
// port errors. Packets that fail to decode are logged and skipped; the
// stream keeps going.
func (p *StrapPort) Monitor(ctx context.Context) error {
	defer close(p.samples)
	return monitorPackets(ctx, p.port, p.decoder, p.samples)
}

// Close closes the serial port.
func (p *StrapPort) Close() error {
	return p.port.Close()
}

// Dropped reports how many packets were lost to sequence gaps so far.
func (p *StrapPort) Dropped() int {
	return p.decoder.Dropped
}

// Record drains a strap port into memory until the stream ends or the
// context is cancelled. Cancellation is the normal way to stop a capture,
// so context errors are not surfaced as failures.
func Record(ctx context.Context, port StrapPortInterface) ([]Sample, error) {
	done := make(chan error, 1)
	go func() { done <- port.Monitor(ctx) }()

	var samples []Sample
	for s := range port.Samples() {
		samples = append(samples, s)
	}

	err := <-done
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		err = nil
	}
	return samples, err
}

// monitorPackets is the shared read loop for real and mock ports.
func monitorPackets(ctx context.Context, r io.Reader, dec *Decoder, out chan<- Sample) error {
	buf := make([]byte, PacketSize)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if _, err := io.ReadFull(r, buf); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("strap port read failed: %w", err)
		}

		samples, err := dec.Feed(buf)
		if err != nil {
			monitoring.Logf("skipping malformed strap packet: %v", err)
			continue
		}
		for _, s := range samples {
			select {
			case out <- s:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// MockStrapPort replays packet bytes from an io.Reader, for tests and dev
// mode without hardware attached.
type MockStrapPort struct {
	Data        io.Reader
	SamplesChan chan Sample
	decoder     *Decoder
}

// NewMockStrapPort creates a mock port replaying the given packet stream.
func NewMockStrapPort(data io.Reader, axis Axis) *MockStrapPort {
	return &MockStrapPort{
		Data:        data,
		SamplesChan: make(chan Sample, 64),
		decoder:     NewDecoder(axis),
	}
}

func (m *MockStrapPort) Samples() <-chan Sample {
	return m.SamplesChan
}

func (m *MockStrapPort) Monitor(ctx context.Context) error {
	defer close(m.SamplesChan)
	return monitorPackets(ctx, m.Data, m.decoder, m.SamplesChan)
}

func (m *MockStrapPort) Close() error {
	return nil
}
