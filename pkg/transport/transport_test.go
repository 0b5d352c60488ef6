// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"go.bug.st/serial"
)

// fakePort answers written frames through a Handler and hands the reply
// back in chunks of at most chunk bytes.
type fakePort struct {
	mu       sync.Mutex
	handler  Handler
	pending  []byte
	written  [][]byte
	timeout  time.Duration
	chunk    int
	readErr  error
	writeErr error
	closed   bool
	resets   int
}

func (f *fakePort) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	if len(f.pending) == 0 {
		time.Sleep(f.timeout)
		return 0, nil
	}
	n := len(f.pending)
	if f.chunk > 0 && n > f.chunk {
		n = f.chunk
	}
	n = copy(p, f.pending[:n])
	f.pending = f.pending[n:]
	return n, nil
}

func (f *fakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.written = append(f.written, append([]byte(nil), p...))
	if f.handler != nil {
		f.pending = append(f.pending, f.handler.Handle(p)...)
	}
	return len(p), nil
}

func (f *fakePort) SetReadTimeout(t time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeout = t
	return nil
}

func (f *fakePort) ResetInputBuffer() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = nil
	f.resets++
	return nil
}

func (f *fakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func openFake(t *testing.T, port *fakePort, timeout time.Duration) *SerialTransport {
	t.Helper()
	opener := func(name string, mode *serial.Mode) (Port, error) {
		return port, nil
	}
	tr, err := OpenWith(opener, Config{Port: "/dev/ttyFAKE0", Timeout: timeout})
	if err != nil {
		t.Fatalf("OpenWith failed: %v", err)
	}
	return tr
}

// ============================================================================
// Open Tests
// ============================================================================

func TestOpenWith_Mode(t *testing.T) {
	var got *serial.Mode
	var gotName string
	opener := func(name string, mode *serial.Mode) (Port, error) {
		gotName, got = name, mode
		return &fakePort{}, nil
	}

	tr, err := OpenWith(opener, Config{Port: "/dev/ttyUSB0"})
	if err != nil {
		t.Fatalf("OpenWith failed: %v", err)
	}
	defer tr.Close()

	if gotName != "/dev/ttyUSB0" {
		t.Errorf("opened %q, want /dev/ttyUSB0", gotName)
	}
	if got.BaudRate != lumidox.DefaultBaudRate || got.DataBits != 8 ||
		got.Parity != serial.NoParity || got.StopBits != serial.OneStopBit {
		t.Errorf("mode = %+v, want %d 8N1", got, lumidox.DefaultBaudRate)
	}
	if tr.Timeout() != lumidox.DefaultTimeout {
		t.Errorf("Timeout() = %v, want %v", tr.Timeout(), lumidox.DefaultTimeout)
	}
	if tr.BaudRate() != lumidox.DefaultBaudRate || tr.Name() != "/dev/ttyUSB0" {
		t.Errorf("BaudRate()/Name() = %d/%q", tr.BaudRate(), tr.Name())
	}
}

func TestOpenWith_Unavailable(t *testing.T) {
	busy := &serial.PortError{}
	opener := func(name string, mode *serial.Mode) (Port, error) {
		return nil, busy
	}

	_, err := OpenWith(opener, Config{Port: "/dev/ttyUSB0", BaudRate: 9600})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	var pe *serial.PortError
	if !errors.As(err, &pe) {
		t.Errorf("port error not reachable through %v", err)
	}
	var te *Error
	if !errors.As(err, &te) || te.Op != "open" || te.Port != "/dev/ttyUSB0" {
		t.Errorf("transport error = %+v", te)
	}

	if _, err := OpenWith(opener, Config{}); !errors.Is(err, ErrUnavailable) {
		t.Errorf("empty port name error = %v, want ErrUnavailable", err)
	}
}

// ============================================================================
// Request Tests
// ============================================================================

func TestRequest_ChunkedReply(t *testing.T) {
	sim := lumidox.NewSimulator()
	port := &fakePort{handler: sim, chunk: 3}
	tr := openFake(t, port, 200*time.Millisecond)
	defer tr.Close()

	reply, err := tr.Request(lumidox.Encode(lumidox.NewFirmwareVersionRequest()))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if string(reply) != "*001cf4^" {
		t.Errorf("reply = %q, want *001cf4^", reply)
	}
	if len(port.written) != 1 || string(port.written[0]) != "*02000022\r" {
		t.Errorf("written = %q", port.written)
	}
}

func TestRequest_DiscardsStaleInput(t *testing.T) {
	sim := lumidox.NewSimulator()
	port := &fakePort{handler: sim, pending: []byte("*ffff98^")}
	tr := openFake(t, port, 200*time.Millisecond)
	defer tr.Close()

	reply, err := tr.Request(lumidox.Encode(lumidox.NewFirmwareVersionRequest()))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if string(reply) != "*001cf4^" {
		t.Errorf("reply = %q, want fresh reply", reply)
	}
	if port.resets != 1 {
		t.Errorf("resets = %d, want 1", port.resets)
	}
}

func TestRequest_Timeout(t *testing.T) {
	sim := lumidox.NewSimulator()
	sim.SetSilent(true)
	port := &fakePort{handler: sim}
	tr := openFake(t, port, 30*time.Millisecond)
	defer tr.Close()

	start := time.Now()
	_, err := tr.Request(lumidox.Encode(lumidox.NewFirmwareVersionRequest()))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestRequest_PartialReply(t *testing.T) {
	sim := lumidox.NewSimulator()
	sim.SetGarbled([]byte("*00"))
	port := &fakePort{handler: sim}
	tr := openFake(t, port, 30*time.Millisecond)
	defer tr.Close()

	reply, err := tr.Request(lumidox.Encode(lumidox.NewFirmwareVersionRequest()))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if string(reply) != "*00" {
		t.Errorf("reply = %q, want partial bytes", reply)
	}
	if _, err := lumidox.ParseResponse(reply); !errors.Is(err, lumidox.ErrMalformed) {
		t.Errorf("partial reply decoded: %v", err)
	}
}

func TestRequest_OversizedReply(t *testing.T) {
	sim := lumidox.NewSimulator()
	sim.SetGarbled(bytes.Repeat([]byte("0"), 64))
	port := &fakePort{handler: sim, chunk: 4}
	tr := openFake(t, port, time.Second)
	defer tr.Close()

	reply, err := tr.Request(lumidox.Encode(lumidox.NewFirmwareVersionRequest()))
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	if len(reply) != lumidox.MaxResponseSize {
		t.Errorf("reply length = %d, want %d", len(reply), lumidox.MaxResponseSize)
	}
}

func TestRequest_Errors(t *testing.T) {
	tests := []struct {
		name     string
		readErr  error
		writeErr error
		want     error
	}{
		{"write failure", nil, errors.New("broken pipe"), ErrIO},
		{"read failure", errors.New("overrun"), nil, ErrIO},
		{"busy port error", &serial.PortError{}, nil, ErrIO},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &fakePort{handler: lumidox.NewSimulator(), readErr: tt.readErr, writeErr: tt.writeErr}
			tr := openFake(t, port, 50*time.Millisecond)
			defer tr.Close()

			_, err := tr.Request(lumidox.Encode(lumidox.NewReadRemoteMode()))
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRequest_AfterClose(t *testing.T) {
	port := &fakePort{handler: lumidox.NewSimulator()}
	tr := openFake(t, port, 50*time.Millisecond)

	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !port.closed {
		t.Error("port not closed")
	}
	if err := tr.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}
	if _, err := tr.Request(lumidox.Encode(lumidox.NewReadRemoteMode())); !errors.Is(err, ErrUnavailable) {
		t.Errorf("request after close = %v, want ErrUnavailable", err)
	}
}

// ============================================================================
// Loopback Tests
// ============================================================================

func TestLoopback(t *testing.T) {
	sim := lumidox.NewSimulator()
	lb := NewLoopback("sim", sim)

	reply, err := lb.Request(lumidox.Encode(lumidox.NewReadRemoteMode()))
	if err != nil || string(reply) != "*0000c0^" {
		t.Fatalf("Request = %q, %v", reply, err)
	}

	sim.SetSilent(true)
	if _, err := lb.Request(lumidox.Encode(lumidox.NewReadRemoteMode())); !errors.Is(err, ErrTimeout) {
		t.Errorf("silent error = %v, want ErrTimeout", err)
	}

	lb.Close()
	if _, err := lb.Request(lumidox.Encode(lumidox.NewReadRemoteMode())); !errors.Is(err, ErrUnavailable) {
		t.Errorf("closed error = %v, want ErrUnavailable", err)
	}
}
