// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Entry is one recorded exchange. Transcripts are a CBOR sequence of
// entries with integer keys.
type Entry struct {
	Time      time.Time     `cbor:"1,keyasint"`
	Link      string        `cbor:"2,keyasint"`
	Request   []byte        `cbor:"3,keyasint"`
	Response  []byte        `cbor:"4,keyasint,omitempty"`
	Error     string        `cbor:"5,keyasint,omitempty"`
	RoundTrip time.Duration `cbor:"6,keyasint"`
}

// Recorder wraps a Transport and appends every exchange to a transcript.
// Recording failures never affect the exchange; the first one is kept in Err.
type Recorder struct {
	next Transport

	mu     sync.Mutex
	enc    *cbor.Encoder
	err    error
	closer io.Closer
}

// NewRecorder records exchanges on next to w. If w is an io.Closer it is
// closed together with the transport.
func NewRecorder(next Transport, w io.Writer) (*Recorder, error) {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("failed to create CBOR encoder: %w", err)
	}
	r := &Recorder{next: next, enc: em.NewEncoder(w)}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	return r, nil
}

func (r *Recorder) Name() string {
	return r.next.Name()
}

// Request forwards to the wrapped transport and records the exchange
func (r *Recorder) Request(frame []byte) ([]byte, error) {
	start := time.Now()
	reply, err := r.next.Request(frame)

	e := Entry{
		Time:      start,
		Link:      r.next.Name(),
		Request:   append([]byte(nil), frame...),
		Response:  append([]byte(nil), reply...),
		RoundTrip: time.Since(start),
	}
	if err != nil {
		e.Error = err.Error()
	}

	r.mu.Lock()
	if encErr := r.enc.Encode(e); encErr != nil && r.err == nil {
		r.err = encErr
	}
	r.mu.Unlock()

	return reply, err
}

// Err returns the first recording failure, if any
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Recorder) Close() error {
	err := r.next.Close()
	if r.closer != nil {
		if cerr := r.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// ReadTranscript decodes every entry of a transcript
func ReadTranscript(rd io.Reader) ([]Entry, error) {
	dec := cbor.NewDecoder(rd)
	var entries []Entry
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, nil
			}
			return entries, fmt.Errorf("failed to decode transcript entry %d: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
}

// Replay answers frames from a transcript in recorded order. A frame that
// does not match the next recorded request, or a recorded failure, gets no
// answer.
type Replay struct {
	mu      sync.Mutex
	entries []Entry
	pos     int
}

// NewReplay creates a Handler over recorded entries
func NewReplay(entries []Entry) *Replay {
	return &Replay{entries: entries}
}

func (p *Replay) Handle(frame []byte) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pos >= len(p.entries) {
		return nil
	}
	e := p.entries[p.pos]
	if !bytes.Equal(e.Request, frame) {
		return nil
	}
	p.pos++
	if e.Error != "" || len(e.Response) == 0 {
		return nil
	}
	return append([]byte(nil), e.Response...)
}

// Remaining returns how many recorded exchanges have not been replayed
func (p *Replay) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries) - p.pos
}
