package codec

import (
	"bytes"
	"log"

	"code.hybscloud.com/atomix"
)

const (
	lineFeed       = '\n'
	carriageReturn = '\r'
)

// LineState is the scan phase of a LineDecoder.
type LineState int

const (
	StateData    LineState = iota // scanning for the next line feed
	StateAfterLF                  // last byte seen was a line feed
)

func (s LineState) String() string {
	switch s {
	case StateData:
		return "data"
	case StateAfterLF:
		return "after_lf"
	default:
		return "unknown"
	}
}

// LineDecoder splits a byte stream on '\n'. A '\r' directly after the line feed
// belongs to the terminator and is dropped, even when it arrives in the next
// read. Lines are delivered without their terminator.
//
// Delivery never blocks: when out is full the line is dropped, logged and
// counted in Dropped.
type LineDecoder struct {
	out     chan<- []byte
	state   LineState
	current []byte
	dropped atomix.Uint32
}

// NewLineDecoder returns a decoder delivering lines on out.
func NewLineDecoder(out chan<- []byte) *LineDecoder {
	return &LineDecoder{out: out}
}

// NewLineFactory returns a Factory producing one LineDecoder per connection.
func NewLineFactory() Factory[[]byte] {
	return func(out chan<- []byte) Decoder {
		return NewLineDecoder(out)
	}
}

// Consume decodes p. Bytes delivered together with a read error are decoded
// like any other; the error itself is left to the worker, which ends the
// session. A partial line stays buffered.
func (d *LineDecoder) Consume(p []byte, _ error) {
	for len(p) > 0 {
		switch d.state {
		case StateData:
			i := bytes.IndexByte(p, lineFeed)
			if i < 0 {
				d.current = append(d.current, p...)
				return
			}
			d.current = append(d.current, p[:i]...)
			d.flush()
			d.state = StateAfterLF
			p = p[i+1:]
		case StateAfterLF:
			if p[0] == carriageReturn {
				p = p[1:]
			}
			d.state = StateData
		}
	}
}

// State reports the current scan phase.
func (d *LineDecoder) State() LineState {
	return d.state
}

// Pending returns the number of bytes buffered for the unfinished line.
func (d *LineDecoder) Pending() int {
	return len(d.current)
}

// Dropped returns how many lines were discarded because out was full. Safe
// to call from any goroutine.
func (d *LineDecoder) Dropped() uint32 {
	return d.dropped.Load()
}

func (d *LineDecoder) flush() {
	line := d.current
	d.current = nil
	if line == nil {
		line = []byte{}
	}

	select {
	case d.out <- line:
	default:
		n := d.dropped.Add(1)
		log.Printf("codec: message channel full, dropped %d-byte line (%d dropped)", len(line), n)
	}
}
