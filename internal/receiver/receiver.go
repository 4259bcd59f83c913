// Package receiver implements the upstream sample source collaborator: a
// contiguous stream of complex baseband samples that a scheduler peeks
// into before handing a window to a tracking channel, and advances by
// however many samples the channel actually consumed.
//
// Grounded on mfkiwl-GPS-JAMMING's file front-end (mfkiwl-GPS-JAMMING/gops/sdrrcv.go:
// RcvInit opens the file and sizes a byte buffer, FilePushToMemBuf/
// FileGetBuff move bytes in and out of it). That version is a
// fixed-size ring shared across goroutines under buffmtx/readmtx because
// its scheduler (sdrmain.go sdrthread/datathread) polls from a background
// goroutine. A tracking channel here is invoked synchronously by a single
// scheduler goroutine, so this package drops the ring and mutexes in
// favor of a plain growable buffer that goroutine drives directly.
package receiver

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Format names the on-disk sample encoding. GNSS front ends commonly emit
// interleaved I/Q as signed 8-bit, signed 16-bit, or 32-bit float pairs.
type Format int

const (
	// Int8IQ is interleaved signed 8-bit I, Q.
	Int8IQ Format = iota
	// Int16IQ is interleaved signed 16-bit little-endian I, Q.
	Int16IQ
	// Float32IQ is interleaved 32-bit little-endian float I, Q.
	Float32IQ
)

// BytesPerSample reports the on-disk byte width of one complex sample.
func (f Format) BytesPerSample() int {
	switch f {
	case Int8IQ:
		return 2
	case Int16IQ:
		return 4
	case Float32IQ:
		return 8
	default:
		return 0
	}
}

// Source is a pull-based, single-consumer complex baseband sample stream
// backed by an io.Reader. A scheduler calls Peek to obtain up to n
// decoded samples without committing to them, passes a sub-slice to a
// tracking channel, and calls Advance with however many samples the
// channel reported as consumed.
type Source struct {
	r      io.Reader
	format Format
	raw    []byte       // undecoded trailing bytes, always < BytesPerSample
	buf    []complex128 // decoded, not-yet-advanced samples
	eof    bool
}

// New wraps r as a Source decoding samples in the given format.
func New(r io.Reader, format Format) (*Source, error) {
	if format.BytesPerSample() == 0 {
		return nil, fmt.Errorf("receiver: unknown sample format %d", format)
	}
	return &Source{r: r, format: format}, nil
}

// Peek ensures at least min(n, samples-remaining-in-stream) decoded samples
// are buffered and returns a slice over them. The slice is only valid
// until the next Peek or Advance call. Peek fills fixed-size chunks from r
// with io.ReadFull until n samples are buffered or r reaches EOF; io.EOF
// (or a partial final chunk) is folded into a shorter-than-requested (possibly empty)
// slice with a nil error, so a caller running low on input degrades to a
// short window rather than hitting a hard stream-ending error.
func (s *Source) Peek(n int) ([]complex128, error) {
	if n < 0 {
		return nil, errors.New("receiver: negative peek length")
	}
	bps := s.format.BytesPerSample()
	for len(s.buf) < n && !s.eof {
		chunk := make([]byte, 4096*bps)
		nr, err := io.ReadFull(s.r, chunk)
		if nr > 0 {
			s.decode(append(s.raw, chunk[:nr]...))
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				s.eof = true
				break
			}
			return nil, fmt.Errorf("receiver: read: %w", err)
		}
	}
	if n > len(s.buf) {
		n = len(s.buf)
	}
	return s.buf[:n], nil
}

// decode appends fully-formed complex samples from raw bytes into s.buf,
// carrying any trailing partial sample forward in s.raw.
func (s *Source) decode(raw []byte) {
	bps := s.format.BytesPerSample()
	usable := len(raw) - len(raw)%bps
	for off := 0; off < usable; off += bps {
		s.buf = append(s.buf, s.decodeOne(raw[off:off+bps]))
	}
	s.raw = append(s.raw[:0], raw[usable:]...)
}

func (s *Source) decodeOne(b []byte) complex128 {
	switch s.format {
	case Int8IQ:
		return complex(float64(int8(b[0])), float64(int8(b[1])))
	case Int16IQ:
		i := int16(binary.LittleEndian.Uint16(b[0:2]))
		q := int16(binary.LittleEndian.Uint16(b[2:4]))
		return complex(float64(i), float64(q))
	case Float32IQ:
		i := math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))
		q := math.Float32frombits(binary.LittleEndian.Uint32(b[4:8]))
		return complex(float64(i), float64(q))
	default:
		return 0
	}
}

// Advance drops the first n samples from the buffered window, shifting the
// remainder to the front. n must not exceed the length of the slice most
// recently returned by Peek.
func (s *Source) Advance(n int) {
	if n <= 0 {
		return
	}
	if n > len(s.buf) {
		n = len(s.buf)
	}
	copy(s.buf, s.buf[n:])
	s.buf = s.buf[:len(s.buf)-n]
}

// Exhausted reports whether the underlying reader hit EOF and every
// buffered sample has been advanced past.
func (s *Source) Exhausted() bool {
	return s.eof && len(s.buf) == 0
}

// Close releases the underlying reader if it implements io.Closer.
func (s *Source) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
