package capture

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	DefaultSampleRate  = 16000
	DefaultNumChannels = 1
	DefaultFrameMs     = 100
)

// Format describes raw little-endian 16-bit PCM.
type Format struct {
	SampleRate  int
	NumChannels int
}

func (f Format) AudioFormat() string { return "pcm_s16le" }

func (f Format) bytesPerMs() int { return f.SampleRate * f.NumChannels * 2 / 1000 }

// PCMSource reads fixed-size PCM frames from a file or stdin. With Realtime set, frames are
// released no faster than the audio they contain.
type PCMSource struct {
	r      io.Reader
	c      io.Closer
	format Format

	frameBytes int
	frameDur   time.Duration
	realtime   bool
	next       time.Time

	closeOnce sync.Once
	closed    chan struct{}
	pending   error
}

// OpenSource opens path ("-" for stdin). A RIFF/WAVE header, when present, overrides fallback.
func OpenSource(path string, fallback Format, frameMs int, realtime bool) (*PCMSource, error) {
	var rc io.ReadCloser
	if path == "" || path == "-" {
		rc = io.NopCloser(os.Stdin)
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open audio: %w", err)
		}
		rc = f
	}
	src, err := NewPCMSource(rc, fallback, frameMs, realtime)
	if err != nil {
		_ = rc.Close()
		return nil, err
	}
	return src, nil
}

func NewPCMSource(rc io.ReadCloser, fallback Format, frameMs int, realtime bool) (*PCMSource, error) {
	if fallback.SampleRate <= 0 {
		fallback.SampleRate = DefaultSampleRate
	}
	if fallback.NumChannels <= 0 {
		fallback.NumChannels = DefaultNumChannels
	}
	if frameMs <= 0 {
		frameMs = DefaultFrameMs
	}
	br := bufio.NewReaderSize(rc, 64*1024)
	format := fallback
	if head, err := br.Peek(12); err == nil && string(head[0:4]) == "RIFF" && string(head[8:12]) == "WAVE" {
		wf, err := readWAVHeader(br)
		if err != nil {
			return nil, err
		}
		format = wf
	}
	frameBytes := format.bytesPerMs() * frameMs
	if frameBytes <= 0 {
		return nil, fmt.Errorf("invalid audio format %+v", format)
	}
	return &PCMSource{
		r:          br,
		c:          rc,
		format:     format,
		frameBytes: frameBytes,
		frameDur:   time.Duration(frameMs) * time.Millisecond,
		realtime:   realtime,
		closed:     make(chan struct{}),
	}, nil
}

func (s *PCMSource) Format() Format { return s.format }

func (s *PCMSource) ReadFrame() ([]byte, error) {
	if s.pending != nil {
		return nil, s.pending
	}
	if s.realtime {
		if err := s.pace(); err != nil {
			return nil, err
		}
	}
	buf := make([]byte, s.frameBytes)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case err == nil:
		return buf, nil
	case errors.Is(err, io.ErrUnexpectedEOF) && n > 0:
		s.pending = io.EOF
		return buf[:n], nil
	default:
		select {
		case <-s.closed:
			return nil, io.EOF
		default:
		}
		return nil, err
	}
}

func (s *PCMSource) pace() error {
	now := time.Now()
	if s.next.IsZero() {
		s.next = now
	}
	if wait := s.next.Sub(now); wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		select {
		case <-s.closed:
			return io.EOF
		case <-t.C:
		}
	}
	s.next = s.next.Add(s.frameDur)
	return nil
}

func (s *PCMSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.c.Close()
	})
	return err
}

// readWAVHeader consumes the RIFF header through the start of the data chunk.
func readWAVHeader(r io.Reader) (Format, error) {
	var riff [12]byte
	if _, err := io.ReadFull(r, riff[:]); err != nil {
		return Format{}, fmt.Errorf("wav header: %w", err)
	}
	var format Format
	haveFmt := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return Format{}, fmt.Errorf("wav chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))
		switch id {
		case "fmt ":
			if size < 16 {
				return Format{}, fmt.Errorf("wav fmt chunk too short")
			}
			body := make([]byte, size)
			if _, err := io.ReadFull(r, body); err != nil {
				return Format{}, fmt.Errorf("wav fmt chunk: %w", err)
			}
			audioFormat := binary.LittleEndian.Uint16(body[0:2])
			bits := binary.LittleEndian.Uint16(body[14:16])
			if audioFormat != 1 || bits != 16 {
				return Format{}, fmt.Errorf("unsupported wav encoding (format=%d bits=%d); need 16-bit PCM", audioFormat, bits)
			}
			format.NumChannels = int(binary.LittleEndian.Uint16(body[2:4]))
			format.SampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			haveFmt = true
			if size%2 == 1 {
				if _, err := io.CopyN(io.Discard, r, 1); err != nil {
					return Format{}, err
				}
			}
		case "data":
			if !haveFmt {
				return Format{}, fmt.Errorf("wav data chunk before fmt chunk")
			}
			return format, nil
		default:
			skip := size + size%2
			if _, err := io.CopyN(io.Discard, r, skip); err != nil {
				return Format{}, fmt.Errorf("wav skip %q: %w", id, err)
			}
		}
	}
}
