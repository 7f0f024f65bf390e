package llm

import (
	"errors"
	"io"
	"sync"
)

// StreamState tracks a reply stream through its one-way lifecycle
type StreamState int

const (
	StreamPending StreamState = iota
	StreamStreaming
	StreamCompleted
	StreamFailed
)

func (s StreamState) String() string {
	switch s {
	case StreamPending:
		return "pending"
	case StreamStreaming:
		return "streaming"
	case StreamCompleted:
		return "completed"
	case StreamFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrStreamClosed is the failure reason when a stream is closed before it finished
var ErrStreamClosed = errors.New("stream closed before completion")

// Stream is a forward-only, non-restartable sequence of reply text fragments.
//
//	for stream.Next() {
//		text += stream.Chunk()
//	}
//	if err := stream.Err(); err != nil { ... }
//
// Once Next returns false the stream is in a terminal state: StreamCompleted,
// or StreamFailed with Err describing why.
type Stream struct {
	recv   func() (string, error)
	closer func() error

	state     StreamState
	chunk     string
	err       error
	closeOnce sync.Once
}

// NewStream builds a Stream from a receive function that returns io.EOF at the
// end of the reply, and an optional closer releasing the underlying connection.
func NewStream(recv func() (string, error), closer func() error) *Stream {
	return &Stream{recv: recv, closer: closer}
}

// StreamFromChunks returns an already-buffered stream; handy for fakes.
func StreamFromChunks(chunks []string, failure error) *Stream {
	i := 0
	return NewStream(func() (string, error) {
		if i < len(chunks) {
			i++
			return chunks[i-1], nil
		}
		if failure != nil {
			return "", failure
		}
		return "", io.EOF
	}, nil)
}

// Next advances to the next fragment. Empty fragments are skipped.
func (s *Stream) Next() bool {
	for {
		if s.state == StreamCompleted || s.state == StreamFailed {
			return false
		}

		text, err := s.recv()
		if errors.Is(err, io.EOF) {
			s.finish(StreamCompleted, nil)
			return false
		}
		if err != nil {
			s.finish(StreamFailed, err)
			return false
		}
		if text == "" {
			continue
		}

		s.state = StreamStreaming
		s.chunk = text
		return true
	}
}

// Chunk returns the fragment produced by the last successful Next
func (s *Stream) Chunk() string {
	return s.chunk
}

// Err returns the failure reason once the stream is StreamFailed
func (s *Stream) Err() error {
	return s.err
}

// State reports the current lifecycle state
func (s *Stream) State() StreamState {
	return s.state
}

// Close releases the connection. Closing an unfinished stream fails it.
func (s *Stream) Close() error {
	if s.state != StreamCompleted && s.state != StreamFailed {
		s.state = StreamFailed
		s.err = ErrStreamClosed
	}
	return s.release()
}

func (s *Stream) finish(state StreamState, err error) {
	s.state = state
	s.err = err
	s.chunk = ""
	_ = s.release()
}

func (s *Stream) release() error {
	var err error
	s.closeOnce.Do(func() {
		if s.closer != nil {
			err = s.closer()
		}
	})
	return err
}
