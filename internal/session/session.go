package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"vision-chat/internal/auth"
	"vision-chat/internal/service/llm"
)

// ErrBusy is returned when an action arrives while a reply is still streaming
var ErrBusy = errors.New("a reply is still being generated")

// Session is the per-browser context every UI action works on
type Session struct {
	ID   string
	Gate *auth.Gate

	busy atomic.Bool

	mu             sync.RWMutex
	transcript     []llm.Message
	conversationID *int64
	uploaderKey    int
	model          string
	flash          string
	lastSeen       time.Time
}

func newSession(id, model string) *Session {
	return &Session{
		ID:         id,
		Gate:       auth.NewGate(),
		transcript: []llm.Message{},
		model:      model,
		lastSeen:   time.Now(),
	}
}

// Begin claims the session for one mutating action; pair with End
func (s *Session) Begin() error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

// End releases the claim taken by Begin
func (s *Session) End() {
	s.busy.Store(false)
}

// Busy reports whether an action currently holds the session
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// Transcript returns a copy of the in-memory transcript
func (s *Session) Transcript() []llm.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messagesCopy := make([]llm.Message, len(s.transcript))
	copy(messagesCopy, s.transcript)
	return messagesCopy
}

// Append adds msg to the transcript and returns the new transcript
func (s *Session) Append(msg llm.Message) []llm.Message {
	s.mu.Lock()
	s.transcript = append(s.transcript, msg)
	s.mu.Unlock()
	return s.Transcript()
}

// Replace swaps in a loaded transcript and the record it came from
func (s *Session) Replace(transcript []llm.Message, conversationID *int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcript = append([]llm.Message{}, transcript...)
	s.conversationID = copyID(conversationID)
}

// Reset starts a fresh, unsaved conversation
func (s *Session) Reset() {
	s.Replace(nil, nil)
}

// ConversationID returns the id of the persisted record, or nil before the first save
func (s *Session) ConversationID() *int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyID(s.conversationID)
}

func (s *Session) SetConversationID(id int64) {
	s.mu.Lock()
	s.conversationID = &id
	s.mu.Unlock()
}

func copyID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// UploaderKey identifies the current file picker generation
func (s *Session) UploaderKey() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uploaderKey
}

// BumpUploaderKey forces a fresh, empty file picker on the next render
func (s *Session) BumpUploaderKey() {
	s.mu.Lock()
	s.uploaderKey++
	s.mu.Unlock()
}

func (s *Session) Model() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.model
}

func (s *Session) SetModel(model string) {
	s.mu.Lock()
	s.model = model
	s.mu.Unlock()
}

// SetFlash stores a message shown once on the next page render
func (s *Session) SetFlash(message string) {
	s.mu.Lock()
	s.flash = message
	s.mu.Unlock()
}

// TakeFlash returns and clears the pending flash message
func (s *Session) TakeFlash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	flash := s.flash
	s.flash = ""
	return flash
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}
