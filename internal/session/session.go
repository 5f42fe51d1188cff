// ABOUTME: Session drives turn taking across a roster of agents on one remote thread
// ABOUTME: Keeps an append-only transcript, a status machine and a rolling SHA-256 hash

package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/parley/internal/agent"
)

// Session errors.
var (
	ErrAlreadyRunning    = errors.New("session already running")
	ErrSessionFailed     = errors.New("session ended in error")
	ErrTurnFailed        = errors.New("turn failed")
	ErrNoEligibleSpeaker = errors.New("no eligible speaker")
	ErrUnknownSpeaker    = errors.New("speaker is not in the roster")
)

// DefaultLimit is the number of turns run when a non-positive limit is given.
const DefaultLimit = 4

// Role is the author role of a transcript message.
type Role string

// Message roles.
const (
	RoleSystem    Role = "system"
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Message is one transcript entry. The JSON encoding feeds the integrity hash,
// so field order and tags are part of the format.
type Message struct {
	ID           string `json:"uuid"`
	Role         Role   `json:"role"`
	Content      string `json:"content"`
	SenderID     string `json:"senderId"`
	DisplayName  string `json:"displayName"`
	ProfileImage string `json:"profileImage,omitempty"`
	Timestamp    int64  `json:"timestamp"`
}

// Participant is a roster member. *agent.Agent satisfies it.
type Participant interface {
	ID() string
	ResolveName(ctx context.Context) (string, error)
	Converse(ctx context.Context, message, threadID string) agent.Outcome
}

type avatarer interface {
	Avatar() string
}

// NameResolver looks up display names for responders outside the roster.
type NameResolver func(ctx context.Context, id string) (string, error)

// Snapshot is a consistent copy of a session's state.
type Snapshot struct {
	ID         string
	Topic      string
	ThreadID   string
	Status     Status
	Transcript []Message
	Hash       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithID overrides the generated session id.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// WithTopic sets the content of the first turn.
func WithTopic(topic string) Option {
	return func(s *Session) { s.topic = topic }
}

// WithThreadID continues an existing remote thread.
func WithThreadID(id string) Option {
	return func(s *Session) { s.threadID = id }
}

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithNameResolver resolves names of delegated responders outside the roster.
func WithNameResolver(r NameResolver) Option {
	return func(s *Session) { s.names = r }
}

// WithAvatars maps sender ids to profile image references. Participants that
// report their own avatar take precedence.
func WithAvatars(avatars map[string]string) Option {
	return func(s *Session) { s.avatars = avatars }
}

// WithBroadcaster publishes appended messages and status changes to b.
func WithBroadcaster(b *Broadcaster) Option {
	return func(s *Session) { s.events = b }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// Session is safe for concurrent use. Only one Start, Resume or Step runs at a time.
type Session struct {
	id      string
	roster  []Participant
	topic   string
	now     func() time.Time
	names   NameResolver
	avatars map[string]string
	events  *Broadcaster
	logger  *slog.Logger

	mu         sync.Mutex
	status     Status
	threadID   string
	transcript []Message
	hash       string
	lastStamp  int64
	createdAt  time.Time
	updatedAt  time.Time
}

// New creates a pending session. Roster order sets speaking priority.
func New(roster []Participant, opts ...Option) *Session {
	s := &Session{
		id:         uuid.New().String(),
		roster:     append([]Participant(nil), roster...),
		now:        time.Now,
		status:     StatusPending,
		transcript: []Message{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "session", "session_id", s.id)
	s.hash = Hash(s.transcript)
	s.createdAt = s.now()
	s.updatedAt = s.createdAt
	return s
}

// Hash returns the hex SHA-256 of the transcript's JSON encoding.
func Hash(transcript []Message) string {
	if transcript == nil {
		transcript = []Message{}
	}
	data, err := json.Marshal(transcript)
	if err != nil {
		// Message holds only strings and ints.
		panic(fmt.Sprintf("encoding transcript: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Transcript returns a copy of the transcript.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.transcript...)
}

// Hash returns the hash of the current transcript.
func (s *Session) Hash() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hash
}

// ThreadID returns the shared remote thread id, or "" before the first turn.
func (s *Session) ThreadID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// Snapshot returns the full state taken under one lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:         s.id,
		Topic:      s.topic,
		ThreadID:   s.threadID,
		Status:     s.status,
		Transcript: append([]Message(nil), s.transcript...),
		Hash:       s.hash,
		CreatedAt:  s.createdAt,
		UpdatedAt:  s.updatedAt,
	}
}

// Start runs up to limit turns, continuing the transcript and thread of a
// completed session. It fails while the session is running or after an error.
func (s *Session) Start(ctx context.Context, limit int) error {
	if err := s.claim(); err != nil {
		return err
	}
	return s.loop(ctx, limit)
}

// Resume runs limit more turns in chunks. It is Start under another name.
func (s *Session) Resume(ctx context.Context, limit int) error {
	return s.Start(ctx, limit)
}

// Step runs a single turn. A non-empty speakerID chooses the speaker instead
// of the usual rotation.
func (s *Session) Step(ctx context.Context, speakerID string) error {
	var forced Participant
	if speakerID != "" {
		forced = s.member(speakerID)
		if forced == nil {
			return fmt.Errorf("%w: %s", ErrUnknownSpeaker, speakerID)
		}
	}
	if err := s.claim(); err != nil {
		return err
	}

	if err := s.turn(ctx, forced); err != nil {
		s.finish(StatusError)
		return err
	}
	s.finish(StatusCompleted)
	return nil
}

// claim moves the session to running.
func (s *Session) claim() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.status == StatusRunning:
		return ErrAlreadyRunning
	case s.status.Terminal():
		return ErrSessionFailed
	}
	if !s.status.CanTransition(StatusRunning) {
		return fmt.Errorf("cannot run session in status %s", s.status)
	}
	s.status = StatusRunning
	s.updatedAt = s.now()
	s.publish(Event{Kind: EventStatus, Status: s.status, Seq: len(s.transcript), Hash: s.hash})
	return nil
}

func (s *Session) loop(ctx context.Context, limit int) error {
	if limit <= 0 {
		limit = DefaultLimit
	}
	s.logger.Info("running turns", "limit", limit)

	for i := 0; i < limit; i++ {
		if err := s.turn(ctx, nil); err != nil {
			s.logger.Warn("session stopped", "turn", i+1, "error", err)
			s.finish(StatusError)
			return err
		}
	}
	s.finish(StatusCompleted)
	return nil
}

func (s *Session) finish(to Status) {
	s.mu.Lock()
	if s.status.CanTransition(to) {
		s.status = to
		s.updatedAt = s.now()
		s.publish(Event{Kind: EventStatus, Status: to, Seq: len(s.transcript), Hash: s.hash})
	}
	s.mu.Unlock()
}

func (s *Session) turn(ctx context.Context, speaker Participant) error {
	s.mu.Lock()
	content := s.topic
	lastSender := ""
	if n := len(s.transcript); n > 0 {
		content = s.transcript[n-1].Content
		lastSender = s.transcript[n-1].SenderID
	}
	threadID := s.threadID
	s.mu.Unlock()

	if speaker == nil {
		var err error
		if speaker, err = s.nextSpeaker(lastSender); err != nil {
			return err
		}
	}

	s.logger.Debug("turn starting", "speaker", speaker.ID(), "thread_id", threadID)
	out := speaker.Converse(ctx, content, threadID)
	if out.Err != nil {
		return fmt.Errorf("%w: %s: %w", ErrTurnFailed, speaker.ID(), out.Err)
	}

	responder := out.ResponderID
	if responder == "" {
		responder = speaker.ID()
	}
	name, err := s.displayName(ctx, speaker, responder)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTurnFailed, err)
	}

	s.mu.Lock()
	if out.ThreadID != "" {
		s.threadID = out.ThreadID
	}
	stamp := s.now().UnixMilli()
	if stamp <= s.lastStamp {
		stamp = s.lastStamp + 1
	}
	s.lastStamp = stamp
	msg := Message{
		ID:           uuid.New().String(),
		Role:         RoleAssistant,
		Content:      out.Text,
		SenderID:     responder,
		DisplayName:  name,
		ProfileImage: s.avatarFor(responder),
		Timestamp:    stamp,
	}
	s.transcript = append(s.transcript, msg)
	s.hash = Hash(s.transcript)
	s.updatedAt = s.now()
	seq := len(s.transcript)
	published := msg
	s.publish(Event{Kind: EventMessage, Status: s.status, Seq: seq, Message: &published, Hash: s.hash})
	s.mu.Unlock()

	s.logger.Info("turn completed",
		"speaker", speaker.ID(),
		"responder", responder,
		"delegated", out.Delegated,
		"thread_id", out.ThreadID,
		"messages", seq,
	)
	return nil
}

func (s *Session) nextSpeaker(lastSender string) (Participant, error) {
	if len(s.roster) == 0 {
		return nil, fmt.Errorf("%w: empty roster", ErrNoEligibleSpeaker)
	}
	if lastSender == "" {
		return s.roster[0], nil
	}
	for _, p := range s.roster {
		if p.ID() != lastSender {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: every member is %s", ErrNoEligibleSpeaker, lastSender)
}

func (s *Session) member(id string) Participant {
	for _, p := range s.roster {
		if p.ID() == id {
			return p
		}
	}
	return nil
}

func (s *Session) displayName(ctx context.Context, speaker Participant, responder string) (string, error) {
	if responder == speaker.ID() {
		return speaker.ResolveName(ctx)
	}
	if p := s.member(responder); p != nil {
		return p.ResolveName(ctx)
	}
	if s.names != nil {
		return s.names(ctx, responder)
	}
	return responder, nil
}

func (s *Session) avatarFor(id string) string {
	if p := s.member(id); p != nil {
		if a, ok := p.(avatarer); ok && a.Avatar() != "" {
			return a.Avatar()
		}
	}
	return s.avatars[id]
}

// publish must be called with s.mu held so events keep transcript order.
func (s *Session) publish(ev Event) {
	if s.events == nil {
		return
	}
	ev.SessionID = s.id
	s.events.Publish(ev)
}
