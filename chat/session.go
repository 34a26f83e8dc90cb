package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var ErrNoActiveConversation = errors.New("no active conversation")

// SnapshotFetcher loads the confirmed message history for a conversation.
type SnapshotFetcher interface {
	FetchMessages(ctx context.Context, conversationID string) ([]Message, error)
}

// EventSource is a conversation-scoped push channel handle.
type EventSource interface {
	Events() <-chan Message
	Status() string
	Close() error
}

// OpenChannel opens a push channel for one conversation.
type OpenChannel func(ctx context.Context, conversationID string) (EventSource, error)

// Session binds one active conversation to a fresh reconciler view, a push
// channel handle, and a submitter. Switching conversations tears the old
// binding down first; events from a closed handle never reach the new
// conversation's list.
type Session struct {
	fetcher SnapshotFetcher
	sender  Sender
	open    OpenChannel
	rec     *Reconciler

	mu      sync.Mutex
	active  string
	channel EventSource
	sub     *Submitter
	cancel  context.CancelFunc
}

func NewSession(fetcher SnapshotFetcher, sender Sender, open OpenChannel, rec *Reconciler) *Session {
	return &Session{
		fetcher: fetcher,
		sender:  sender,
		open:    open,
		rec:     rec,
	}
}

// Activate switches the session to the given conversation: all reconciler
// state is replaced by the freshly fetched snapshot and a new push channel
// is opened for the conversation.
func (s *Session) Activate(ctx context.Context, conversationID string) error {
	s.Deactivate()

	messages, err := s.fetcher.FetchMessages(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("failed to fetch conversation snapshot: %w", err)
	}

	forwardCtx, cancel := context.WithCancel(ctx)
	channel, err := s.open(forwardCtx, conversationID)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to open push channel: %w", err)
	}

	s.mu.Lock()
	s.active = conversationID
	s.channel = channel
	s.sub = NewSubmitter(s.sender, s.rec, conversationID)
	s.cancel = cancel
	s.mu.Unlock()

	s.rec.LoadSnapshot(messages)
	go s.forward(forwardCtx, conversationID, channel)

	slog.Info("Conversation activated", "conversationID", conversationID, "snapshotMessages", len(messages))
	return nil
}

// Deactivate closes the push channel and drops all conversation-scoped
// state. Safe to call when nothing is active.
func (s *Session) Deactivate() {
	s.mu.Lock()
	channel := s.channel
	cancel := s.cancel
	s.active = ""
	s.channel = nil
	s.sub = nil
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if channel != nil {
		if err := channel.Close(); err != nil {
			slog.Debug("Push channel close", "error", err)
		}
	}
}

// Active returns the id of the current conversation, empty if none.
func (s *Session) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ChannelStatus reports the push channel connectivity for the UI.
func (s *Session) ChannelStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel == nil {
		return "inactive"
	}
	return s.channel.Status()
}

// Submit sends a draft in the active conversation.
func (s *Session) Submit(ctx context.Context, draft Draft) (Message, error) {
	s.mu.Lock()
	sub := s.sub
	s.mu.Unlock()
	if sub == nil {
		return Message{}, ErrNoActiveConversation
	}
	return sub.Submit(ctx, draft)
}

// forward pumps push events into the reconciler for as long as the given
// conversation stays active. Events tagged for another conversation, or
// arriving after a switch, are discarded here so the reconciler only ever
// sees the active conversation.
func (s *Session) forward(ctx context.Context, conversationID string, channel EventSource) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-channel.Events():
			if !ok {
				return
			}
			if s.Active() != conversationID {
				slog.Debug("Discarding event for inactive conversation",
					"conversationID", conversationID, "id", msg.ID)
				return
			}
			if msg.ConversationID != "" && msg.ConversationID != conversationID {
				slog.Warn("Discarding event tagged for another conversation",
					"want", conversationID, "got", msg.ConversationID)
				continue
			}
			s.rec.IngestPushEvent(msg)
		}
	}
}
