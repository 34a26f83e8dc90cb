package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

var ErrEmptyDraft = errors.New("draft has no text and no audio")

// Sender is the slice of the server API the submitter needs.
type Sender interface {
	SendMessage(ctx context.Context, conversationID string, draft Draft) (Message, error)
	UploadAudio(ctx context.Context, path string) (string, error)
}

// Submitter turns a composed draft into a pending message, sends it, and
// resolves it to exactly one of confirm or fail on the reconciler.
type Submitter struct {
	sender         Sender
	rec            *Reconciler
	conversationID string
}

func NewSubmitter(sender Sender, rec *Reconciler, conversationID string) *Submitter {
	return &Submitter{
		sender:         sender,
		rec:            rec,
		conversationID: conversationID,
	}
}

// Submit publishes an optimistic pending message for the draft, uploads any
// audio attachment, and performs the send. The pending entry is only created
// for drafts with text: an audio-only draft has nothing previewable, so it
// appears when the server echoes it back. An upload failure aborts the
// submission before send is ever attempted.
func (s *Submitter) Submit(ctx context.Context, draft Draft) (Message, error) {
	if draft.Text == "" && draft.AudioPath == "" {
		return Message{}, ErrEmptyDraft
	}

	localKey := ""
	if draft.Text != "" {
		localKey = uuid.New().String()
		s.rec.InsertOptimistic(Message{
			LocalKey:       localKey,
			ConversationID: s.conversationID,
			Role:           draft.Role,
			OriginalText:   draft.Text,
			SourceLanguage: draft.SourceLanguage,
			TargetLanguage: draft.TargetLanguage,
			AudioPath:      draft.AudioPath,
			CreatedAt:      time.Now(),
		})
	}

	if draft.AudioPath != "" {
		ref, err := s.sender.UploadAudio(ctx, draft.AudioPath)
		if err != nil {
			if localKey != "" {
				s.rec.Fail(localKey)
			}
			return Message{}, fmt.Errorf("failed to upload audio: %w", err)
		}
		slog.Debug("Audio uploaded", "ref", ref, "conversationID", s.conversationID)
		draft.AudioPath = ref
	}

	server, err := s.sender.SendMessage(ctx, s.conversationID, draft)
	if err != nil {
		if localKey != "" {
			s.rec.Fail(localKey)
		}
		return Message{}, fmt.Errorf("failed to send message: %w", err)
	}

	if localKey != "" {
		s.rec.Confirm(localKey, server)
	} else {
		s.rec.IngestPushEvent(server)
	}
	return server, nil
}
