package chat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	snapshots map[string][]Message
}

func (f *fakeFetcher) FetchMessages(ctx context.Context, conversationID string) ([]Message, error) {
	return f.snapshots[conversationID], nil
}

type fakeChannel struct {
	events chan Message

	mu     sync.Mutex
	closed bool
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{events: make(chan Message, 16)}
}

func (f *fakeChannel) Events() <-chan Message { return f.events }

func (f *fakeChannel) Status() string { return "open" }

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeChannel) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// setupSession wires a session against fakes, returning the per-conversation
// channels handed out by the opener.
func setupSession(t *testing.T, snapshots map[string][]Message) (*Session, *Reconciler, map[string]*fakeChannel) {
	t.Helper()

	channels := make(map[string]*fakeChannel)
	var mu sync.Mutex
	open := func(ctx context.Context, conversationID string) (EventSource, error) {
		ch := newFakeChannel()
		mu.Lock()
		channels[conversationID] = ch
		mu.Unlock()
		return ch, nil
	}

	rec := NewReconciler()
	session := NewSession(&fakeFetcher{snapshots: snapshots}, &fakeSender{rec: rec}, open, rec)
	return session, rec, channels
}

func TestActivateLoadsSnapshot(t *testing.T) {
	session, rec, _ := setupSession(t, map[string][]Message{
		"conv-a": {
			confirmedMessage("srv-1", "hello", RoleDoctor),
			confirmedMessage("srv-2", "hola", RolePatient),
		},
	})
	defer session.Deactivate()

	require.NoError(t, session.Activate(context.Background(), "conv-a"))
	assert.Equal(t, "conv-a", session.Active())

	messages := rec.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "srv-1", messages[0].ID)
	assert.Equal(t, "srv-2", messages[1].ID)
}

func TestPushEventsReachReconciler(t *testing.T) {
	session, rec, channels := setupSession(t, map[string][]Message{})
	defer session.Deactivate()

	require.NoError(t, session.Activate(context.Background(), "conv-a"))
	channels["conv-a"].events <- confirmedMessage("srv-1", "hola", RolePatient)

	require.Eventually(t, func() bool {
		return len(rec.Messages()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "srv-1", rec.Messages()[0].ID)
}

func TestSwitchingConversationsIsolatesEvents(t *testing.T) {
	session, rec, channels := setupSession(t, map[string][]Message{
		"conv-b": {confirmedMessage("srv-b1", "b history", RoleDoctor)},
	})
	defer session.Deactivate()

	require.NoError(t, session.Activate(context.Background(), "conv-a"))
	require.NoError(t, session.Activate(context.Background(), "conv-b"))

	require.Eventually(t, channels["conv-a"].isClosed, time.Second, 10*time.Millisecond)

	// A late event from the stale handle must not leak into conv-b's list.
	stale := confirmedMessage("srv-a9", "stale", RolePatient)
	stale.ConversationID = "conv-a"
	channels["conv-a"].events <- stale

	time.Sleep(50 * time.Millisecond)
	messages := rec.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "srv-b1", messages[0].ID)
}

func TestEventTaggedForOtherConversationDiscarded(t *testing.T) {
	session, rec, channels := setupSession(t, map[string][]Message{})
	defer session.Deactivate()

	require.NoError(t, session.Activate(context.Background(), "conv-a"))

	wrong := confirmedMessage("srv-x", "misrouted", RolePatient)
	wrong.ConversationID = "conv-z"
	channels["conv-a"].events <- wrong

	ours := confirmedMessage("srv-1", "for us", RolePatient)
	ours.ConversationID = "conv-a"
	channels["conv-a"].events <- ours

	require.Eventually(t, func() bool {
		return len(rec.Messages()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, "srv-1", rec.Messages()[0].ID)
}

func TestDeactivateClosesChannel(t *testing.T) {
	session, _, channels := setupSession(t, map[string][]Message{})

	require.NoError(t, session.Activate(context.Background(), "conv-a"))
	session.Deactivate()

	assert.True(t, channels["conv-a"].isClosed())
	assert.Equal(t, "", session.Active())
	assert.Equal(t, "inactive", session.ChannelStatus())
}

func TestSubmitRequiresActiveConversation(t *testing.T) {
	session, _, _ := setupSession(t, map[string][]Message{})

	_, err := session.Submit(context.Background(), Draft{Role: RoleDoctor, Text: "hi"})
	assert.ErrorIs(t, err, ErrNoActiveConversation)
}
