package chat

import (
	"log/slog"
	"sync"
)

// Reconciler owns the ordered message list for the active conversation. It
// merges three sources into one duplicate-free view: the history snapshot
// loaded on activation, optimistic local sends, and push channel arrivals.
// Every operation is total: anomalies (duplicate deliveries, unmatched
// confirmations) are resolved by idempotent dedup and logged, never
// surfaced.
//
// All mutations go through the internal mutex, so the Reconciler is safe to
// share between the submission path and the push event forwarder.
type Reconciler struct {
	mu       sync.RWMutex
	messages []Message
	onChange func([]Message)
}

func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// OnChange registers the single change listener. It is invoked with a copy
// of the visible list after every mutation, outside the reconciler lock.
func (r *Reconciler) OnChange(fn func([]Message)) {
	r.mu.Lock()
	r.onChange = fn
	r.mu.Unlock()
}

// Messages returns a read-only snapshot of the visible list.
func (r *Reconciler) Messages() []Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// LoadSnapshot replaces the entire visible list with freshly fetched
// history. Used once per conversation activation; any pending entries from
// a previous conversation are discarded with the rest of the state.
func (r *Reconciler) LoadSnapshot(messages []Message) {
	r.mu.Lock()
	r.messages = make([]Message, len(messages))
	for i, m := range messages {
		m.Status = StatusConfirmed
		r.messages[i] = m
	}
	r.mu.Unlock()
	r.notify()
}

// InsertOptimistic appends a pending message. A duplicate localKey is a
// caller bug; it is logged and ignored so the list invariant holds.
func (r *Reconciler) InsertOptimistic(msg Message) {
	r.mu.Lock()
	if msg.LocalKey == "" {
		r.mu.Unlock()
		slog.Warn("Dropping optimistic message without local key")
		return
	}
	if idx := r.indexByLocalKey(msg.LocalKey); idx >= 0 {
		r.mu.Unlock()
		slog.Warn("Duplicate optimistic insert ignored", "localKey", msg.LocalKey)
		return
	}
	msg.Status = StatusPending
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	r.notify()
}

// Confirm resolves a pending message to its server-confirmed form, keeping
// its position in the list so the user's own message does not jump. If the
// pending entry is gone (snapshot reload raced ahead, or a push echo already
// promoted it), the server message is appended unless its id is already
// present.
func (r *Reconciler) Confirm(localKey string, server Message) {
	r.mu.Lock()
	changed := false
	if idx := r.indexByLocalKey(localKey); idx >= 0 && r.messages[idx].Status == StatusPending {
		server.LocalKey = localKey
		server.Status = StatusConfirmed
		r.messages[idx] = server
		changed = true
	} else if server.ID != "" && r.indexByID(server.ID) < 0 {
		server.Status = StatusConfirmed
		r.messages = append(r.messages, server)
		changed = true
	} else {
		slog.Debug("Confirmation already reconciled", "localKey", localKey, "id", server.ID)
	}
	r.mu.Unlock()
	if changed {
		r.notify()
	}
}

// Fail rolls back the pending message with the given localKey. Confirmed
// messages never regress, so a late failure for an already-confirmed key is
// a no-op.
func (r *Reconciler) Fail(localKey string) {
	r.mu.Lock()
	idx := r.indexByLocalKey(localKey)
	if idx < 0 || r.messages[idx].Status != StatusPending {
		r.mu.Unlock()
		slog.Debug("Failure for absent or settled message ignored", "localKey", localKey)
		return
	}
	r.messages = append(r.messages[:idx], r.messages[idx+1:]...)
	r.mu.Unlock()
	r.notify()
}

// IngestPushEvent merges an asynchronously delivered server message. Policy,
// in order:
//  1. a confirmed message with the same server id already exists: duplicate
//     delivery, discard;
//  2. a pending message with the same role and original text exists: the
//     event is the server echo of our own send arriving ahead of the submit
//     response, so promote that pending entry in place (oldest match wins
//     when texts collide);
//  3. otherwise append as a new confirmed message.
func (r *Reconciler) IngestPushEvent(server Message) {
	r.mu.Lock()
	changed := true
	switch {
	case server.ID != "" && r.indexByID(server.ID) >= 0:
		changed = false
		slog.Debug("Duplicate push event discarded", "id", server.ID)
	case r.promotePending(server):
	default:
		server.Status = StatusConfirmed
		r.messages = append(r.messages, server)
	}
	r.mu.Unlock()
	if changed {
		r.notify()
	}
}

// promotePending finds the oldest pending message matching the event's role
// and original text and replaces it in place. Caller holds the lock.
func (r *Reconciler) promotePending(server Message) bool {
	for i, m := range r.messages {
		if m.Status == StatusPending && m.Role == server.Role && m.OriginalText == server.OriginalText {
			server.LocalKey = m.LocalKey
			server.Status = StatusConfirmed
			r.messages[i] = server
			return true
		}
	}
	return false
}

func (r *Reconciler) indexByLocalKey(localKey string) int {
	for i, m := range r.messages {
		if m.LocalKey == localKey {
			return i
		}
	}
	return -1
}

func (r *Reconciler) indexByID(id string) int {
	for i, m := range r.messages {
		if m.ID != "" && m.ID == id {
			return i
		}
	}
	return -1
}

func (r *Reconciler) notify() {
	r.mu.RLock()
	fn := r.onChange
	r.mu.RUnlock()
	if fn != nil {
		fn(r.Messages())
	}
}
