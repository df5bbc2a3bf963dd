package store

import (
	"sort"
	"sync"
	"time"

	"chatsync/internal/models"

	"github.com/sirupsen/logrus"
)

// ChangeKind identifies what a store notification describes.
type ChangeKind string

const (
	ChangeAppended     ChangeKind = "appended"
	ChangeResolved     ChangeKind = "resolved"
	ChangeStateUpdated ChangeKind = "state_updated"
	ChangeEdited       ChangeKind = "edited"
	ChangeDeleted      ChangeKind = "deleted"
	ChangeMerged       ChangeKind = "merged"
)

// Change is delivered to subscribers after a mutation commits.
type Change struct {
	Kind           ChangeKind
	ConversationID string
	Message        models.Message
}

type conversationLog struct {
	ordered []*models.Message
	// byKey indexes every live identity: server id, provisional id, and
	// resolved provisional aliases all point at the same entry.
	byKey map[string]*models.Message
}

// Store holds the ordered, deduplicated message log per conversation.
// All mutations go through the store's mutex so a REST response and a push
// event racing on the same message cannot lose an update. Subscribers are
// notified outside the lock.
type Store struct {
	mu     sync.Mutex
	logger *logrus.Logger
	convs  map[string]*conversationLog
	seq    uint64
	subs   []func(Change)
}

func New(logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{
		logger: logger,
		convs:  make(map[string]*conversationLog),
	}
}

// Subscribe registers a change listener. Listeners run after the mutation
// commits, outside the store lock, so they may query the store.
func (s *Store) Subscribe(fn func(Change)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Store) notify(changes []Change) {
	// Snapshot under the lock: a screen may subscribe while push and REST
	// mutations are flowing.
	s.mu.Lock()
	subs := make([]func(Change), len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, c := range changes {
		for _, fn := range subs {
			fn(c)
		}
	}
}

func (s *Store) conv(conversationID string) *conversationLog {
	cl, ok := s.convs[conversationID]
	if !ok {
		cl = &conversationLog{byKey: make(map[string]*models.Message)}
		s.convs[conversationID] = cl
	}
	return cl
}

func (cl *conversationLog) lookup(key string) *models.Message {
	if key == "" {
		return nil
	}
	return cl.byKey[key]
}

func (cl *conversationLog) remove(entry *models.Message) {
	for i, m := range cl.ordered {
		if m == entry {
			cl.ordered = append(cl.ordered[:i], cl.ordered[i+1:]...)
			break
		}
	}
	if entry.ID != "" {
		delete(cl.byKey, entry.ID)
	}
	if entry.ProvisionalID != "" {
		delete(cl.byKey, entry.ProvisionalID)
	}
}

// provisionalMatchWindow bounds how far apart the local and server CreatedAt
// of the same send may drift before the twin heuristic stops matching them.
const provisionalMatchWindow = 2 * time.Minute

// pendingTwin finds the still-in-flight local entry a server-confirmed copy
// belongs to. The wire carries no provisional id, so a fetch that races the
// send response can only be matched by sender, kind, content and creation
// time.
func (cl *conversationLog) pendingTwin(fm *models.Message) *models.Message {
	if fm.ID == "" {
		return nil
	}
	for _, m := range cl.ordered {
		if m.ID != "" || m.ProvisionalID == "" {
			continue
		}
		if m.DeliveryState != models.StateSending {
			continue
		}
		if m.SenderID != fm.SenderID || m.Kind != fm.Kind {
			continue
		}
		if d := fm.CreatedAt.Sub(m.CreatedAt); d < -provisionalMatchWindow || d > provisionalMatchWindow {
			continue
		}
		if tp, ok := m.Payload.(models.TextPayload); ok {
			fp, ok := fm.Payload.(models.TextPayload)
			if !ok || fp.Body != tp.Body {
				continue
			}
		}
		return m
	}
	return nil
}

// insertOrdered places msg at its position by (CreatedAt, Seq). A late
// arrival for an older message lands at its correct slot, not at the end.
func (cl *conversationLog) insertOrdered(msg *models.Message) {
	idx := sort.Search(len(cl.ordered), func(i int) bool {
		return msg.Before(cl.ordered[i])
	})
	cl.ordered = append(cl.ordered, nil)
	copy(cl.ordered[idx+1:], cl.ordered[idx:])
	cl.ordered[idx] = msg
}

// Append inserts a message unless an entry already exists for its id or
// provisional id. It returns false on duplicates, which makes double
// delivery via push and fetch a no-op.
func (s *Store) Append(msg *models.Message) bool {
	s.mu.Lock()
	cl := s.conv(msg.ConversationID)
	if cl.lookup(msg.ID) != nil || cl.lookup(msg.ProvisionalID) != nil {
		s.mu.Unlock()
		return false
	}

	entry := *msg
	s.seq++
	entry.Seq = s.seq
	cl.insertOrdered(&entry)
	if entry.ID != "" {
		cl.byKey[entry.ID] = &entry
	}
	if entry.ProvisionalID != "" {
		cl.byKey[entry.ProvisionalID] = &entry
	}
	change := Change{Kind: ChangeAppended, ConversationID: msg.ConversationID, Message: entry}
	s.mu.Unlock()

	s.notify([]Change{change})
	return true
}

// ResolveProvisional rebinds a provisional entry to its server-confirmed
// identity. The provisional id stays registered as an alias, position and
// created time are preserved, and the state advances to sent.
func (s *Store) ResolveProvisional(conversationID, provisionalID string, confirmed *models.Message) bool {
	s.mu.Lock()
	cl := s.conv(conversationID)
	entry := cl.lookup(provisionalID)
	if entry == nil {
		s.mu.Unlock()
		s.logger.WithFields(logrus.Fields{
			"conversation_id": conversationID,
			"provisional_id":  provisionalID,
		}).Warn("Cannot resolve unknown provisional message")
		return false
	}
	if entry.ID != "" && entry.ID != confirmed.ID {
		s.mu.Unlock()
		return false
	}
	if dup := cl.lookup(confirmed.ID); dup != nil && dup != entry {
		// The server copy arrived through a fetch or push before the send
		// response. Keep the provisional entry's position and fold the
		// copy's state into it.
		cl.remove(dup)
		s.mergeConfirmedLocked(entry, dup)
	}

	entry.ID = confirmed.ID
	cl.byKey[confirmed.ID] = entry
	if confirmed.Payload != nil {
		entry.Payload = confirmed.Payload
	}
	if confirmed.SentAt != nil {
		entry.SentAt = confirmed.SentAt
	} else if entry.SentAt == nil {
		now := time.Now()
		entry.SentAt = &now
	}
	if entry.DeliveryState.CanAdvanceTo(models.StateSent) {
		entry.DeliveryState = models.StateSent
		entry.FailureReason = ""
	}
	change := Change{Kind: ChangeResolved, ConversationID: conversationID, Message: *entry}
	s.mu.Unlock()

	s.notify([]Change{change})
	return true
}

// Advance applies a monotonic delivery state transition. Stale or regressive
// transitions return false and leave the entry untouched.
func (s *Store) Advance(conversationID, key string, state models.DeliveryState, at time.Time) bool {
	s.mu.Lock()
	cl := s.conv(conversationID)
	entry := cl.lookup(key)
	if entry == nil || !entry.DeliveryState.CanAdvanceTo(state) {
		s.mu.Unlock()
		return false
	}
	s.applyStateLocked(entry, state, at, "")
	change := Change{Kind: ChangeStateUpdated, ConversationID: conversationID, Message: *entry}
	s.mu.Unlock()

	s.notify([]Change{change})
	return true
}

// Fail moves a sending message to failed and attaches a human-readable
// reason. The entry is never removed; the user decides whether to retry.
func (s *Store) Fail(conversationID, key, reason string) bool {
	s.mu.Lock()
	cl := s.conv(conversationID)
	entry := cl.lookup(key)
	if entry == nil || entry.DeliveryState != models.StateSending {
		s.mu.Unlock()
		return false
	}
	entry.DeliveryState = models.StateFailed
	entry.FailureReason = reason
	change := Change{Kind: ChangeStateUpdated, ConversationID: conversationID, Message: *entry}
	s.mu.Unlock()

	s.notify([]Change{change})
	return true
}

// BeginRetry moves a failed message back to sending. The entry keeps its
// provisional identity and position, so a retried send never duplicates.
func (s *Store) BeginRetry(conversationID, key string) (*models.Message, bool) {
	s.mu.Lock()
	cl := s.conv(conversationID)
	entry := cl.lookup(key)
	if entry == nil || entry.DeliveryState != models.StateFailed {
		s.mu.Unlock()
		return nil, false
	}
	entry.DeliveryState = models.StateSending
	entry.FailureReason = ""
	snapshot := *entry
	change := Change{Kind: ChangeStateUpdated, ConversationID: conversationID, Message: snapshot}
	s.mu.Unlock()

	s.notify([]Change{change})
	return &snapshot, true
}

// mergeConfirmedLocked folds a server copy of a message into its existing
// entry: monotonic state advance, edit and delete flags.
func (s *Store) mergeConfirmedLocked(entry, fm *models.Message) {
	if entry.DeliveryState.CanAdvanceTo(fm.DeliveryState) {
		at := fm.CreatedAt
		if fm.DeliveryState == models.StateRead && fm.ReadAt != nil {
			at = *fm.ReadAt
		} else if fm.DeliveryState == models.StateDelivered && fm.DeliveredAt != nil {
			at = *fm.DeliveredAt
		}
		s.applyStateLocked(entry, fm.DeliveryState, at, "")
	}
	if fm.SentAt != nil && entry.SentAt == nil {
		entry.SentAt = fm.SentAt
	}
	if fm.IsEdited && !entry.IsEdited {
		entry.IsEdited = true
		entry.EditedAt = fm.EditedAt
		entry.Payload = fm.Payload
	}
	if fm.DeletedAt != nil && entry.DeletedAt == nil {
		entry.DeletedAt = fm.DeletedAt
	}
}

func (s *Store) applyStateLocked(entry *models.Message, state models.DeliveryState, at time.Time, reason string) {
	entry.DeliveryState = state
	entry.FailureReason = reason
	if at.IsZero() {
		at = time.Now()
	}
	switch state {
	case models.StateSent:
		if entry.SentAt == nil {
			entry.SentAt = &at
		}
	case models.StateDelivered:
		if entry.DeliveredAt == nil {
			entry.DeliveredAt = &at
		}
	case models.StateRead:
		if entry.DeliveredAt == nil {
			entry.DeliveredAt = &at
		}
		if entry.ReadAt == nil {
			entry.ReadAt = &at
		}
	}
}

// AttachMedia replaces the payload of a pending media message once the
// upload collaborator has produced a durable URL.
func (s *Store) AttachMedia(conversationID, key string, payload models.MediaPayload) bool {
	s.mu.Lock()
	cl := s.conv(conversationID)
	entry := cl.lookup(key)
	if entry == nil {
		s.mu.Unlock()
		return false
	}
	entry.Payload = payload
	change := Change{Kind: ChangeEdited, ConversationID: conversationID, Message: *entry}
	s.mu.Unlock()

	s.notify([]Change{change})
	return true
}

// MarkEdited flags a message as edited and swaps in the new payload.
func (s *Store) MarkEdited(conversationID, key string, payload models.Payload, at time.Time) bool {
	s.mu.Lock()
	cl := s.conv(conversationID)
	entry := cl.lookup(key)
	if entry == nil {
		s.mu.Unlock()
		return false
	}
	entry.IsEdited = true
	entry.EditedAt = &at
	if payload != nil {
		entry.Payload = payload
	}
	change := Change{Kind: ChangeEdited, ConversationID: conversationID, Message: *entry}
	s.mu.Unlock()

	s.notify([]Change{change})
	return true
}

// MarkDeleted soft-deletes a message. The entry keeps its slot so ordering
// survives and a delayed fetch cannot resurrect a stale copy.
func (s *Store) MarkDeleted(conversationID, key string, at time.Time) bool {
	s.mu.Lock()
	cl := s.conv(conversationID)
	entry := cl.lookup(key)
	if entry == nil || entry.DeletedAt != nil {
		s.mu.Unlock()
		return false
	}
	entry.DeletedAt = &at
	change := Change{Kind: ChangeDeleted, ConversationID: conversationID, Message: *entry}
	s.mu.Unlock()

	s.notify([]Change{change})
	return true
}

// MergeHistory reconciles a fetched conversation history against the
// in-memory log. Confirmed entries are updated monotonically, unknown ones
// inserted at their ordered position, and local pending entries survive, so
// an in-flight optimistic message is neither lost nor duplicated.
func (s *Store) MergeHistory(conversationID string, fetched []*models.Message) {
	s.mu.Lock()
	cl := s.conv(conversationID)
	var changes []Change
	for _, fm := range fetched {
		entry := cl.lookup(fm.ID)
		if entry == nil {
			entry = cl.lookup(fm.ProvisionalID)
		}
		if entry != nil {
			s.mergeConfirmedLocked(entry, fm)
			continue
		}

		// A fetched copy of an own send whose REST response has not landed
		// yet carries no provisional id. Bind it to the pending entry
		// instead of inserting a second one.
		if twin := cl.pendingTwin(fm); twin != nil {
			twin.ID = fm.ID
			cl.byKey[fm.ID] = twin
			s.mergeConfirmedLocked(twin, fm)
			changes = append(changes, Change{Kind: ChangeResolved, ConversationID: conversationID, Message: *twin})
			continue
		}

		inserted := *fm
		s.seq++
		inserted.Seq = s.seq
		cl.insertOrdered(&inserted)
		if inserted.ID != "" {
			cl.byKey[inserted.ID] = &inserted
		}
		if inserted.ProvisionalID != "" {
			cl.byKey[inserted.ProvisionalID] = &inserted
		}
		changes = append(changes, Change{Kind: ChangeAppended, ConversationID: conversationID, Message: inserted})
	}
	changes = append(changes, Change{Kind: ChangeMerged, ConversationID: conversationID})
	s.mu.Unlock()

	s.notify(changes)
}

// Get returns a copy of the message reachable by key (server id or
// provisional alias).
func (s *Store) Get(conversationID, key string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl := s.conv(conversationID)
	entry := cl.lookup(key)
	if entry == nil {
		return models.Message{}, false
	}
	return *entry, true
}

// Messages returns a snapshot of the conversation in display order.
func (s *Store) Messages(conversationID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.convs[conversationID]
	if !ok {
		return nil
	}
	out := make([]models.Message, len(cl.ordered))
	for i, m := range cl.ordered {
		out[i] = *m
	}
	return out
}

// Unread returns the inbound messages that have not been read, skipping
// soft-deleted entries.
func (s *Store) Unread(conversationID, selfID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.convs[conversationID]
	if !ok {
		return nil
	}
	var out []models.Message
	for _, m := range cl.ordered {
		if m.Inbound(selfID) && m.DeliveryState != models.StateRead && m.DeletedAt == nil {
			out = append(out, *m)
		}
	}
	return out
}

// UnreadCount recomputes the number of unread inbound messages.
func (s *Store) UnreadCount(conversationID, selfID string) int {
	return len(s.Unread(conversationID, selfID))
}

// LastMessage returns the newest non-deleted message of a conversation.
func (s *Store) LastMessage(conversationID string) (models.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cl, ok := s.convs[conversationID]
	if !ok {
		return models.Message{}, false
	}
	for i := len(cl.ordered) - 1; i >= 0; i-- {
		if cl.ordered[i].DeletedAt == nil {
			return *cl.ordered[i], true
		}
	}
	return models.Message{}, false
}

// Conversations lists the conversation ids currently held in memory.
func (s *Store) Conversations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.convs))
	for id := range s.convs {
		out = append(out, id)
	}
	return out
}
