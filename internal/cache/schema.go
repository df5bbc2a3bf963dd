package cache

// Schema for the local history cache. A single migration; the cache can be
// deleted and rebuilt from the backend at any time.
const schema = `
CREATE TABLE IF NOT EXISTS cached_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	provisional_id TEXT,
	sender_id TEXT NOT NULL,
	receiver_id TEXT,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL,
	delivery_state TEXT NOT NULL,
	failure_reason TEXT,
	is_edited INTEGER NOT NULL DEFAULT 0,
	edited_at TIMESTAMP,
	deleted_at TIMESTAMP,
	sent_at TIMESTAMP,
	delivered_at TIMESTAMP,
	read_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	UNIQUE(conversation_id, message_id)
);

CREATE INDEX IF NOT EXISTS idx_cached_messages_conversation
	ON cached_messages(conversation_id, created_at);

CREATE TABLE IF NOT EXISTS drafts (
	conversation_id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`
