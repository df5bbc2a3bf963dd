package cache

// Cached message queries
const (
	upsertMessageQuery = `
		INSERT INTO cached_messages (
			conversation_id, message_id, provisional_id, sender_id, receiver_id,
			kind, payload, delivery_state, failure_reason, is_edited,
			edited_at, deleted_at, sent_at, delivered_at, read_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(conversation_id, message_id) DO UPDATE SET
			provisional_id = excluded.provisional_id,
			payload = excluded.payload,
			delivery_state = excluded.delivery_state,
			failure_reason = excluded.failure_reason,
			is_edited = excluded.is_edited,
			edited_at = excluded.edited_at,
			deleted_at = excluded.deleted_at,
			sent_at = excluded.sent_at,
			delivered_at = excluded.delivered_at,
			read_at = excluded.read_at
	`

	selectMessagesQuery = `
		SELECT message_id, provisional_id, sender_id, receiver_id, kind,
		       payload, delivery_state, failure_reason, is_edited,
		       edited_at, deleted_at, sent_at, delivered_at, read_at, created_at
		FROM cached_messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, id ASC
	`

	deleteOldMessagesQuery = `
		DELETE FROM cached_messages
		WHERE created_at < ?
	`
)

// Draft queries
const (
	upsertDraftQuery = `
		INSERT INTO drafts (conversation_id, content, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at
	`

	selectDraftQuery = `
		SELECT content FROM drafts WHERE conversation_id = ?
	`

	deleteDraftQuery = `
		DELETE FROM drafts WHERE conversation_id = ?
	`
)
