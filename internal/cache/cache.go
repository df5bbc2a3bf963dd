package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"chatsync/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Cache is the sqlite-backed local store for conversation history and
// drafts. It exists for warm starts and offline reads; the in-memory message
// store stays authoritative, and the cache can be rebuilt from the backend
// at any time.
type Cache struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Cache, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("invalid cache path")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	enc, err := newEncryptor()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache encryptor: %w", err)
	}

	return &Cache{db: db, encryptor: enc}, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}

// SaveMessages upserts a conversation snapshot. Pending (sending/failed)
// entries are cached too, keyed by their provisional id, so failed sends
// survive a restart and stay retryable.
func (c *Cache) SaveMessages(ctx context.Context, conversationID string, msgs []models.Message) error {
	return retryableOp(ctx, func() error {
		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, upsertMessageQuery)
		if err != nil {
			return fmt.Errorf("failed to prepare upsert: %w", err)
		}
		defer stmt.Close()

		for i := range msgs {
			msg := &msgs[i]
			payload, err := models.MarshalPayload(msg.Payload)
			if err != nil {
				return fmt.Errorf("failed to marshal payload: %w", err)
			}
			encrypted, err := c.encryptor.Encrypt(string(payload))
			if err != nil {
				return fmt.Errorf("failed to encrypt payload: %w", err)
			}

			if _, err := stmt.ExecContext(ctx,
				conversationID,
				msg.Key(),
				msg.ProvisionalID,
				msg.SenderID,
				msg.ReceiverID,
				string(msg.Kind),
				encrypted,
				string(msg.DeliveryState),
				msg.FailureReason,
				msg.IsEdited,
				msg.EditedAt,
				msg.DeletedAt,
				msg.SentAt,
				msg.DeliveredAt,
				msg.ReadAt,
				msg.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to upsert message %s: %w", msg.Key(), err)
			}
		}

		return tx.Commit()
	}, "save messages")
}

// LoadMessages returns the cached history of a conversation in display order.
func (c *Cache) LoadMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	var out []*models.Message
	err := retryableOp(ctx, func() error {
		rows, err := c.db.QueryContext(ctx, selectMessagesQuery, conversationID)
		if err != nil {
			return fmt.Errorf("failed to query messages: %w", err)
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			msg, err := c.scanMessage(rows, conversationID)
			if err != nil {
				return err
			}
			out = append(out, msg)
		}
		return rows.Err()
	}, "load messages")
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Cache) scanMessage(rows *sql.Rows, conversationID string) (*models.Message, error) {
	var (
		msg           models.Message
		messageID     string
		provisionalID sql.NullString
		receiverID    sql.NullString
		kind          string
		payload       string
		state         string
		failureReason sql.NullString
	)
	if err := rows.Scan(
		&messageID,
		&provisionalID,
		&msg.SenderID,
		&receiverID,
		&kind,
		&payload,
		&state,
		&failureReason,
		&msg.IsEdited,
		&msg.EditedAt,
		&msg.DeletedAt,
		&msg.SentAt,
		&msg.DeliveredAt,
		&msg.ReadAt,
		&msg.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	msg.ConversationID = conversationID
	msg.ProvisionalID = provisionalID.String
	msg.ReceiverID = receiverID.String
	msg.Kind = models.MessageKind(kind)
	msg.DeliveryState = models.DeliveryState(state)
	msg.FailureReason = failureReason.String
	if messageID != msg.ProvisionalID {
		msg.ID = messageID
	}

	decrypted, err := c.encryptor.Decrypt(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt payload: %w", err)
	}
	decoded, err := models.UnmarshalPayload(msg.Kind, []byte(decrypted))
	if err != nil {
		return nil, err
	}
	msg.Payload = decoded
	return &msg, nil
}

// SaveDraft stores the in-progress composition for a conversation.
func (c *Cache) SaveDraft(ctx context.Context, conversationID, content string) error {
	return retryableOp(ctx, func() error {
		encrypted, err := c.encryptor.Encrypt(content)
		if err != nil {
			return fmt.Errorf("failed to encrypt draft: %w", err)
		}
		_, err = c.db.ExecContext(ctx, upsertDraftQuery, conversationID, encrypted, time.Now())
		return err
	}, "save draft")
}

// GetDraft returns the stored draft, or empty when none exists.
func (c *Cache) GetDraft(ctx context.Context, conversationID string) (string, error) {
	var content string
	err := retryableOp(ctx, func() error {
		row := c.db.QueryRowContext(ctx, selectDraftQuery, conversationID)
		if err := row.Scan(&content); err != nil {
			if err == sql.ErrNoRows {
				content = ""
				return nil
			}
			return err
		}
		return nil
	}, "get draft")
	if err != nil {
		return "", err
	}
	return c.encryptor.Decrypt(content)
}

// ClearDraft removes the draft for a conversation.
func (c *Cache) ClearDraft(ctx context.Context, conversationID string) error {
	return retryableOp(ctx, func() error {
		_, err := c.db.ExecContext(ctx, deleteDraftQuery, conversationID)
		return err
	}, "clear draft")
}

// CleanupOldMessages deletes cached history older than the retention window.
func (c *Cache) CleanupOldMessages(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive")
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	var deleted int64
	err := retryableOp(ctx, func() error {
		res, err := c.db.ExecContext(ctx, deleteOldMessagesQuery, cutoff)
		if err != nil {
			return err
		}
		deleted, _ = res.RowsAffected()
		return nil
	}, "cleanup old messages")
	return deleted, err
}
