package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "chatsync/internal/errors"
	"chatsync/internal/metrics"
	"chatsync/internal/models"
	"chatsync/internal/store"
	"chatsync/pkg/chatapi"
	"chatsync/pkg/upload"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Uploader hands raw media bytes to the file-upload collaborator and returns
// a durable URL.
type Uploader interface {
	Upload(ctx context.Context, conversationID, receiverID, filename string, data []byte) (*upload.Result, error)
}

// pendingSend is the bookkeeping entry for one in-flight or failed send.
// It prevents duplicate submission and carries everything a user-triggered
// retry needs, including the original raw bytes for media messages.
type pendingSend struct {
	provisionalID  string
	conversationID string
	receiverID     string
	kind           models.MessageKind
	content        string
	raw            []byte
	filename       string
	mimeType       string
	inflight       bool
	cancel         context.CancelFunc
}

// SendPipeline implements the optimistic send path: the message appears in
// the store immediately in sending state, the network call runs in the
// background, and the outcome is observed through state changes rather than
// return values.
type SendPipeline struct {
	api      chatapi.Client
	uploader Uploader
	store    *store.Store
	logger   *logrus.Logger
	selfID   string

	// assumeDeliveredAfter advances sent to delivered when no explicit
	// delivery ack arrives. Best-effort feedback, not a transport guarantee.
	assumeDeliveredAfter time.Duration

	mu      sync.Mutex
	pending map[string]*pendingSend
}

func NewSendPipeline(api chatapi.Client, uploader Uploader, st *store.Store, selfID string, assumeDeliveredAfter time.Duration, logger *logrus.Logger) *SendPipeline {
	if logger == nil {
		logger = logrus.New()
	}
	if assumeDeliveredAfter <= 0 {
		assumeDeliveredAfter = 1500 * time.Millisecond
	}
	return &SendPipeline{
		api:                  api,
		uploader:             uploader,
		store:                st,
		logger:               logger,
		selfID:               selfID,
		assumeDeliveredAfter: assumeDeliveredAfter,
		pending:              make(map[string]*pendingSend),
	}
}

// SendText creates a provisional text message and submits it asynchronously.
// The returned provisional id is a handle for Retry and Cancel; the send
// outcome is observed via the store. An empty body is allowed.
func (p *SendPipeline) SendText(conversationID, receiverID, body string) string {
	rec := &pendingSend{
		provisionalID:  newProvisionalID(),
		conversationID: conversationID,
		receiverID:     receiverID,
		kind:           models.KindText,
		content:        body,
	}
	p.enqueue(rec, models.TextPayload{Body: body})
	go p.submit(rec)
	return rec.provisionalID
}

// SendOffer sends a structured offer message.
func (p *SendPipeline) SendOffer(conversationID, receiverID string, offer models.OfferPayload) string {
	content, err := json.Marshal(offer)
	if err != nil {
		// Offer payloads are plain values; this cannot realistically fail.
		content = []byte("{}")
	}
	rec := &pendingSend{
		provisionalID:  newProvisionalID(),
		conversationID: conversationID,
		receiverID:     receiverID,
		kind:           models.KindOffer,
		content:        string(content),
	}
	p.enqueue(rec, offer)
	go p.submit(rec)
	return rec.provisionalID
}

// SendMedia uploads raw bytes through the upload collaborator, then proceeds
// like SendText with the durable URL as body. An upload failure marks the
// message failed before any send attempt is made.
func (p *SendPipeline) SendMedia(conversationID, receiverID, filename string, data []byte) string {
	mimeType := upload.MimeTypeForFilename(filename)
	rec := &pendingSend{
		provisionalID:  newProvisionalID(),
		conversationID: conversationID,
		receiverID:     receiverID,
		kind:           upload.KindForMimeType(mimeType),
		raw:            data,
		filename:       filename,
		mimeType:       mimeType,
	}
	p.enqueue(rec, models.MediaPayload{MimeType: mimeType})
	go p.submitMedia(rec)
	return rec.provisionalID
}

// Retry resubmits a failed message. The original provisional identity and
// store position are reused; no new entry is created. Retries are strictly
// user-initiated.
func (p *SendPipeline) Retry(conversationID, key string) bool {
	msg, ok := p.store.Get(conversationID, key)
	if !ok || msg.DeliveryState != models.StateFailed {
		return false
	}

	// Check the record before touching the store: the operation that marked
	// the message failed may not have released it yet, and flipping the
	// state back to sending now would strand it there.
	p.mu.Lock()
	rec, exists := p.pending[msg.ProvisionalID]
	if exists && rec.inflight {
		p.mu.Unlock()
		return false
	}
	if !exists {
		rec = p.recordFromMessage(&msg)
		p.pending[rec.provisionalID] = rec
	}
	p.mu.Unlock()

	snapshot, ok := p.store.BeginRetry(conversationID, key)
	if !ok {
		return false
	}

	if media, ok := snapshot.Payload.(models.MediaPayload); ok && media.URL == "" {
		go p.submitMedia(rec)
	} else {
		go p.submit(rec)
	}
	return true
}

// Cancel aborts an in-flight send or upload. The message ends up failed, not
// removed, so the user keeps the option to retry.
func (p *SendPipeline) Cancel(conversationID, key string) bool {
	msg, ok := p.store.Get(conversationID, key)
	if !ok {
		return false
	}
	p.mu.Lock()
	rec, exists := p.pending[msg.ProvisionalID]
	var cancel context.CancelFunc
	if exists && rec.inflight {
		cancel = rec.cancel
	}
	p.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

func (p *SendPipeline) enqueue(rec *pendingSend, payload models.Payload) {
	now := time.Now()
	msg := &models.Message{
		ProvisionalID:  rec.provisionalID,
		ConversationID: rec.conversationID,
		SenderID:       p.selfID,
		ReceiverID:     rec.receiverID,
		Kind:           rec.kind,
		Payload:        payload,
		DeliveryState:  models.StateSending,
		CreatedAt:      now,
	}
	p.store.Append(msg)

	p.mu.Lock()
	p.pending[rec.provisionalID] = rec
	p.mu.Unlock()
}

func (p *SendPipeline) submit(rec *pendingSend) {
	ctx := p.begin(rec)
	defer p.finish(rec)

	req := chatapi.SendMessageRequest{
		ConversationID: rec.conversationID,
		ReceiverID:     rec.receiverID,
		Content:        rec.content,
		MessageType:    string(rec.kind),
	}
	if msg, ok := p.store.Get(rec.conversationID, rec.provisionalID); ok {
		if media, ok := msg.Payload.(models.MediaPayload); ok {
			req.MediaURL = media.URL
			req.ThumbnailURL = media.ThumbnailURL
			req.MimeType = media.MimeType
			req.Content = ""
		}
	}

	confirmed, err := p.api.SendMessage(ctx, req)
	if err != nil {
		p.fail(rec, err)
		return
	}

	p.store.ResolveProvisional(rec.conversationID, rec.provisionalID, confirmed)
	p.clear(rec)
	metrics.IncrementCounter("messages_sent_total", map[string]string{"kind": string(rec.kind)}, "Messages confirmed by the server")

	p.scheduleAssumeDelivered(rec.conversationID, confirmed.ID)
}

func (p *SendPipeline) submitMedia(rec *pendingSend) {
	if rec.raw == nil {
		p.fail(rec, apperrors.New(apperrors.ErrCodeInvalidInput, "original media bytes no longer available").
			WithUserMessage("The attachment is no longer available, please re-select it"))
		return
	}
	ctx := p.begin(rec)

	result, err := p.uploader.Upload(ctx, rec.conversationID, rec.receiverID, rec.filename, rec.raw)
	if err != nil {
		p.fail(rec, err)
		p.finish(rec)
		return
	}
	p.store.AttachMedia(rec.conversationID, rec.provisionalID, models.MediaPayload{
		URL:          result.URL,
		ThumbnailURL: result.ThumbnailURL,
		MimeType:     result.MimeType,
	})
	p.finish(rec)

	p.submit(rec)
}

// begin marks the record in flight and hands back a cancelable context that
// is detached from any caller lifetime.
func (p *SendPipeline) begin(rec *pendingSend) context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	p.mu.Lock()
	rec.inflight = true
	rec.cancel = cancel
	p.mu.Unlock()
	return ctx
}

func (p *SendPipeline) finish(rec *pendingSend) {
	p.mu.Lock()
	rec.inflight = false
	if rec.cancel != nil {
		rec.cancel()
		rec.cancel = nil
	}
	p.mu.Unlock()
}

func (p *SendPipeline) clear(rec *pendingSend) {
	p.mu.Lock()
	delete(p.pending, rec.provisionalID)
	p.mu.Unlock()
}

func (p *SendPipeline) fail(rec *pendingSend, err error) {
	reason := apperrors.GetUserMessage(err)
	p.store.Fail(rec.conversationID, rec.provisionalID, reason)
	metrics.IncrementCounter("send_failures_total", map[string]string{"code": string(apperrors.GetCode(err))}, "Sends that ended in failed state")
	apperrors.LogError(p.logger, err, "Message send failed")
}

func (p *SendPipeline) scheduleAssumeDelivered(conversationID, messageID string) {
	time.AfterFunc(p.assumeDeliveredAfter, func() {
		// Monotonic: a real delivery or read ack that arrived first wins.
		p.store.Advance(conversationID, messageID, models.StateDelivered, time.Now())
	})
}

// recordFromMessage rebuilds a pending record for a failed entry whose
// original record is gone, e.g. after a warm start from the cache.
func (p *SendPipeline) recordFromMessage(msg *models.Message) *pendingSend {
	rec := &pendingSend{
		provisionalID:  msg.ProvisionalID,
		conversationID: msg.ConversationID,
		receiverID:     msg.ReceiverID,
		kind:           msg.Kind,
	}
	switch payload := msg.Payload.(type) {
	case models.TextPayload:
		rec.content = payload.Body
	case models.OfferPayload:
		if data, err := json.Marshal(payload); err == nil {
			rec.content = string(data)
		}
	case models.MediaPayload:
		rec.mimeType = payload.MimeType
	}
	return rec
}

func newProvisionalID() string {
	return "tmp-" + uuid.NewString()
}
