package service

import (
	"context"

	"chatsync/internal/models"
	"chatsync/pkg/chatapi"
	"chatsync/pkg/upload"

	"github.com/stretchr/testify/mock"
)

type mockAPIClient struct {
	mock.Mock
}

func (m *mockAPIClient) SendMessage(ctx context.Context, req chatapi.SendMessageRequest) (*models.Message, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *mockAPIClient) FetchMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Message), args.Error(1)
}

func (m *mockAPIClient) MarkMessageRead(ctx context.Context, messageID string) error {
	args := m.Called(ctx, messageID)
	return args.Error(0)
}

func (m *mockAPIClient) FetchConversations(ctx context.Context) ([]*models.Conversation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Conversation), args.Error(1)
}

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Upload(ctx context.Context, conversationID, receiverID, filename string, data []byte) (*upload.Result, error) {
	args := m.Called(ctx, conversationID, receiverID, filename, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*upload.Result), args.Error(1)
}

type mockReadAckSender struct {
	mock.Mock
}

func (m *mockReadAckSender) SendReadAck(ctx context.Context, conversationID, messageID string) error {
	args := m.Called(ctx, conversationID, messageID)
	return args.Error(0)
}

type mockReconciler struct {
	mock.Mock
}

func (m *mockReconciler) SyncConversation(ctx context.Context, conversationID string) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

type mockReadMarker struct {
	mock.Mock
}

func (m *mockReadMarker) MarkConversationRead(ctx context.Context, conversationID string) {
	m.Called(ctx, conversationID)
}

type mockProfileSink struct {
	mock.Mock
}

func (m *mockProfileSink) UpdateProfile(profile models.Profile) {
	m.Called(profile)
}

func (m *mockProfileSink) Refresh(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type mockHistoryCache struct {
	mock.Mock
}

func (m *mockHistoryCache) SaveMessages(ctx context.Context, conversationID string, msgs []models.Message) error {
	args := m.Called(ctx, conversationID, msgs)
	return args.Error(0)
}

func (m *mockHistoryCache) LoadMessages(ctx context.Context, conversationID string) ([]*models.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Message), args.Error(1)
}

// fakePushChannel feeds scripted events and states into the bridge.
type fakePushChannel struct {
	events chan models.PushEvent
	states chan models.ConnectionState

	typingCalls  chan string
	readAckCalls chan string
}

func newFakePushChannel() *fakePushChannel {
	return &fakePushChannel{
		events:       make(chan models.PushEvent, 16),
		states:       make(chan models.ConnectionState, 16),
		typingCalls:  make(chan string, 16),
		readAckCalls: make(chan string, 16),
	}
}

func (f *fakePushChannel) Events() <-chan models.PushEvent       { return f.events }
func (f *fakePushChannel) States() <-chan models.ConnectionState { return f.states }

func (f *fakePushChannel) SendTyping(ctx context.Context, conversationID string, isTyping bool) error {
	f.typingCalls <- conversationID
	return nil
}

func (f *fakePushChannel) SendReadAck(ctx context.Context, conversationID, messageID string) error {
	f.readAckCalls <- messageID
	return nil
}
