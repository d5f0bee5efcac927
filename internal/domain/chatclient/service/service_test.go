package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vadim/tutor-support/internal/domain/support/entity"
)

type stubAPI struct {
	mu            sync.Mutex
	conversations []entity.Conversation
	convErr       error
	admins        []entity.AdminUser
	adminCalls    []string
	messages      map[string][]entity.Message
	messageCalls  int
	startCalls    int
	startErr      error
	sendErr       error
	sendHook      func()
	nextMessageID int
}

func newStubAPI() *stubAPI {
	return &stubAPI{messages: make(map[string][]entity.Message)}
}

func (s *stubAPI) ListAdmins(_ context.Context, query string) ([]entity.AdminUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminCalls = append(s.adminCalls, query)
	return s.admins, nil
}

func (s *stubAPI) ListConversations(context.Context) ([]entity.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.convErr != nil {
		return nil, s.convErr
	}
	return append([]entity.Conversation(nil), s.conversations...), nil
}

func (s *stubAPI) ListMessages(_ context.Context, conversationID string) ([]entity.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messageCalls++
	return append([]entity.Message(nil), s.messages[conversationID]...), nil
}

func (s *stubAPI) StartWithAdmin(_ context.Context, adminID string) (*entity.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startCalls++
	if s.startErr != nil {
		return nil, s.startErr
	}
	for _, c := range s.conversations {
		if c.AdminID == adminID {
			out := c
			return &out, nil
		}
	}
	c := entity.Conversation{ID: "c-" + adminID, Name: "Admin " + adminID, Type: entity.ConversationTypeDirect, AdminID: adminID}
	s.conversations = append(s.conversations, c)
	return &c, nil
}

func (s *stubAPI) SendMessage(_ context.Context, conversationID, body string) (*entity.Message, error) {
	if s.sendHook != nil {
		s.sendHook()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	s.nextMessageID++
	msg := entity.Message{
		ID:          fmt.Sprintf("m%d", s.nextMessageID+1),
		SenderID:    "s1",
		SenderRole:  entity.RoleStudent,
		Body:        body,
		MessageType: entity.MessageTypeText,
		CreatedAt:   time.Date(2026, 3, 1, 9, 0, s.nextMessageID, 0, time.UTC),
	}
	s.messages[conversationID] = append(s.messages[conversationID], msg)
	return &msg, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *recordingNotifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, message)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.msgs)
}

func newTestManager(api SupportAPI, n Notifier) *Manager {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := func() time.Time { return time.Date(2026, 3, 1, 8, 59, 0, 0, time.UTC) }
	return New(api, Self{ID: "s1", Name: "Sam", Role: entity.RoleStudent}, logger, WithNotifier(n), WithClock(clock))
}

func TestStartConversationIsIdempotent(t *testing.T) {
	api := newStubAPI()
	m := newTestManager(api, &recordingNotifier{})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		conv, err := m.StartConversation(ctx, "a1")
		if err != nil {
			t.Fatalf("StartConversation: %v", err)
		}
		if conv.ID != "c-a1" {
			t.Fatalf("conversation id = %q", conv.ID)
		}
	}

	count := 0
	for _, c := range m.Conversations() {
		if c.AdminID == "a1" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("conversations with a1 = %d, want 1", count)
	}
	if m.Selected() != "c-a1" {
		t.Errorf("selected = %q", m.Selected())
	}
}

// blockingListAPI holds each ListConversations call until the test answers it
type blockingListAPI struct {
	*stubAPI
	calls chan chan []entity.Conversation
}

func (b *blockingListAPI) ListConversations(context.Context) ([]entity.Conversation, error) {
	ch := make(chan []entity.Conversation)
	b.calls <- ch
	return <-ch, nil
}

func TestStartConversationSurvivesOlderListLoad(t *testing.T) {
	api := &blockingListAPI{stubAPI: newStubAPI(), calls: make(chan chan []entity.Conversation)}
	m := newTestManager(api, &recordingNotifier{})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.LoadConversations(ctx)
	}()
	inflight := <-api.calls

	conv, err := m.StartConversation(ctx, "a1")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}

	// the poll was issued before the start and answers with an empty list
	inflight <- nil
	<-done

	got := m.Conversations()
	if len(got) != 1 || got[0].ID != conv.ID {
		t.Errorf("conversations = %+v, want started conversation %q", got, conv.ID)
	}
	if m.Selected() != conv.ID {
		t.Errorf("selected = %q, want %q", m.Selected(), conv.ID)
	}
}

func TestStartConversationFailureLeavesList(t *testing.T) {
	api := newStubAPI()
	api.conversations = []entity.Conversation{{ID: "c1", AdminID: "a1"}}
	n := &recordingNotifier{}
	m := newTestManager(api, n)
	ctx := context.Background()

	if err := m.LoadConversations(ctx); err != nil {
		t.Fatalf("LoadConversations: %v", err)
	}
	api.startErr = errors.New("boom")

	if _, err := m.StartConversation(ctx, "a2"); err == nil {
		t.Fatal("expected error")
	}
	if got := m.Conversations(); len(got) != 1 || got[0].ID != "c1" {
		t.Errorf("conversations = %+v", got)
	}
	if n.count() != 1 {
		t.Errorf("notifications = %d, want 1", n.count())
	}
	if m.Selected() != "" {
		t.Errorf("selected = %q", m.Selected())
	}
}

func TestSendReconcilesTemporaryMessage(t *testing.T) {
	api := newStubAPI()
	api.conversations = []entity.Conversation{{ID: "c1", Name: "Admin A", AdminID: "a1", UnreadCount: 2}}
	api.messages["c1"] = []entity.Message{{ID: "m1", Body: "Hello", SenderRole: entity.RoleAdmin}}
	m := newTestManager(api, &recordingNotifier{})
	ctx := context.Background()

	if err := m.LoadConversations(ctx); err != nil {
		t.Fatal(err)
	}
	if err := m.LoadMessages(ctx, "c1"); err != nil {
		t.Fatal(err)
	}

	api.sendHook = func() {
		msgs := m.Messages("c1")
		if len(msgs) != 2 || !msgs[1].IsTemporary() || msgs[1].Body != "Thanks" {
			t.Errorf("optimistic state = %+v", msgs)
		}
	}

	sent, err := m.Send(ctx, "c1", "Thanks")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	msgs := m.Messages("c1")
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != sent.ID {
		t.Fatalf("messages = %+v", msgs)
	}
	withBody := 0
	for _, msg := range msgs {
		if msg.IsTemporary() {
			t.Errorf("temporary message left: %+v", msg)
		}
		if msg.Body == "Thanks" {
			withBody++
		}
	}
	if withBody != 1 {
		t.Errorf("messages with sent body = %d, want 1", withBody)
	}
}

func TestSendDropsTemporaryWhenPollDeliveredCanonical(t *testing.T) {
	api := newStubAPI()
	m := newTestManager(api, &recordingNotifier{})
	ctx := context.Background()

	api.sendHook = func() {
		// the server stores the message before the send response arrives
		api.mu.Lock()
		api.messages["c1"] = append(api.messages["c1"], entity.Message{ID: "m2", Body: "Thanks"})
		api.mu.Unlock()
		if err := m.LoadMessages(ctx, "c1"); err != nil {
			t.Errorf("LoadMessages: %v", err)
		}
		api.mu.Lock()
		api.messages["c1"] = nil
		api.nextMessageID = 0
		api.mu.Unlock()
	}

	if _, err := m.Send(ctx, "c1", "Thanks"); err != nil {
		t.Fatal(err)
	}

	msgs := m.Messages("c1")
	if len(msgs) != 1 || msgs[0].ID != "m2" {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestSendFailureRollsBack(t *testing.T) {
	api := newStubAPI()
	api.messages["c1"] = []entity.Message{{ID: "m1", Body: "Hello"}}
	api.sendErr = errors.New("unavailable")
	n := &recordingNotifier{}
	m := newTestManager(api, n)
	ctx := context.Background()

	if err := m.LoadMessages(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	before := m.Messages("c1")

	if _, err := m.Send(ctx, "c1", "Thanks"); err == nil {
		t.Fatal("expected error")
	}

	after := m.Messages("c1")
	if len(after) != len(before) || after[0] != before[0] {
		t.Errorf("messages after failed send = %+v, want %+v", after, before)
	}
	if n.count() != 1 {
		t.Errorf("notifications = %d, want 1", n.count())
	}
	if got := m.TakeFailedDraft("c1"); got != "Thanks" {
		t.Errorf("failed draft = %q", got)
	}
	if got := m.TakeFailedDraft("c1"); got != "" {
		t.Errorf("failed draft not cleared: %q", got)
	}
}

func TestSendRejectsEmptyBodyWithoutRequest(t *testing.T) {
	api := newStubAPI()
	api.sendHook = func() { t.Error("unexpected send request") }
	m := newTestManager(api, &recordingNotifier{})

	if _, err := m.Send(context.Background(), "c1", "   "); !errors.Is(err, entity.ErrEmptyMessage) {
		t.Errorf("err = %v", err)
	}
	if len(m.Messages("c1")) != 0 {
		t.Error("optimistic message inserted for empty body")
	}
}

func TestSendUpdatesPreview(t *testing.T) {
	api := newStubAPI()
	api.conversations = []entity.Conversation{{ID: "c1", AdminID: "a1"}}
	m := newTestManager(api, &recordingNotifier{})
	ctx := context.Background()

	if err := m.LoadConversations(ctx); err != nil {
		t.Fatal(err)
	}
	api.convErr = errors.New("list down")

	if _, err := m.Send(ctx, "c1", "Thanks"); err != nil {
		t.Fatal(err)
	}
	convs := m.Conversations()
	if len(convs) != 1 || convs[0].LastMessagePreview != "Thanks" {
		t.Errorf("conversations = %+v", convs)
	}
}

func TestSearchAdminsThreshold(t *testing.T) {
	tests := []struct {
		query     string
		wantCalls int
	}{
		{"", 0},
		{"a", 0},
		{" a ", 0},
		{"й", 0},
		{"an", 1},
		{"ann", 1},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			api := newStubAPI()
			api.admins = []entity.AdminUser{{ID: "a1", FullName: "Anna"}}
			m := newTestManager(api, &recordingNotifier{})

			got, err := m.SearchAdmins(context.Background(), tt.query)
			if err != nil {
				t.Fatal(err)
			}
			if len(api.adminCalls) != tt.wantCalls {
				t.Errorf("calls = %d, want %d", len(api.adminCalls), tt.wantCalls)
			}
			if tt.wantCalls == 0 && (len(got) != 0 || len(m.Admins()) != 0) {
				t.Errorf("results = %+v, want empty", got)
			}
			if tt.wantCalls == 1 && len(got) != 1 {
				t.Errorf("results = %+v", got)
			}
		})
	}
}

func TestShortQueryClearsPreviousResults(t *testing.T) {
	api := newStubAPI()
	api.admins = []entity.AdminUser{{ID: "a1"}}
	m := newTestManager(api, &recordingNotifier{})
	ctx := context.Background()

	if _, err := m.SearchAdmins(ctx, "an"); err != nil {
		t.Fatal(err)
	}
	if _, err := m.SearchAdmins(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if len(m.Admins()) != 0 {
		t.Errorf("admins = %+v", m.Admins())
	}
}

func TestLoadConversationsReplacesWholesale(t *testing.T) {
	api := newStubAPI()
	api.conversations = []entity.Conversation{{ID: "c1"}, {ID: "c2"}}
	m := newTestManager(api, &recordingNotifier{})
	ctx := context.Background()

	if err := m.LoadConversations(ctx); err != nil {
		t.Fatal(err)
	}
	api.conversations = []entity.Conversation{{ID: "c2"}}
	if err := m.LoadConversations(ctx); err != nil {
		t.Fatal(err)
	}
	for _, c := range m.Conversations() {
		if c.ID == "c1" {
			t.Errorf("stale conversation c1 survived refresh")
		}
	}

	api.convErr = errors.New("down")
	if err := m.LoadConversations(ctx); err == nil {
		t.Fatal("expected error")
	}
	if got := m.Conversations(); len(got) != 1 || got[0].ID != "c2" {
		t.Errorf("previous list not kept: %+v", got)
	}
}

// blockingAPI holds each ListMessages call until the test answers it
type blockingAPI struct {
	*stubAPI
	calls chan chan []entity.Message
}

func (b *blockingAPI) ListMessages(context.Context, string) ([]entity.Message, error) {
	ch := make(chan []entity.Message)
	b.calls <- ch
	return <-ch, nil
}

func TestStaleMessageLoadIsDiscarded(t *testing.T) {
	api := &blockingAPI{stubAPI: newStubAPI(), calls: make(chan chan []entity.Message)}
	m := newTestManager(api, &recordingNotifier{})
	ctx := context.Background()

	first := make(chan struct{})
	go func() {
		defer close(first)
		m.LoadMessages(ctx, "c1")
	}()
	slow := <-api.calls

	second := make(chan struct{})
	go func() {
		defer close(second)
		m.LoadMessages(ctx, "c1")
	}()
	fast := <-api.calls

	// the later-issued load resolves first
	fast <- []entity.Message{{ID: "m1"}, {ID: "m2"}}
	<-second
	slow <- []entity.Message{{ID: "m1"}}
	<-first

	if msgs := m.Messages("c1"); len(msgs) != 2 {
		t.Errorf("messages = %+v, want the later-issued response", msgs)
	}
}

func TestSendInvalidatesOlderMessageLoads(t *testing.T) {
	api := &blockingAPI{stubAPI: newStubAPI(), calls: make(chan chan []entity.Message)}
	m := newTestManager(api, &recordingNotifier{})
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.LoadMessages(ctx, "c1")
	}()
	inflight := <-api.calls

	sent, err := m.Send(ctx, "c1", "Thanks")
	if err != nil {
		t.Fatal(err)
	}

	inflight <- nil
	<-done

	if msgs := m.Messages("c1"); len(msgs) != 1 || msgs[0].ID != sent.ID {
		t.Errorf("messages = %+v", msgs)
	}
}

func TestMarkViewedResetsUnread(t *testing.T) {
	api := newStubAPI()
	api.conversations = []entity.Conversation{{ID: "c1", UnreadCount: 3}}
	m := newTestManager(api, &recordingNotifier{})

	if err := m.LoadConversations(context.Background()); err != nil {
		t.Fatal(err)
	}
	m.MarkViewed("c1")
	if got := m.Conversations()[0].UnreadCount; got != 0 {
		t.Errorf("unread = %d", got)
	}
}

func TestTempIDsAreUnique(t *testing.T) {
	m := newTestManager(newStubAPI(), &recordingNotifier{})
	m.mu.Lock()
	a, b := m.tempIDLocked(), m.tempIDLocked()
	m.mu.Unlock()
	if a == b || !strings.HasPrefix(a, entity.TempIDPrefix) {
		t.Errorf("temp ids %q, %q", a, b)
	}
}
