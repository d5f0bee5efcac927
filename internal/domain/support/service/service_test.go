package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vadim/tutor-support/internal/domain/support/entity"
)

// memStore is an in-memory implementation of the three repositories
type memStore struct {
	mu       sync.Mutex
	users    map[string]entity.User
	convs    map[string]*entity.Conversation
	messages map[string][]entity.Message
	markErr  error
}

func newMemStore(users ...entity.User) *memStore {
	s := &memStore{
		users:    map[string]entity.User{},
		convs:    map[string]*entity.Conversation{},
		messages: map[string][]entity.Message{},
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

type memUsers struct{ *memStore }

func (r memUsers) GetByID(_ context.Context, id string) (*entity.User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r memUsers) SearchStaff(_ context.Context, query string, limit int) ([]entity.User, error) {
	var out []entity.User
	for _, u := range r.users {
		if u.Role.IsStaff() && (query == "" || containsFold(u.FullName, query)) {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memConvs struct{ *memStore }

func (r memConvs) CreateOrGet(_ context.Context, conv *entity.Conversation) (*entity.Conversation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.convs {
		if c.UserID == conv.UserID && c.AdminID == conv.AdminID {
			cp := *c
			return &cp, false, nil
		}
	}
	now := time.Now()
	cp := *conv
	cp.CreatedAt, cp.UpdatedAt = now, now
	r.convs[cp.ID] = &cp
	out := cp
	return &out, true, nil
}

func (r memConvs) GetByID(_ context.Context, id, viewerID string) (*entity.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.convs[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	cp.UnreadCount = 0
	for _, m := range r.messages[id] {
		if m.SenderID != viewerID && !m.IsRead {
			cp.UnreadCount++
		}
	}
	return &cp, nil
}

func (r memConvs) ListForParticipant(ctx context.Context, userID string) ([]entity.Conversation, error) {
	var out []entity.Conversation
	for id, c := range r.convs {
		if c.HasParticipant(userID) {
			cp, _ := r.GetByID(ctx, id, userID)
			out = append(out, *cp)
		}
	}
	return out, nil
}

func (r memConvs) Touch(_ context.Context, id, preview string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.convs[id]; ok {
		c.LastMessagePreview = preview
		c.UpdatedAt = at
	}
	return nil
}

type memMessages struct{ *memStore }

func (r memMessages) Create(_ context.Context, msg *entity.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[msg.ConversationID] = append(r.messages[msg.ConversationID], *msg)
	return nil
}

func (r memMessages) ListByConversation(_ context.Context, conversationID string) ([]entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]entity.Message(nil), r.messages[conversationID]...), nil
}

func (r memMessages) MarkRead(_ context.Context, conversationID, readerID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.markErr != nil {
		return 0, r.markErr
	}
	var n int64
	msgs := r.messages[conversationID]
	for i := range msgs {
		if msgs[i].SenderID != readerID && !msgs[i].IsRead {
			msgs[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

type recordingPublisher struct {
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event any) error {
	p.events = append(p.events, event.(Event))
	return p.err
}

type countingRecorder struct {
	sent, started, archived int
}

func (r *countingRecorder) MessageSent(entity.Role) { r.sent++ }
func (r *countingRecorder) ConversationStarted()    { r.started++ }
func (r *countingRecorder) TranscriptArchived()     { r.archived++ }

type memArchive struct {
	body []byte
}

func (a *memArchive) PutTranscript(_ context.Context, conversationID string, body []byte) (string, string, error) {
	a.body = body
	return "transcripts/" + conversationID + ".json", "http://s3/transcripts/" + conversationID + ".json", nil
}

var (
	student = entity.User{ID: "s1", FullName: "Sam Student", Role: entity.RoleStudent, Status: entity.UserStatusActive}
	tutor   = entity.User{ID: "t1", FullName: "Tia Tutor", Role: entity.RoleTutor, Status: entity.UserStatusActive}
	adminA  = entity.User{ID: "a1", FullName: "Admin A", Role: entity.RoleAdmin, Status: entity.UserStatusActive}
	manager = entity.User{ID: "a2", FullName: "Mona Manager", Role: entity.RoleManager, Status: entity.UserStatusActive}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(opts ...Option) (*Service, *memStore) {
	store := newMemStore(student, tutor, adminA, manager)
	return New(memUsers{store}, memConvs{store}, memMessages{store}, discardLogger(), opts...), store
}

func TestStartConversationIsIdempotent(t *testing.T) {
	pub := &recordingPublisher{}
	rec := &countingRecorder{}
	svc, _ := newTestService(WithPublisher(pub), WithRecorder(rec))
	ctx := context.Background()

	first, err := svc.StartConversation(ctx, StartConversationInput{UserID: student.ID, AdminID: adminA.ID})
	if err != nil {
		t.Fatalf("first start: %v", err)
	}
	second, err := svc.StartConversation(ctx, StartConversationInput{UserID: student.ID, AdminID: adminA.ID})
	if err != nil {
		t.Fatalf("second start: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("expected same conversation, got %s and %s", first.ID, second.ID)
	}
	if first.Name != adminA.FullName || first.Type != entity.ConversationTypeDirect {
		t.Errorf("unexpected conversation %+v", first)
	}

	list, _ := svc.ListConversations(ctx, student.ID)
	if len(list) != 1 {
		t.Errorf("expected 1 conversation, got %d", len(list))
	}
	if rec.started != 1 || len(pub.events) != 1 || pub.events[0].Type != EventConversationStarted {
		t.Errorf("expected one started event, got recorder=%d events=%v", rec.started, pub.events)
	}
}

func TestStartConversationRejectsNonAdmin(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	tests := []struct {
		name    string
		adminID string
		want    error
	}{
		{"tutor counterpart", tutor.ID, entity.ErrNotAdmin},
		{"unknown admin", "nobody", entity.ErrAdminNotFound},
		{"empty id", "", entity.ErrInvalidRecipient},
		{"self", student.ID, entity.ErrInvalidRecipient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.StartConversation(ctx, StartConversationInput{UserID: student.ID, AdminID: tt.adminID})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestSendMessageAndReadResetsUnread(t *testing.T) {
	rec := &countingRecorder{}
	svc, _ := newTestService(WithRecorder(rec), WithClock(func() time.Time {
		return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	}))
	ctx := context.Background()

	conv, _ := svc.StartConversation(ctx, StartConversationInput{UserID: student.ID, AdminID: adminA.ID})

	msg, err := svc.SendMessage(ctx, SendMessageInput{SenderID: adminA.ID, ConversationID: conv.ID, Body: "Hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.SenderRole != entity.RoleAdmin || msg.SenderName != adminA.FullName || msg.MessageType != entity.MessageTypeText {
		t.Errorf("unexpected message %+v", msg)
	}

	list, _ := svc.ListConversations(ctx, student.ID)
	if list[0].UnreadCount != 1 || list[0].LastMessagePreview != "Hello" {
		t.Errorf("before read: %+v", list[0])
	}

	messages, err := svc.GetMessages(ctx, GetMessagesInput{ViewerID: student.ID, ConversationID: conv.ID})
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(messages) != 1 || !messages[0].IsRead {
		t.Errorf("messages = %+v", messages)
	}

	list, _ = svc.ListConversations(ctx, student.ID)
	if list[0].UnreadCount != 0 {
		t.Errorf("unread after read = %d", list[0].UnreadCount)
	}
	if rec.sent != 1 {
		t.Errorf("sent counter = %d", rec.sent)
	}
}

func TestGetMessagesToleratesMarkReadFailure(t *testing.T) {
	svc, store := newTestService()
	ctx := context.Background()

	conv, _ := svc.StartConversation(ctx, StartConversationInput{UserID: student.ID, AdminID: adminA.ID})
	svc.SendMessage(ctx, SendMessageInput{SenderID: adminA.ID, ConversationID: conv.ID, Body: "Hello"})
	store.markErr = errors.New("db down")

	messages, err := svc.GetMessages(ctx, GetMessagesInput{ViewerID: student.ID, ConversationID: conv.ID})
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(messages) != 1 || messages[0].IsRead {
		t.Errorf("messages = %+v", messages)
	}
}

func TestSendMessageValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()
	conv, _ := svc.StartConversation(ctx, StartConversationInput{UserID: student.ID, AdminID: adminA.ID})

	long := make([]rune, entity.MaxMessageLength+1)
	for i := range long {
		long[i] = 'é'
	}

	tests := []struct {
		name string
		in   SendMessageInput
		want error
	}{
		{"blank", SendMessageInput{SenderID: student.ID, ConversationID: conv.ID, Body: "   "}, entity.ErrEmptyMessage},
		{"too long", SendMessageInput{SenderID: student.ID, ConversationID: conv.ID, Body: string(long)}, entity.ErrMessageTooLong},
		{"image", SendMessageInput{SenderID: student.ID, ConversationID: conv.ID, Body: "x", MessageType: "image"}, entity.ErrUnsupportedMessageType},
		{"unknown conversation", SendMessageInput{SenderID: student.ID, ConversationID: "nope", Body: "x"}, entity.ErrConversationNotFound},
		{"outsider", SendMessageInput{SenderID: tutor.ID, ConversationID: conv.ID, Body: "x"}, entity.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.SendMessage(ctx, tt.in); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestMessagesKeepInsertionOrder(t *testing.T) {
	tick := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	svc, _ := newTestService(WithClock(func() time.Time {
		tick = tick.Add(time.Second)
		return tick
	}))
	ctx := context.Background()
	conv, _ := svc.StartConversation(ctx, StartConversationInput{UserID: student.ID, AdminID: adminA.ID})

	for _, body := range []string{"one", "two", "three"} {
		if _, err := svc.SendMessage(ctx, SendMessageInput{SenderID: student.ID, ConversationID: conv.ID, Body: body}); err != nil {
			t.Fatalf("send %s: %v", body, err)
		}
	}

	messages, _ := svc.GetMessages(ctx, GetMessagesInput{ViewerID: adminA.ID, ConversationID: conv.ID})
	for i := 1; i < len(messages); i++ {
		if messages[i].CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Fatalf("messages out of order at %d", i)
		}
	}
	if messages[2].Body != "three" {
		t.Errorf("last body = %q", messages[2].Body)
	}
}

func TestPublishFailureDoesNotFailSend(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, _ := newTestService(WithPublisher(pub))
	ctx := context.Background()
	conv, _ := svc.StartConversation(ctx, StartConversationInput{UserID: student.ID, AdminID: adminA.ID})

	if _, err := svc.SendMessage(ctx, SendMessageInput{SenderID: student.ID, ConversationID: conv.ID, Body: "hi"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if last := pub.events[len(pub.events)-1]; last.Type != EventMessageCreated || last.Message.Body != "hi" {
		t.Errorf("last event = %+v", last)
	}
}

func TestListAdmins(t *testing.T) {
	svc, _ := newTestService()

	all, _ := svc.ListAdmins(context.Background(), "")
	if len(all) != 2 {
		t.Fatalf("expected 2 staff, got %d", len(all))
	}

	filtered, _ := svc.ListAdmins(context.Background(), " mona ")
	if len(filtered) != 1 || filtered[0].ID != manager.ID {
		t.Errorf("filtered = %+v", filtered)
	}
}

func TestArchiveTranscript(t *testing.T) {
	archive := &memArchive{}
	rec := &countingRecorder{}
	svc, _ := newTestService(WithTranscriptStore(archive), WithRecorder(rec))
	ctx := context.Background()
	conv, _ := svc.StartConversation(ctx, StartConversationInput{UserID: student.ID, AdminID: adminA.ID})
	svc.SendMessage(ctx, SendMessageInput{SenderID: student.ID, ConversationID: conv.ID, Body: "help"})

	out, err := svc.ArchiveTranscript(ctx, ArchiveTranscriptInput{ViewerID: adminA.ID, ConversationID: conv.ID})
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if out.Key == "" || out.URL == "" {
		t.Errorf("output = %+v", out)
	}

	var tr entity.Transcript
	if err := json.Unmarshal(archive.body, &tr); err != nil {
		t.Fatalf("transcript json: %v", err)
	}
	if len(tr.Messages) != 1 || tr.ArchivedBy != adminA.ID || tr.Conversation.ID != conv.ID {
		t.Errorf("transcript = %+v", tr)
	}
	if rec.archived != 1 {
		t.Errorf("archived counter = %d", rec.archived)
	}
}

func TestArchiveTranscriptDisabled(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.ArchiveTranscript(context.Background(), ArchiveTranscriptInput{ViewerID: adminA.ID, ConversationID: "c1"})
	if !errors.Is(err, entity.ErrArchiveDisabled) {
		t.Errorf("err = %v", err)
	}
}
