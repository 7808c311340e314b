package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/bicommunity/forum/internal/forum"
)

type fakeStore struct {
	mu      sync.Mutex
	topics  []forum.CreateTopicInput
	fail    bool
	nextID  int64
	catName string
	user    string
}

func (s *fakeStore) EnsureCategory(_ context.Context, name, _ string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catName = name
	return 7, nil
}

func (s *fakeStore) EnsureSystemUser(_ context.Context, username string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = username
	return 3, nil
}

func (s *fakeStore) CreateTopic(_ context.Context, input forum.CreateTopicInput) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return 0, errors.New("insert failed")
	}
	s.topics = append(s.topics, input)
	s.nextID++
	return s.nextID, nil
}

func (s *fakeStore) created() []forum.CreateTopicInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]forum.CreateTopicInput(nil), s.topics...)
}

func (s *fakeStore) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, att Attachment) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("/uploads/%s-%d.jpg", att.FileID, f.calls), nil
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	sent chan string
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(chan string, 8)}
}

func (n *fakeNotifier) SendMessage(_ context.Context, _ int64, text string) error {
	n.sent <- text
	return nil
}

func (n *fakeNotifier) wait(t *testing.T) string {
	t.Helper()
	select {
	case text := <-n.sent:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for acknowledgement")
		return ""
	}
}

func (n *fakeNotifier) expectNone(t *testing.T) {
	t.Helper()
	select {
	case text := <-n.sent:
		t.Fatalf("unexpected acknowledgement: %q", text)
	case <-time.After(50 * time.Millisecond):
	}
}

type pipeline struct {
	coord    *Coordinator
	store    *fakeStore
	fetcher  *fakeFetcher
	notifier *fakeNotifier
	clock    *clockwork.FakeClock
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	p := &pipeline{
		store:    &fakeStore{},
		fetcher:  &fakeFetcher{},
		notifier: newFakeNotifier(),
		clock:    clockwork.NewFakeClock(),
	}
	p.coord = NewCoordinator(nil, p.store, p.fetcher, p.notifier, p.clock, Config{
		CategoryName:   "Telegram",
		SystemUsername: "telegram_bot",
		QuietPeriod:    testQuiet,
	})
	if err := p.coord.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return p
}

func photoMessage(chatID int64, id int, groupID, text string) InboundMessage {
	return InboundMessage{
		ChatID:    chatID,
		MessageID: id,
		GroupID:   groupID,
		Text:      text,
		Forward:   &ForwardSource{ChannelID: -1001234, ChannelTitle: "Tech News"},
		Attachment: &Attachment{
			Kind:   AttachmentPhoto,
			FileID: fmt.Sprintf("file-%d", id),
		},
		SentAt: time.Date(2025, 3, 14, 9, 26, 0, 0, time.UTC),
	}
}

func TestCoordinator_RejectsBeforeBootstrap(t *testing.T) {
	t.Parallel()

	coord := NewCoordinator(nil, &fakeStore{}, &fakeFetcher{}, newFakeNotifier(), clockwork.NewFakeClock(), Config{})
	err := coord.Handle(context.Background(), photoMessage(1, 1, "", "hello"))
	if !errors.Is(err, ErrNotBootstrapped) {
		t.Fatalf("expected ErrNotBootstrapped, got %v", err)
	}
}

func TestCoordinator_BootstrapProvisionsNames(t *testing.T) {
	t.Parallel()

	p := newPipeline(t)
	if p.store.catName != "Telegram" {
		t.Fatalf("category name %q", p.store.catName)
	}
	if p.store.user != "telegram_bot" {
		t.Fatalf("system username %q", p.store.user)
	}
}

func TestCoordinator_IgnoresNonForwards(t *testing.T) {
	t.Parallel()

	p := newPipeline(t)
	msg := photoMessage(10, 1, "", "regular chatter")
	msg.Forward = nil
	if err := p.coord.Handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(p.store.created()) != 0 {
		t.Fatal("non-forward produced a topic")
	}
	p.notifier.expectNone(t)
}

func TestCoordinator_SingleForwardWithPhoto(t *testing.T) {
	t.Parallel()

	p := newPipeline(t)
	if err := p.coord.Handle(context.Background(), photoMessage(10, 1, "", "Big release today")); err != nil {
		t.Fatal(err)
	}

	topics := p.store.created()
	if len(topics) != 1 {
		t.Fatalf("created %d topics, want 1", len(topics))
	}
	topic := topics[0]
	if topic.Title != "Big release today" {
		t.Fatalf("title %q", topic.Title)
	}
	if topic.AuthorID != 3 || topic.CategoryID != 7 {
		t.Fatalf("wrong provisioned ids: author %d category %d", topic.AuthorID, topic.CategoryID)
	}
	if len(topic.Images) != 1 {
		t.Fatalf("images %v, want exactly one", topic.Images)
	}

	ack := p.notifier.wait(t)
	if !strings.Contains(ack, "✅") || !strings.Contains(ack, "Big release today") {
		t.Fatalf("unexpected ack: %q", ack)
	}
	if !strings.Contains(ack, "📷 Images: 1") {
		t.Fatalf("ack missing image count: %q", ack)
	}
}

func TestCoordinator_AlbumMaterializesOnce(t *testing.T) {
	t.Parallel()

	p := newPipeline(t)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		text := ""
		if i == 1 {
			text = "Holiday photos"
		}
		if err := p.coord.Handle(ctx, photoMessage(10, i, "album-1", text)); err != nil {
			t.Fatal(err)
		}
	}
	p.notifier.expectNone(t)

	p.clock.Advance(testQuiet)
	ack := p.notifier.wait(t)
	if !strings.Contains(ack, "📷 Images: 3") {
		t.Fatalf("ack missing album image count: %q", ack)
	}

	topics := p.store.created()
	if len(topics) != 1 {
		t.Fatalf("created %d topics for one album, want 1", len(topics))
	}
	if topics[0].Title != "Holiday photos" {
		t.Fatalf("title %q", topics[0].Title)
	}
	if len(topics[0].Images) != 3 {
		t.Fatalf("images %v, want 3 in arrival order", topics[0].Images)
	}
	for i, img := range topics[0].Images {
		want := fmt.Sprintf("/uploads/file-%d-%d.jpg", i+1, i+1)
		if img != want {
			t.Fatalf("image %d is %q, want %q", i, img, want)
		}
	}
}

func TestCoordinator_AlbumGapSplitsTopics(t *testing.T) {
	t.Parallel()

	p := newPipeline(t)
	ctx := context.Background()

	if err := p.coord.Handle(ctx, photoMessage(10, 1, "album-1", "first run")); err != nil {
		t.Fatal(err)
	}
	p.clock.Advance(testQuiet)
	p.notifier.wait(t)

	if err := p.coord.Handle(ctx, photoMessage(10, 2, "album-1", "second run")); err != nil {
		t.Fatal(err)
	}
	p.clock.Advance(testQuiet)
	p.notifier.wait(t)

	topics := p.store.created()
	if len(topics) != 2 {
		t.Fatalf("created %d topics, want 2", len(topics))
	}
	if topics[0].Title != "first run" || topics[1].Title != "second run" {
		t.Fatalf("titles %q, %q", topics[0].Title, topics[1].Title)
	}
}

func TestCoordinator_DocumentWithoutTextGetsSynthesizedTitle(t *testing.T) {
	t.Parallel()

	p := newPipeline(t)
	msg := InboundMessage{
		ChatID:     10,
		MessageID:  1,
		Forward:    &ForwardSource{UserFirstName: "Ada", UserLastName: "Lovelace"},
		Attachment: &Attachment{Kind: AttachmentDocument, FileID: "doc1", FileName: "report.pdf"},
		SentAt:     time.Now(),
	}
	if err := p.coord.Handle(context.Background(), msg); err != nil {
		t.Fatal(err)
	}

	topics := p.store.created()
	if len(topics) != 1 {
		t.Fatalf("created %d topics, want 1", len(topics))
	}
	if topics[0].Title != "From Ada Lovelace" {
		t.Fatalf("title %q", topics[0].Title)
	}
	if !strings.Contains(topics[0].Content, "[Document: report.pdf]") {
		t.Fatalf("body missing document placeholder: %q", topics[0].Content)
	}
	if p.fetcher.count() != 0 {
		t.Fatal("non-photo attachment must not be downloaded")
	}
	p.notifier.wait(t)
}

func TestCoordinator_FetchFailureStillMaterializes(t *testing.T) {
	t.Parallel()

	p := newPipeline(t)
	p.fetcher.err = errors.New("download failed")
	if err := p.coord.Handle(context.Background(), photoMessage(10, 1, "", "still worth posting")); err != nil {
		t.Fatal(err)
	}

	topics := p.store.created()
	if len(topics) != 1 {
		t.Fatalf("created %d topics, want 1", len(topics))
	}
	if len(topics[0].Images) != 0 {
		t.Fatalf("images %v, want none after failed download", topics[0].Images)
	}
	if topics[0].Images == nil {
		t.Fatal("images must be empty, not nil")
	}

	ack := p.notifier.wait(t)
	if strings.Contains(ack, "📷") {
		t.Fatalf("ack must omit image count: %q", ack)
	}
}

func TestCoordinator_StoreFailureAcksAndRecovers(t *testing.T) {
	t.Parallel()

	p := newPipeline(t)
	ctx := context.Background()

	p.store.setFail(true)
	if err := p.coord.Handle(ctx, photoMessage(10, 1, "", "doomed")); err != nil {
		t.Fatal(err)
	}
	ack := p.notifier.wait(t)
	if !strings.Contains(ack, "❌") {
		t.Fatalf("expected failure ack, got %q", ack)
	}

	p.store.setFail(false)
	if err := p.coord.Handle(ctx, photoMessage(10, 2, "", "fine now")); err != nil {
		t.Fatal(err)
	}
	ack = p.notifier.wait(t)
	if !strings.Contains(ack, "✅") {
		t.Fatalf("expected success ack after recovery, got %q", ack)
	}
	if len(p.store.created()) != 1 {
		t.Fatalf("created %d topics, want 1", len(p.store.created()))
	}
}

func TestCoordinator_ShutdownDrainsPendingAlbum(t *testing.T) {
	t.Parallel()

	p := newPipeline(t)
	ctx := context.Background()
	if err := p.coord.Handle(ctx, photoMessage(10, 1, "album-1", "cut short")); err != nil {
		t.Fatal(err)
	}
	if err := p.coord.Handle(ctx, photoMessage(10, 2, "album-1", "")); err != nil {
		t.Fatal(err)
	}

	p.coord.Shutdown(ctx)

	topics := p.store.created()
	if len(topics) != 1 {
		t.Fatalf("created %d topics, want 1", len(topics))
	}
	if topics[0].Title != "cut short" || len(topics[0].Images) != 2 {
		t.Fatalf("unexpected drained topic: %+v", topics[0])
	}
	if p.coord.Buffer().Len() != 0 {
		t.Fatal("buffer not empty after shutdown")
	}
	// The stopped timers must not fire a second materialization.
	p.clock.Advance(testQuiet)
	p.notifier.wait(t)
	p.notifier.expectNone(t)
}
