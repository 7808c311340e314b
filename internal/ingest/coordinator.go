package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/bicommunity/forum/internal/forum"
)

const (
	ackFailure = "❌ Failed to create the forum topic. Please try again later."
)

// Store is the Forum Store surface the coordinator writes to.
type Store interface {
	EnsureCategory(ctx context.Context, name, description string) (int64, error)
	EnsureSystemUser(ctx context.Context, username string) (int64, error)
	CreateTopic(ctx context.Context, input forum.CreateTopicInput) (int64, error)
}

// MediaFetcher downloads one attachment and returns its public path.
type MediaFetcher interface {
	Fetch(ctx context.Context, att Attachment) (string, error)
}

// Notifier sends acknowledgements back to the originating chat.
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Config carries the coordinator's provisioning names and the album quiet
// period.
type Config struct {
	CategoryName        string
	CategoryDescription string
	SystemUsername      string
	QuietPeriod         time.Duration
}

// Coordinator is the ingestion pipeline's event loop: it accepts inbound
// messages from the bot connection, routes album parts through the group
// buffer, and materializes exactly one topic per logical post.
type Coordinator struct {
	logger   *slog.Logger
	store    Store
	fetcher  MediaFetcher
	notifier Notifier
	buffer   *GroupBuffer
	cfg      Config

	categoryID int64
	authorID   int64
	ready      atomic.Bool
}

// NewCoordinator wires the pipeline. The clock is injected so tests drive
// the quiet-period timers synthetically.
func NewCoordinator(log *slog.Logger, store Store, fetcher MediaFetcher, notifier Notifier, clock clockwork.Clock, cfg Config) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.QuietPeriod <= 0 {
		cfg.QuietPeriod = 2 * time.Second
	}
	c := &Coordinator{
		logger:   log.With(slog.String("service", "ingest")),
		store:    store,
		fetcher:  fetcher,
		notifier: notifier,
		cfg:      cfg,
	}
	c.buffer = NewGroupBuffer(log, clock, cfg.QuietPeriod, c.drainGroup)
	return c
}

// Bootstrap provisions the system category and author. It must succeed
// before Handle accepts any event; a failure here is fatal to the pipeline.
func (c *Coordinator) Bootstrap(ctx context.Context) error {
	categoryID, err := c.store.EnsureCategory(ctx, c.cfg.CategoryName, c.cfg.CategoryDescription)
	if err != nil {
		return fmt.Errorf("ensure category: %w", err)
	}
	authorID, err := c.store.EnsureSystemUser(ctx, c.cfg.SystemUsername)
	if err != nil {
		return fmt.Errorf("ensure system user: %w", err)
	}
	c.categoryID = categoryID
	c.authorID = authorID
	c.ready.Store(true)
	c.logger.Info("pipeline bootstrapped",
		slog.Int64("category_id", categoryID),
		slog.Int64("author_id", authorID),
	)
	return nil
}

// Handle processes one inbound event. Messages without a forward source are
// ignored entirely. Album parts are buffered; single messages flow straight
// through to materialization.
func (c *Coordinator) Handle(ctx context.Context, msg InboundMessage) error {
	if !c.ready.Load() {
		return ErrNotBootstrapped
	}
	if msg.Forward == nil {
		return nil
	}
	if msg.GroupID != "" {
		c.handleGroupPart(ctx, msg)
		return nil
	}
	c.process(ctx, msg, c.fetchMedia(ctx, msg))
	return nil
}

// Shutdown drains every pending group through the normal materialization
// path so partially received albums are not lost.
func (c *Coordinator) Shutdown(ctx context.Context) {
	for key, group := range c.buffer.DrainAll() {
		c.logger.Info("draining pending group on shutdown", slog.String("group_id", key))
		c.processGroup(ctx, key, group)
	}
}

// Buffer exposes the group buffer for the bot connection's lifecycle hooks.
func (c *Coordinator) Buffer() *GroupBuffer {
	return c.buffer
}

// handleGroupPart fetches this part's media, then appends it to the group.
// Album parts get no individual acknowledgement; the drain timer decides
// when the group is complete.
func (c *Coordinator) handleGroupPart(ctx context.Context, msg InboundMessage) {
	c.buffer.Append(msg.GroupID, msg, c.fetchMedia(ctx, msg))
}

// drainGroup runs on the buffer's timer goroutine once a group's quiet
// period elapses.
func (c *Coordinator) drainGroup(key string, group BufferedGroup) {
	c.processGroup(context.Background(), key, group)
}

func (c *Coordinator) processGroup(ctx context.Context, key string, group BufferedGroup) {
	if len(group.Messages) == 0 {
		return
	}
	// The caption of an album normally rides on its first part, but the
	// connection does not guarantee which part carries it.
	text := ""
	for _, msg := range group.Messages {
		if msg.Text != "" {
			text = msg.Text
			break
		}
	}
	first := group.Messages[0]
	cls := ClassifyGroup(text, first)
	c.logger.Info("processing album",
		slog.String("group_id", key),
		slog.Int("parts", len(group.Messages)),
		slog.Int("media", len(group.Media)),
	)
	c.materialize(ctx, first.ChatID, cls, group.Media)
}

func (c *Coordinator) process(ctx context.Context, msg InboundMessage, media []string) {
	c.materialize(ctx, msg.ChatID, Classify(msg), media)
}

// fetchMedia downloads the message's photo, if it has one. A failed download
// drops the attachment but never the message: the post still materializes
// with whatever media succeeded.
func (c *Coordinator) fetchMedia(ctx context.Context, msg InboundMessage) []string {
	if msg.Attachment == nil || msg.Attachment.Kind != AttachmentPhoto {
		return nil
	}
	path, err := c.fetcher.Fetch(ctx, *msg.Attachment)
	if err != nil {
		c.logger.Error("media download failed",
			slog.String("file_id", msg.Attachment.FileID),
			slog.Any("error", err),
		)
		return nil
	}
	return []string{path}
}

// materialize creates the topic and sends the single acknowledgement for
// this logical post. A store failure is reported to the chat and logged; the
// pipeline keeps running.
func (c *Coordinator) materialize(ctx context.Context, chatID int64, cls Classification, media []string) {
	if media == nil {
		media = []string{}
	}
	topicID, err := c.store.CreateTopic(ctx, forum.CreateTopicInput{
		Title:      cls.Title,
		Content:    cls.Body,
		AuthorID:   c.authorID,
		CategoryID: c.categoryID,
		Images:     media,
	})
	if err != nil {
		c.logger.Error("topic materialization failed",
			slog.String("title", cls.Title),
			slog.Any("error", err),
		)
		c.notify(ctx, chatID, ackFailure)
		return
	}
	c.logger.Info("topic materialized",
		slog.Int64("topic_id", topicID),
		slog.String("source", cls.SourceLabel),
		slog.Int("images", len(media)),
	)
	ack := "✅ Topic created on the forum!\n\n📝 Title: " + cls.Title
	if len(media) > 0 {
		ack += fmt.Sprintf("\n📷 Images: %d", len(media))
	}
	c.notify(ctx, chatID, ack)
}

func (c *Coordinator) notify(ctx context.Context, chatID int64, text string) {
	if chatID == 0 {
		return
	}
	if err := c.notifier.SendMessage(ctx, chatID, text); err != nil {
		c.logger.Warn("acknowledgement send failed",
			slog.Int64("chat_id", chatID),
			slog.Any("error", err),
		)
	}
}
