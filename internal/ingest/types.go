// Package ingest implements the Telegram forward ingestion pipeline: it
// groups album parts arriving under a shared media-group id, downloads
// attached media, and materializes one forum topic per logical post.
package ingest

import "time"

// AttachmentKind classifies the media carried by an inbound message.
type AttachmentKind string

const (
	AttachmentPhoto    AttachmentKind = "photo"
	AttachmentVideo    AttachmentKind = "video"
	AttachmentDocument AttachmentKind = "document"
	AttachmentAudio    AttachmentKind = "audio"
	AttachmentSticker  AttachmentKind = "sticker"
)

// Attachment references one remote media file on the bot connection.
type Attachment struct {
	Kind     AttachmentKind
	FileID   string
	FileName string
}

// ForwardSource describes where a forwarded message originally came from:
// either a channel/group (ChannelID set) or an individual user.
type ForwardSource struct {
	ChannelID       int64
	ChannelTitle    string
	ChannelUsername string
	// MessageID is the original message's id within the origin channel,
	// when the connection exposes it. Zero when unknown.
	MessageID int

	UserFirstName string
	UserLastName  string
	UserUsername  string
}

// FromChannel reports whether the origin is a channel or group.
func (f ForwardSource) FromChannel() bool {
	return f.ChannelID != 0 || f.ChannelTitle != "" || f.ChannelUsername != ""
}

// InboundMessage is one event received from the bot connection. Immutable
// once constructed.
type InboundMessage struct {
	ChatID    int64
	MessageID int
	// GroupID is the upstream media-group correlation id shared by all
	// parts of one album. Empty for single messages.
	GroupID    string
	Text       string
	Forward    *ForwardSource
	Attachment *Attachment
	SentAt     time.Time
}

// BufferedGroup holds the accumulated parts of one album: messages in append
// order and the media paths already fetched for them.
type BufferedGroup struct {
	Messages []InboundMessage
	Media    []string
}
