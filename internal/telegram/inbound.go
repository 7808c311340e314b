package telegram

import (
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bicommunity/forum/internal/ingest"
)

// FromAPIMessage converts a raw Bot API message into the pipeline's inbound
// representation: text or caption, forward attribution, media-group id, and
// at most one attachment reference.
func FromAPIMessage(msg *tgbotapi.Message) ingest.InboundMessage {
	if msg == nil {
		return ingest.InboundMessage{}
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	out := ingest.InboundMessage{
		MessageID:  msg.MessageID,
		GroupID:    msg.MediaGroupID,
		Text:       strings.TrimSpace(text),
		Forward:    forwardSource(msg),
		Attachment: attachment(msg),
		SentAt:     time.Unix(int64(msg.Date), 0).UTC(),
	}
	if msg.Chat != nil {
		out.ChatID = msg.Chat.ID
	}
	return out
}

func forwardSource(msg *tgbotapi.Message) *ingest.ForwardSource {
	if chat := msg.ForwardFromChat; chat != nil {
		return &ingest.ForwardSource{
			ChannelID:       chat.ID,
			ChannelTitle:    chat.Title,
			ChannelUsername: chat.UserName,
			MessageID:       msg.ForwardFromMessageID,
		}
	}
	if user := msg.ForwardFrom; user != nil {
		return &ingest.ForwardSource{
			UserFirstName: user.FirstName,
			UserLastName:  user.LastName,
			UserUsername:  user.UserName,
		}
	}
	return nil
}

func attachment(msg *tgbotapi.Message) *ingest.Attachment {
	switch {
	case len(msg.Photo) > 0:
		photo := pickPhoto(msg.Photo)
		return &ingest.Attachment{Kind: ingest.AttachmentPhoto, FileID: photo.FileID}
	case msg.Video != nil:
		return &ingest.Attachment{Kind: ingest.AttachmentVideo, FileID: msg.Video.FileID, FileName: msg.Video.FileName}
	case msg.Document != nil:
		return &ingest.Attachment{Kind: ingest.AttachmentDocument, FileID: msg.Document.FileID, FileName: msg.Document.FileName}
	case msg.Audio != nil:
		name := msg.Audio.Title
		if name == "" {
			name = msg.Audio.FileName
		}
		return &ingest.Attachment{Kind: ingest.AttachmentAudio, FileID: msg.Audio.FileID, FileName: name}
	case msg.Sticker != nil:
		return &ingest.Attachment{Kind: ingest.AttachmentSticker, FileID: msg.Sticker.FileID}
	default:
		return nil
	}
}

// pickPhoto selects the largest rendition of a photo.
func pickPhoto(items []tgbotapi.PhotoSize) tgbotapi.PhotoSize {
	best := items[0]
	for _, item := range items[1:] {
		if item.FileSize > best.FileSize {
			best = item
			continue
		}
		if item.FileSize == best.FileSize && item.Width*item.Height > best.Width*best.Height {
			best = item
		}
	}
	return best
}
