package ingest

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// maxInlineTitleLen is the longest message text used verbatim as a
	// topic title; longer texts get a synthesized "From ..." title.
	maxInlineTitleLen = 150
	// maxTitleLen caps the stored title length.
	maxTitleLen = 200

	privateLinkPrefix = "https://t.me/c/"
	publicLinkPrefix  = "https://t.me/"
)

// Classification is the derived presentation of one logical post.
type Classification struct {
	Title       string
	Body        string
	SourceLabel string
	SourceLink  string
}

// Classify derives the title, body, and source attribution for a single
// inbound message.
func Classify(msg InboundMessage) Classification {
	return classify(messageText(msg), msg)
}

// ClassifyGroup derives the classification for a drained album: text is the
// group's accumulated text and first supplies the source metadata.
func ClassifyGroup(text string, first InboundMessage) Classification {
	if text == "" {
		text = placeholder(first.Attachment)
	}
	return classify(text, first)
}

func classify(text string, msg InboundMessage) Classification {
	label := sourceLabel(msg.Forward)
	link := sourceLink(msg.Forward)

	title := fmt.Sprintf("From %s", label)
	if n := len([]rune(text)); n > 0 && n <= maxInlineTitleLen && !strings.HasPrefix(text, "[") {
		title = truncate(text, maxTitleLen)
	}

	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\n---\n")
	b.WriteString("**Source:** " + label + "\n")
	if link != "" {
		b.WriteString("**Link:** [Open in Telegram](" + link + ")\n")
	}
	if !msg.SentAt.IsZero() {
		b.WriteString("**Posted:** " + msg.SentAt.UTC().Format("Jan 2, 2006 15:04 MST") + "\n")
	}

	return Classification{
		Title:       title,
		Body:        b.String(),
		SourceLabel: label,
		SourceLink:  link,
	}
}

// messageText returns the message text, or a bracketed placeholder derived
// from the attachment kind when no text is present.
func messageText(msg InboundMessage) string {
	if msg.Text != "" {
		return msg.Text
	}
	return placeholder(msg.Attachment)
}

func placeholder(att *Attachment) string {
	if att == nil {
		return "[message without text]"
	}
	switch att.Kind {
	case AttachmentPhoto:
		return "[Photo]"
	case AttachmentVideo:
		return "[Video]"
	case AttachmentDocument:
		return "[Document: " + orElse(att.FileName, "file") + "]"
	case AttachmentAudio:
		return "[Audio: " + orElse(att.FileName, "file") + "]"
	case AttachmentSticker:
		return "[Sticker]"
	default:
		return "[message without text]"
	}
}

func sourceLabel(f *ForwardSource) string {
	switch {
	case f == nil:
		return "Unknown"
	case f.FromChannel():
		if f.ChannelTitle != "" {
			return f.ChannelTitle
		}
		if f.ChannelUsername != "" {
			return f.ChannelUsername
		}
		return "Unknown Channel"
	default:
		name := strings.TrimSpace(f.UserFirstName + " " + f.UserLastName)
		if name == "" {
			name = "Unknown"
		}
		if f.UserUsername != "" {
			name += " (@" + f.UserUsername + ")"
		}
		return name
	}
}

// sourceLink builds a permalink to the original message. Only channel
// forwards with a known original message id are linkable: public channels by
// username, private ones by their numeric id with the -100 prefix stripped.
func sourceLink(f *ForwardSource) string {
	if f == nil || !f.FromChannel() || f.MessageID == 0 {
		return ""
	}
	if f.ChannelUsername != "" {
		return publicLinkPrefix + f.ChannelUsername + "/" + strconv.Itoa(f.MessageID)
	}
	if f.ChannelID == 0 {
		return ""
	}
	id := strconv.FormatInt(f.ChannelID, 10)
	if strings.HasPrefix(id, "-100") {
		id = id[len("-100"):]
	} else {
		id = strings.TrimPrefix(id, "-")
	}
	return privateLinkPrefix + id + "/" + strconv.Itoa(f.MessageID)
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func orElse(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
