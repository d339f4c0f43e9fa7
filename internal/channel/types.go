// Package channel provides a unified abstraction for the chat platforms the
// intake bot listens on. It defines the shared inbound event model, the
// attachment classification policy, and the capability interface each
// platform adapter implements.
package channel

import (
	"path"
	"strings"
	"time"
)

// Type identifies a messaging platform (e.g., "telegram", "whatsapp").
type Type string

// String returns the channel type as a plain string.
func (t Type) String() string {
	return string(t)
}

// Identity represents a candidate's identity on a channel.
type Identity struct {
	SubjectID   string
	DisplayName string
}

// FileKind classifies a received attachment for the intake pipeline.
type FileKind string

const (
	FileResume  FileKind = "resume"
	FileVideo   FileKind = "video"
	FileUnknown FileKind = "unknown"
)

// FileRef is one received attachment: immutable once created, buffered per
// session until a phone number correlates it to a submission.
type FileRef struct {
	Kind        FileKind
	PlatformKey string
	Name        string
	Mime        string
	URL         string
	DurationSec int
}

// HasURL reports whether a retrievable URL has been resolved for the file.
func (r FileRef) HasURL() bool {
	return strings.TrimSpace(r.URL) != ""
}

// Attachment is the raw, pre-classification view of an inbound file event.
// VideoField marks attachments that arrived through a video-typed payload
// field; video takes precedence over generic-document classification.
type Attachment struct {
	PlatformKey string
	Name        string
	Mime        string
	SizeBytes   int64
	DurationSec int
	VideoField  bool
}

// InboundEvent is a single webhook update translated into channel-agnostic
// form. It carries either text or one attachment (or both, for captioned
// files).
type InboundEvent struct {
	Channel    Type
	ChatID     string
	Sender     Identity
	Text       string
	Attachment *Attachment
	ReceivedAt time.Time
}

// SessionKey returns the per-channel, per-chat key under which pending
// files and conversation state are buffered. Sessions are never shared
// across channels, even for the same human.
func (e InboundEvent) SessionKey() string {
	return string(e.Channel) + ":" + strings.TrimSpace(e.ChatID)
}

var resumeExtensions = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".rtf": {}, ".odt": {}, ".txt": {},
}

var resumeMimes = map[string]struct{}{
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/rtf":                         {},
	"application/vnd.oasis.opendocument.text": {},
	"text/plain":                              {},
}

// Classify decides whether an attachment is a resume, an intro video, or
// unrecognized, using MIME type and filename extension heuristics. Video
// wins when both video-typed and document-typed signals are present.
func Classify(att Attachment) FileKind {
	if att.VideoField {
		return FileVideo
	}
	mime := strings.ToLower(strings.TrimSpace(att.Mime))
	if strings.HasPrefix(mime, "video/") {
		return FileVideo
	}
	ext := strings.ToLower(path.Ext(strings.TrimSpace(att.Name)))
	switch ext {
	case ".mp4", ".mov", ".webm", ".mkv", ".avi":
		return FileVideo
	}
	if _, ok := resumeMimes[mime]; ok {
		return FileResume
	}
	if _, ok := resumeExtensions[ext]; ok {
		return FileResume
	}
	return FileUnknown
}
