// Package queue holds the outbound queue model: entry records, the retry
// policy, and the pure transition functions that are the only sanctioned way
// to mutate the queue. Functions here never mutate their inputs and never
// fail; invalid operations return the input unchanged.
package queue

import (
	"encoding/base64"
	"strings"
)

// MaxEntries caps the queue. Insertions re-sort by due time and drop the
// tail, so the entries due soonest survive under pressure.
const MaxEntries = 160

const (
	SourceSendError     Source = "send_error"
	SourceFailedMessage Source = "failed_message"
)

// Source records how an entry came to exist: captured directly from a send
// error in the composer, or derived from a runtime-reported failed message.
type Source string

const (
	StatusQueued  Status = "queued"
	StatusSending Status = "sending"
	StatusPaused  Status = "paused"
)

type Status string

// Entry is a durable record of one outbound message awaiting successful
// delivery. Field names line up with the persisted v2 document.
type Entry struct {
	ID              string `json:"id"`
	Source          Source `json:"source"`
	ThreadID        string `json:"threadId"`
	Destination     string `json:"destination"`
	Draft           Draft  `json:"draft"`
	SourceMessageID string `json:"sourceMessageId,omitempty"`
	Reason          string `json:"reason,omitempty"`
	ReasonCode      string `json:"reasonCode,omitempty"`
	Attempts        int    `json:"attempts"`
	NextRetryAtMs   int64  `json:"nextRetryAtMs"`
	CreatedAtMs     int64  `json:"createdAtMs"`
	UpdatedAtMs     int64  `json:"updatedAtMs"`
	Status          Status `json:"status"`
	LastError       string `json:"lastError,omitempty"`
}

// Draft is the message payload an entry will resend.
type Draft struct {
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Paper       *PaperMeta   `json:"paper,omitempty"`
}

// Empty reports whether the draft carries no deliverable content. Empty
// drafts must never be enqueued or persisted.
func (d Draft) Empty() bool {
	return strings.TrimSpace(d.Text) == "" && len(d.Attachments) == 0 && d.Paper == nil
}

type PaperMeta struct {
	Title    string `json:"title,omitempty"`
	Category string `json:"category,omitempty"`
}

// Attachment carries its payload either inline as base64 or by reference
// into the blob store. Exactly one representation is authoritative at rest;
// both may transiently coexist in memory.
type Attachment struct {
	Name       string `json:"name"`
	Mime       string `json:"mime,omitempty"`
	SizeBytes  int64  `json:"sizeBytes"`
	DataBase64 string `json:"dataBase64,omitempty"`
	BlobKey    string `json:"blobKey,omitempty"`
}

// InlineBytes decodes the inline payload, reporting false when there is none
// or the base64 is corrupt.
func (a Attachment) InlineBytes() ([]byte, bool) {
	if a.DataBase64 == "" {
		return nil, false
	}

	b, err := base64.StdEncoding.DecodeString(a.DataBase64)
	if err != nil {
		return nil, false
	}

	return b, true
}

// Stored reports the blob key when the payload lives in the blob store.
func (a Attachment) Stored() (string, bool) {
	return a.BlobKey, a.BlobKey != ""
}

func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
