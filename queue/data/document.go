package data

import (
	"encoding/json"
	"strings"

	"weft/outbound-queue/log"
	"weft/outbound-queue/queue"
)

const (
	// queueKeyV2 is the current durable queue document.
	queueKeyV2 = "outbound-queue/v2"
	// queueKeyV1 is the retired format without blob-key spill support. Read
	// once on first load, rewritten as v2, then deleted.
	queueKeyV1 = "outbound-queue/v1"
	// ignoredKey holds the dismissed message id set.
	ignoredKey = "outbound-queue/ignored"
)

// decodeQueueDocument parses a v2 document. Parsing is strict per entry:
// an entry with a missing id, unknown status, or an undeliverable draft is
// dropped rather than hydrated into a half-valid record.
func decodeQueueDocument(raw []byte) ([]queue.Entry, bool) {
	var doc []queue.Entry
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false
	}

	out := make([]queue.Entry, 0, len(doc))
	for _, e := range doc {
		if !validEntry(e) {
			log.Logger.Warnf("dropping malformed queue entry %q from durable storage", e.ID)
			continue
		}
		out = append(out, e)
	}

	return out, true
}

func encodeQueueDocument(entries []queue.Entry) ([]byte, error) {
	if entries == nil {
		entries = []queue.Entry{}
	}

	return json.Marshal(entries)
}

func validEntry(e queue.Entry) bool {
	if strings.TrimSpace(e.ID) == "" {
		return false
	}
	if strings.TrimSpace(e.ThreadID) == "" || strings.TrimSpace(e.Destination) == "" {
		return false
	}
	if e.Source != queue.SourceSendError && e.Source != queue.SourceFailedMessage {
		return false
	}
	if e.Status != queue.StatusQueued && e.Status != queue.StatusSending && e.Status != queue.StatusPaused {
		return false
	}
	if e.Attempts < 0 {
		return false
	}
	if e.Draft.Empty() {
		return false
	}
	for _, a := range e.Draft.Attachments {
		if a.DataBase64 == "" && a.BlobKey == "" {
			return false
		}
	}

	return true
}

// v1Attachment predates blob-key spill: payloads were always inline.
type v1Attachment struct {
	Name       string `json:"name"`
	Mime       string `json:"mime,omitempty"`
	SizeBytes  int64  `json:"sizeBytes"`
	DataBase64 string `json:"dataBase64"`
}

type v1Entry struct {
	ID              string       `json:"id"`
	Source          queue.Source `json:"source"`
	ThreadID        string       `json:"threadId"`
	Destination     string       `json:"destination"`
	Draft           v1Draft      `json:"draft"`
	SourceMessageID string       `json:"sourceMessageId,omitempty"`
	Reason          string       `json:"reason,omitempty"`
	ReasonCode      string       `json:"reasonCode,omitempty"`
	Attempts        int          `json:"attempts"`
	NextRetryAtMs   int64        `json:"nextRetryAtMs"`
	CreatedAtMs     int64        `json:"createdAtMs"`
	UpdatedAtMs     int64        `json:"updatedAtMs"`
	Status          queue.Status `json:"status"`
	LastError       string       `json:"lastError,omitempty"`
}

type v1Draft struct {
	Text        string           `json:"text"`
	Attachments []v1Attachment   `json:"attachments,omitempty"`
	Paper       *queue.PaperMeta `json:"paper,omitempty"`
}

func decodeLegacyQueueDocument(raw []byte) ([]queue.Entry, bool) {
	var doc []v1Entry
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false
	}

	out := make([]queue.Entry, 0, len(doc))
	for _, v := range doc {
		e := queue.Entry{
			ID:              v.ID,
			Source:          v.Source,
			ThreadID:        v.ThreadID,
			Destination:     v.Destination,
			SourceMessageID: v.SourceMessageID,
			Reason:          v.Reason,
			ReasonCode:      v.ReasonCode,
			Attempts:        v.Attempts,
			NextRetryAtMs:   v.NextRetryAtMs,
			CreatedAtMs:     v.CreatedAtMs,
			UpdatedAtMs:     v.UpdatedAtMs,
			Status:          v.Status,
			LastError:       v.LastError,
		}
		e.Draft = queue.Draft{
			Text:  v.Draft.Text,
			Paper: v.Draft.Paper,
		}
		for _, a := range v.Draft.Attachments {
			e.Draft.Attachments = append(e.Draft.Attachments, queue.Attachment{
				Name:       a.Name,
				Mime:       a.Mime,
				SizeBytes:  a.SizeBytes,
				DataBase64: a.DataBase64,
			})
		}

		if !validEntry(e) {
			log.Logger.Warnf("dropping malformed legacy queue entry %q during migration", e.ID)
			continue
		}
		out = append(out, e)
	}

	return out, true
}
