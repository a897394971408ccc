package queue

const (
	SenderSelf MessageSender = "self"
	SenderPeer MessageSender = "peer"
)

type MessageSender string

const (
	MessageSending   MessageStatus = "sending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageFailed    MessageStatus = "failed"
)

type MessageStatus string

// ThreadMessage is the read-only view of one message in a runtime thread
// snapshot.
type ThreadMessage struct {
	ID               string        `json:"id"`
	Sender           MessageSender `json:"sender"`
	Status           MessageStatus `json:"status"`
	StatusDetail     string        `json:"statusDetail,omitempty"`
	StatusReasonCode string        `json:"statusReasonCode,omitempty"`
	Text             string        `json:"text"`
	Attachments      []Attachment  `json:"attachments,omitempty"`
	Paper            *PaperMeta    `json:"paper,omitempty"`
}

// Thread is the read-only view of one conversation in a runtime snapshot.
type Thread struct {
	ID          string          `json:"id"`
	Destination string          `json:"destination"`
	Messages    []ThreadMessage `json:"messages"`
}

// SyncFromThreads derives queue entries for runtime-reported failed
// messages. A failed message produces the entry `failed:<messageId>`, so
// re-running the sync over the same snapshot is idempotent: it never
// duplicates entries and never reorders unrelated ones unless new failures
// appeared.
//
// Messages are skipped when the user dismissed them, when the derived draft
// would be empty, or when any attachment payload is unrecoverable (the
// runtime no longer carries its bytes); a message missing part of its
// payload must not be resent incomplete.
func SyncFromThreads(entries []Entry, threads []Thread, ignored *IgnoredIDs, nowMs int64) []Entry {
	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.ID] = true
	}

	var derived []Entry
	for _, t := range threads {
		for _, m := range t.Messages {
			if m.Sender != SenderSelf || m.Status != MessageFailed || m.ID == "" {
				continue
			}
			if ignored != nil && ignored.Has(m.ID) {
				continue
			}

			id := "failed:" + m.ID
			if present[id] {
				continue
			}

			draft, ok := deriveDraft(m)
			if !ok {
				continue
			}

			derived = append(derived, Entry{
				ID:              id,
				Source:          SourceFailedMessage,
				ThreadID:        t.ID,
				Destination:     t.Destination,
				Draft:           draft,
				SourceMessageID: m.ID,
				Reason:          m.StatusDetail,
				ReasonCode:      m.StatusReasonCode,
				NextRetryAtMs:   nowMs + RetryDelayMs(0),
				CreatedAtMs:     nowMs,
				UpdatedAtMs:     nowMs,
				Status:          StatusQueued,
			})
			present[id] = true
		}
	}

	if len(derived) == 0 {
		return entries
	}

	return Limit(append(cloneEntries(entries), derived...))
}

func deriveDraft(m ThreadMessage) (Draft, bool) {
	d := Draft{
		Text:        m.Text,
		Attachments: append([]Attachment(nil), m.Attachments...),
		Paper:       m.Paper,
	}
	if len(d.Attachments) == 0 {
		d.Attachments = nil
	}

	if d.Empty() {
		return Draft{}, false
	}

	for _, a := range d.Attachments {
		if _, ok := a.InlineBytes(); !ok {
			return Draft{}, false
		}
	}

	return d, true
}
