package queue

import (
	"encoding/base64"
	"testing"

	"github.com/go-test/deep"
)

func TestSyncFromThreads(t *testing.T) {
	threads := []Thread{
		{
			ID:          "t1",
			Destination: "dest1",
			Messages: []ThreadMessage{
				{ID: "m1", Sender: SenderSelf, Status: MessageDelivered, Text: "fine"},
				{ID: "m2", Sender: SenderSelf, Status: MessageFailed, StatusDetail: "no path", StatusReasonCode: "no_path", Text: "lost"},
				{ID: "m3", Sender: SenderPeer, Status: MessageFailed, Text: "their problem"},
			},
		},
	}

	t.Run("it derives an entry for a failed self-authored message", func(t *testing.T) {
		got := SyncFromThreads(nil, threads, NewIgnoredIDs(), 1000)

		if len(got) != 1 {
			t.Fatalf("expected 1 derived entry, got %d", len(got))
		}

		exp := Entry{
			ID:              "failed:m2",
			Source:          SourceFailedMessage,
			ThreadID:        "t1",
			Destination:     "dest1",
			Draft:           Draft{Text: "lost"},
			SourceMessageID: "m2",
			Reason:          "no path",
			ReasonCode:      "no_path",
			NextRetryAtMs:   16_000,
			CreatedAtMs:     1000,
			UpdatedAtMs:     1000,
			Status:          StatusQueued,
		}
		if diff := deep.Equal(exp, got[0]); diff != nil {
			t.Error(diff)
		}
	})

	t.Run("it is idempotent across repeated snapshots", func(t *testing.T) {
		first := SyncFromThreads(nil, threads, NewIgnoredIDs(), 1000)
		second := SyncFromThreads(first, threads, NewIgnoredIDs(), 2000)

		if len(second) != 1 {
			t.Fatalf("expected no duplicate entries, got %d", len(second))
		}
		if &second[0] != &first[0] {
			t.Error("expected the input slice back unchanged when nothing new failed")
		}
	})

	t.Run("it skips dismissed messages", func(t *testing.T) {
		ignored := NewIgnoredIDs("m2")

		got := SyncFromThreads(nil, threads, ignored, 1000)
		if len(got) != 0 {
			t.Errorf("dismissed messages must not be re-derived, got %+v", got)
		}
	})

	t.Run("it skips messages whose draft would be empty", func(t *testing.T) {
		empty := []Thread{{
			ID:          "t1",
			Destination: "dest1",
			Messages:    []ThreadMessage{{ID: "m9", Sender: SenderSelf, Status: MessageFailed, Text: "   "}},
		}}

		got := SyncFromThreads(nil, empty, NewIgnoredIDs(), 1000)
		if len(got) != 0 {
			t.Errorf("an empty draft must not be enqueued, got %+v", got)
		}
	})

	t.Run("it skips messages with unrecoverable attachment payloads", func(t *testing.T) {
		noPayload := []Thread{{
			ID:          "t1",
			Destination: "dest1",
			Messages: []ThreadMessage{{
				ID:          "m9",
				Sender:      SenderSelf,
				Status:      MessageFailed,
				Text:        "photo",
				Attachments: []Attachment{{Name: "pic.png", BlobKey: "gone"}},
			}},
		}}

		got := SyncFromThreads(nil, noPayload, NewIgnoredIDs(), 1000)
		if len(got) != 0 {
			t.Errorf("a message missing payload bytes must not be resent, got %+v", got)
		}
	})

	t.Run("it carries inline attachment payloads into the derived draft", func(t *testing.T) {
		payload := base64.StdEncoding.EncodeToString([]byte("bytes"))
		withAtt := []Thread{{
			ID:          "t1",
			Destination: "dest1",
			Messages: []ThreadMessage{{
				ID:          "m9",
				Sender:      SenderSelf,
				Status:      MessageFailed,
				Attachments: []Attachment{{Name: "pic.png", Mime: "image/png", DataBase64: payload}},
			}},
		}}

		got := SyncFromThreads(nil, withAtt, NewIgnoredIDs(), 1000)
		if len(got) != 1 {
			t.Fatalf("expected 1 derived entry, got %d", len(got))
		}
		if len(got[0].Draft.Attachments) != 1 || got[0].Draft.Attachments[0].DataBase64 != payload {
			t.Errorf("attachment payload was not carried over: %+v", got[0].Draft)
		}
	})
}
