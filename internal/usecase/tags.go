package usecase

import (
	"fmt"
	"strings"

	"github.com/Xolta0/shopify/internal/entity"
)

// Tag grammar shared by the checkout and webhook halves of the saga.
// Changing any of these requires changing MatchesSession as well.
const (
	TagPending     = "aviagram-pending"
	TagPaid        = "aviagram-paid"
	tagSessionPref = "aviagram:"

	notePending = "Awaiting Aviagram payment"
)

func SessionTag(sessionID string) string {
	return tagSessionPref + sessionID
}

func pendingMetadata() entity.Metadata {
	return entity.Metadata{Note: notePending, Tags: TagPending}
}

func taggedMetadata(sessionID string) entity.Metadata {
	return entity.Metadata{
		Note: "Aviagram: " + sessionID,
		Tags: SessionTag(sessionID),
	}
}

func paidMetadata(n entity.Notification) entity.Metadata {
	note := fmt.Sprintf("Aviagram payment %s received", n.SessionID)
	if n.Amount != "" {
		note = fmt.Sprintf("%s (%s %s)", note, n.Amount, n.Currency)
	}
	return entity.Metadata{
		Note: note,
		Tags: TagPaid + "," + SessionTag(n.SessionID),
	}
}

// SessionFromTags returns the session id carried by an aviagram:<id> token, if any.
func SessionFromTags(tags string) (string, bool) {
	for _, t := range entity.SplitTags(tags) {
		if id, ok := strings.CutPrefix(t, tagSessionPref); ok && id != "" {
			return id, true
		}
	}
	return "", false
}

// MatchesSession reports whether a draft's metadata references sessionID,
// either as an exact aviagram:<id> tag token or as "Aviagram: <id>" in the
// note. The id in the note must end at a token boundary.
func MatchesSession(o entity.ProvisionalOrder, sessionID string) bool {
	if sessionID == "" {
		return false
	}
	want := SessionTag(sessionID)
	for _, t := range entity.SplitTags(o.Tags) {
		if t == want {
			return true
		}
	}
	return noteReferences(o.Note, sessionID)
}

func noteReferences(note, sessionID string) bool {
	ref := taggedMetadata(sessionID).Note
	for rest := note; ; {
		i := strings.Index(rest, ref)
		if i < 0 {
			return false
		}
		rest = rest[i+len(ref):]
		if rest == "" || !isIDChar(rest[0]) {
			return true
		}
	}
}

func isIDChar(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '-' || c == '_'
}
