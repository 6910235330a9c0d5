package chatstate

import (
	"slices"
	"time"

	"github.com/johndosdos/dmchat/internal/model"
)

// Dedupe returns list with at most one entry per identifier. An entry keeps
// the position of its first occurrence and the value of its last one, except
// that an optimistic placeholder never overwrites a confirmed record.
//
// A placeholder whose id equals a confirmed record's ClientID shares that
// record's key, so a stale placeholder collapses into its confirmation.
func Dedupe(list []model.Message) []model.Message {
	alias := make(map[string]string)
	for _, m := range list {
		if confirmed(m) && m.ClientID != "" {
			alias[m.ClientID] = m.ID
		}
	}

	key := func(m model.Message) string {
		if model.IsTempID(m.ID) {
			if id, ok := alias[m.ID]; ok {
				return id
			}
		}
		if m.ID == "" {
			return m.ClientID
		}
		return m.ID
	}

	pos := make(map[string]int, len(list))
	out := make([]model.Message, 0, len(list))
	for _, m := range list {
		k := key(m)
		if k == "" {
			out = append(out, m)
			continue
		}
		if i, ok := pos[k]; ok {
			if m.Optimistic && !out[i].Optimistic {
				continue
			}
			out[i] = m
			continue
		}
		pos[k] = len(out)
		out = append(out, m)
	}
	return out
}

// ReplacePlaceholder swaps the placeholder tempID for the authoritative
// record in one transformation: the placeholder and any earlier copy of the
// server record are filtered out and actual takes the placeholder's slot.
// When the placeholder is gone, actual is appended.
func ReplacePlaceholder(list []model.Message, tempID string, actual model.Message) []model.Message {
	idx := -1
	out := make([]model.Message, 0, len(list)+1)
	for _, m := range list {
		if m.ID == tempID || (actual.ID != "" && m.ID == actual.ID) {
			if idx < 0 {
				idx = len(out)
			}
			continue
		}
		out = append(out, m)
	}

	actual.Optimistic = false
	if idx < 0 {
		out = append(out, actual)
	} else {
		out = slices.Insert(out, idx, actual)
	}
	return Dedupe(out)
}

// Contains reports whether list already holds m, either under its server id
// or as the pending placeholder named by m.ClientID.
func Contains(list []model.Message, m model.Message) bool {
	for _, x := range list {
		if m.ID != "" && x.ID == m.ID {
			return true
		}
		if m.ClientID != "" && x.Optimistic && x.ID == m.ClientID {
			return true
		}
	}
	return false
}

// Append adds m to the end of list unless it is already present.
func Append(list []model.Message, m model.Message) ([]model.Message, bool) {
	if Contains(list, m) {
		return list, false
	}
	return append(list, m), true
}

// Remove filters out every entry with the given id.
func Remove(list []model.Message, id string) []model.Message {
	out := make([]model.Message, 0, len(list))
	for _, m := range list {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

// AddReaction replaces userID's reaction on messageID with emoji.
func AddReaction(list []model.Message, messageID, userID, emoji string, at time.Time) []model.Message {
	return mapMessage(list, messageID, func(m model.Message) model.Message {
		m.Reactions = withoutUser(m.Reactions, userID)
		m.Reactions = append(m.Reactions, model.Reaction{
			UserID:    userID,
			Emoji:     emoji,
			CreatedAt: at,
		})
		return m
	})
}

// RemoveReaction drops userID's reaction on messageID, if any.
func RemoveReaction(list []model.Message, messageID, userID string) []model.Message {
	return mapMessage(list, messageID, func(m model.Message) model.Message {
		m.Reactions = withoutUser(m.Reactions, userID)
		return m
	})
}

func mapMessage(list []model.Message, id string, fn func(model.Message) model.Message) []model.Message {
	out := make([]model.Message, len(list))
	for i, m := range list {
		if m.ID == id {
			m = fn(m.Clone())
		}
		out[i] = m
	}
	return out
}

func withoutUser(rs []model.Reaction, userID string) []model.Reaction {
	out := make([]model.Reaction, 0, len(rs)+1)
	for _, r := range rs {
		if r.UserID != userID {
			out = append(out, r)
		}
	}
	return out
}

func confirmed(m model.Message) bool {
	return !m.Optimistic && m.ID != "" && !model.IsTempID(m.ID)
}

func find(list []model.Message, id string) (model.Message, bool) {
	for _, m := range list {
		if m.ID == id {
			return m, true
		}
	}
	return model.Message{}, false
}
