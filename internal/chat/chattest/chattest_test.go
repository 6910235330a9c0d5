package chattest

import (
	"testing"

	"github.com/johndosdos/dmchat/internal/chat"
)

func TestStore(t *testing.T) {
	RunStoreTests(t, func(*testing.T) chat.Store { return NewStore() })
}
