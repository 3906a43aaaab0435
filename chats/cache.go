package chats

import (
	"context"

	"github.com/huandu/go-clone"
	"github.com/xiaoyuanzhu-com/my-life-chat/db"
	"github.com/xiaoyuanzhu-com/my-life-chat/models"
)

// activeChat mirrors the selected chat. It is only mutated after the
// corresponding database write has committed, so it never runs ahead of
// storage.
type activeChat struct {
	path     Path
	nodeID   string
	messages []models.Message
	settings models.ChatSettings
}

func (a *activeChat) matches(path Path) bool {
	return a != nil && a.path.Equal(path)
}

func (a *activeChat) lastMessage() (models.Message, bool) {
	if len(a.messages) == 0 {
		return models.Message{}, false
	}
	return a.messages[len(a.messages)-1], true
}

func (a *activeChat) copyMessages() []models.Message {
	if len(a.messages) == 0 {
		return []models.Message{}
	}
	return clone.Clone(a.messages).([]models.Message)
}

func (s *Store) loadActive(ctx context.Context, q db.Querier, path Path, node db.NodeRecord) (*activeChat, error) {
	messages, err := loadMessages(ctx, q, node.ID)
	if err != nil {
		return nil, wrapIO("select", path, err)
	}
	settings, err := decodeSettings(node.Settings)
	if err != nil {
		return nil, wrapIO("select", path, err)
	}
	return &activeChat{
		path:     path.Clone(),
		nodeID:   node.ID,
		messages: messages,
		settings: settings,
	}, nil
}

// Select makes path the active chat, loading its messages and settings into
// the cache and persisting the choice.
func (s *Store) Select(ctx context.Context, path Path) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.db.Conn()
	node, err := s.resolve(ctx, q, "select", path)
	if err != nil {
		return err
	}
	if node.Kind != string(models.KindChat) {
		return newError(ErrInvalidOperation, "select", path, "only chats can be selected")
	}

	active, err := s.loadActive(ctx, q, path, *node)
	if err != nil {
		return err
	}
	if err := persistActive(ctx, q, path); err != nil {
		return wrapIO("select", path, err)
	}
	s.active = active
	logger.Debug().Str("path", path.String()).Msg("selected chat")
	s.notifyActive()
	return nil
}

// Deselect clears the active chat.
func (s *Store) Deselect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := persistActive(ctx, s.db.Conn(), nil); err != nil {
		return wrapIO("deselect", nil, err)
	}
	s.active = nil
	s.notifyActive()
	return nil
}

// Active returns the selected chat path; ok is false when nothing is selected.
func (s *Store) Active() (Path, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == nil {
		return nil, false
	}
	return s.active.path.Clone(), true
}

// RequireActive is Active for callers that cannot proceed without a selection.
func (s *Store) RequireActive() (Path, error) {
	path, ok := s.Active()
	if !ok {
		return nil, newError(ErrInvalidOperation, "require_active", nil, "no chat selected")
	}
	return path, nil
}

// retargetActive applies a structural change to the cached path: the
// subtree at from now lives at to. A nil to means the subtree was deleted.
func (s *Store) retargetActive(from, to Path) {
	if s.active == nil || !s.active.path.HasPrefix(from) {
		return
	}
	if to == nil {
		s.active = nil
	} else {
		s.active.path = s.active.path.Rebase(from, to)
	}
	s.notifyActive()
}

// rewriteActivePath persists the retargeted active path inside q. It mirrors
// retargetActive and must be called in the same transaction as the
// structural change.
func (s *Store) rewriteActivePath(ctx context.Context, q db.Querier, from, to Path) error {
	if s.active == nil || !s.active.path.HasPrefix(from) {
		return nil
	}
	if to == nil {
		return persistActive(ctx, q, nil)
	}
	return persistActive(ctx, q, s.active.path.Rebase(from, to))
}
