package chats

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/xiaoyuanzhu-com/my-life-chat/db"
	"github.com/xiaoyuanzhu-com/my-life-chat/log"
	"github.com/xiaoyuanzhu-com/my-life-chat/models"
)

var logger = log.GetLogger("Chats")

const DefaultWelcomeMessage = "Welcome to your new chat!"

// DefaultChatName is the chat ensured at the root when an import leaves nothing selected.
const DefaultChatName = "Default"

// Notifier receives change events after they are committed.
type Notifier interface {
	NotifyTreeChanged(path string, operation string)
	NotifyChatUpdated(path string, operation string)
	NotifyActiveChanged(path string)
}

// Options tune store behaviour.
type Options struct {
	// WelcomeMessage seeds every new chat. Empty means DefaultWelcomeMessage.
	WelcomeMessage string
	// SortChildren lists groups before chats, alphabetically, instead of by position.
	SortChildren bool
	Notifier     Notifier
}

// Store is the hierarchical chat store. It owns the durable database and
// the active-chat cache; all methods are safe to call from multiple
// goroutines but are serialized internally.
type Store struct {
	mu     sync.Mutex
	db     *db.DB
	opts   Options
	rootID string
	active *activeChat
}

// Open initialises the root group on first use and restores the persisted
// active chat when it still resolves.
func Open(ctx context.Context, database *db.DB, opts Options) (*Store, error) {
	if opts.WelcomeMessage == "" {
		opts.WelcomeMessage = DefaultWelcomeMessage
	}
	s := &Store{
		db:   database,
		opts: opts,
	}

	q := database.Conn()
	root, err := db.GetRootNode(ctx, q)
	if err != nil {
		return nil, wrapIO("open", nil, err)
	}
	if root == nil {
		rootID := uuid.NewString()
		if err := db.InsertNode(ctx, q, db.NodeRecord{ID: rootID, Kind: string(models.KindGroup)}); err != nil {
			return nil, wrapIO("open", nil, err)
		}
		logger.Info().Str("id", rootID).Msg("created root group")
		s.rootID = rootID
	} else {
		s.rootID = root.ID
	}

	if err := s.restoreActive(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// DB returns the underlying database.
func (s *Store) DB() *db.DB {
	return s.db
}

// restoreActive reloads the cache from the persisted active path. A path
// that no longer resolves to a chat is dropped.
func (s *Store) restoreActive(ctx context.Context) error {
	q := s.db.Conn()
	s.active = nil

	raw, ok, err := db.GetMeta(ctx, q, db.MetaActivePath)
	if err != nil {
		return wrapIO("restore_active", nil, err)
	}
	if !ok {
		return nil
	}

	var path Path
	if err := json.Unmarshal([]byte(raw), &path); err != nil {
		logger.Warn().Err(err).Str("value", raw).Msg("discarding unreadable active path")
		return wrapIO("restore_active", nil, db.DeleteMeta(ctx, q, db.MetaActivePath))
	}

	node, err := s.resolve(ctx, q, "restore_active", path)
	if err != nil && KindOf(err) != ErrNotFound {
		return err
	}
	if err != nil || node.Kind != string(models.KindChat) {
		logger.Info().Str("path", path.String()).Msg("persisted active path no longer resolves")
		return wrapIO("restore_active", path, db.DeleteMeta(ctx, q, db.MetaActivePath))
	}

	active, err := s.loadActive(ctx, q, path, *node)
	if err != nil {
		return err
	}
	s.active = active
	return nil
}

// resolve walks path from the root, one sibling lookup per segment.
func (s *Store) resolve(ctx context.Context, q db.Querier, op string, path Path) (*db.NodeRecord, error) {
	node, err := db.GetNode(ctx, q, s.rootID)
	if err != nil {
		return nil, wrapIO(op, path, err)
	}
	if node == nil {
		return nil, newError(ErrIO, op, path, "root group is missing")
	}
	for i, name := range path {
		child, err := db.GetChildByName(ctx, q, node.ID, name)
		if err != nil {
			return nil, wrapIO(op, path, err)
		}
		if child == nil {
			return nil, newError(ErrNotFound, op, path, "no node %q under %s", name, path[:i])
		}
		node = child
	}
	return node, nil
}

// Resolve returns the stable id of the node at path.
func (s *Store) Resolve(ctx context.Context, path Path) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.resolve(ctx, s.db.Conn(), "resolve", path)
	if err != nil {
		return "", err
	}
	return node.ID, nil
}

// Kind returns whether path names a group or a chat.
func (s *Store) Kind(ctx context.Context, path Path) (models.NodeKind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, err := s.resolve(ctx, s.db.Conn(), "kind", path)
	if err != nil {
		return "", err
	}
	return models.NodeKind(node.Kind), nil
}

// persistActive records path as the active chat inside q; a nil path clears it.
func persistActive(ctx context.Context, q db.Querier, path Path) error {
	if path == nil {
		return db.DeleteMeta(ctx, q, db.MetaActivePath)
	}
	raw, err := json.Marshal(path)
	if err != nil {
		return err
	}
	return db.SetMeta(ctx, q, db.MetaActivePath, string(raw))
}

func (s *Store) notifyTree(path Path, operation string) {
	if s.opts.Notifier != nil {
		s.opts.Notifier.NotifyTreeChanged(path.String(), operation)
	}
}

func (s *Store) notifyChat(path Path, operation string) {
	if s.opts.Notifier != nil {
		s.opts.Notifier.NotifyChatUpdated(path.String(), operation)
	}
}

func (s *Store) notifyActive() {
	if s.opts.Notifier == nil {
		return
	}
	path := ""
	if s.active != nil {
		path = s.active.path.String()
	}
	s.opts.Notifier.NotifyActiveChanged(path)
}
