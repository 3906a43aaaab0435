package chats

import (
	"context"
	"encoding/json"

	"github.com/xiaoyuanzhu-com/my-life-chat/db"
	"github.com/xiaoyuanzhu-com/my-life-chat/models"
)

// decodeSettings resolves a stored sparse overlay against the defaults.
func decodeSettings(raw *string) (models.ChatSettings, error) {
	if raw == nil || *raw == "" {
		return models.DefaultChatSettings(), nil
	}
	var sparse models.SparseSettings
	if err := json.Unmarshal([]byte(*raw), &sparse); err != nil {
		return models.ChatSettings{}, err
	}
	return sparse.FromSparse(models.DefaultChatSettings()), nil
}

// encodeSparse serializes an overlay; an empty overlay is stored as NULL.
func encodeSparse(sparse models.SparseSettings) (*string, error) {
	if sparse.IsEmpty() {
		return nil, nil
	}
	raw, err := json.Marshal(sparse)
	if err != nil {
		return nil, err
	}
	s := string(raw)
	return &s, nil
}

// chatNode resolves path and rejects groups.
func (s *Store) chatNode(ctx context.Context, q db.Querier, op string, path Path) (*db.NodeRecord, error) {
	node, err := s.resolve(ctx, q, op, path)
	if err != nil {
		return nil, err
	}
	if node.Kind != string(models.KindChat) {
		return nil, newError(ErrInvalidOperation, op, path, "groups have no settings")
	}
	return node, nil
}

// Settings returns the resolved settings of the chat at path.
func (s *Store) Settings(ctx context.Context, path Path) (models.ChatSettings, error) {
	const op = "settings"
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active.matches(path) {
		return s.active.settings.Clone(), nil
	}
	node, err := s.chatNode(ctx, s.db.Conn(), op, path)
	if err != nil {
		return models.ChatSettings{}, err
	}
	settings, err := decodeSettings(node.Settings)
	if err != nil {
		return models.ChatSettings{}, wrapIO(op, path, err)
	}
	return settings, nil
}

// SetSettings stores settings, keeping only the fields that differ from the defaults.
func (s *Store) SetSettings(ctx context.Context, path Path, settings models.ChatSettings) error {
	const op = "set_settings"
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := encodeSparse(settings.ToSparse())
	if err != nil {
		return wrapIO(op, path, err)
	}

	q := s.db.Conn()
	var id string
	if s.active.matches(path) {
		id = s.active.nodeID
	} else {
		node, err := s.chatNode(ctx, q, op, path)
		if err != nil {
			return err
		}
		id = node.ID
	}
	if err := db.UpdateNodeSettings(ctx, q, id, raw); err != nil {
		return wrapIO(op, path, err)
	}

	if s.active.matches(path) {
		s.active.settings = settings.Clone()
	}
	s.notifyChat(path, op)
	return nil
}
