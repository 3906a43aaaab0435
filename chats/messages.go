package chats

import (
	"context"

	"github.com/xiaoyuanzhu-com/my-life-chat/db"
	"github.com/xiaoyuanzhu-com/my-life-chat/models"
)

func toMessage(r db.MessageRecord) models.Message {
	m := models.Message{
		ID:       r.ID,
		Role:     models.Role(r.Role),
		Content:  r.Content,
		Position: r.Position,
	}
	if r.Media != nil {
		m.Media = *r.Media
	}
	return m
}

func toRecord(nodeID string, position int, m models.Message) db.MessageRecord {
	r := db.MessageRecord{
		NodeID:   nodeID,
		Role:     string(m.Role),
		Content:  m.Content,
		Position: position,
	}
	if m.Media != "" {
		media := m.Media
		r.Media = &media
	}
	return r
}

func loadMessages(ctx context.Context, q db.Querier, nodeID string) ([]models.Message, error) {
	records, err := db.ListMessages(ctx, q, nodeID)
	if err != nil {
		return nil, err
	}
	ret := make([]models.Message, 0, len(records))
	for _, r := range records {
		ret = append(ret, toMessage(r))
	}
	return ret, nil
}

func renumber(messages []models.Message) []models.Message {
	for i := range messages {
		messages[i].Position = i
	}
	return messages
}

func validateRole(op string, path Path, role models.Role) error {
	if !role.Valid() {
		return newError(ErrInvalidOperation, op, path, "unknown role %q", role)
	}
	return nil
}

// chatID returns the node id of the chat at path, from the cache when path
// is the active chat.
func (s *Store) chatID(ctx context.Context, q db.Querier, op string, path Path) (string, error) {
	if s.active.matches(path) {
		return s.active.nodeID, nil
	}
	node, err := s.resolve(ctx, q, op, path)
	if err != nil {
		return "", err
	}
	if node.Kind != string(models.KindChat) {
		return "", newError(ErrInvalidOperation, op, path, "not a chat")
	}
	return node.ID, nil
}

func (s *Store) messageCount(ctx context.Context, q db.Querier, path Path, nodeID string) (int, error) {
	if s.active.matches(path) {
		return len(s.active.messages), nil
	}
	return db.CountMessages(ctx, q, nodeID)
}

// Messages returns the full ordered log of the chat at path.
func (s *Store) Messages(ctx context.Context, path Path) ([]models.Message, error) {
	const op = "messages"
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active.matches(path) {
		return s.active.copyMessages(), nil
	}
	q := s.db.Conn()
	id, err := s.chatID(ctx, q, op, path)
	if err != nil {
		return nil, err
	}
	messages, err := loadMessages(ctx, q, id)
	if err != nil {
		return nil, wrapIO(op, path, err)
	}
	return messages, nil
}

// LastMessage returns the final message of the chat at path.
func (s *Store) LastMessage(ctx context.Context, path Path) (models.Message, error) {
	const op = "last_message"
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok, err := s.lastMessage(ctx, op, path)
	if err != nil {
		return models.Message{}, err
	}
	if !ok {
		return models.Message{}, newError(ErrEmpty, op, path, "chat has no messages")
	}
	return last, nil
}

func (s *Store) lastMessage(ctx context.Context, op string, path Path) (models.Message, bool, error) {
	if s.active.matches(path) {
		m, ok := s.active.lastMessage()
		return m, ok, nil
	}
	q := s.db.Conn()
	id, err := s.chatID(ctx, q, op, path)
	if err != nil {
		return models.Message{}, false, err
	}
	r, err := db.LastMessage(ctx, q, id)
	if err != nil {
		return models.Message{}, false, wrapIO(op, path, err)
	}
	if r == nil {
		return models.Message{}, false, nil
	}
	return toMessage(*r), true, nil
}

// Append adds msg at the end of the chat's log.
func (s *Store) Append(ctx context.Context, path Path, msg models.Message) error {
	const op = "append"
	if err := validateRole(op, path, msg.Role); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.append(ctx, op, path, msg); err != nil {
		return err
	}
	s.notifyChat(path, op)
	return nil
}

func (s *Store) append(ctx context.Context, op string, path Path, msg models.Message) error {
	q := s.db.Conn()
	id, err := s.chatID(ctx, q, op, path)
	if err != nil {
		return err
	}
	position, err := s.messageCount(ctx, q, path, id)
	if err != nil {
		return wrapIO(op, path, err)
	}
	rowID, err := db.InsertMessage(ctx, q, toRecord(id, position, msg))
	if err != nil {
		return wrapIO(op, path, err)
	}

	if s.active.matches(path) {
		msg.ID = rowID
		msg.Position = position
		s.active.messages = append(s.active.messages, msg)
	}
	return nil
}

// AppendToken commits one piece of streamed output. The first token of a
// stream starts a new message of role; later tokens are concatenated onto
// the last message, which must have the same role.
func (s *Store) AppendToken(ctx context.Context, path Path, role models.Role, token string, isFirst bool) error {
	const op = "append_token"
	if err := validateRole(op, path, role); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if isFirst {
		if err := s.append(ctx, op, path, models.NewMessage(role, token)); err != nil {
			return err
		}
		s.notifyChat(path, op)
		return nil
	}

	last, ok, err := s.lastMessage(ctx, op, path)
	if err != nil {
		return err
	}
	if !ok {
		return newError(ErrEmpty, op, path, "no message to continue")
	}
	if last.Role != role {
		return newError(ErrInvalidOperation, op, path, "last message is %s, not %s", last.Role, role)
	}

	if err := db.AppendContent(ctx, s.db.Conn(), last.ID, token); err != nil {
		return wrapIO(op, path, err)
	}
	if s.active.matches(path) {
		s.active.messages[len(s.active.messages)-1].Content += token
	}
	s.notifyChat(path, op)
	return nil
}

// ReplaceAll atomically swaps the chat's log for messages.
func (s *Store) ReplaceAll(ctx context.Context, path Path, messages []models.Message) error {
	const op = "replace_all"
	for _, m := range messages {
		if err := validateRole(op, path, m.Role); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	installed := make([]models.Message, len(messages))
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		id, err := s.chatID(ctx, q, op, path)
		if err != nil {
			return err
		}
		if err := db.DeleteMessagesByNode(ctx, q, id); err != nil {
			return err
		}
		for i, m := range messages {
			rowID, err := db.InsertMessage(ctx, q, toRecord(id, i, m))
			if err != nil {
				return err
			}
			m.ID = rowID
			m.Position = i
			installed[i] = m
		}
		return nil
	})
	if err != nil {
		return wrapIO(op, path, err)
	}

	if s.active.matches(path) {
		s.active.messages = installed
	}
	s.notifyChat(path, op)
	return nil
}

// ClearAll empties the chat's log.
func (s *Store) ClearAll(ctx context.Context, path Path) error {
	const op = "clear_all"
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.db.Conn()
	id, err := s.chatID(ctx, q, op, path)
	if err != nil {
		return err
	}
	if err := db.DeleteMessagesByNode(ctx, q, id); err != nil {
		return wrapIO(op, path, err)
	}
	if s.active.matches(path) {
		s.active.messages = nil
	}
	s.notifyChat(path, op)
	return nil
}

// ClearLastN drops the last n messages; n larger than the log empties it.
func (s *Store) ClearLastN(ctx context.Context, path Path, n int) error {
	const op = "clear_last_n"
	if n < 0 {
		return newError(ErrInvalidOperation, op, path, "negative count %d", n)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.db.Conn()
	id, err := s.chatID(ctx, q, op, path)
	if err != nil {
		return err
	}
	count, err := s.messageCount(ctx, q, path, id)
	if err != nil {
		return wrapIO(op, path, err)
	}
	n = min(n, count)
	if n == 0 {
		return nil
	}
	if err := db.DeleteMessagesFrom(ctx, q, id, count-n); err != nil {
		return wrapIO(op, path, err)
	}
	if s.active.matches(path) {
		s.active.messages = s.active.messages[:count-n]
	}
	s.notifyChat(path, op)
	return nil
}

// ClearRange removes messages start..end inclusive and renumbers the rest.
// Out-of-bounds ranges are rejected, not clamped.
func (s *Store) ClearRange(ctx context.Context, path Path, start, end int) error {
	const op = "clear_range"
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Transaction(ctx, func(q db.Querier) error {
		id, err := s.chatID(ctx, q, op, path)
		if err != nil {
			return err
		}
		count, err := s.messageCount(ctx, q, path, id)
		if err != nil {
			return err
		}
		if start < 0 || start > end || end >= count {
			return newError(ErrInvalidOperation, op, path, "range %d..%d invalid for %d messages", start, end, count)
		}
		return db.DeleteMessagesInRange(ctx, q, id, start, end)
	})
	if err != nil {
		return wrapIO(op, path, err)
	}

	if s.active.matches(path) {
		kept := append(s.active.messages[:start:start], s.active.messages[end+1:]...)
		s.active.messages = renumber(kept)
	}
	s.notifyChat(path, op)
	return nil
}

// ClearByRole removes every message of role and returns how many were removed.
func (s *Store) ClearByRole(ctx context.Context, path Path, role models.Role) (int, error) {
	const op = "clear_by_role"
	if err := validateRole(op, path, role); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		id, err := s.chatID(ctx, q, op, path)
		if err != nil {
			return err
		}
		removed, err = db.DeleteMessagesByRole(ctx, q, id, string(role))
		return err
	})
	if err != nil {
		return 0, wrapIO(op, path, err)
	}

	if s.active.matches(path) {
		kept := make([]models.Message, 0, len(s.active.messages))
		for _, m := range s.active.messages {
			if m.Role != role {
				kept = append(kept, m)
			}
		}
		s.active.messages = renumber(kept)
	}
	if removed > 0 {
		s.notifyChat(path, op)
	}
	return int(removed), nil
}
