package chats

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/xiaoyuanzhu-com/my-life-chat/db"
	"github.com/xiaoyuanzhu-com/my-life-chat/models"
	"gopkg.in/yaml.v3"
)

// Document is the portable backup form of the whole tree.
type Document struct {
	Chats      ChatEntries `json:"chats" yaml:"chats"`
	ActivePath Path        `json:"active_path,omitempty" yaml:"active_path,omitempty"`
	// Groups lists childless groups; every other group is implied by a
	// chat's group path.
	Groups []GroupEntry `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// GroupEntry is an empty group and its place in the chat sequence: it is
// recreated just before the chat at index Before, or after the last chat
// when Before equals the chat count.
type GroupEntry struct {
	Path   string `json:"path" yaml:"path"`
	Before int    `json:"before" yaml:"before"`
}

// ChatDocument is one exported chat.
type ChatDocument struct {
	// Name is set when the entry key differs from the chat's name.
	Name     string                 `json:"name,omitempty" yaml:"name,omitempty"`
	Messages []models.Message       `json:"messages" yaml:"messages"`
	Group    string                 `json:"group" yaml:"group"`
	Settings *models.SparseSettings `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// ChatName is the name the chat is imported under.
func (c ChatDocument) ChatName(key string) string {
	if c.Name != "" {
		return c.Name
	}
	return key
}

// ChatEntry is a keyed chat in document order.
type ChatEntry struct {
	Key  string
	Chat ChatDocument
}

// ChatEntries is the "chats" object. It keeps the key order of the
// document, which is the sibling order chats are recreated in.
type ChatEntries []ChatEntry

// Get returns the chat stored under key.
func (c ChatEntries) Get(key string) (ChatDocument, bool) {
	for _, e := range c {
		if e.Key == key {
			return e.Chat, true
		}
	}
	return ChatDocument{}, false
}

func (c ChatEntries) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		// Encoder appends a newline after each value, which JSON ignores.
		enc := json.NewEncoder(&buf)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(e.Key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := enc.Encode(e.Chat); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (c *ChatEntries) UnmarshalJSON(data []byte) error {
	*c = nil
	if string(bytes.TrimSpace(data)) == "null" {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("chats: expected an object")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("chats: expected a string key")
		}
		var chat ChatDocument
		if err := dec.Decode(&chat); err != nil {
			return fmt.Errorf("chats[%q]: %w", key, err)
		}
		*c = append(*c, ChatEntry{Key: key, Chat: chat})
	}
	_, err = dec.Token()
	return err
}

func (c ChatEntries) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, e := range c {
		var value yaml.Node
		if err := value.Encode(e.Chat); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: e.Key},
			&value,
		)
	}
	return node, nil
}

func (c *ChatEntries) UnmarshalYAML(value *yaml.Node) error {
	*c = nil
	if value.Tag == "!!null" {
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("chats: expected a mapping at line %d", value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key := value.Content[i].Value
		var chat ChatDocument
		if err := value.Content[i+1].Decode(&chat); err != nil {
			return fmt.Errorf("chats[%q]: %w", key, err)
		}
		*c = append(*c, ChatEntry{Key: key, Chat: chat})
	}
	return nil
}

// Export walks the tree depth-first in position order and returns every
// chat with its messages, sparse settings and group path.
func (s *Store) Export(ctx context.Context) (*Document, error) {
	const op = "export"
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.db.Conn()
	records, err := db.ListAllNodes(ctx, q)
	if err != nil {
		return nil, wrapIO(op, nil, err)
	}
	children := childrenByParent(records)

	doc := &Document{Chats: ChatEntries{}}
	used := map[string]bool{}

	var walk func(id string, path Path) error
	walk = func(id string, path Path) error {
		for _, r := range children[id] {
			childPath := path.Child(r.Name)
			if r.Kind == string(models.KindGroup) {
				if len(children[r.ID]) == 0 {
					doc.Groups = append(doc.Groups, GroupEntry{Path: childPath.String(), Before: len(doc.Chats)})
				}
				if err := walk(r.ID, childPath); err != nil {
					return err
				}
				continue
			}

			chat, err := exportChat(ctx, q, r, path)
			if err != nil {
				return err
			}
			key := uniqueKey(used, r.Name)
			if key != r.Name {
				chat.Name = r.Name
			}
			doc.Chats = append(doc.Chats, ChatEntry{Key: key, Chat: chat})
		}
		return nil
	}
	if err := walk(s.rootID, Path{}); err != nil {
		return nil, wrapIO(op, nil, err)
	}

	if s.active != nil {
		doc.ActivePath = s.active.path.Clone()
	}
	logger.Info().Int("chats", len(doc.Chats)).Int("empty_groups", len(doc.Groups)).Msg("exported chat tree")
	return doc, nil
}

func exportChat(ctx context.Context, q db.Querier, r db.NodeRecord, group Path) (ChatDocument, error) {
	messages, err := loadMessages(ctx, q, r.ID)
	if err != nil {
		return ChatDocument{}, err
	}
	settings, err := decodeSettings(r.Settings)
	if err != nil {
		return ChatDocument{}, err
	}
	chat := ChatDocument{
		Messages: messages,
		Group:    group.String(),
	}
	if sparse := settings.ToSparse(); !sparse.IsEmpty() {
		chat.Settings = &sparse
	}
	return chat, nil
}

// uniqueKey returns name, or "name (n)" for the first free n >= 2.
func uniqueKey(used map[string]bool, name string) string {
	key := name
	for n := 2; used[key]; n++ {
		key = fmt.Sprintf("%s (%d)", name, n)
	}
	used[key] = true
	return key
}

// validateDocument checks names and roles before anything is touched.
func validateDocument(doc *Document) error {
	const op = "import"
	checkGroup := func(group string) error {
		for _, seg := range ParsePath(group) {
			if err := validateName(op, nil, seg); err != nil {
				return err
			}
		}
		return nil
	}
	for _, g := range doc.Groups {
		if err := checkGroup(g.Path); err != nil {
			return err
		}
		if g.Before < 0 || g.Before > len(doc.Chats) {
			return newError(ErrInvalidOperation, op, ParsePath(g.Path), "group position %d outside 0..%d", g.Before, len(doc.Chats))
		}
	}
	for _, e := range doc.Chats {
		if err := checkGroup(e.Chat.Group); err != nil {
			return err
		}
		parent := ParsePath(e.Chat.Group)
		name := e.Chat.ChatName(e.Key)
		if err := validateName(op, parent, name); err != nil {
			return err
		}
		for _, m := range e.Chat.Messages {
			if err := validateRole(op, parent.Child(name), m.Role); err != nil {
				return err
			}
		}
	}
	return nil
}

// ensureGroupPath creates any missing group along path inside q.
func (s *Store) ensureGroupPath(ctx context.Context, q db.Querier, path Path) error {
	for i := range path {
		prefix := path[:i+1]
		node, err := s.resolve(ctx, q, "import", prefix)
		if err == nil {
			if node.Kind != string(models.KindGroup) {
				return newError(ErrConflict, "import", prefix, "a chat occupies this group path")
			}
			continue
		}
		if KindOf(err) != ErrNotFound {
			return err
		}
		if _, err := s.insertNode(ctx, q, "import", prefix.Parent(), prefix.Name(), models.KindGroup, nil, false); err != nil {
			return err
		}
	}
	return nil
}

// Import replaces the whole tree with doc in one transaction. When the
// document's active path no longer resolves, a chat named Default is
// ensured at the root and selected.
func (s *Store) Import(ctx context.Context, doc *Document) error {
	const op = "import"
	if doc == nil {
		return newError(ErrInvalidOperation, op, nil, "no document")
	}
	if err := validateDocument(doc); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Chats and empty groups are replayed in one pass in tree order, so
	// every node is appended to its parent in its original sibling slot.
	groups := slices.Clone(doc.Groups)
	slices.SortStableFunc(groups, func(a, b GroupEntry) int { return cmp.Compare(a.Before, b.Before) })

	err := s.db.Transaction(ctx, func(q db.Querier) error {
		if err := db.DeleteAll(ctx, q); err != nil {
			return err
		}
		// The root keeps its id so the store's handle stays valid.
		if err := db.InsertNode(ctx, q, db.NodeRecord{ID: s.rootID, Kind: string(models.KindGroup)}); err != nil {
			return err
		}

		next := 0
		createGroups := func(before int) error {
			for ; next < len(groups) && groups[next].Before <= before; next++ {
				if err := s.ensureGroupPath(ctx, q, ParsePath(groups[next].Path)); err != nil {
					return err
				}
			}
			return nil
		}

		for i, e := range doc.Chats {
			if err := createGroups(i); err != nil {
				return err
			}
			group := ParsePath(e.Chat.Group)
			if err := s.ensureGroupPath(ctx, q, group); err != nil {
				return err
			}
			var raw *string
			if e.Chat.Settings != nil {
				encoded, err := encodeSparse(e.Chat.Settings.FromSparse(models.DefaultChatSettings()).ToSparse())
				if err != nil {
					return err
				}
				raw = encoded
			}
			id, err := s.insertNode(ctx, q, op, group, e.Chat.ChatName(e.Key), models.KindChat, raw, false)
			if err != nil {
				return err
			}
			for pos, m := range e.Chat.Messages {
				if _, err := db.InsertMessage(ctx, q, toRecord(id, pos, m)); err != nil {
					return err
				}
			}
		}

		if err := createGroups(len(doc.Chats)); err != nil {
			return err
		}

		return s.importActivePath(ctx, q, doc.ActivePath)
	})
	if err != nil {
		return wrapIO(op, nil, err)
	}

	// The persisted active path was rewritten inside the transaction.
	if err := s.restoreActive(ctx); err != nil {
		return err
	}
	logger.Info().Int("chats", len(doc.Chats)).Msg("imported chat tree")
	s.notifyTree(nil, op)
	s.notifyActive()
	return nil
}

// importActivePath persists the document's active path when it names a
// chat, otherwise falls back to the Default chat at the root.
func (s *Store) importActivePath(ctx context.Context, q db.Querier, active Path) error {
	if len(active) > 0 {
		node, err := s.resolve(ctx, q, "import", active)
		if err == nil && node.Kind == string(models.KindChat) {
			return persistActive(ctx, q, active)
		}
		if err != nil && KindOf(err) != ErrNotFound {
			return err
		}
	}

	fallback := Path{DefaultChatName}
	root, err := s.resolve(ctx, q, "import", nil)
	if err != nil {
		return err
	}
	existing, err := db.GetChildByName(ctx, q, root.ID, DefaultChatName)
	if err != nil {
		return err
	}
	switch {
	case existing == nil:
		if _, err := s.insertNode(ctx, q, "import", nil, DefaultChatName, models.KindChat, nil, true); err != nil {
			return err
		}
	case existing.Kind != string(models.KindChat):
		logger.Warn().Msg("a group named Default blocks the fallback chat, leaving nothing selected")
		return persistActive(ctx, q, nil)
	}
	return persistActive(ctx, q, fallback)
}
