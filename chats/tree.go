package chats

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/xiaoyuanzhu-com/my-life-chat/db"
	"github.com/xiaoyuanzhu-com/my-life-chat/models"
)

// NodeInfo is one entry of a group listing.
type NodeInfo struct {
	Name     string          `json:"name"`
	Kind     models.NodeKind `json:"kind"`
	Position int             `json:"position"`
}

// TreeNode is the nested view of the whole tree.
type TreeNode struct {
	Name     string          `json:"name"`
	Kind     models.NodeKind `json:"kind"`
	Path     Path            `json:"path"`
	Children []*TreeNode     `json:"children,omitempty"`
}

// MoveOption configures Move.
type MoveOption func(*moveOptions)

type moveOptions struct {
	position *int
}

// AtPosition inserts the moved node at index i among its new siblings
// instead of appending it.
func AtPosition(i int) MoveOption {
	return func(o *moveOptions) {
		o.position = &i
	}
}

// CreateChat adds a chat under parent, seeded with the welcome message.
func (s *Store) CreateChat(ctx context.Context, parent Path, name string) (Path, error) {
	return s.create(ctx, "create_chat", parent, name, models.KindChat)
}

// CreateGroup adds an empty group under parent.
func (s *Store) CreateGroup(ctx context.Context, parent Path, name string) (Path, error) {
	return s.create(ctx, "create_group", parent, name, models.KindGroup)
}

func (s *Store) create(ctx context.Context, op string, parent Path, name string, kind models.NodeKind) (Path, error) {
	if err := validateName(op, parent, name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := parent.Child(name)
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		_, err := s.insertNode(ctx, q, op, parent, name, kind, nil, kind == models.KindChat)
		return err
	})
	if err != nil {
		return nil, wrapIO(op, path, err)
	}

	logger.Debug().Str("op", op).Str("path", path.String()).Msg("node created")
	s.notifyTree(path, op)
	return path, nil
}

// insertNode appends a node under parent, optionally seeding a chat with
// the welcome message.
func (s *Store) insertNode(ctx context.Context, q db.Querier, op string, parent Path, name string, kind models.NodeKind, settings *string, seed bool) (string, error) {
	path := parent.Child(name)
	parentNode, err := s.resolve(ctx, q, op, parent)
	if err != nil {
		return "", err
	}
	if parentNode.Kind != string(models.KindGroup) {
		return "", newError(ErrInvalidOperation, op, parent, "parent is not a group")
	}

	existing, err := db.GetChildByName(ctx, q, parentNode.ID, name)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return "", newError(ErrConflict, op, path, "%q already exists", name)
	}

	count, err := db.CountChildren(ctx, q, parentNode.ID)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	err = db.InsertNode(ctx, q, db.NodeRecord{
		ID:       id,
		ParentID: &parentNode.ID,
		Name:     name,
		Kind:     string(kind),
		Position: count,
		Settings: settings,
	})
	if err != nil {
		return "", err
	}

	if seed {
		_, err = db.InsertMessage(ctx, q, db.MessageRecord{
			NodeID:   id,
			Role:     string(models.RoleTool),
			Content:  s.opts.WelcomeMessage,
			Position: 0,
		})
		if err != nil {
			return "", err
		}
	}
	return id, nil
}

// Rename changes the last segment of path. The active path follows the
// renamed node.
func (s *Store) Rename(ctx context.Context, path Path, newName string) (Path, error) {
	const op = "rename"
	if path.IsRoot() {
		return nil, newError(ErrInvalidOperation, op, path, "the root cannot be renamed")
	}
	if err := validateName(op, path, newName); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newPath := path.Parent().Child(newName)
	if newName == path.Name() {
		if _, err := s.resolve(ctx, s.db.Conn(), op, path); err != nil {
			return nil, err
		}
		return newPath, nil
	}

	err := s.db.Transaction(ctx, func(q db.Querier) error {
		node, err := s.resolve(ctx, q, op, path)
		if err != nil {
			return err
		}
		existing, err := db.GetChildByName(ctx, q, *node.ParentID, newName)
		if err != nil {
			return err
		}
		if existing != nil {
			return newError(ErrConflict, op, path, "%q already exists", newName)
		}
		if err := db.UpdateNodeName(ctx, q, node.ID, newName); err != nil {
			return err
		}
		return s.rewriteActivePath(ctx, q, path, newPath)
	})
	if err != nil {
		return nil, wrapIO(op, path, err)
	}

	s.retargetActive(path, newPath)
	logger.Debug().Str("from", path.String()).Str("to", newPath.String()).Msg("node renamed")
	s.notifyTree(newPath, op)
	return newPath, nil
}

// Move re-parents source under target. Without AtPosition the node is
// appended last; moving within the same group reorders it.
func (s *Store) Move(ctx context.Context, source, target Path, options ...MoveOption) (Path, error) {
	const op = "move"
	var o moveOptions
	for _, option := range options {
		option(&o)
	}

	if source.IsRoot() {
		return nil, newError(ErrInvalidOperation, op, source, "the root cannot be moved")
	}
	if target.HasPrefix(source) {
		return nil, newError(ErrInvalidOperation, op, source, "cannot move into itself or a descendant (%s)", target)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	newPath := target.Child(source.Name())
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		node, err := s.resolve(ctx, q, op, source)
		if err != nil {
			return err
		}
		targetNode, err := s.resolve(ctx, q, op, target)
		if err != nil {
			return err
		}
		if targetNode.Kind != string(models.KindGroup) {
			return newError(ErrInvalidOperation, op, source, "target %s is not a group", target)
		}

		oldParentID := *node.ParentID
		sameParent := oldParentID == targetNode.ID
		if !sameParent {
			existing, err := db.GetChildByName(ctx, q, targetNode.ID, node.Name)
			if err != nil {
				return err
			}
			if existing != nil {
				return newError(ErrConflict, op, source, "%q already exists in %s", node.Name, target)
			}
		}

		siblings, err := db.CountChildren(ctx, q, targetNode.ID)
		if err != nil {
			return err
		}
		if sameParent {
			siblings--
		}
		position := siblings
		if o.position != nil {
			if *o.position < 0 || *o.position > siblings {
				return newError(ErrInvalidOperation, op, source, "position %d out of range 0..%d", *o.position, siblings)
			}
			position = *o.position
		}

		// Park the node outside the dense range, close the gap it leaves,
		// then open one at the destination.
		if err := db.UpdateNodeParent(ctx, q, node.ID, targetNode.ID, -1); err != nil {
			return err
		}
		if err := db.ShiftPositions(ctx, q, oldParentID, node.Position+1, -1); err != nil {
			return err
		}
		if err := db.ShiftPositions(ctx, q, targetNode.ID, position, 1); err != nil {
			return err
		}
		if err := db.UpdateNodeParent(ctx, q, node.ID, targetNode.ID, position); err != nil {
			return err
		}
		return s.rewriteActivePath(ctx, q, source, newPath)
	})
	if err != nil {
		return nil, wrapIO(op, source, err)
	}

	s.retargetActive(source, newPath)
	logger.Debug().Str("from", source.String()).Str("to", newPath.String()).Msg("node moved")
	s.notifyTree(newPath, op)
	return newPath, nil
}

// Delete removes path with every descendant and all their messages.
func (s *Store) Delete(ctx context.Context, path Path) error {
	const op = "delete"
	if path.IsRoot() {
		return newError(ErrInvalidOperation, op, path, "the root cannot be deleted")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	err := s.db.Transaction(ctx, func(q db.Querier) error {
		node, err := s.resolve(ctx, q, op, path)
		if err != nil {
			return err
		}
		ids, err := db.SubtreeIDs(ctx, q, node.ID)
		if err != nil {
			return err
		}
		if err := db.DeleteNodes(ctx, q, ids); err != nil {
			return err
		}
		if err := db.ShiftPositions(ctx, q, *node.ParentID, node.Position+1, -1); err != nil {
			return err
		}
		removed = len(ids)
		return s.rewriteActivePath(ctx, q, path, nil)
	})
	if err != nil {
		return wrapIO(op, path, err)
	}

	s.retargetActive(path, nil)
	logger.Debug().Str("path", path.String()).Int("nodes", removed).Msg("subtree deleted")
	s.notifyTree(path, op)
	return nil
}

// ListChildren lists a group's direct children.
func (s *Store) ListChildren(ctx context.Context, parent Path) ([]NodeInfo, error) {
	const op = "list_children"
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.db.Conn()
	node, err := s.resolve(ctx, q, op, parent)
	if err != nil {
		return nil, err
	}
	if node.Kind != string(models.KindGroup) {
		return nil, newError(ErrInvalidOperation, op, parent, "not a group")
	}

	records, err := db.ListChildren(ctx, q, node.ID)
	if err != nil {
		return nil, wrapIO(op, parent, err)
	}

	ret := make([]NodeInfo, 0, len(records))
	for _, r := range records {
		ret = append(ret, NodeInfo{Name: r.Name, Kind: models.NodeKind(r.Kind), Position: r.Position})
	}
	if s.opts.SortChildren {
		sortInfos(ret)
	}
	return ret, nil
}

// sortInfos orders groups before chats, then names case-insensitively.
func sortInfos(infos []NodeInfo) {
	sort.SliceStable(infos, func(i, j int) bool {
		a, b := infos[i], infos[j]
		if a.Kind != b.Kind {
			return a.Kind == models.KindGroup
		}
		la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if la != lb {
			return la < lb
		}
		return a.Name < b.Name
	})
}

// Tree returns the whole hierarchy starting at the root.
func (s *Store) Tree(ctx context.Context) (*TreeNode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := db.ListAllNodes(ctx, s.db.Conn())
	if err != nil {
		return nil, wrapIO("tree", nil, err)
	}
	children := childrenByParent(records)

	var build func(r db.NodeRecord, path Path) *TreeNode
	build = func(r db.NodeRecord, path Path) *TreeNode {
		n := &TreeNode{Name: r.Name, Kind: models.NodeKind(r.Kind), Path: path}
		kids := children[r.ID]
		if s.opts.SortChildren {
			kids = sortedRecords(kids)
		}
		for _, c := range kids {
			n.Children = append(n.Children, build(c, path.Child(c.Name)))
		}
		return n
	}

	for _, r := range records {
		if r.ID == s.rootID {
			return build(r, Path{}), nil
		}
	}
	return nil, newError(ErrIO, "tree", nil, "root group is missing")
}

// childrenByParent indexes records by parent id, each list in position order.
func childrenByParent(records []db.NodeRecord) map[string][]db.NodeRecord {
	ret := make(map[string][]db.NodeRecord)
	for _, r := range records {
		if r.ParentID != nil {
			ret[*r.ParentID] = append(ret[*r.ParentID], r)
		}
	}
	for _, kids := range ret {
		sort.SliceStable(kids, func(i, j int) bool { return kids[i].Position < kids[j].Position })
	}
	return ret
}

func sortedRecords(records []db.NodeRecord) []db.NodeRecord {
	infos := make([]NodeInfo, len(records))
	byName := make(map[string]db.NodeRecord, len(records))
	for i, r := range records {
		infos[i] = NodeInfo{Name: r.Name, Kind: models.NodeKind(r.Kind), Position: r.Position}
		byName[r.Name] = r
	}
	sortInfos(infos)
	ret := make([]db.NodeRecord, len(infos))
	for i, info := range infos {
		ret[i] = byName[info.Name]
	}
	return ret
}
