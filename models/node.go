package models

// NodeKind distinguishes containers from chats in the tree
type NodeKind string

const (
	KindGroup NodeKind = "group"
	KindChat  NodeKind = "chat"
)

func (k NodeKind) Valid() bool {
	return k == KindGroup || k == KindChat
}
