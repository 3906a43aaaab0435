package chats

import (
	"slices"
	"strings"
)

// Path addresses a node by the names from the root down to it. The empty
// path is the root.
type Path []string

// ParsePath splits a "/"-joined path; empty segments are dropped so "/",
// "" and "//" all denote the root.
func ParsePath(s string) Path {
	var p Path
	for _, seg := range strings.Split(s, "/") {
		if seg != "" {
			p = append(p, seg)
		}
	}
	return p
}

// String renders the path as "/a/b"; the root is "/".
func (p Path) String() string {
	return "/" + strings.Join(p, "/")
}

func (p Path) IsRoot() bool {
	return len(p) == 0
}

// Name is the last segment, or "" for the root.
func (p Path) Name() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Parent returns the path of the containing group. The root is its own parent.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return Path{}
	}
	return p[:len(p)-1:len(p)-1]
}

// Child returns p extended by name without aliasing p.
func (p Path) Child(name string) Path {
	ret := make(Path, 0, len(p)+1)
	ret = append(ret, p...)
	return append(ret, name)
}

func (p Path) Equal(other Path) bool {
	return slices.Equal(p, other)
}

// HasPrefix reports whether prefix is p itself or one of its ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	return len(prefix) <= len(p) && slices.Equal(p[:len(prefix)], prefix)
}

// Rebase replaces the leading from segments of p with to.
func (p Path) Rebase(from, to Path) Path {
	ret := make(Path, 0, len(to)+len(p)-len(from))
	ret = append(ret, to...)
	return append(ret, p[len(from):]...)
}

func (p Path) Clone() Path {
	if p == nil {
		return nil
	}
	return slices.Clone(p)
}

// validateName rejects names that could not be addressed by a path.
func validateName(op string, parent Path, name string) error {
	if name == "" {
		return newError(ErrInvalidOperation, op, parent, "name is empty")
	}
	if strings.Contains(name, "/") {
		return newError(ErrInvalidOperation, op, parent, "name %q contains '/'", name)
	}
	return nil
}
