package chats

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaoyuanzhu-com/my-life-chat/models"
	"gopkg.in/yaml.v3"
)

// buildSampleTree creates a tree exercising nested groups, duplicate chat
// names, an empty group, settings and media.
func buildSampleTree(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.CreateChat(ctx, nil, "Inbox")
	require.NoError(t, err)
	_, err = s.CreateGroup(ctx, nil, "Work")
	require.NoError(t, err)
	_, err = s.CreateGroup(ctx, Path{"Work"}, "Q1")
	require.NoError(t, err)
	plan, err := s.CreateChat(ctx, Path{"Work", "Q1"}, "Plan")
	require.NoError(t, err)
	_, err = s.CreateChat(ctx, Path{"Work"}, "Inbox")
	require.NoError(t, err)
	_, err = s.CreateGroup(ctx, nil, "Empty")
	require.NoError(t, err)
	_, err = s.CreateGroup(ctx, Path{"Empty"}, "Nested")
	require.NoError(t, err)

	require.NoError(t, s.Append(ctx, plan, models.NewMessage(models.RoleUser, "draft the plan", models.WithMedia("img/plan.png"))))
	require.NoError(t, s.Append(ctx, plan, models.NewMessage(models.RoleAssistant, "1. ship")))

	settings := models.DefaultChatSettings()
	settings.RepliesAllowed = false
	settings.LLM.ModelID = "llama3"
	require.NoError(t, s.SetSettings(ctx, plan, settings))
	require.NoError(t, s.Select(ctx, plan))
}

func TestExportShape(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})
	buildSampleTree(t, s)

	doc, err := s.Export(ctx)
	require.NoError(t, err)

	keys := []string{}
	for _, e := range doc.Chats {
		keys = append(keys, e.Key)
	}
	assert.Equal(t, []string{"Inbox", "Plan", "Inbox (2)"}, keys)

	inbox2, ok := doc.Chats.Get("Inbox (2)")
	require.True(t, ok)
	assert.Equal(t, "Inbox", inbox2.Name)
	assert.Equal(t, "/Work", inbox2.Group)

	inbox, ok := doc.Chats.Get("Inbox")
	require.True(t, ok)
	assert.Equal(t, "/", inbox.Group)
	assert.Empty(t, inbox.Name)
	assert.Nil(t, inbox.Settings)

	plan, ok := doc.Chats.Get("Plan")
	require.True(t, ok)
	assert.Equal(t, "/Work/Q1", plan.Group)
	require.NotNil(t, plan.Settings)
	require.NotNil(t, plan.Settings.RepliesAllowed)
	assert.False(t, *plan.Settings.RepliesAllowed)
	assert.Nil(t, plan.Settings.MarkdownEnabled)
	assert.Len(t, plan.Messages, 3)

	assert.Equal(t, []GroupEntry{{Path: "/Empty/Nested", Before: 3}}, doc.Groups)
	assert.Equal(t, Path{"Work", "Q1", "Plan"}, doc.ActivePath)

	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"image":"img/plan.png"`)
	assert.Contains(t, string(raw), `"active_path":["Work","Q1","Plan"]`)
}

func TestImportExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t, Options{})
	buildSampleTree(t, src)

	original, err := src.Export(ctx)
	require.NoError(t, err)
	originalJSON, err := json.Marshal(original)
	require.NoError(t, err)

	// Import through JSON into a store that already has unrelated content
	var decoded Document
	require.NoError(t, json.Unmarshal(originalJSON, &decoded))
	dst := newTestStore(t, Options{})
	_, err = dst.CreateChat(ctx, nil, "Stale")
	require.NoError(t, err)
	require.NoError(t, dst.Import(ctx, &decoded))

	_, err = dst.Resolve(ctx, Path{"Stale"})
	assert.ErrorIs(t, err, ErrNotFound)

	again, err := dst.Export(ctx)
	require.NoError(t, err)
	againJSON, err := json.Marshal(again)
	require.NoError(t, err)
	assert.JSONEq(t, string(originalJSON), string(againJSON))

	active, ok := dst.Active()
	require.True(t, ok)
	assert.Equal(t, Path{"Work", "Q1", "Plan"}, active)
	settings, err := dst.Settings(ctx, active)
	require.NoError(t, err)
	assert.False(t, settings.RepliesAllowed)
	assert.Equal(t, "llama3", settings.LLM.ModelID)

	srcTree, err := src.Tree(ctx)
	require.NoError(t, err)
	dstTree, err := dst.Tree(ctx)
	require.NoError(t, err)
	assert.Equal(t, srcTree, dstTree)
}

func TestDocumentYAMLKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})
	buildSampleTree(t, s)
	doc, err := s.Export(ctx)
	require.NoError(t, err)

	raw, err := yaml.Marshal(doc)
	require.NoError(t, err)

	var decoded Document
	require.NoError(t, yaml.Unmarshal(raw, &decoded))
	require.Len(t, decoded.Chats, 3)
	assert.Equal(t, "Inbox", decoded.Chats[0].Key)
	assert.Equal(t, "Plan", decoded.Chats[1].Key)
	assert.Equal(t, "Inbox (2)", decoded.Chats[2].Key)
	assert.Equal(t, doc.ActivePath, decoded.ActivePath)
	assert.Equal(t, doc.Chats[1].Chat.Messages[1].Media, decoded.Chats[1].Chat.Messages[1].Media)
}

func TestImportLegacyDocument(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	legacy := `{
		"chats": {
			"Zed": {"messages": [{"role": "tool", "content": "Welcome to your new chat!"}], "group": "/"},
			"Plan": {"messages": [{"role": "user", "content": "hi"}], "group": "/Work/Q1"}
		}
	}`
	var doc Document
	require.NoError(t, json.Unmarshal([]byte(legacy), &doc))
	require.NoError(t, s.Import(ctx, &doc))

	// Document order is sibling order
	infos, err := s.ListChildren(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Zed", "Work", DefaultChatName}, names(infos))

	messages, err := s.Messages(ctx, Path{"Work", "Q1", "Plan"})
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, contents(messages))

	// No active path in the document: Default is created and selected
	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, Path{DefaultChatName}, active)
	last, err := s.LastMessage(ctx, active)
	require.NoError(t, err)
	assert.Equal(t, DefaultWelcomeMessage, last.Content)
}

func TestImportUnresolvableActivePathFallsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})

	doc := &Document{
		Chats: ChatEntries{
			{Key: DefaultChatName, Chat: ChatDocument{Group: "/", Messages: []models.Message{models.NewMessage(models.RoleUser, "existing")}}},
		},
		ActivePath: Path{"Gone"},
	}
	require.NoError(t, s.Import(ctx, doc))

	active, ok := s.Active()
	require.True(t, ok)
	assert.Equal(t, Path{DefaultChatName}, active)
	messages, err := s.Messages(ctx, active)
	require.NoError(t, err)
	assert.Equal(t, []string{"existing"}, contents(messages))
}

func TestImportFailureLeavesTreeUntouched(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})
	buildSampleTree(t, s)
	before, err := s.Export(ctx)
	require.NoError(t, err)

	tests := []struct {
		name string
		doc  *Document
		kind error
	}{
		{
			name: "duplicate chat in one group",
			doc: &Document{Chats: ChatEntries{
				{Key: "A", Chat: ChatDocument{Group: "/"}},
				{Key: "A (2)", Chat: ChatDocument{Name: "A", Group: "/"}},
			}},
			kind: ErrConflict,
		},
		{
			name: "chat blocks group path",
			doc: &Document{Chats: ChatEntries{
				{Key: "Work", Chat: ChatDocument{Group: "/"}},
				{Key: "Plan", Chat: ChatDocument{Group: "/Work"}},
			}},
			kind: ErrConflict,
		},
		{
			name: "unknown role",
			doc: &Document{Chats: ChatEntries{
				{Key: "A", Chat: ChatDocument{Group: "/", Messages: []models.Message{{Role: "robot"}}}},
			}},
			kind: ErrInvalidOperation,
		},
		{
			name: "slash in chat name",
			doc: &Document{Chats: ChatEntries{
				{Key: "x", Chat: ChatDocument{Name: "a/b", Group: "/"}},
			}},
			kind: ErrInvalidOperation,
		},
		{
			name: "group placed past the last chat",
			doc: &Document{
				Chats:  ChatEntries{{Key: "A", Chat: ChatDocument{Group: "/"}}},
				Groups: []GroupEntry{{Path: "/Later", Before: 2}},
			},
			kind: ErrInvalidOperation,
		},
		{
			name: "missing document",
			doc:  nil,
			kind: ErrInvalidOperation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Import(ctx, tt.doc)
			assert.ErrorIs(t, err, tt.kind)

			after, err := s.Export(ctx)
			require.NoError(t, err)
			assert.Equal(t, before, after)

			active, ok := s.Active()
			require.True(t, ok)
			assert.Equal(t, Path{"Work", "Q1", "Plan"}, active)
		})
	}
}

func TestImportKeepsEmptyGroupSiblingOrder(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t, Options{})
	_, err := src.CreateGroup(ctx, nil, "Work")
	require.NoError(t, err)
	_, err = src.CreateGroup(ctx, Path{"Work"}, "Archive")
	require.NoError(t, err)
	_, err = src.CreateChat(ctx, Path{"Work"}, "Plan")
	require.NoError(t, err)
	_, err = src.CreateGroup(ctx, nil, "Trash")
	require.NoError(t, err)
	_, err = src.CreateChat(ctx, nil, "Inbox")
	require.NoError(t, err)

	doc, err := src.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, []GroupEntry{
		{Path: "/Work/Archive", Before: 0},
		{Path: "/Trash", Before: 1},
	}, doc.Groups)

	dst := newTestStore(t, Options{})
	require.NoError(t, dst.Import(ctx, doc))

	work, err := dst.ListChildren(ctx, Path{"Work"})
	require.NoError(t, err)
	assert.Equal(t, []NodeInfo{
		{Name: "Archive", Kind: models.KindGroup, Position: 0},
		{Name: "Plan", Kind: models.KindChat, Position: 1},
	}, work)

	root, err := dst.ListChildren(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Work", "Trash", "Inbox", "Default"}, names(root))

	srcTree, err := src.Tree(ctx)
	require.NoError(t, err)
	dstTree, err := dst.Tree(ctx)
	require.NoError(t, err)
	assert.Equal(t, srcTree.Children, dstTree.Children[:3])
}
