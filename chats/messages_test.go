package chats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xiaoyuanzhu-com/my-life-chat/models"
)

func contents(messages []models.Message) []string {
	ret := make([]string, 0, len(messages))
	for _, m := range messages {
		ret = append(ret, m.Content)
	}
	return ret
}

// chatWithLog creates a chat whose log is exactly the given contents,
// alternating user and assistant roles.
func chatWithLog(t *testing.T, s *Store, name string, texts ...string) Path {
	t.Helper()
	ctx := context.Background()
	p, err := s.CreateChat(ctx, nil, name)
	require.NoError(t, err)
	var messages []models.Message
	for i, text := range texts {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		messages = append(messages, models.NewMessage(role, text))
	}
	require.NoError(t, s.ReplaceAll(ctx, p, messages))
	return p
}

// forEachCacheState runs fn once against an unselected chat and once with
// the chat active, so both the storage and the cache paths are covered.
func forEachCacheState(t *testing.T, fn func(t *testing.T, s *Store, selectChat func(Path))) {
	for _, active := range []bool{false, true} {
		name := "storage"
		if active {
			name = "cached"
		}
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t, Options{})
			fn(t, s, func(p Path) {
				if active {
					require.NoError(t, s.Select(context.Background(), p))
				}
			})
		})
	}
}

// requireConsistent checks what s serves agrees with a second store that
// loads everything fresh from the same database.
func requireConsistent(t *testing.T, s *Store, p Path) {
	t.Helper()
	ctx := context.Background()
	got, err := s.Messages(ctx, p)
	require.NoError(t, err)

	reopened, err := Open(ctx, s.DB(), Options{})
	require.NoError(t, err)
	stored, err := reopened.Messages(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, contents(stored), contents(got))
	for i, m := range stored {
		assert.Equal(t, i, m.Position)
	}
}

func TestAppendAndLastMessage(t *testing.T) {
	forEachCacheState(t, func(t *testing.T, s *Store, selectChat func(Path)) {
		ctx := context.Background()
		p, err := s.CreateChat(ctx, nil, "A")
		require.NoError(t, err)
		selectChat(p)

		require.NoError(t, s.Append(ctx, p, models.NewMessage(models.RoleUser, "look", models.WithMedia("/tmp/cat.png"))))
		last, err := s.LastMessage(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, models.RoleUser, last.Role)
		assert.Equal(t, "/tmp/cat.png", last.Media)
		assert.Equal(t, 1, last.Position)

		err = s.Append(ctx, p, models.NewMessage("narrator", "x"))
		assert.ErrorIs(t, err, ErrInvalidOperation)
		requireConsistent(t, s, p)
	})
}

func TestAppendTokenStreams(t *testing.T) {
	forEachCacheState(t, func(t *testing.T, s *Store, selectChat func(Path)) {
		ctx := context.Background()
		p, err := s.CreateChat(ctx, nil, "A")
		require.NoError(t, err)
		selectChat(p)

		before, err := s.Messages(ctx, p)
		require.NoError(t, err)

		require.NoError(t, s.AppendToken(ctx, p, models.RoleAssistant, "", true))
		for _, tok := range []string{"a", "b", "c"} {
			require.NoError(t, s.AppendToken(ctx, p, models.RoleAssistant, tok, false))
		}

		after, err := s.Messages(ctx, p)
		require.NoError(t, err)
		assert.Len(t, after, len(before)+1)
		last, err := s.LastMessage(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, "abc", last.Content)
		assert.Equal(t, models.RoleAssistant, last.Role)
		requireConsistent(t, s, p)
	})
}

func TestAppendTokenRejections(t *testing.T) {
	forEachCacheState(t, func(t *testing.T, s *Store, selectChat func(Path)) {
		ctx := context.Background()
		p, err := s.CreateChat(ctx, nil, "A")
		require.NoError(t, err)
		selectChat(p)

		// The seed message is a tool note, not an assistant reply
		err = s.AppendToken(ctx, p, models.RoleAssistant, "x", false)
		assert.ErrorIs(t, err, ErrInvalidOperation)

		require.NoError(t, s.ClearAll(ctx, p))
		err = s.AppendToken(ctx, p, models.RoleAssistant, "x", false)
		assert.ErrorIs(t, err, ErrEmpty)

		_, err = s.LastMessage(ctx, p)
		assert.ErrorIs(t, err, ErrEmpty)
	})
}

func TestReplaceAll(t *testing.T) {
	forEachCacheState(t, func(t *testing.T, s *Store, selectChat func(Path)) {
		ctx := context.Background()
		p := chatWithLog(t, s, "A", "one", "two")
		selectChat(p)

		require.NoError(t, s.ReplaceAll(ctx, p, []models.Message{
			models.NewMessage(models.RoleSystem, "be brief"),
			models.NewMessage(models.RoleUser, "hi"),
			models.NewMessage(models.RoleAssistant, "hello"),
		}))
		messages, err := s.Messages(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, []string{"be brief", "hi", "hello"}, contents(messages))

		// An invalid role rejects the whole replacement
		err = s.ReplaceAll(ctx, p, []models.Message{models.NewMessage(models.RoleUser, "ok"), {Role: "bogus"}})
		assert.ErrorIs(t, err, ErrInvalidOperation)
		requireConsistent(t, s, p)
		messages, err = s.Messages(ctx, p)
		require.NoError(t, err)
		assert.Len(t, messages, 3)
	})
}

func TestClearRange(t *testing.T) {
	forEachCacheState(t, func(t *testing.T, s *Store, selectChat func(Path)) {
		ctx := context.Background()
		p := chatWithLog(t, s, "A", "m0", "m1", "m2", "m3", "m4")
		selectChat(p)

		for _, r := range [][2]int{{3, 1}, {0, 5}, {-1, 2}} {
			err := s.ClearRange(ctx, p, r[0], r[1])
			assert.ErrorIs(t, err, ErrInvalidOperation, "range %v", r)
		}
		messages, err := s.Messages(ctx, p)
		require.NoError(t, err)
		require.Len(t, messages, 5)

		require.NoError(t, s.ClearRange(ctx, p, 1, 3))
		messages, err = s.Messages(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, []string{"m0", "m4"}, contents(messages))
		assert.Equal(t, 0, messages[0].Position)
		assert.Equal(t, 1, messages[1].Position)
		requireConsistent(t, s, p)
	})
}

func TestClearLastN(t *testing.T) {
	forEachCacheState(t, func(t *testing.T, s *Store, selectChat func(Path)) {
		ctx := context.Background()
		p := chatWithLog(t, s, "A", "m0", "m1", "m2")
		selectChat(p)

		assert.ErrorIs(t, s.ClearLastN(ctx, p, -1), ErrInvalidOperation)
		require.NoError(t, s.ClearLastN(ctx, p, 0))
		require.NoError(t, s.ClearLastN(ctx, p, 2))
		messages, err := s.Messages(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, []string{"m0"}, contents(messages))

		// Clamped to the log length
		require.NoError(t, s.ClearLastN(ctx, p, 10))
		messages, err = s.Messages(ctx, p)
		require.NoError(t, err)
		assert.Empty(t, messages)
		requireConsistent(t, s, p)
	})
}

func TestClearByRole(t *testing.T) {
	forEachCacheState(t, func(t *testing.T, s *Store, selectChat func(Path)) {
		ctx := context.Background()
		p := chatWithLog(t, s, "A", "u0", "a1", "u2", "a3", "u4")
		selectChat(p)

		removed, err := s.ClearByRole(ctx, p, models.RoleAssistant)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		messages, err := s.Messages(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, []string{"u0", "u2", "u4"}, contents(messages))
		for i, m := range messages {
			assert.Equal(t, i, m.Position)
		}

		removed, err = s.ClearByRole(ctx, p, models.RoleSystem)
		require.NoError(t, err)
		assert.Zero(t, removed)
		requireConsistent(t, s, p)
	})
}

func TestMessageOperationsOnGroups(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})
	g, err := s.CreateGroup(ctx, nil, "G")
	require.NoError(t, err)

	_, err = s.Messages(ctx, g)
	assert.ErrorIs(t, err, ErrInvalidOperation)
	assert.ErrorIs(t, s.Append(ctx, g, models.NewMessage(models.RoleUser, "x")), ErrInvalidOperation)
	assert.ErrorIs(t, s.ClearAll(ctx, g), ErrInvalidOperation)
	assert.ErrorIs(t, s.Select(ctx, g), ErrInvalidOperation)
}

func TestCachedReadsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})
	p, err := s.CreateChat(ctx, nil, "A")
	require.NoError(t, err)
	require.NoError(t, s.Select(ctx, p))

	messages, err := s.Messages(ctx, p)
	require.NoError(t, err)
	messages[0].Content = "tampered"

	again, err := s.Messages(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, DefaultWelcomeMessage, again[0].Content)
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, Options{})
	p := chatWithLog(t, s, "A", "hello there", "general kenobi you are", "bold")

	stats, err := s.Stats(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalMessages)
	assert.Equal(t, 7, stats.TotalWords)
	assert.Equal(t, 2, stats.MessagesPerRole[models.RoleUser])
	assert.Equal(t, 4, stats.WordsPerRole[models.RoleAssistant])
}
