package chats

import (
	"context"
	"strings"

	"github.com/xiaoyuanzhu-com/my-life-chat/models"
)

// Stats summarises a chat's log.
type Stats struct {
	TotalMessages   int                 `json:"total_messages"`
	TotalWords      int                 `json:"total_words"`
	MessagesPerRole map[models.Role]int `json:"messages_per_role"`
	WordsPerRole    map[models.Role]int `json:"words_per_role"`
}

// Stats counts messages and whitespace-separated words per role.
func (s *Store) Stats(ctx context.Context, path Path) (Stats, error) {
	messages, err := s.Messages(ctx, path)
	if err != nil {
		return Stats{}, err
	}
	return computeStats(messages), nil
}

func computeStats(messages []models.Message) Stats {
	ret := Stats{
		TotalMessages:   len(messages),
		MessagesPerRole: map[models.Role]int{},
		WordsPerRole:    map[models.Role]int{},
	}
	for _, m := range messages {
		words := len(strings.Fields(m.Content))
		ret.TotalWords += words
		ret.MessagesPerRole[m.Role]++
		ret.WordsPerRole[m.Role] += words
	}
	return ret
}
