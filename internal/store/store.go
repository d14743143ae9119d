// Package store persists conversations to the database: who talked to
// Jerry, in which channel, and what was said.
package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/oz-solar/jerry/internal/models"
)

// Store records conversation turns. Writes are best-effort from the relay's
// point of view: a failed write is logged there and never blocks a reply.
type Store struct {
	db *gorm.DB
}

// New creates a Store.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	return &Store{db: db}, nil
}

// Turn captures one completed question/answer exchange.
type Turn struct {
	DiscordUserID string
	Username      string
	DisplayName   string
	ChannelID     string
	Question      string
	Answer        string
	ModelUsed     string
}

// RecordTurn upserts the user and conversation rows and appends the user and
// assistant messages for one exchange.
func (s *Store) RecordTurn(turn Turn) error {
	if turn.DiscordUserID == "" || turn.ChannelID == "" {
		return fmt.Errorf("store: user and channel IDs are required")
	}

	now := time.Now()

	user, err := s.upsertUser(turn, now)
	if err != nil {
		return err
	}
	conv, err := s.upsertConversation(user.ID, turn.ChannelID, now)
	if err != nil {
		return err
	}

	msgs := []models.Message{
		{ConversationID: conv.ID, Role: "user", Content: turn.Question},
		{ConversationID: conv.ID, Role: "assistant", Content: turn.Answer, ModelUsed: turn.ModelUsed},
	}
	if err := s.db.Create(&msgs).Error; err != nil {
		return fmt.Errorf("store: append messages: %w", err)
	}

	updates := map[string]any{
		"message_count": gorm.Expr("message_count + ?", 2),
		"last_message":  now,
	}
	if err := s.db.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("store: update conversation stats: %w", err)
	}
	return nil
}

// History returns a conversation's messages in chronological order.
func (s *Store) History(channelID string) ([]models.Message, error) {
	var conv models.Conversation
	err := s.db.Where("channel_id = ?", channelID).First(&conv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: find conversation: %w", err)
	}

	var msgs []models.Message
	if err := s.db.Where("conversation_id = ?", conv.ID).Order("id").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("store: load history: %w", err)
	}
	return msgs, nil
}

// Counts returns the total number of conversations and messages.
func (s *Store) Counts() (conversations, messages int64, err error) {
	if err = s.db.Model(&models.Conversation{}).Count(&conversations).Error; err != nil {
		return 0, 0, fmt.Errorf("store: count conversations: %w", err)
	}
	if err = s.db.Model(&models.Message{}).Count(&messages).Error; err != nil {
		return 0, 0, fmt.Errorf("store: count messages: %w", err)
	}
	return conversations, messages, nil
}

func (s *Store) upsertUser(turn Turn, now time.Time) (*models.User, error) {
	var user models.User
	err := s.db.Where("discord_id = ?", turn.DiscordUserID).First(&user).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = models.User{
			DiscordID:        turn.DiscordUserID,
			Username:         turn.Username,
			DisplayName:      turn.DisplayName,
			FirstInteraction: now,
			LastInteraction:  now,
		}
		if err := s.db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("store: create user: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("store: find user: %w", err)
	default:
		if err := s.db.Model(&user).Update("last_interaction", now).Error; err != nil {
			return nil, fmt.Errorf("store: touch user: %w", err)
		}
	}
	return &user, nil
}

func (s *Store) upsertConversation(userID uint, channelID string, now time.Time) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.Where("user_id = ? AND channel_id = ?", userID, channelID).First(&conv).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		conv = models.Conversation{
			UserID:      userID,
			ChannelID:   channelID,
			StartedAt:   now,
			LastMessage: now,
		}
		if err := s.db.Create(&conv).Error; err != nil {
			return nil, fmt.Errorf("store: create conversation: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("store: find conversation: %w", err)
	}
	return &conv, nil
}
