// Package models defines the GORM models for Jerry's conversation store.
package models

import "time"

// User represents a Discord user who has talked to Jerry.
type User struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	DiscordID        string    `gorm:"size:32;not null;uniqueIndex"`
	Username         string    `gorm:"size:64;not null"`
	DisplayName      string    `gorm:"size:64"`
	FirstInteraction time.Time `gorm:"not null"`
	LastInteraction  time.Time `gorm:"not null"`

	Conversations []Conversation `gorm:"foreignKey:UserID"`
}

// Conversation represents one conversation thread between a user and Jerry.
// For DMs the channel ID is the DM channel; for slash commands it is the
// channel the command was invoked in.
type Conversation struct {
	ID           uint      `gorm:"primaryKey;autoIncrement"`
	UserID       uint      `gorm:"not null;index"`
	ChannelID    string    `gorm:"size:32;not null;index:idx_user_channel"`
	MessageCount int       `gorm:"default:0"`
	StartedAt    time.Time `gorm:"not null"`
	LastMessage  time.Time `gorm:"not null"`

	User     User      `gorm:"foreignKey:UserID"`
	Messages []Message `gorm:"foreignKey:ConversationID"`
}

// Message stores a single turn half within a conversation.
type Message struct {
	ID             uint   `gorm:"primaryKey;autoIncrement"`
	ConversationID uint   `gorm:"not null;index"`
	Role           string `gorm:"size:16;not null"` // "user" or "assistant"
	Content        string `gorm:"type:text;not null"`
	ModelUsed      string `gorm:"size:64"` // assistant turns only
	CreatedAt      time.Time

	Conversation Conversation `gorm:"foreignKey:ConversationID"`
}
