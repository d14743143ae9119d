package store

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/oz-solar/jerry/internal/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Conversation{}, &models.Message{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(testDB(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestNewRequiresDB(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("expected error for nil db")
	}
}

func TestRecordTurnCreatesRows(t *testing.T) {
	s := testStore(t)

	turn := Turn{
		DiscordUserID: "100",
		Username:      "bruce",
		DisplayName:   "Bruce",
		ChannelID:     "dm-1",
		Question:      "How big a battery do I need?",
		Answer:        "Depends on your evening usage, mate.",
		ModelUsed:     "gemini-2.0-flash",
	}
	if err := s.RecordTurn(turn); err != nil {
		t.Fatalf("RecordTurn: %v", err)
	}

	var user models.User
	if err := s.db.Where("discord_id = ?", "100").First(&user).Error; err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if user.Username != "bruce" {
		t.Errorf("username = %q, want bruce", user.Username)
	}

	var conv models.Conversation
	if err := s.db.Where("user_id = ?", user.ID).First(&conv).Error; err != nil {
		t.Fatalf("conversation not created: %v", err)
	}
	if conv.MessageCount != 2 {
		t.Errorf("message count = %d, want 2", conv.MessageCount)
	}

	msgs, err := s.History("dm-1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].Role != "user" || msgs[1].Role != "assistant" {
		t.Errorf("roles = %q, %q; want user, assistant", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].ModelUsed != "gemini-2.0-flash" {
		t.Errorf("model used = %q", msgs[1].ModelUsed)
	}
}

func TestRecordTurnReusesUserAndConversation(t *testing.T) {
	s := testStore(t)

	turn := Turn{
		DiscordUserID: "100",
		Username:      "bruce",
		ChannelID:     "dm-1",
		Question:      "first",
		Answer:        "g'day",
	}
	if err := s.RecordTurn(turn); err != nil {
		t.Fatalf("first turn: %v", err)
	}
	turn.Question = "second"
	if err := s.RecordTurn(turn); err != nil {
		t.Fatalf("second turn: %v", err)
	}

	var users, convs int64
	s.db.Model(&models.User{}).Count(&users)
	s.db.Model(&models.Conversation{}).Count(&convs)
	if users != 1 || convs != 1 {
		t.Fatalf("got %d users, %d conversations; want 1, 1", users, convs)
	}

	var conv models.Conversation
	s.db.First(&conv)
	if conv.MessageCount != 4 {
		t.Errorf("message count = %d, want 4", conv.MessageCount)
	}
}

func TestRecordTurnSeparateChannels(t *testing.T) {
	s := testStore(t)

	base := Turn{DiscordUserID: "100", Username: "bruce", Question: "q", Answer: "a"}

	base.ChannelID = "dm-1"
	if err := s.RecordTurn(base); err != nil {
		t.Fatalf("dm turn: %v", err)
	}
	base.ChannelID = "guild-chan"
	if err := s.RecordTurn(base); err != nil {
		t.Fatalf("guild turn: %v", err)
	}

	convs, msgs, err := s.Counts()
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if convs != 2 || msgs != 4 {
		t.Fatalf("counts = %d convs, %d msgs; want 2, 4", convs, msgs)
	}
}

func TestRecordTurnValidation(t *testing.T) {
	s := testStore(t)
	if err := s.RecordTurn(Turn{ChannelID: "c"}); err == nil {
		t.Error("expected error for missing user ID")
	}
	if err := s.RecordTurn(Turn{DiscordUserID: "1"}); err == nil {
		t.Error("expected error for missing channel ID")
	}
}

func TestHistoryUnknownChannel(t *testing.T) {
	s := testStore(t)
	msgs, err := s.History("nope")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if msgs != nil {
		t.Errorf("got %d messages, want none", len(msgs))
	}
}
