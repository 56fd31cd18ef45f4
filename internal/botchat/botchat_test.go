package botchat

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/chatforge-app/chatforge/internal/models"
)

func TestValidateBot(t *testing.T) {
	if err := ValidateBot("helper", "You are helpful."); err != nil {
		t.Fatalf("valid bot rejected: %v", err)
	}
	if err := ValidateBot("", "p"); err == nil {
		t.Fatal("empty name must be rejected")
	}
	if err := ValidateBot("n", ""); err == nil {
		t.Fatal("empty personality must be rejected")
	}
	if err := ValidateBot(strings.Repeat("x", MaxNameLen+1), "p"); err == nil {
		t.Fatal("over-long name must be rejected")
	}
	if err := ValidateBot("n", strings.Repeat("x", MaxPersonalityLen+1)); err == nil {
		t.Fatal("over-long personality must be rejected")
	}
}

func TestFindAndRemoveBot(t *testing.T) {
	now := time.Now()
	user := models.User{Bots: []models.Bot{
		NewBot("a", "pa", "gpt-4o-mini", now),
		NewBot("b", "pb", "gpt-4o-mini", now),
	}}
	id := user.Bots[1].ID

	if found := FindBot(&user, id); found == nil || found.Name != "b" {
		t.Fatalf("expected bot b, got %+v", found)
	}
	if FindBot(&user, "missing") != nil {
		t.Fatal("expected nil for unknown bot id")
	}

	if !RemoveBot(&user, id) {
		t.Fatal("expected removal to succeed")
	}
	if len(user.Bots) != 1 || user.Bots[0].Name != "a" {
		t.Fatalf("unexpected bots after removal: %+v", user.Bots)
	}
	if RemoveBot(&user, id) {
		t.Fatal("second removal must report absence")
	}
}

func TestAppendTurn(t *testing.T) {
	bot := NewBot("a", "p", "gpt-4o-mini", time.Now())
	msg := AppendTurn(&bot, models.RoleUser, "hello", time.Now())

	if msg.ID == "" {
		t.Fatal("turn must get a fresh id")
	}
	if msg.Timestamp.IsZero() {
		t.Fatal("turn must get a timestamp")
	}
	if len(bot.Conversations) != 1 || bot.Conversations[0].Content != "hello" {
		t.Fatalf("turn not appended: %+v", bot.Conversations)
	}
}

func TestMergeHistory_DeduplicatesByID(t *testing.T) {
	server := []models.Message{
		{ID: "m1", Role: models.RoleUser, Content: "hi"},
		{ID: "m2", Role: models.RoleAssistant, Content: "hello"},
	}
	client := []models.Message{
		{ID: "m2", Role: models.RoleAssistant, Content: "hello"},     // duplicate
		{ID: "m3", Role: models.RoleUser, Content: "new from client"}, // new
	}

	merged := MergeHistory(server, client)
	if len(merged) != 3 {
		t.Fatalf("expected exactly one appended entry, got %d total", len(merged))
	}
	if merged[2].ID != "m3" {
		t.Fatalf("expected m3 appended last, got %+v", merged[2])
	}
}

func TestMergeHistory_EntriesWithoutIDAlwaysNew(t *testing.T) {
	server := []models.Message{{ID: "m1", Content: "hi"}}
	client := []models.Message{
		{Role: models.RoleUser, Content: "anonymous one"},
		{Role: models.RoleUser, Content: "anonymous two"},
	}
	merged := MergeHistory(server, client)
	if len(merged) != 3 {
		t.Fatalf("id-less entries must always append, got %d", len(merged))
	}
}

func TestMergeHistory_TruncatesOverlongContent(t *testing.T) {
	client := []models.Message{{Role: models.RoleUser, Content: strings.Repeat("x", MaxMessageLen+50)}}
	merged := MergeHistory(nil, client)
	if len(merged[0].Content) != MaxMessageLen {
		t.Fatalf("expected content capped at %d, got %d", MaxMessageLen, len(merged[0].Content))
	}
}

func TestTruncate_KeepsNewest(t *testing.T) {
	var msgs []models.Message
	for i := 0; i < 105; i++ {
		msgs = append(msgs, models.Message{ID: fmt.Sprintf("m%d", i)})
	}

	kept := Truncate(msgs, 100)
	if len(kept) != 100 {
		t.Fatalf("expected 100 entries, got %d", len(kept))
	}
	if kept[0].ID != "m5" || kept[99].ID != "m104" {
		t.Fatalf("oldest entries must drop first, got first=%s last=%s", kept[0].ID, kept[99].ID)
	}

	short := Truncate(msgs[:10], 100)
	if len(short) != 10 {
		t.Fatalf("under-cap logs must be untouched, got %d", len(short))
	}
}

func TestContextWindow_IsAViewNotAMutation(t *testing.T) {
	var msgs []models.Message
	for i := 0; i < 30; i++ {
		msgs = append(msgs, models.Message{ID: fmt.Sprintf("m%d", i)})
	}
	window := ContextWindow(msgs, 20)
	if len(window) != 20 || window[0].ID != "m10" {
		t.Fatalf("unexpected window: len=%d first=%s", len(window), window[0].ID)
	}
	if len(msgs) != 30 {
		t.Fatal("the persisted log must not shrink")
	}
}

func TestNearHistoryLimit(t *testing.T) {
	if !NearHistoryLimit(96, 100) {
		t.Fatal("96 of 100 is within the warning buffer")
	}
	if NearHistoryLimit(95, 100) {
		t.Fatal("95 of 100 is outside the warning buffer")
	}
	if NearHistoryLimit(5, 0) {
		t.Fatal("zero cap never warns")
	}
}
