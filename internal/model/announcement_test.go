package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestAnnouncement(t *testing.T) *Announcement {
	t.Helper()

	item, err := NewAnnouncement(
		uuid.New(),
		"Sunday service moved",
		"Service starts at 11:00 this week.",
		AnnouncementPriorityNormal,
		uuid.New(),
		time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
	)
	if err != nil {
		t.Fatalf("NewAnnouncement returned error: %v", err)
	}
	return item
}

func TestNewAnnouncement_TitleBounds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		title   string
		wantErr bool
	}{
		{name: "two chars", title: "ab", wantErr: true},
		{name: "three chars", title: "abc"},
		{name: "max length", title: strings.Repeat("t", AnnouncementTitleMaxLen)},
		{name: "over max length", title: strings.Repeat("t", AnnouncementTitleMaxLen+1), wantErr: true},
		{name: "blank after trim", title: "   ab   ", wantErr: true},
		{name: "empty", title: "", wantErr: true},
		{name: "multibyte counted as runes", title: strings.Repeat("é", AnnouncementTitleMaxLen)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewAnnouncement(uuid.New(), tc.title, "content", AnnouncementPriorityNormal, uuid.New(), time.Now())
			if tc.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNewAnnouncement_ContentBounds(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		content string
		wantErr bool
	}{
		{name: "empty", content: "", wantErr: true},
		{name: "whitespace only", content: " \n\t ", wantErr: true},
		{name: "single char", content: "x"},
		{name: "max length", content: strings.Repeat("c", AnnouncementContentMaxLen)},
		{name: "over max length", content: strings.Repeat("c", AnnouncementContentMaxLen+1), wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewAnnouncement(uuid.New(), "Valid title", tc.content, AnnouncementPriorityNormal, uuid.New(), time.Now())
			if tc.wantErr {
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNewAnnouncement_InitialState(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	item, err := NewAnnouncement(uuid.New(), "  Choir practice  ", "Bring your folders.", "", uuid.New(), now)
	if err != nil {
		t.Fatalf("NewAnnouncement returned error: %v", err)
	}

	if item.Title != "Choir practice" {
		t.Fatalf("expected trimmed title, got %q", item.Title)
	}
	if item.Priority != AnnouncementPriorityNormal {
		t.Fatalf("expected default priority NORMAL, got %s", item.Priority)
	}
	if !item.PublishedAt.Equal(now) || !item.CreatedAt.Equal(now) || !item.UpdatedAt.Equal(now) {
		t.Fatalf("unexpected timestamps: %+v", item)
	}
	if item.ArchivedAt != nil || item.DeletedAt != nil {
		t.Fatalf("expected published state, got archived=%v deleted=%v", item.ArchivedAt, item.DeletedAt)
	}
}

func TestArchive_Idempotent(t *testing.T) {
	t.Parallel()

	item := newTestAnnouncement(t)
	first := item.CreatedAt.Add(time.Hour)
	second := first.Add(time.Hour)

	if !item.Archive(first) {
		t.Fatal("expected first archive to transition")
	}
	if item.Archive(second) {
		t.Fatal("expected second archive to be a no-op")
	}
	if item.ArchivedAt == nil || !item.ArchivedAt.Equal(first) {
		t.Fatalf("expected archived_at to stay %s, got %v", first, item.ArchivedAt)
	}
	if !item.UpdatedAt.Equal(first) {
		t.Fatalf("expected updated_at to stay %s, got %s", first, item.UpdatedAt)
	}
}

func TestUnarchive_Idempotent(t *testing.T) {
	t.Parallel()

	item := newTestAnnouncement(t)
	createdAt := item.CreatedAt

	if item.Unarchive(createdAt.Add(time.Minute)) {
		t.Fatal("expected unarchive of a published announcement to be a no-op")
	}
	if !item.UpdatedAt.Equal(createdAt) {
		t.Fatalf("updated_at changed without a transition: %s", item.UpdatedAt)
	}

	item.Archive(createdAt.Add(time.Hour))
	if !item.Unarchive(createdAt.Add(2 * time.Hour)) {
		t.Fatal("expected unarchive to transition")
	}
	if item.ArchivedAt != nil {
		t.Fatalf("expected archived_at to be cleared, got %v", item.ArchivedAt)
	}
}

func TestUpdateDetails_RejectsArchived(t *testing.T) {
	t.Parallel()

	title := "New title"
	content := "New content"
	urgent := AnnouncementPriorityUrgent
	patches := []AnnouncementPatch{
		{},
		{Title: &title},
		{Content: &content},
		{Priority: &urgent},
		{Title: &title, Content: &content, Priority: &urgent},
	}

	for _, patch := range patches {
		item := newTestAnnouncement(t)
		item.Archive(item.CreatedAt.Add(time.Hour))
		before := *item

		if err := item.UpdateDetails(patch, item.CreatedAt.Add(2*time.Hour)); !errors.Is(err, ErrArchived) {
			t.Fatalf("expected ErrArchived for patch %+v, got %v", patch, err)
		}
		if item.Title != before.Title || item.Content != before.Content || !item.UpdatedAt.Equal(before.UpdatedAt) {
			t.Fatalf("archived announcement was mutated: %+v", item)
		}
	}
}

func TestUpdateDetails_PartialUpdate(t *testing.T) {
	t.Parallel()

	item := newTestAnnouncement(t)
	originalContent := item.Content
	later := item.CreatedAt.Add(time.Hour)

	title := "  Updated title  "
	if err := item.UpdateDetails(AnnouncementPatch{Title: &title}, later); err != nil {
		t.Fatalf("UpdateDetails returned error: %v", err)
	}
	if item.Title != "Updated title" {
		t.Fatalf("unexpected title %q", item.Title)
	}
	if item.Content != originalContent {
		t.Fatalf("content changed unexpectedly: %q", item.Content)
	}
	if !item.UpdatedAt.Equal(later) {
		t.Fatalf("expected updated_at %s, got %s", later, item.UpdatedAt)
	}
	if item.PublishedAt.Equal(later) || item.CreatedAt.Equal(later) {
		t.Fatal("immutable timestamps changed")
	}

	next := item.UpdatedAt.Add(time.Hour)
	if err := item.UpdateDetails(AnnouncementPatch{}, next); err != nil {
		t.Fatalf("empty patch returned error: %v", err)
	}
	if !item.UpdatedAt.Equal(next) {
		t.Fatal("expected updated_at to be bumped even for an empty patch")
	}
}

func TestUpdateDetails_InvalidFieldLeavesStateUntouched(t *testing.T) {
	t.Parallel()

	item := newTestAnnouncement(t)
	before := *item

	title := "Fine title"
	empty := "   "
	err := item.UpdateDetails(AnnouncementPatch{Title: &title, Content: &empty}, item.CreatedAt.Add(time.Hour))
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if item.Title != before.Title || !item.UpdatedAt.Equal(before.UpdatedAt) {
		t.Fatalf("state changed after failed update: %+v", item)
	}
}

func TestDelete_Idempotent(t *testing.T) {
	t.Parallel()

	item := newTestAnnouncement(t)
	first := item.CreatedAt.Add(time.Hour)

	if !item.Delete(first) {
		t.Fatal("expected first delete to transition")
	}
	if item.Delete(first.Add(time.Hour)) {
		t.Fatal("expected second delete to be a no-op")
	}
	if !item.DeletedAt.Equal(first) {
		t.Fatalf("expected deleted_at %s, got %s", first, item.DeletedAt)
	}
}

func TestValidate_RejectsCorruptRow(t *testing.T) {
	t.Parallel()

	item := newTestAnnouncement(t)
	item.Title = "x"
	if err := item.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for short title, got %v", err)
	}

	item = newTestAnnouncement(t)
	item.Priority = "LOW"
	if err := item.Validate(); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown priority, got %v", err)
	}
}

func TestParseAnnouncementPriority(t *testing.T) {
	t.Parallel()

	cases := map[string]AnnouncementPriority{
		"":        AnnouncementPriorityNormal,
		"normal":  AnnouncementPriorityNormal,
		" URGENT": AnnouncementPriorityUrgent,
		"urgent":  AnnouncementPriorityUrgent,
	}
	for raw, want := range cases {
		got, err := ParseAnnouncementPriority(raw)
		if err != nil {
			t.Fatalf("ParseAnnouncementPriority(%q) returned error: %v", raw, err)
		}
		if got != want {
			t.Fatalf("ParseAnnouncementPriority(%q) = %s, want %s", raw, got, want)
		}
	}

	if _, err := ParseAnnouncementPriority("high"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestClone_DetachesTimestamps(t *testing.T) {
	t.Parallel()

	item := newTestAnnouncement(t)
	item.Archive(item.CreatedAt.Add(time.Hour))

	snapshot := item.Clone()
	item.Unarchive(item.CreatedAt.Add(2 * time.Hour))

	if snapshot.ArchivedAt == nil {
		t.Fatal("snapshot lost archived_at after the original changed")
	}
}
