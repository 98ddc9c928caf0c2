package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	AnnouncementTitleMinLen   = 3
	AnnouncementTitleMaxLen   = 150
	AnnouncementContentMaxLen = 5000
)

var (
	ErrValidation = errors.New("announcement validation failed")
	ErrArchived   = errors.New("announcement is archived")
)

type AnnouncementPriority string

const (
	AnnouncementPriorityNormal AnnouncementPriority = "NORMAL"
	AnnouncementPriorityUrgent AnnouncementPriority = "URGENT"
)

// ParseAnnouncementPriority accepts either casing; an empty value means NORMAL.
func ParseAnnouncementPriority(raw string) (AnnouncementPriority, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "":
		return AnnouncementPriorityNormal, nil
	case string(AnnouncementPriorityNormal):
		return AnnouncementPriorityNormal, nil
	case string(AnnouncementPriorityUrgent):
		return AnnouncementPriorityUrgent, nil
	default:
		return "", fmt.Errorf("%w: unknown priority %q", ErrValidation, raw)
	}
}

func (p AnnouncementPriority) Valid() bool {
	return p == AnnouncementPriorityNormal || p == AnnouncementPriorityUrgent
}

// Announcement is the aggregate root for a posted notice. Fields are exported
// for scanning and JSON encoding; state changes go through the methods below.
type Announcement struct {
	ID          uuid.UUID            `db:"id" json:"id"`
	Title       string               `db:"title" json:"title"`
	Content     string               `db:"content" json:"content"`
	Priority    AnnouncementPriority `db:"priority" json:"priority"`
	AuthorID    uuid.UUID            `db:"author_id" json:"author_id"`
	PublishedAt time.Time            `db:"published_at" json:"published_at"`
	ArchivedAt  *time.Time           `db:"archived_at" json:"archived_at,omitempty"`
	DeletedAt   *time.Time           `db:"deleted_at" json:"-"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time            `db:"updated_at" json:"updated_at"`
}

type AnnouncementPatch struct {
	Title    *string
	Content  *string
	Priority *AnnouncementPriority
}

func (p AnnouncementPatch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.Priority == nil
}

func NewAnnouncement(
	id uuid.UUID,
	title, content string,
	priority AnnouncementPriority,
	authorID uuid.UUID,
	now time.Time,
) (*Announcement, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("%w: id is required", ErrValidation)
	}
	if authorID == uuid.Nil {
		return nil, fmt.Errorf("%w: author is required", ErrValidation)
	}
	if priority == "" {
		priority = AnnouncementPriorityNormal
	}

	normalizedTitle, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	normalizedContent, err := normalizeContent(content)
	if err != nil {
		return nil, err
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("%w: unknown priority %q", ErrValidation, priority)
	}

	now = now.UTC()
	return &Announcement{
		ID:          id,
		Title:       normalizedTitle,
		Content:     normalizedContent,
		Priority:    priority,
		AuthorID:    authorID,
		PublishedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Validate checks the invariants of an already built aggregate, e.g. one
// loaded from storage.
func (a *Announcement) Validate() error {
	if a == nil {
		return fmt.Errorf("%w: announcement is nil", ErrValidation)
	}
	if a.ID == uuid.Nil {
		return fmt.Errorf("%w: id is required", ErrValidation)
	}
	if a.AuthorID == uuid.Nil {
		return fmt.Errorf("%w: author is required", ErrValidation)
	}
	if _, err := normalizeTitle(a.Title); err != nil {
		return err
	}
	if _, err := normalizeContent(a.Content); err != nil {
		return err
	}
	if !a.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrValidation, a.Priority)
	}
	return nil
}

func (a *Announcement) IsArchived() bool {
	return a.ArchivedAt != nil
}

func (a *Announcement) IsDeleted() bool {
	return a.DeletedAt != nil
}

func (a *Announcement) IsUrgent() bool {
	return a.Priority == AnnouncementPriorityUrgent
}

// UpdateDetails applies the provided fields only. Nothing is applied when any
// field fails validation.
func (a *Announcement) UpdateDetails(patch AnnouncementPatch, now time.Time) error {
	if a.IsArchived() {
		return ErrArchived
	}

	title := a.Title
	content := a.Content
	priority := a.Priority

	if patch.Title != nil {
		normalized, err := normalizeTitle(*patch.Title)
		if err != nil {
			return err
		}
		title = normalized
	}
	if patch.Content != nil {
		normalized, err := normalizeContent(*patch.Content)
		if err != nil {
			return err
		}
		content = normalized
	}
	if patch.Priority != nil {
		if !patch.Priority.Valid() {
			return fmt.Errorf("%w: unknown priority %q", ErrValidation, *patch.Priority)
		}
		priority = *patch.Priority
	}

	a.Title = title
	a.Content = content
	a.Priority = priority
	a.UpdatedAt = now.UTC()
	return nil
}

// Archive reports whether a transition happened. A second call keeps the
// original archived_at.
func (a *Announcement) Archive(now time.Time) bool {
	if a.ArchivedAt != nil {
		return false
	}
	ts := now.UTC()
	a.ArchivedAt = &ts
	a.UpdatedAt = ts
	return true
}

func (a *Announcement) Unarchive(now time.Time) bool {
	if a.ArchivedAt == nil {
		return false
	}
	a.ArchivedAt = nil
	a.UpdatedAt = now.UTC()
	return true
}

func (a *Announcement) Delete(now time.Time) bool {
	if a.DeletedAt != nil {
		return false
	}
	ts := now.UTC()
	a.DeletedAt = &ts
	a.UpdatedAt = ts
	return true
}

// Clone returns a deep copy; the dispatcher works on a snapshot taken at
// trigger time.
func (a *Announcement) Clone() *Announcement {
	if a == nil {
		return nil
	}
	out := *a
	out.ArchivedAt = cloneTime(a.ArchivedAt)
	out.DeletedAt = cloneTime(a.DeletedAt)
	return &out
}

func normalizeTitle(raw string) (string, error) {
	if utf8.RuneCountInString(raw) > AnnouncementTitleMaxLen {
		return "", fmt.Errorf("%w: title must be at most %d characters", ErrValidation, AnnouncementTitleMaxLen)
	}
	title := strings.TrimSpace(raw)
	if utf8.RuneCountInString(title) < AnnouncementTitleMinLen {
		return "", fmt.Errorf("%w: title must be at least %d characters", ErrValidation, AnnouncementTitleMinLen)
	}
	return title, nil
}

func normalizeContent(raw string) (string, error) {
	if utf8.RuneCountInString(raw) > AnnouncementContentMaxLen {
		return "", fmt.Errorf("%w: content must be at most %d characters", ErrValidation, AnnouncementContentMaxLen)
	}
	content := strings.TrimSpace(raw)
	if content == "" {
		return "", fmt.Errorf("%w: content is required", ErrValidation)
	}
	return content, nil
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
