package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/kirkhezir/church-app-sub002/internal/model"
)

var ErrNotFound = errors.New("record not found")

type AnnouncementState string

const (
	AnnouncementStatePublished AnnouncementState = "published"
	AnnouncementStateArchived  AnnouncementState = "archived"
	AnnouncementStateDeleted   AnnouncementState = "deleted"
)

// AnnouncementRepository persists the announcement aggregate. Every call is
// atomic on its own; FindByID and ListActive never return soft-deleted rows.
type AnnouncementRepository interface {
	Create(ctx context.Context, announcement *model.Announcement) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Announcement, error)
	Update(ctx context.Context, announcement *model.Announcement) error
	Archive(ctx context.Context, announcement *model.Announcement) error
	Delete(ctx context.Context, announcement *model.Announcement) error
	ListActive(ctx context.Context) ([]*model.Announcement, error)
	CountByState(ctx context.Context) (map[AnnouncementState]int64, error)
}

type MemberRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*model.Member, error)
	FindAll(ctx context.Context) ([]*model.Member, error)
}
