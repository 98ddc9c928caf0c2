package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kirkhezir/church-app-sub002/internal/metrics"
	"github.com/kirkhezir/church-app-sub002/internal/model"
	"github.com/kirkhezir/church-app-sub002/internal/repository"
)

// UrgentNotifier starts a detached notification run for a freshly created
// urgent announcement.
type UrgentNotifier interface {
	Dispatch(announcement *model.Announcement, author *model.Member) <-chan DispatchReport
}

// AnnouncementPublisher pushes lifecycle changes to connected portal
// sessions.
type AnnouncementPublisher interface {
	PublishAnnouncement(action string, announcement *model.Announcement)
}

const (
	AnnouncementCreated    = "created"
	AnnouncementUpdated    = "updated"
	AnnouncementArchived   = "archived"
	AnnouncementUnarchived = "unarchived"
	AnnouncementDeleted    = "deleted"
)

type CreateAnnouncementRequest struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Priority string `json:"priority,omitempty"`
}

type UpdateAnnouncementRequest struct {
	Title    *string `json:"title,omitempty"`
	Content  *string `json:"content,omitempty"`
	Priority *string `json:"priority,omitempty"`
}

type AnnouncementService struct {
	announcements repository.AnnouncementRepository
	members       repository.MemberRepository
	notifier      UrgentNotifier
	publisher     AnnouncementPublisher
	logger        *zap.Logger

	now   func() time.Time
	newID func() uuid.UUID
}

func NewAnnouncementService(
	announcements repository.AnnouncementRepository,
	members repository.MemberRepository,
	notifier UrgentNotifier,
	logger *zap.Logger,
) *AnnouncementService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AnnouncementService{
		announcements: announcements,
		members:       members,
		notifier:      notifier,
		logger:        logger,
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.New,
	}
}

// WithPublisher attaches a live-feed publisher. It must be called before the
// service starts serving requests.
func (s *AnnouncementService) WithPublisher(publisher AnnouncementPublisher) *AnnouncementService {
	s.publisher = publisher
	return s
}

func (s *AnnouncementService) Create(
	ctx context.Context,
	authorID string,
	req CreateAnnouncementRequest,
) (item *model.Announcement, err error) {
	defer func() { metrics.IncAnnouncementOperation("create", err) }()

	if err := s.ready(); err != nil {
		return nil, err
	}

	authorUUID, err := parseID(authorID)
	if err != nil {
		return nil, err
	}

	author, err := s.authorizedMember(ctx, authorUUID, ErrAuthorNotFound)
	if err != nil {
		return nil, err
	}

	priority, err := model.ParseAnnouncementPriority(req.Priority)
	if err != nil {
		return nil, err
	}

	announcement, err := model.NewAnnouncement(s.newID(), req.Title, req.Content, priority, author.ID, s.now())
	if err != nil {
		return nil, err
	}

	if err := s.announcements.Create(ctx, announcement); err != nil {
		return nil, fmt.Errorf("persist announcement: %w", err)
	}

	s.logger.Info("announcement created",
		zap.String("announcement_id", announcement.ID.String()),
		zap.String("author_id", author.ID.String()),
		zap.String("priority", string(announcement.Priority)),
	)
	s.broadcast(AnnouncementCreated, announcement)

	if announcement.IsUrgent() {
		s.triggerUrgentDispatch(announcement, author)
	}

	return announcement, nil
}

func (s *AnnouncementService) Update(
	ctx context.Context,
	announcementID string,
	userID string,
	req UpdateAnnouncementRequest,
) (item *model.Announcement, err error) {
	defer func() { metrics.IncAnnouncementOperation("update", err) }()

	current, err := s.loadForMutation(ctx, announcementID, userID)
	if err != nil {
		return nil, err
	}

	// Archived announcements reject every edit, malformed ones included.
	if current.IsArchived() {
		return nil, model.ErrArchived
	}

	patch, err := buildAnnouncementPatch(req)
	if err != nil {
		return nil, err
	}

	if err := current.UpdateDetails(patch, s.now()); err != nil {
		return nil, err
	}

	if err := s.announcements.Update(ctx, current); err != nil {
		return nil, s.mapRepositoryError(err)
	}

	s.logger.Info("announcement updated",
		zap.String("announcement_id", current.ID.String()),
		zap.String("user_id", userID),
	)
	s.broadcast(AnnouncementUpdated, current)
	return current, nil
}

func (s *AnnouncementService) Archive(ctx context.Context, announcementID string, userID string) (err error) {
	defer func() { metrics.IncAnnouncementOperation("archive", err) }()

	current, err := s.loadForMutation(ctx, announcementID, userID)
	if err != nil {
		return err
	}

	if !current.Archive(s.now()) {
		return nil
	}

	if err := s.announcements.Archive(ctx, current); err != nil {
		return s.mapRepositoryError(err)
	}

	s.logger.Info("announcement archived",
		zap.String("announcement_id", current.ID.String()),
		zap.String("user_id", userID),
	)
	s.broadcast(AnnouncementArchived, current)
	return nil
}

func (s *AnnouncementService) Unarchive(ctx context.Context, announcementID string, userID string) (err error) {
	defer func() { metrics.IncAnnouncementOperation("unarchive", err) }()

	current, err := s.loadForMutation(ctx, announcementID, userID)
	if err != nil {
		return err
	}

	if !current.Unarchive(s.now()) {
		return nil
	}

	if err := s.announcements.Archive(ctx, current); err != nil {
		return s.mapRepositoryError(err)
	}

	s.logger.Info("announcement unarchived",
		zap.String("announcement_id", current.ID.String()),
		zap.String("user_id", userID),
	)
	s.broadcast(AnnouncementUnarchived, current)
	return nil
}

// Delete soft-deletes the announcement. A deleted announcement is no longer
// retrievable, so a second call reports ErrAnnouncementNotFound.
func (s *AnnouncementService) Delete(ctx context.Context, announcementID string, userID string) (err error) {
	defer func() { metrics.IncAnnouncementOperation("delete", err) }()

	current, err := s.loadForMutation(ctx, announcementID, userID)
	if err != nil {
		return err
	}

	if !current.Delete(s.now()) {
		return nil
	}

	if err := s.announcements.Delete(ctx, current); err != nil {
		return s.mapRepositoryError(err)
	}

	s.logger.Info("announcement deleted",
		zap.String("announcement_id", current.ID.String()),
		zap.String("user_id", userID),
	)
	s.broadcast(AnnouncementDeleted, current)
	return nil
}

func (s *AnnouncementService) GetByID(ctx context.Context, announcementID string) (*model.Announcement, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	id, err := parseID(announcementID)
	if err != nil {
		return nil, err
	}
	return s.getByUUID(ctx, id)
}

// ListActive returns announcements that are neither archived nor deleted,
// urgent ones first.
func (s *AnnouncementService) ListActive(ctx context.Context) ([]*model.Announcement, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	items, err := s.announcements.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*model.Announcement{}
	}
	return items, nil
}

// loadForMutation applies the shared preconditions of every write path:
// well-formed ids, an existing authorized user and an existing target.
func (s *AnnouncementService) loadForMutation(
	ctx context.Context,
	announcementID string,
	userID string,
) (*model.Announcement, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	id, err := parseID(announcementID)
	if err != nil {
		return nil, err
	}
	userUUID, err := parseID(userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.authorizedMember(ctx, userUUID, ErrUserNotFound); err != nil {
		return nil, err
	}

	return s.getByUUID(ctx, id)
}

func (s *AnnouncementService) authorizedMember(
	ctx context.Context,
	id uuid.UUID,
	notFound error,
) (*model.Member, error) {
	member, err := s.members.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound
		}
		return nil, err
	}
	if member == nil || member.IsDeleted() {
		return nil, notFound
	}
	if !member.CanPublishAnnouncements() {
		return nil, ErrForbidden
	}
	return member, nil
}

func (s *AnnouncementService) getByUUID(ctx context.Context, id uuid.UUID) (*model.Announcement, error) {
	item, err := s.announcements.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	if item == nil || item.IsDeleted() {
		return nil, ErrAnnouncementNotFound
	}
	return item, nil
}

func (s *AnnouncementService) triggerUrgentDispatch(announcement *model.Announcement, author *model.Member) {
	if s.notifier == nil {
		s.logger.Warn("urgent announcement created without a notifier",
			zap.String("announcement_id", announcement.ID.String()),
		)
		return
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("urgent announcement dispatch trigger panic",
				zap.String("announcement_id", announcement.ID.String()),
				zap.Any("panic", recovered),
			)
		}
	}()

	authorSnapshot := *author
	_ = s.notifier.Dispatch(announcement.Clone(), &authorSnapshot)
}

func (s *AnnouncementService) broadcast(action string, item *model.Announcement) {
	if s.publisher == nil || item == nil {
		return
	}
	s.publisher.PublishAnnouncement(action, item.Clone())
}

func (s *AnnouncementService) mapRepositoryError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrAnnouncementNotFound
	}
	return err
}

func (s *AnnouncementService) ready() error {
	if s.announcements == nil {
		return errors.New("announcement repository is nil")
	}
	if s.members == nil {
		return errors.New("member repository is nil")
	}
	return nil
}

func buildAnnouncementPatch(req UpdateAnnouncementRequest) (model.AnnouncementPatch, error) {
	patch := model.AnnouncementPatch{
		Title:   req.Title,
		Content: req.Content,
	}
	if req.Priority != nil {
		if strings.TrimSpace(*req.Priority) == "" {
			return model.AnnouncementPatch{}, fmt.Errorf("%w: priority must not be blank", model.ErrValidation)
		}
		priority, err := model.ParseAnnouncementPriority(*req.Priority)
		if err != nil {
			return model.AnnouncementPatch{}, err
		}
		patch.Priority = &priority
	}
	return patch, nil
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}
