package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirkhezir/church-app-sub002/internal/model"
	"github.com/kirkhezir/church-app-sub002/internal/repository"
)

type announcementRepository struct {
	pool *pgxpool.Pool
}

func NewAnnouncementRepository(pool *pgxpool.Pool) repository.AnnouncementRepository {
	return &announcementRepository{pool: pool}
}

var _ repository.AnnouncementRepository = (*announcementRepository)(nil)

const announcementColumns = `
	id,
	title,
	content,
	priority,
	author_id,
	published_at,
	archived_at,
	deleted_at,
	created_at,
	updated_at
`

func (r *announcementRepository) Create(ctx context.Context, announcement *model.Announcement) error {
	if err := announcement.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO announcements (
			id, title, content, priority, author_id,
			published_at, archived_at, deleted_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(
		ctx,
		query,
		announcement.ID,
		announcement.Title,
		announcement.Content,
		announcement.Priority,
		announcement.AuthorID,
		announcement.PublishedAt,
		announcement.ArchivedAt,
		announcement.DeletedAt,
		announcement.CreatedAt,
		announcement.UpdatedAt,
	)
	return err
}

func (r *announcementRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Announcement, error) {
	query := `SELECT ` + announcementColumns + ` FROM announcements WHERE id = $1 AND deleted_at IS NULL`
	item, err := scanAnnouncement(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *announcementRepository) Update(ctx context.Context, announcement *model.Announcement) error {
	if err := announcement.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE announcements
		SET title = $2,
			content = $3,
			priority = $4,
			updated_at = $5
		WHERE id = $1
			AND deleted_at IS NULL
			AND archived_at IS NULL
	`

	tag, err := r.pool.Exec(
		ctx,
		query,
		announcement.ID,
		announcement.Title,
		announcement.Content,
		announcement.Priority,
		announcement.UpdatedAt,
	)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

// Archive persists the aggregate's archive state. Archiving only touches a
// live row and unarchiving only an archived one, so a concurrent writer that
// got there first keeps its archived_at; that case is a no-op here.
func (r *announcementRepository) Archive(ctx context.Context, announcement *model.Announcement) error {
	query := `
		UPDATE announcements
		SET archived_at = $2,
			updated_at = $3
		WHERE id = $1
			AND deleted_at IS NULL
			AND archived_at IS NULL
	`
	if announcement.ArchivedAt == nil {
		query = `
			UPDATE announcements
			SET archived_at = $2,
				updated_at = $3
			WHERE id = $1
				AND deleted_at IS NULL
				AND archived_at IS NOT NULL
		`
	}

	tag, err := r.pool.Exec(ctx, query, announcement.ID, announcement.ArchivedAt, announcement.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	return r.ensureLive(ctx, announcement.ID)
}

func (r *announcementRepository) ensureLive(ctx context.Context, id uuid.UUID) error {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM announcements WHERE id = $1 AND deleted_at IS NULL)`
	if err := r.pool.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (r *announcementRepository) Delete(ctx context.Context, announcement *model.Announcement) error {
	if announcement.DeletedAt == nil {
		return fmt.Errorf("delete announcement %s: deleted_at is not set", announcement.ID)
	}

	query := `
		UPDATE announcements
		SET deleted_at = $2,
			updated_at = $3
		WHERE id = $1
			AND deleted_at IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, announcement.ID, announcement.DeletedAt, announcement.UpdatedAt)
	if err != nil {
		return err
	}
	return ensureAffected(tag)
}

func (r *announcementRepository) ListActive(ctx context.Context) ([]*model.Announcement, error) {
	query := `
		SELECT ` + announcementColumns + `
		FROM announcements
		WHERE deleted_at IS NULL
			AND archived_at IS NULL
		ORDER BY priority = 'URGENT' DESC, published_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*model.Announcement, 0, 16)
	for rows.Next() {
		item, err := scanAnnouncement(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (r *announcementRepository) CountByState(ctx context.Context) (map[repository.AnnouncementState]int64, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE deleted_at IS NULL AND archived_at IS NULL),
			COUNT(*) FILTER (WHERE deleted_at IS NULL AND archived_at IS NOT NULL),
			COUNT(*) FILTER (WHERE deleted_at IS NOT NULL)
		FROM announcements
	`

	var published, archived, deleted int64
	if err := r.pool.QueryRow(ctx, query).Scan(&published, &archived, &deleted); err != nil {
		return nil, err
	}

	return map[repository.AnnouncementState]int64{
		repository.AnnouncementStatePublished: published,
		repository.AnnouncementStateArchived:  archived,
		repository.AnnouncementStateDeleted:   deleted,
	}, nil
}

func scanAnnouncement(src scanTarget) (*model.Announcement, error) {
	item := &model.Announcement{}
	err := src.Scan(
		&item.ID,
		&item.Title,
		&item.Content,
		&item.Priority,
		&item.AuthorID,
		&item.PublishedAt,
		&item.ArchivedAt,
		&item.DeletedAt,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := item.Validate(); err != nil {
		return nil, fmt.Errorf("announcement %s: %w", item.ID, err)
	}
	return item, nil
}
