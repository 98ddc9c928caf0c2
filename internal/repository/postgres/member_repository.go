package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kirkhezir/church-app-sub002/internal/model"
	"github.com/kirkhezir/church-app-sub002/internal/repository"
)

type memberRepository struct {
	pool *pgxpool.Pool
}

func NewMemberRepository(pool *pgxpool.Pool) repository.MemberRepository {
	return &memberRepository{pool: pool}
}

var _ repository.MemberRepository = (*memberRepository)(nil)

// email_notifications is nullable in storage; an unset preference means the
// member has not opted out.
const memberColumns = `
	id,
	name,
	email,
	COALESCE(email_notifications, TRUE),
	role,
	deleted_at,
	created_at,
	updated_at
`

func (r *memberRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE id = $1 AND deleted_at IS NULL`
	member, err := scanMember(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return member, nil
}

// FindAll returns every member row, soft-deleted ones included; callers
// decide who is eligible for what.
func (r *memberRepository) FindAll(ctx context.Context) ([]*model.Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members ORDER BY created_at ASC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	members := make([]*model.Member, 0, 64)
	for rows.Next() {
		item, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return members, nil
}

func scanMember(src scanTarget) (*model.Member, error) {
	member := &model.Member{}
	err := src.Scan(
		&member.ID,
		&member.Name,
		&member.Email,
		&member.EmailNotifications,
		&member.Role,
		&member.DeletedAt,
		&member.CreatedAt,
		&member.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return member, nil
}
