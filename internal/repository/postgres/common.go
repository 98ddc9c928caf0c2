package postgres

import (
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirkhezir/church-app-sub002/internal/repository"
)

var ErrNotFound = repository.ErrNotFound

type scanTarget interface {
	Scan(dest ...any) error
}

func ensureAffected(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
