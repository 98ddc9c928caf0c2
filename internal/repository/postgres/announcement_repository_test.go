package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kirkhezir/church-app-sub002/internal/model"
	"github.com/kirkhezir/church-app-sub002/internal/repository"
)

func TestAnnouncementRepository_Lifecycle(t *testing.T) {
	pool := startPostgresForTest(t)
	repo := NewAnnouncementRepository(pool)
	ctx := context.Background()

	authorID := seedMember(t, ctx, pool, model.MemberRoleStaff, strPtr("staff@example.org"), nil, false)
	now := time.Now().UTC().Truncate(time.Microsecond)

	item, err := model.NewAnnouncement(uuid.New(), "Potluck dinner", "Bring a dish to share.", model.AnnouncementPriorityUrgent, authorID, now)
	if err != nil {
		t.Fatalf("NewAnnouncement: %v", err)
	}
	if err := repo.Create(ctx, item); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.FindByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if got.Title != item.Title || got.Priority != model.AnnouncementPriorityUrgent || got.AuthorID != authorID {
		t.Fatalf("unexpected announcement: %+v", got)
	}
	if !got.PublishedAt.Equal(now) {
		t.Fatalf("expected published_at %s, got %s", now, got.PublishedAt)
	}

	content := "Bring a dish and a friend."
	if err := got.UpdateDetails(model.AnnouncementPatch{Content: &content}, now.Add(time.Minute)); err != nil {
		t.Fatalf("UpdateDetails: %v", err)
	}
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got.Archive(now.Add(2 * time.Minute))
	if err := repo.Archive(ctx, got); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	archived, err := repo.FindByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("FindByID after archive: %v", err)
	}
	if archived.ArchivedAt == nil || archived.Content != content {
		t.Fatalf("unexpected archived announcement: %+v", archived)
	}

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected archived announcement to be hidden from active list, got %d", len(active))
	}

	archived.Delete(now.Add(3 * time.Minute))
	if err := repo.Delete(ctx, archived); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := repo.FindByID(ctx, item.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := repo.Delete(ctx, archived); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	counts, err := repo.CountByState(ctx)
	if err != nil {
		t.Fatalf("CountByState: %v", err)
	}
	if counts[repository.AnnouncementStateDeleted] != 1 || counts[repository.AnnouncementStatePublished] != 0 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestAnnouncementRepository_UpdateSkipsArchivedRows(t *testing.T) {
	pool := startPostgresForTest(t)
	repo := NewAnnouncementRepository(pool)
	ctx := context.Background()

	authorID := seedMember(t, ctx, pool, model.MemberRoleAdmin, strPtr("admin@example.org"), nil, false)
	item, err := model.NewAnnouncement(uuid.New(), "Board meeting", "Agenda attached.", model.AnnouncementPriorityNormal, authorID, time.Now())
	if err != nil {
		t.Fatalf("NewAnnouncement: %v", err)
	}
	if err := repo.Create(ctx, item); err != nil {
		t.Fatalf("Create: %v", err)
	}

	item.Archive(time.Now())
	if err := repo.Archive(ctx, item); err != nil {
		t.Fatalf("Archive: %v", err)
	}

	if err := repo.Update(ctx, item); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound when updating an archived row, got %v", err)
	}
}

func TestAnnouncementRepository_FindByID_NotFound(t *testing.T) {
	pool := startPostgresForTest(t)
	repo := NewAnnouncementRepository(pool)

	item, err := repo.FindByID(context.Background(), uuid.New())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if item != nil {
		t.Fatalf("expected nil announcement, got %+v", item)
	}
}

func TestAnnouncementRepository_ArchiveKeepsFirstTimestamp(t *testing.T) {
	pool := startPostgresForTest(t)
	repo := NewAnnouncementRepository(pool)
	ctx := context.Background()

	authorID := seedMember(t, ctx, pool, model.MemberRoleStaff, strPtr("staff@example.org"), nil, false)
	now := time.Now().UTC().Truncate(time.Microsecond)
	item, err := model.NewAnnouncement(uuid.New(), "Parking lot closed", "Use the side street.", model.AnnouncementPriorityNormal, authorID, now)
	if err != nil {
		t.Fatalf("NewAnnouncement: %v", err)
	}
	if err := repo.Create(ctx, item); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Two writers loaded the row before either archived it.
	first := item.Clone()
	second := item.Clone()
	first.Archive(now.Add(time.Minute))
	second.Archive(now.Add(2 * time.Minute))

	if err := repo.Archive(ctx, first); err != nil {
		t.Fatalf("first Archive: %v", err)
	}
	if err := repo.Archive(ctx, second); err != nil {
		t.Fatalf("second Archive should be a no-op, got %v", err)
	}

	stored, err := repo.FindByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if stored.ArchivedAt == nil || !stored.ArchivedAt.Equal(*first.ArchivedAt) {
		t.Fatalf("expected archived_at %s, got %v", *first.ArchivedAt, stored.ArchivedAt)
	}

	// Unarchive twice from the same stale copy: the second write changes nothing.
	restoreA := stored.Clone()
	restoreB := stored.Clone()
	restoreA.Unarchive(now.Add(3 * time.Minute))
	restoreB.Unarchive(now.Add(4 * time.Minute))
	if err := repo.Archive(ctx, restoreA); err != nil {
		t.Fatalf("first Unarchive: %v", err)
	}
	if err := repo.Archive(ctx, restoreB); err != nil {
		t.Fatalf("second Unarchive should be a no-op, got %v", err)
	}
	restored, err := repo.FindByID(ctx, item.ID)
	if err != nil {
		t.Fatalf("FindByID after unarchive: %v", err)
	}
	if restored.ArchivedAt != nil || !restored.UpdatedAt.Equal(restoreA.UpdatedAt) {
		t.Fatalf("expected the first unarchive to win, got %+v", restored)
	}

	missing := item.Clone()
	missing.ID = uuid.New()
	missing.Archive(now)
	if err := repo.Archive(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a missing row, got %v", err)
	}
}
