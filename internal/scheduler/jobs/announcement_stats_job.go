package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kirkhezir/church-app-sub002/internal/metrics"
	"github.com/kirkhezir/church-app-sub002/internal/repository"
)

var trackedAnnouncementStates = []repository.AnnouncementState{
	repository.AnnouncementStatePublished,
	repository.AnnouncementStateArchived,
	repository.AnnouncementStateDeleted,
}

type AnnouncementStatsJob struct {
	announcements repository.AnnouncementRepository
	timeout       time.Duration
	logger        *zap.Logger
}

func NewAnnouncementStatsJob(announcements repository.AnnouncementRepository, logger *zap.Logger) *AnnouncementStatsJob {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AnnouncementStatsJob{
		announcements: announcements,
		timeout:       30 * time.Second,
		logger:        logger,
	}
}

// Collect refreshes the per-state announcement gauge. States missing from
// the query result are reported as zero.
func (j *AnnouncementStatsJob) Collect() {
	if j == nil || j.announcements == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	counts, err := j.announcements.CountByState(ctx)
	if err != nil {
		j.logger.Warn("collect announcement stats failed", zap.Error(err))
		return
	}

	for _, state := range trackedAnnouncementStates {
		metrics.SetAnnouncementCount(string(state), counts[state])
	}
}
