package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kirkhezir/church-app-sub002/internal/metrics"
	"github.com/kirkhezir/church-app-sub002/internal/model"
	"github.com/kirkhezir/church-app-sub002/pkg/mailer"
	tplfs "github.com/kirkhezir/church-app-sub002/templates"
)

const (
	DefaultNotificationBatchSize   = 10
	DefaultNotificationBatchDelay  = 100 * time.Millisecond
	DefaultNotificationSendTimeout = 30 * time.Second

	urgentAnnouncementTag = "urgent-announcement"
)

const (
	urgentSubjectTemplate = "notifications/urgent_announcement_subject.tmpl"
	urgentTextTemplate    = "notifications/urgent_announcement_text.tmpl"
	urgentHTMLTemplate    = "notifications/urgent_announcement_html.tmpl"
)

var ErrInvalidDispatcherConfig = errors.New("invalid notification dispatcher config")

type RecipientLister interface {
	Select(ctx context.Context, authorID uuid.UUID) ([]model.Member, error)
}

type DispatcherConfig struct {
	// BatchSize is both the batch length and the number of sends in flight.
	BatchSize int
	// BatchDelay is the fixed pause between two batches.
	BatchDelay  time.Duration
	SendTimeout time.Duration
	// PortalBaseURL, when set, adds a link to the announcement in the email.
	PortalBaseURL string
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		BatchSize:   DefaultNotificationBatchSize,
		BatchDelay:  DefaultNotificationBatchDelay,
		SendTimeout: DefaultNotificationSendTimeout,
	}
}

func (c DispatcherConfig) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be greater than 0", ErrInvalidDispatcherConfig)
	}
	if c.BatchDelay < 0 {
		return fmt.Errorf("%w: batch delay must not be negative", ErrInvalidDispatcherConfig)
	}
	if c.SendTimeout < 0 {
		return fmt.Errorf("%w: send timeout must not be negative", ErrInvalidDispatcherConfig)
	}
	return nil
}

var errDispatchArgs = errors.New("announcement and author are required")

type DispatchFailure struct {
	MemberID uuid.UUID
	Email    string
	Err      error
}

func (f DispatchFailure) Error() string {
	return fmt.Sprintf("notify member %s <%s>: %v", f.MemberID, f.Email, f.Err)
}

func (f DispatchFailure) Unwrap() error {
	return f.Err
}

// DispatchReport is the outcome of one fan-out run. Err is set only when the
// run could not start, e.g. the recipient listing failed.
type DispatchReport struct {
	AnnouncementID uuid.UUID
	Audience       int
	BatchSizes     []int
	Sent           int
	Failed         int
	Failures       []DispatchFailure
	Err            error
	StartedAt      time.Time
	FinishedAt     time.Time
}

type NotificationDispatcher struct {
	selector RecipientLister
	gateway  mailer.Gateway
	cfg      DispatcherConfig
	logger   *zap.Logger

	subjectTpl *template.Template
	textTpl    *template.Template
	htmlTpl    *htmltemplate.Template

	inFlight sync.WaitGroup
}

func NewNotificationDispatcher(
	selector RecipientLister,
	gateway mailer.Gateway,
	cfg DispatcherConfig,
	logger *zap.Logger,
) (*NotificationDispatcher, error) {
	if selector == nil {
		return nil, errors.New("recipient selector is nil")
	}
	if gateway == nil {
		return nil, errors.New("mail gateway is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	subjectTpl, err := template.ParseFS(tplfs.NotificationTemplateFS, urgentSubjectTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse subject template: %w", err)
	}
	textTpl, err := template.ParseFS(tplfs.NotificationTemplateFS, urgentTextTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse text template: %w", err)
	}
	htmlTpl, err := htmltemplate.ParseFS(tplfs.NotificationTemplateFS, urgentHTMLTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse html template: %w", err)
	}

	return &NotificationDispatcher{
		selector:   selector,
		gateway:    gateway,
		cfg:        cfg,
		logger:     logger,
		subjectTpl: subjectTpl,
		textTpl:    textTpl,
		htmlTpl:    htmlTpl,
	}, nil
}

// Dispatch starts a detached fan-out run and returns immediately. The run
// works on copies of its arguments, is not tied to any caller context and
// cannot be cancelled. The returned channel receives exactly one report and
// is then closed; callers are free to ignore it.
func (d *NotificationDispatcher) Dispatch(announcement *model.Announcement, author *model.Member) <-chan DispatchReport {
	done := make(chan DispatchReport, 1)
	if announcement == nil || author == nil {
		done <- DispatchReport{Err: errDispatchArgs}
		close(done)
		return done
	}

	snapshot := announcement.Clone()
	authorSnapshot := *author

	d.inFlight.Add(1)
	go func() {
		defer d.inFlight.Done()
		defer close(done)
		done <- d.runDetached(snapshot, &authorSnapshot)
	}()
	return done
}

// Wait blocks until every started run has finished or ctx is done.
func (d *NotificationDispatcher) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		d.inFlight.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *NotificationDispatcher) runDetached(announcement *model.Announcement, author *model.Member) (report DispatchReport) {
	defer func() {
		if recovered := recover(); recovered != nil {
			report.AnnouncementID = announcement.ID
			report.Err = fmt.Errorf("dispatch panic: %v", recovered)
			report.FinishedAt = time.Now().UTC()
			d.logger.Error("urgent announcement dispatch panic recovered",
				zap.String("announcement_id", announcement.ID.String()),
				zap.Any("panic", recovered),
			)
		}
	}()

	return d.Run(context.Background(), announcement, author)
}

// Run performs one fan-out synchronously. Batches run strictly in order;
// sends inside a batch run concurrently and a failed send never stops the
// others.
func (d *NotificationDispatcher) Run(ctx context.Context, announcement *model.Announcement, author *model.Member) DispatchReport {
	if announcement == nil || author == nil {
		now := time.Now().UTC()
		return DispatchReport{Err: errDispatchArgs, StartedAt: now, FinishedAt: now}
	}

	report := DispatchReport{
		AnnouncementID: announcement.ID,
		StartedAt:      time.Now().UTC(),
	}

	metrics.DispatchStarted()
	defer metrics.DispatchFinished()

	logger := d.logger.With(zap.String("announcement_id", announcement.ID.String()))

	recipients, err := d.selector.Select(ctx, author.ID)
	if err != nil {
		report.Err = fmt.Errorf("select recipients: %w", err)
		report.FinishedAt = time.Now().UTC()
		metrics.IncDispatchRun("failed")
		logger.Error("urgent announcement dispatch aborted", zap.Error(report.Err))
		return report
	}

	report.Audience = len(recipients)
	if len(recipients) == 0 {
		report.FinishedAt = time.Now().UTC()
		metrics.IncDispatchRun("empty")
		logger.Info("urgent announcement has no eligible recipients")
		return report
	}

	batches := partitionRecipients(recipients, d.cfg.BatchSize)
	report.BatchSizes = make([]int, 0, len(batches))

	for i, batch := range batches {
		if i > 0 && d.cfg.BatchDelay > 0 {
			time.Sleep(d.cfg.BatchDelay)
		}

		failures := d.sendBatch(ctx, announcement, author, batch)
		report.BatchSizes = append(report.BatchSizes, len(batch))
		report.Sent += len(batch) - len(failures)
		report.Failed += len(failures)
		report.Failures = append(report.Failures, failures...)
	}

	report.FinishedAt = time.Now().UTC()
	d.logSummary(logger, report)
	return report
}

func (d *NotificationDispatcher) sendBatch(
	ctx context.Context,
	announcement *model.Announcement,
	author *model.Member,
	batch []model.Member,
) []DispatchFailure {
	startedAt := time.Now()
	outcomes := make([]error, len(batch))

	var group errgroup.Group
	group.SetLimit(d.cfg.BatchSize)
	for i := range batch {
		i := i
		group.Go(func() error {
			outcomes[i] = d.sendOne(ctx, announcement, author, &batch[i])
			return nil
		})
	}
	_ = group.Wait()

	metrics.ObserveBatchDuration(time.Since(startedAt))

	var failures []DispatchFailure
	for i, err := range outcomes {
		if err == nil {
			continue
		}
		failures = append(failures, DispatchFailure{
			MemberID: batch[i].ID,
			Email:    batch[i].ContactEmail(),
			Err:      err,
		})
	}
	metrics.AddNotificationSends(len(batch)-len(failures), len(failures))
	return failures
}

func (d *NotificationDispatcher) sendOne(
	ctx context.Context,
	announcement *model.Announcement,
	author *model.Member,
	recipient *model.Member,
) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("send panic: %v", recovered)
		}
	}()

	msg, err := d.renderMessage(announcement, author, recipient)
	if err != nil {
		return err
	}

	sendCtx := ctx
	if d.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
	}

	return d.gateway.Send(sendCtx, msg)
}

type urgentAnnouncementView struct {
	RecipientName string
	AuthorName    string
	Title         string
	Content       string
	Link          string
}

func (d *NotificationDispatcher) renderMessage(
	announcement *model.Announcement,
	author *model.Member,
	recipient *model.Member,
) (mailer.Message, error) {
	view := urgentAnnouncementView{
		RecipientName: displayName(recipient),
		AuthorName:    displayName(author),
		Title:         announcement.Title,
		Content:       announcement.Content,
		Link:          announcementLink(d.cfg.PortalBaseURL, announcement.ID),
	}

	var subject, text, html bytes.Buffer
	if err := d.subjectTpl.Execute(&subject, view); err != nil {
		return mailer.Message{}, fmt.Errorf("render subject: %w", err)
	}
	if err := d.textTpl.Execute(&text, view); err != nil {
		return mailer.Message{}, fmt.Errorf("render text body: %w", err)
	}
	if err := d.htmlTpl.Execute(&html, view); err != nil {
		return mailer.Message{}, fmt.Errorf("render html body: %w", err)
	}

	return mailer.Message{
		To:      recipient.ContactEmail(),
		Subject: strings.TrimSpace(subject.String()),
		Text:    text.String(),
		HTML:    html.String(),
		Tag:     urgentAnnouncementTag,
	}, nil
}

type dispatchFailureLog struct {
	MemberID string `json:"member_id"`
	Email    string `json:"email"`
	Error    string `json:"error"`
}

func (d *NotificationDispatcher) logSummary(logger *zap.Logger, report DispatchReport) {
	duration := report.FinishedAt.Sub(report.StartedAt)
	metrics.ObserveDispatchDuration(duration)

	fields := []zap.Field{
		zap.Int("audience", report.Audience),
		zap.Int("batches", len(report.BatchSizes)),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", duration),
	}

	if report.Failed == 0 {
		metrics.IncDispatchRun("completed")
		logger.Info("urgent announcement dispatch finished", fields...)
		return
	}

	details := make([]dispatchFailureLog, 0, len(report.Failures))
	for _, failure := range report.Failures {
		details = append(details, dispatchFailureLog{
			MemberID: failure.MemberID.String(),
			Email:    failure.Email,
			Error:    failure.Err.Error(),
		})
	}
	fields = append(fields, zap.Any("failures", details))

	metrics.IncDispatchRun("partial")
	logger.Warn("urgent announcement dispatch finished with failures", fields...)
}

func partitionRecipients(recipients []model.Member, size int) [][]model.Member {
	if size <= 0 || len(recipients) == 0 {
		return nil
	}

	batches := make([][]model.Member, 0, (len(recipients)+size-1)/size)
	for start := 0; start < len(recipients); start += size {
		end := min(start+size, len(recipients))
		batches = append(batches, recipients[start:end])
	}
	return batches
}

func displayName(member *model.Member) string {
	if member == nil {
		return "A member"
	}
	if name := strings.TrimSpace(member.Name); name != "" {
		return name
	}
	if email := member.ContactEmail(); email != "" {
		return email
	}
	return "A member"
}

func announcementLink(baseURL string, id uuid.UUID) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return ""
	}
	return base + "/announcements/" + id.String()
}
