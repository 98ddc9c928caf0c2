package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kirkhezir/church-app-sub002/internal/model"
	"github.com/kirkhezir/church-app-sub002/internal/repository"
	"github.com/kirkhezir/church-app-sub002/pkg/mailer"
)

type memoryAnnouncementRepo struct {
	mu       sync.Mutex
	items    map[uuid.UUID]*model.Announcement
	creates  int
	updates  int
	archives int
	deletes  int
	failWith error
}

func newMemoryAnnouncementRepo() *memoryAnnouncementRepo {
	return &memoryAnnouncementRepo{items: make(map[uuid.UUID]*model.Announcement)}
}

func (r *memoryAnnouncementRepo) put(item *model.Announcement) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[item.ID] = item.Clone()
}

func (r *memoryAnnouncementRepo) stored(id uuid.UUID) *model.Announcement {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok {
		return nil
	}
	return item.Clone()
}

func (r *memoryAnnouncementRepo) Create(_ context.Context, announcement *model.Announcement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWith != nil {
		return r.failWith
	}
	r.creates++
	r.items[announcement.ID] = announcement.Clone()
	return nil
}

func (r *memoryAnnouncementRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Announcement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	item, ok := r.items[id]
	if !ok || item.IsDeleted() {
		return nil, repository.ErrNotFound
	}
	return item.Clone(), nil
}

func (r *memoryAnnouncementRepo) Update(_ context.Context, announcement *model.Announcement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	return r.replace(announcement)
}

func (r *memoryAnnouncementRepo) Archive(_ context.Context, announcement *model.Announcement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archives++
	return r.replace(announcement)
}

func (r *memoryAnnouncementRepo) Delete(_ context.Context, announcement *model.Announcement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deletes++
	return r.replace(announcement)
}

func (r *memoryAnnouncementRepo) replace(announcement *model.Announcement) error {
	current, ok := r.items[announcement.ID]
	if !ok || current.IsDeleted() {
		return repository.ErrNotFound
	}
	r.items[announcement.ID] = announcement.Clone()
	return nil
}

func (r *memoryAnnouncementRepo) ListActive(_ context.Context) ([]*model.Announcement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Announcement, 0, len(r.items))
	for _, item := range r.items {
		if item.IsDeleted() || item.IsArchived() {
			continue
		}
		out = append(out, item.Clone())
	}
	return out, nil
}

func (r *memoryAnnouncementRepo) CountByState(_ context.Context) (map[repository.AnnouncementState]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := map[repository.AnnouncementState]int64{}
	for _, item := range r.items {
		switch {
		case item.IsDeleted():
			counts[repository.AnnouncementStateDeleted]++
		case item.IsArchived():
			counts[repository.AnnouncementStateArchived]++
		default:
			counts[repository.AnnouncementStatePublished]++
		}
	}
	return counts, nil
}

type memoryMemberRepo struct {
	members  []*model.Member
	listErr  error
	listHits atomic.Int32
}

func (r *memoryMemberRepo) FindByID(_ context.Context, id uuid.UUID) (*model.Member, error) {
	for _, member := range r.members {
		if member.ID == id && !member.IsDeleted() {
			copied := *member
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memoryMemberRepo) FindAll(_ context.Context) ([]*model.Member, error) {
	r.listHits.Add(1)
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]*model.Member, 0, len(r.members))
	for _, member := range r.members {
		copied := *member
		out = append(out, &copied)
	}
	return out, nil
}

func newMember(role model.MemberRole, email string) *model.Member {
	now := time.Now().UTC()
	member := &model.Member{
		ID:                 uuid.New(),
		Name:               "Member " + email,
		EmailNotifications: true,
		Role:               role,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if email != "" {
		member.Email = &email
	}
	return member
}

func eligibleMembers(n int) []*model.Member {
	out := make([]*model.Member, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, newMember(model.MemberRoleMember, fmt.Sprintf("member%02d@example.org", i)))
	}
	return out
}

// recordingGateway records every message and can fail or panic for chosen
// recipients.
type recordingGateway struct {
	mu      sync.Mutex
	sent    []mailer.Message
	failFor map[string]error
	panicOn map[string]bool
}

func (g *recordingGateway) Send(_ context.Context, msg mailer.Message) error {
	if g.panicOn[msg.To] {
		panic("gateway exploded")
	}
	if err, ok := g.failFor[msg.To]; ok {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, msg)
	return nil
}

func (g *recordingGateway) messages() []mailer.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]mailer.Message(nil), g.sent...)
}

var errSMTPDown = errors.New("smtp down")

type capturingNotifier struct {
	mu      sync.Mutex
	calls   int
	authors []uuid.UUID
	items   []*model.Announcement
	panics  bool
}

func (n *capturingNotifier) Dispatch(announcement *model.Announcement, author *model.Member) <-chan DispatchReport {
	n.mu.Lock()
	n.calls++
	n.authors = append(n.authors, author.ID)
	n.items = append(n.items, announcement)
	n.mu.Unlock()

	if n.panics {
		panic("notifier exploded")
	}

	done := make(chan DispatchReport, 1)
	close(done)
	return done
}

func (n *capturingNotifier) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

type recordingPublisher struct {
	mu      sync.Mutex
	actions []string
	items   []*model.Announcement
}

func (p *recordingPublisher) PublishAnnouncement(action string, item *model.Announcement) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, action)
	p.items = append(p.items, item)
}
