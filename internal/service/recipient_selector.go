package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/kirkhezir/church-app-sub002/internal/model"
	"github.com/kirkhezir/church-app-sub002/internal/repository"
)

// RecipientSelector computes who receives an urgent announcement email.
type RecipientSelector struct {
	members repository.MemberRepository
}

func NewRecipientSelector(members repository.MemberRepository) *RecipientSelector {
	return &RecipientSelector{members: members}
}

// Select returns active members with a contact email and notifications
// enabled, excluding the author. The result is unordered.
func (s *RecipientSelector) Select(ctx context.Context, authorID uuid.UUID) ([]model.Member, error) {
	if s.members == nil {
		return nil, errors.New("member repository is nil")
	}

	members, err := s.members.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.Member, 0, len(members))
	for _, member := range members {
		if !isEligibleRecipient(member, authorID) {
			continue
		}
		out = append(out, *member)
	}
	return out, nil
}

func isEligibleRecipient(member *model.Member, authorID uuid.UUID) bool {
	switch {
	case member == nil:
		return false
	case member.ID == authorID:
		return false
	case member.IsDeleted():
		return false
	case !member.EmailNotifications:
		return false
	default:
		return member.ContactEmail() != ""
	}
}
