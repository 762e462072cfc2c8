package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/store"
)

const maxNameLength = 120

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Service manages the bookable services of a business. Changes never touch
// appointments that were already booked; those keep their own copy of name,
// duration and cost.
type Service struct {
	repo store.Repository
}

func NewService(repo store.Repository) *Service {
	return &Service{repo: repo}
}

type CreateInput struct {
	OwnerID         string
	Name            string
	DurationMinutes int
	Price           int64
}

type UpdateInput struct {
	OwnerID         string
	ID              uuid.UUID
	Name            *string
	DurationMinutes *int
	Price           *int64
}

func (s *Service) Create(ctx context.Context, in CreateInput) (domain.Service, error) {
	if in.OwnerID == "" {
		return domain.Service{}, validationError("owner_id is required")
	}
	svc := domain.Service{
		OwnerID:         in.OwnerID,
		Name:            strings.TrimSpace(in.Name),
		DurationMinutes: in.DurationMinutes,
		Price:           in.Price,
	}
	if err := validate(svc); err != nil {
		return domain.Service{}, err
	}

	var out domain.Service
	err := s.repo.InBusinessTransaction(ctx, in.OwnerID, func(ctx context.Context, tx store.BusinessTx) error {
		created, err := tx.CreateService(ctx, svc)
		if err != nil {
			return err
		}
		out = created
		return nil
	})
	if err != nil {
		return domain.Service{}, err
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, ownerID string) ([]domain.Service, error) {
	if ownerID == "" {
		return nil, validationError("owner_id is required")
	}
	return s.repo.ListServices(ctx, ownerID)
}

// Update applies the non-nil fields of in to the owner's service.
func (s *Service) Update(ctx context.Context, in UpdateInput) (domain.Service, error) {
	if in.OwnerID == "" {
		return domain.Service{}, validationError("owner_id is required")
	}
	if in.ID == uuid.Nil {
		return domain.Service{}, validationError("service_id is required")
	}
	if in.Name == nil && in.DurationMinutes == nil && in.Price == nil {
		return domain.Service{}, validationError("no fields to update")
	}

	var out domain.Service
	err := s.repo.InBusinessTransaction(ctx, in.OwnerID, func(ctx context.Context, tx store.BusinessTx) error {
		services, err := tx.ListServices(ctx, in.OwnerID)
		if err != nil {
			return err
		}
		var current *domain.Service
		for i := range services {
			if services[i].ID == in.ID {
				current = &services[i]
				break
			}
		}
		if current == nil {
			return store.ErrNotFound
		}

		next := *current
		if in.Name != nil {
			next.Name = strings.TrimSpace(*in.Name)
		}
		if in.DurationMinutes != nil {
			next.DurationMinutes = *in.DurationMinutes
		}
		if in.Price != nil {
			next.Price = *in.Price
		}
		if err := validate(next); err != nil {
			return err
		}

		updated, err := tx.UpdateService(ctx, next)
		if err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return domain.Service{}, err
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	if ownerID == "" {
		return validationError("owner_id is required")
	}
	if id == uuid.Nil {
		return validationError("service_id is required")
	}
	return s.repo.InBusinessTransaction(ctx, ownerID, func(ctx context.Context, tx store.BusinessTx) error {
		return tx.DeleteService(ctx, ownerID, id)
	})
}

func validate(svc domain.Service) error {
	switch {
	case svc.Name == "":
		return validationError("name is required")
	case len(svc.Name) > maxNameLength:
		return validationError("name is too long")
	case svc.DurationMinutes < 1 || svc.DurationMinutes > domain.MinutesPerDay:
		return validationError("duration must be between 1 and 1440 minutes")
	case svc.Price < 0:
		return validationError("price must not be negative")
	}
	return nil
}
