package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flicky/spice-storefront/internal/apperr"
	"github.com/flicky/spice-storefront/internal/dto"
	"github.com/flicky/spice-storefront/internal/model"
	"github.com/flicky/spice-storefront/internal/repository"
)

const (
	defaultAddressLabel   = "home"
	defaultAddressCountry = "India"
)

type AddressService struct {
	addressRepo repository.AddressRepository
	log         *zap.Logger
}

func NewAddressService(addressRepo repository.AddressRepository, log *zap.Logger) *AddressService {
	return &AddressService{addressRepo: addressRepo, log: log}
}

func (s *AddressService) List(ctx context.Context, userID uuid.UUID) ([]model.Address, error) {
	addrs, err := s.addressRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	return addrs, nil
}

// Create saves a new address. An address with the same street and pincode
// as a saved one is rejected; a default address clears its siblings' flag.
func (s *AddressService) Create(ctx context.Context, userID uuid.UUID, req dto.CreateAddressRequest) (*model.Address, error) {
	addr := &model.Address{
		UserID:    userID,
		Label:     orDefault(req.Label, defaultAddressLabel),
		Street:    strings.TrimSpace(req.Street),
		City:      strings.TrimSpace(req.City),
		State:     strings.TrimSpace(req.State),
		Pincode:   strings.TrimSpace(req.Pincode),
		Country:   orDefault(req.Country, defaultAddressCountry),
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		IsDefault: req.IsDefault,
	}

	if err := s.checkDuplicate(ctx, userID, uuid.Nil, addr.Street, addr.Pincode); err != nil {
		return nil, err
	}

	if err := s.addressRepo.Create(ctx, addr); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, apperr.New(apperr.Conflict, "Address already exists")
		}
		return nil, fmt.Errorf("create address: %w", err)
	}
	return addr, nil
}

// Update applies a partial update to one of the user's addresses.
func (s *AddressService) Update(ctx context.Context, userID, id uuid.UUID, req dto.UpdateAddressRequest) (*model.Address, error) {
	addr, err := s.addressRepo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("get address: %w", err)
	}
	if addr == nil {
		return nil, apperr.New(apperr.NotFound, "Address not found")
	}

	if req.Label != nil {
		addr.Label = orDefault(*req.Label, defaultAddressLabel)
	}
	if req.Street != nil {
		addr.Street = strings.TrimSpace(*req.Street)
	}
	if req.City != nil {
		addr.City = strings.TrimSpace(*req.City)
	}
	if req.State != nil {
		addr.State = strings.TrimSpace(*req.State)
	}
	if req.Pincode != nil {
		addr.Pincode = strings.TrimSpace(*req.Pincode)
	}
	if req.Country != nil {
		addr.Country = orDefault(*req.Country, defaultAddressCountry)
	}
	if req.Latitude != nil {
		addr.Latitude = req.Latitude
	}
	if req.Longitude != nil {
		addr.Longitude = req.Longitude
	}
	if req.IsDefault != nil {
		addr.IsDefault = *req.IsDefault
	}

	if req.Street != nil || req.Pincode != nil {
		if err := s.checkDuplicate(ctx, userID, id, addr.Street, addr.Pincode); err != nil {
			return nil, err
		}
	}

	if err := s.addressRepo.Update(ctx, addr); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, apperr.New(apperr.NotFound, "Address not found")
		case errors.Is(err, repository.ErrDuplicateKey):
			return nil, apperr.New(apperr.Conflict, "Address already exists")
		}
		return nil, fmt.Errorf("update address: %w", err)
	}
	return addr, nil
}

func (s *AddressService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	if err := s.addressRepo.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.New(apperr.NotFound, "Address not found")
		}
		return fmt.Errorf("delete address: %w", err)
	}
	return nil
}

func (s *AddressService) DeleteAll(ctx context.Context, userID uuid.UUID) error {
	if err := s.addressRepo.DeleteAll(ctx, userID); err != nil {
		return fmt.Errorf("delete addresses: %w", err)
	}
	return nil
}

// checkDuplicate rejects street+pincode already used by another of the
// user's addresses. except is skipped.
func (s *AddressService) checkDuplicate(ctx context.Context, userID, except uuid.UUID, street, pincode string) error {
	existing, err := s.addressRepo.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list addresses: %w", err)
	}
	for i := range existing {
		if existing[i].ID != except && existing[i].SameLocation(street, pincode) {
			return apperr.New(apperr.Conflict, "Address already exists")
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
