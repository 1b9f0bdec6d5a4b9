package service

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/flicky/spice-storefront/internal/apperr"
	"github.com/flicky/spice-storefront/internal/dto"
	"github.com/flicky/spice-storefront/internal/model"
	"github.com/flicky/spice-storefront/internal/repository"
)

type mockAddressRepo struct {
	addresses map[uuid.UUID]*model.Address
	clock     time.Time
}

func newMockAddressRepo() *mockAddressRepo {
	return &mockAddressRepo{
		addresses: make(map[uuid.UUID]*model.Address),
		clock:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *mockAddressRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *mockAddressRepo) clearDefault(userID, except uuid.UUID) {
	for _, a := range m.addresses {
		if a.UserID == userID && a.ID != except {
			a.IsDefault = false
		}
	}
}

func (m *mockAddressRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Address, error) {
	var out []model.Address
	for _, a := range m.addresses {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *mockAddressRepo) GetByID(_ context.Context, userID, id uuid.UUID) (*model.Address, error) {
	a, ok := m.addresses[id]
	if !ok || a.UserID != userID {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *mockAddressRepo) Create(_ context.Context, addr *model.Address) error {
	addr.ID = uuid.New()
	addr.CreatedAt = m.tick()
	addr.UpdatedAt = addr.CreatedAt
	if addr.IsDefault {
		m.clearDefault(addr.UserID, addr.ID)
	}
	cp := *addr
	m.addresses[addr.ID] = &cp
	return nil
}

func (m *mockAddressRepo) Update(_ context.Context, addr *model.Address) error {
	if _, ok := m.addresses[addr.ID]; !ok {
		return repository.ErrNotFound
	}
	if addr.IsDefault {
		m.clearDefault(addr.UserID, addr.ID)
	}
	addr.UpdatedAt = m.tick()
	cp := *addr
	m.addresses[addr.ID] = &cp
	return nil
}

func (m *mockAddressRepo) Delete(_ context.Context, userID, id uuid.UUID) error {
	a, ok := m.addresses[id]
	if !ok || a.UserID != userID {
		return repository.ErrNotFound
	}
	delete(m.addresses, id)
	return nil
}

func (m *mockAddressRepo) DeleteAll(_ context.Context, userID uuid.UUID) error {
	for id, a := range m.addresses {
		if a.UserID == userID {
			delete(m.addresses, id)
		}
	}
	return nil
}

func homeAddress() dto.CreateAddressRequest {
	return dto.CreateAddressRequest{
		Street:  "12 MG Road",
		City:    "Bengaluru",
		State:   "Karnataka",
		Pincode: "560001",
	}
}

func TestAddressService_CreateDefaults(t *testing.T) {
	svc := NewAddressService(newMockAddressRepo(), zap.NewNop())

	addr, err := svc.Create(context.Background(), uuid.New(), homeAddress())
	require.NoError(t, err)
	assert.Equal(t, "home", addr.Label)
	assert.Equal(t, "India", addr.Country)
	assert.Equal(t, "12 MG Road, Bengaluru, Karnataka - 560001", addr.Display())
}

func TestAddressService_CreateRejectsDuplicate(t *testing.T) {
	svc := NewAddressService(newMockAddressRepo(), zap.NewNop())
	userID := uuid.New()

	_, err := svc.Create(context.Background(), userID, homeAddress())
	require.NoError(t, err)

	dup := homeAddress()
	dup.Street = "12 mg road "
	dup.Label = "office"
	_, err = svc.Create(context.Background(), userID, dup)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
	assert.EqualError(t, err, "Address already exists")

	_, err = svc.Create(context.Background(), uuid.New(), homeAddress())
	require.NoError(t, err)
}

func TestAddressService_SingleDefault(t *testing.T) {
	svc := NewAddressService(newMockAddressRepo(), zap.NewNop())
	userID := uuid.New()

	first := homeAddress()
	first.IsDefault = true
	a, err := svc.Create(context.Background(), userID, first)
	require.NoError(t, err)

	second := homeAddress()
	second.Street = "4 Park Street"
	second.IsDefault = true
	b, err := svc.Create(context.Background(), userID, second)
	require.NoError(t, err)

	list, err := svc.List(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, b.ID, list[0].ID)
	assert.True(t, list[0].IsDefault)
	assert.False(t, list[1].IsDefault)

	_, err = svc.Update(context.Background(), userID, a.ID, dto.UpdateAddressRequest{IsDefault: boolPtr(true)})
	require.NoError(t, err)

	list, err = svc.List(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, list[0].ID)
	defaults := 0
	for _, addr := range list {
		if addr.IsDefault {
			defaults++
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestAddressService_Update(t *testing.T) {
	svc := NewAddressService(newMockAddressRepo(), zap.NewNop())
	userID := uuid.New()

	a, err := svc.Create(context.Background(), userID, homeAddress())
	require.NoError(t, err)
	other := homeAddress()
	other.Street = "4 Park Street"
	_, err = svc.Create(context.Background(), userID, other)
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), userID, a.ID, dto.UpdateAddressRequest{
		Label: strPtr("office"),
		City:  strPtr("Bangalore"),
	})
	require.NoError(t, err)
	assert.Equal(t, "office", updated.Label)
	assert.Equal(t, "Bangalore", updated.City)

	_, err = svc.Update(context.Background(), userID, a.ID, dto.UpdateAddressRequest{Street: strPtr("4 Park Street")})
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	_, err = svc.Update(context.Background(), uuid.New(), a.ID, dto.UpdateAddressRequest{City: strPtr("Mysuru")})
	assert.Equal(t, apperr.NotFound, apperr.KindOf(err))
}

func TestAddressService_Delete(t *testing.T) {
	repo := newMockAddressRepo()
	svc := NewAddressService(repo, zap.NewNop())
	userID := uuid.New()

	a, err := svc.Create(context.Background(), userID, homeAddress())
	require.NoError(t, err)

	assert.Equal(t, apperr.NotFound, apperr.KindOf(svc.Delete(context.Background(), uuid.New(), a.ID)))
	require.NoError(t, svc.Delete(context.Background(), userID, a.ID))
	assert.Equal(t, apperr.NotFound, apperr.KindOf(svc.Delete(context.Background(), userID, a.ID)))

	_, err = svc.Create(context.Background(), userID, homeAddress())
	require.NoError(t, err)
	require.NoError(t, svc.DeleteAll(context.Background(), userID))
	assert.Empty(t, repo.addresses)
}
