package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"zapisnik/internal/database"
	"zapisnik/internal/models"
	"zapisnik/internal/schedule"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBookingStore struct {
	mock.Mock
}

func (m *mockBookingStore) InsertBooking(ctx context.Context, booking *models.Booking) error {
	args := m.Called(ctx, booking)
	return args.Error(0)
}

func (m *mockBookingStore) CreateBookingChecked(ctx context.Context, booking *models.Booking, weeklyLimit int, weekStart, weekEnd time.Time) error {
	args := m.Called(ctx, booking, weeklyLimit, weekStart, weekEnd)
	return args.Error(0)
}

func (m *mockBookingStore) UpdateBookingChecked(ctx context.Context, booking *models.Booking, fromVersion int64, enforceQuota bool, weeklyLimit int, weekStart, weekEnd time.Time) error {
	args := m.Called(ctx, booking, fromVersion, enforceQuota, weeklyLimit, weekStart, weekEnd)
	return args.Error(0)
}

func (m *mockBookingStore) UpdateStatusWithVersion(ctx context.Context, id string, fromVersion int64, status string) error {
	args := m.Called(ctx, id, fromVersion, status)
	return args.Error(0)
}

func (m *mockBookingStore) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if b := args.Get(0); b != nil {
		return b.(*models.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBookingStore) GetActiveOverlapping(ctx context.Context, userID int64, start, end time.Time, excludeID string) ([]*models.Booking, error) {
	args := m.Called(ctx, userID, start, end, excludeID)
	if b := args.Get(0); b != nil {
		return b.([]*models.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBookingStore) GetUserBookings(ctx context.Context, userID int64) ([]*models.Booking, error) {
	args := m.Called(ctx, userID)
	if b := args.Get(0); b != nil {
		return b.([]*models.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBookingStore) GetBookingsByTimeRange(ctx context.Context, start, end time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, start, end)
	if b := args.Get(0); b != nil {
		return b.([]*models.Booking), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockBookingStore) CancelAllForUser(ctx context.Context, userID int64) (int64, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockBookingStore) MarkCompletedEndedBefore(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockBookingStore) CountActiveByUserInWeek(ctx context.Context, userID int64, weekStart, weekEnd time.Time) (int, error) {
	args := m.Called(ctx, userID, weekStart, weekEnd)
	return args.Int(0), args.Error(1)
}

func (m *mockBookingStore) CountActiveInWeek(ctx context.Context, weekStart, weekEnd time.Time) (map[int64]int, error) {
	args := m.Called(ctx, weekStart, weekEnd)
	if c := args.Get(0); c != nil {
		return c.(map[int64]int), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockUserDirectory struct {
	mock.Mock
}

func (m *mockUserDirectory) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	args := m.Called(ctx, id)
	if u := args.Get(0); u != nil {
		return u.(*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserDirectory) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	args := m.Called(ctx)
	if u := args.Get(0); u != nil {
		return u.([]*models.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockUserDirectory) CreateOrUpdateUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func newMockedEngine(store *mockBookingStore, users *mockUserDirectory) *Engine {
	logger := zerolog.Nop()
	hours := schedule.OpeningHours{Open: 7, Close: 20, Location: time.UTC}
	clock := schedule.FixedClock{T: time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)}
	return NewEngine(store, users, nil, clock, hours, 3, &logger)
}

func confirmedBooking() *models.Booking {
	start := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	return &models.Booking{
		ID:        "b-1",
		UserID:    1,
		StartTime: start,
		EndTime:   start.Add(time.Hour),
		Status:    models.StatusConfirmed,
		Version:   1,
	}
}

func TestCancelBooking_RetriesOnceOnVersionConflict(t *testing.T) {
	store := &mockBookingStore{}
	users := &mockUserDirectory{}
	engine := newMockedEngine(store, users)
	ctx := context.Background()

	first := confirmedBooking()
	second := confirmedBooking()
	second.Version = 2

	store.On("GetBooking", ctx, "b-1").Return(first, nil).Once()
	store.On("UpdateStatusWithVersion", ctx, "b-1", int64(1), models.StatusCancelled).
		Return(database.ErrConcurrentModification).Once()
	store.On("GetBooking", ctx, "b-1").Return(second, nil).Once()
	store.On("UpdateStatusWithVersion", ctx, "b-1", int64(2), models.StatusCancelled).
		Return(nil).Once()

	got, err := engine.CancelBooking(ctx, memberActor, "b-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	store.AssertExpectations(t)
}

func TestCancelBooking_GivesUpAfterSecondConflict(t *testing.T) {
	store := &mockBookingStore{}
	users := &mockUserDirectory{}
	engine := newMockedEngine(store, users)
	ctx := context.Background()

	store.On("GetBooking", ctx, "b-1").Return(confirmedBooking(), nil).Twice()
	store.On("UpdateStatusWithVersion", ctx, "b-1", int64(1), models.StatusCancelled).
		Return(database.ErrConcurrentModification).Twice()

	_, err := engine.CancelBooking(ctx, memberActor, "b-1")
	assert.ErrorIs(t, err, database.ErrConcurrentModification)
	store.AssertExpectations(t)
}

func TestCreateBooking_StoreErrorPropagates(t *testing.T) {
	store := &mockBookingStore{}
	users := &mockUserDirectory{}
	engine := newMockedEngine(store, users)
	ctx := context.Background()

	users.On("GetUserByID", ctx, int64(1)).
		Return(&models.User{ID: 1, Name: "Member", Role: models.RoleUser}, nil)
	store.On("GetActiveOverlapping", ctx, int64(1), mock.Anything, mock.Anything, "").
		Return([]*models.Booking{}, nil)
	store.On("CountActiveByUserInWeek", ctx, int64(1), mock.Anything, mock.Anything).
		Return(0, nil)

	dbErr := errors.New("database is locked")
	store.On("CreateBookingChecked", ctx, mock.Anything, 3, mock.Anything, mock.Anything).
		Return(dbErr)

	_, err := engine.CreateBooking(ctx, memberActor, createReq(1, 2, 10))
	assert.ErrorIs(t, err, dbErr)
	store.AssertExpectations(t)
}
