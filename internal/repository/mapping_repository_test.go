package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tickethub/whatsapp-bridge/internal/model"
)

func newMapping(phone, number string, ticketID int64, status model.MappingStatus) *model.Mapping {
	return &model.Mapping{
		Phone:          phone,
		PhoneFormatted: "+49 " + phone[2:],
		ContactName:    "Max Mustermann",
		TicketID:       ticketID,
		TicketNumber:   number,
		Status:         status,
	}
}

func TestMappingRepository_Create(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMappingRepository(db)
	ctx := context.Background()

	t.Run("create mapping successfully", func(t *testing.T) {
		m := newMapping("4915112345678", "100001", 1, model.MappingStatusOpen)

		created, err := repo.Create(ctx, m)
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.Equal(t, m.Phone, created.Phone)
		assert.Equal(t, m.TicketNumber, created.TicketNumber)
		assert.Equal(t, model.MappingStatusOpen, created.Status)
		assert.NotZero(t, created.Created)
	})

	t.Run("user id is optional", func(t *testing.T) {
		m := newMapping("4915112345679", "100002", 2, model.MappingStatusOpen)
		created, err := repo.Create(ctx, m)
		require.NoError(t, err)
		assert.Nil(t, created.UserID)

		uid := int64(7)
		m2 := newMapping("4915112345680", "100003", 3, model.MappingStatusOpen)
		m2.UserID = &uid
		created2, err := repo.Create(ctx, m2)
		require.NoError(t, err)
		require.NotNil(t, created2.UserID)
		assert.Equal(t, uid, *created2.UserID)
	})
}

func TestMappingRepository_FindOpen(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMappingRepository(db)
	ctx := context.Background()

	phone := "4915100000001"
	_, err := repo.Create(ctx, newMapping(phone, "200001", 10, model.MappingStatusClosed))
	require.NoError(t, err)
	open, err := repo.Create(ctx, newMapping(phone, "200002", 11, model.MappingStatusOpen))
	require.NoError(t, err)

	t.Run("returns the open mapping", func(t *testing.T) {
		got, err := repo.FindOpen(ctx, phone)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, open.ID, got.ID)
		assert.True(t, got.IsOpen())
	})

	t.Run("returns nil when phone has no open mapping", func(t *testing.T) {
		got, err := repo.FindOpen(ctx, "4915199999999")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("closed mappings are not returned", func(t *testing.T) {
		require.NoError(t, repo.UpdateStatus(ctx, open.ID, model.MappingStatusClosed))

		got, err := repo.FindOpen(ctx, phone)
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestMappingRepository_FindActive(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMappingRepository(db)
	ctx := context.Background()

	phone := "4915100000002"
	for i, status := range []model.MappingStatus{
		model.MappingStatusInactive,
		model.MappingStatusOpen,
		model.MappingStatusClosed,
		model.MappingStatusUnlinked,
	} {
		_, err := repo.Create(ctx, newMapping(phone, "30000"+string(rune('1'+i)), int64(20+i), status))
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
	}

	active, err := repo.FindActive(ctx, phone)
	require.NoError(t, err)
	require.Len(t, active, 2)
	// Oldest first.
	assert.Equal(t, model.MappingStatusInactive, active[0].Status)
	assert.Equal(t, model.MappingStatusOpen, active[1].Status)
}

func TestMappingRepository_FindByTicketNumber(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMappingRepository(db)
	ctx := context.Background()

	phone := "4915100000003"
	_, err := repo.Create(ctx, newMapping(phone, "400001", 30, model.MappingStatusInactive))
	require.NoError(t, err)

	t.Run("finds mapping in any status", func(t *testing.T) {
		got, err := repo.FindByTicketNumber(ctx, phone, "400001")
		require.NoError(t, err)
		assert.Equal(t, int64(30), got.TicketID)
	})

	t.Run("another phone cannot see it", func(t *testing.T) {
		got, err := repo.FindByTicketNumber(ctx, "4915188888888", "400001")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("unknown number", func(t *testing.T) {
		got, err := repo.FindByTicketNumber(ctx, phone, "999999")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestMappingRepository_FindByTicketID(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMappingRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, newMapping("4915100000004", "500001", 40, model.MappingStatusOpen))
	require.NoError(t, err)

	got, err := repo.FindByTicketID(ctx, 40)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, created.ID, got.ID)

	missing, err := repo.FindByTicketID(ctx, 4040)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMappingRepository_UpdateStatus(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMappingRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, newMapping("4915100000005", "600001", 50, model.MappingStatusOpen))
	require.NoError(t, err)

	t.Run("update existing", func(t *testing.T) {
		err := repo.UpdateStatus(ctx, created.ID, model.MappingStatusUnlinked)
		require.NoError(t, err)

		got, err := repo.FindByTicketNumber(ctx, created.Phone, created.TicketNumber)
		require.NoError(t, err)
		assert.Equal(t, model.MappingStatusUnlinked, got.Status)
	})

	t.Run("missing id", func(t *testing.T) {
		err := repo.UpdateStatus(ctx, 99999, model.MappingStatusClosed)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMappingRepository_SwitchActiveTicket(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMappingRepository(db)
	ctx := context.Background()

	phone := "4915100000006"
	current, err := repo.Create(ctx, newMapping(phone, "700001", 60, model.MappingStatusOpen))
	require.NoError(t, err)
	target, err := repo.Create(ctx, newMapping(phone, "700002", 61, model.MappingStatusInactive))
	require.NoError(t, err)

	t.Run("switch makes target the only open mapping", func(t *testing.T) {
		err := repo.SwitchActiveTicket(ctx, phone, target.ID)
		require.NoError(t, err)

		open, err := repo.FindOpen(ctx, phone)
		require.NoError(t, err)
		require.NotNil(t, open)
		assert.Equal(t, target.ID, open.ID)

		prev, err := repo.FindByTicketNumber(ctx, phone, current.TicketNumber)
		require.NoError(t, err)
		assert.Equal(t, model.MappingStatusInactive, prev.Status)
	})

	t.Run("switch back round-trips", func(t *testing.T) {
		err := repo.SwitchActiveTicket(ctx, phone, current.ID)
		require.NoError(t, err)

		open, err := repo.FindOpen(ctx, phone)
		require.NoError(t, err)
		require.NotNil(t, open)
		assert.Equal(t, current.ID, open.ID)

		active, err := repo.FindActive(ctx, phone)
		require.NoError(t, err)
		assert.Len(t, active, 2)
	})

	t.Run("target owned by another phone rolls back", func(t *testing.T) {
		other, err := repo.Create(ctx, newMapping("4915177777777", "700003", 62, model.MappingStatusInactive))
		require.NoError(t, err)

		err = repo.SwitchActiveTicket(ctx, phone, other.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		// The current open mapping survives the rollback.
		open, err := repo.FindOpen(ctx, phone)
		require.NoError(t, err)
		require.NotNil(t, open)
		assert.Equal(t, current.ID, open.ID)
	})
}

func TestMappingRepository_LogMessage(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMappingRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, newMapping("4915100000007", "800001", 70, model.MappingStatusOpen))
	require.NoError(t, err)

	msgID := "wamid.ABC123"
	_, err = repo.LogMessage(ctx, created.ID, model.LogMessageRequest{
		MessageID: &msgID,
		Direction: model.DirectionIn,
		Content:   "Hallo, mein Drucker geht nicht",
		Status:    model.LogStatusReceived,
	})
	require.NoError(t, err)

	_, err = repo.LogMessage(ctx, created.ID, model.LogMessageRequest{
		Direction: model.DirectionOut,
		Content:   "Ihr Ticket wurde erstellt",
		Status:    model.LogStatusSent,
	})
	require.NoError(t, err)

	entries, err := repo.GetLog(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.DirectionIn, entries[0].Direction)
	require.NotNil(t, entries[0].MessageID)
	assert.Equal(t, msgID, *entries[0].MessageID)
	assert.Equal(t, model.DirectionOut, entries[1].Direction)
	assert.Nil(t, entries[1].MessageID)
}

func TestMappingRepository_DeleteByTicketID(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMappingRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, newMapping("4915100000008", "900001", 80, model.MappingStatusOpen))
	require.NoError(t, err)
	_, err = repo.LogMessage(ctx, created.ID, model.LogMessageRequest{
		Direction: model.DirectionIn,
		Content:   "test",
		Status:    model.LogStatusReceived,
	})
	require.NoError(t, err)

	err = repo.DeleteByTicketID(ctx, 80)
	require.NoError(t, err)

	gone, err := repo.FindByTicketID(ctx, 80)
	require.NoError(t, err)
	assert.Nil(t, gone)

	entries, err := repo.GetLog(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Deleting a ticket with no mappings is a no-op.
	assert.NoError(t, repo.DeleteByTicketID(ctx, 80))
}

func TestMappingRepository_ListActive(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMappingRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, newMapping("4915100000009", "910001", 90, model.MappingStatusOpen))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newMapping("4915100000010", "910002", 91, model.MappingStatusClosed))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newMapping("4915100000011", "910003", 92, model.MappingStatusOpen))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newMapping("4915100000012", "910004", 93, model.MappingStatusInactive))
	require.NoError(t, err)

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 3)
	statuses := make(map[model.MappingStatus]int)
	for _, m := range active {
		statuses[m.Status]++
	}
	assert.Equal(t, 2, statuses[model.MappingStatusOpen])
	assert.Equal(t, 1, statuses[model.MappingStatusInactive])
	assert.Zero(t, statuses[model.MappingStatusClosed])
}

func TestMappingRepository_Delete(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewMappingRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, newMapping("4915100000013", "920001", 95, model.MappingStatusOpen))
	require.NoError(t, err)
	_, err = repo.LogMessage(ctx, created.ID, model.LogMessageRequest{
		Direction: model.DirectionIn,
		Content:   "test",
		Status:    model.LogStatusReceived,
	})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, created.ID))

	gone, err := repo.FindByTicketID(ctx, 95)
	require.NoError(t, err)
	assert.Nil(t, gone)

	entries, err := repo.GetLog(ctx, created.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.ErrorIs(t, repo.Delete(ctx, created.ID), ErrNotFound)
}
