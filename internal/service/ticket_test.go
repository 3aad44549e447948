package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/lock"
	"github.com/talkincode/ispcare/internal/photoqueue"
)

func TestTicketLifecycle(t *testing.T) {
	db := newTestDB(t)
	s := seedData(t, db)
	events := NewEvents()
	rec := recordEvents(t, events)
	svc := NewTicketService(db, newTestLocker(), events, time.Second)

	tk, err := svc.Create(bg, s.customer, "Internet mati", "  lampu LOS merah  ")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketNew, tk.Status)
	assert.Equal(t, "lampu LOS merah", tk.Description)
	assert.NotZero(t, tk.ID)

	tk, err = svc.MarkInProgress(bg, tk.ID, s.tech)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketInProgress, tk.Status)
	assert.Equal(t, s.tech.ID, tk.TechnicianId)
	assert.NotNil(t, tk.StartedAt)

	mine, err := svc.ListByTechnician(bg, s.tech.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	tk, err = svc.Resolve(bg, tk.ID, s.tech, "ganti konektor", 3)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketResolved, tk.Status)
	assert.Equal(t, 3, tk.PhotoCount)
	assert.Equal(t, "ganti konektor", tk.Notes)

	open, err := svc.ListOpen(bg)
	require.NoError(t, err)
	assert.Empty(t, open)

	require.Len(t, rec.ticket, 3)
	assert.Equal(t, "", rec.ticket[0].Previous)
	assert.Equal(t, domain.TicketNew, rec.ticket[1].Previous)
	assert.Equal(t, domain.TicketInProgress, rec.ticket[2].Previous)
}

func TestTicketCreateValidation(t *testing.T) {
	db := newTestDB(t)
	s := seedData(t, db)
	svc := NewTicketService(db, newTestLocker(), nil, time.Second)

	_, err := svc.Create(bg, s.customer, "lainnya", "   ")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = svc.Create(bg, nil, "lainnya", "x")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTicketIllegalTransitions(t *testing.T) {
	db := newTestDB(t)
	s := seedData(t, db)
	svc := NewTicketService(db, newTestLocker(), nil, time.Second)
	tk, err := svc.Create(bg, s.customer, "lambat", "lemot sejak pagi")
	require.NoError(t, err)

	_, err = svc.Resolve(bg, tk.ID, s.tech, "done", 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.MarkInProgress(bg, tk.ID, s.tech)
	require.NoError(t, err)
	_, err = svc.MarkInProgress(bg, tk.ID, s.tech)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	other := &domain.Technician{ID: 12, Phone: "6281200000012"}
	_, err = svc.Resolve(bg, tk.ID, other, "done", 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Resolve(bg, tk.ID, s.tech, "  ", 0)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Get(bg, 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTicketChangeWaitsForLock(t *testing.T) {
	db := newTestDB(t)
	s := seedData(t, db)
	locker := newTestLocker()
	svc := NewTicketService(db, locker, nil, 50*time.Millisecond)
	tk, err := svc.Create(bg, s.customer, "lambat", "lemot")
	require.NoError(t, err)

	ok, err := locker.Acquire(bg, lock.TicketResource(tk.ID), time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.MarkInProgress(bg, tk.ID, s.tech)
	assert.ErrorIs(t, err, lock.ErrLockTimeout)

	require.NoError(t, locker.Release(bg, lock.TicketResource(tk.ID)))
	_, err = svc.MarkInProgress(bg, tk.ID, s.tech)
	assert.NoError(t, err)
}

func TestTicketQueryFilters(t *testing.T) {
	db := newTestDB(t)
	s := seedData(t, db)
	svc := NewTicketService(db, newTestLocker(), nil, time.Second)
	for i := 0; i < 5; i++ {
		_, err := svc.Create(bg, s.customer, "lambat", "lemot")
		require.NoError(t, err)
	}
	_, err := svc.Cancel(bg, 1, "double")
	require.NoError(t, err)

	list, total, err := svc.Query(bg, TicketFilter{Status: domain.TicketNew, Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Len(t, list, 2)

	_, total, err = svc.Query(bg, TicketFilter{Since: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)

	_, total, err = svc.Query(bg, TicketFilter{Keyword: "Budi"})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
}

func TestSetStatusResolveCountsRecordedPhotos(t *testing.T) {
	db := newTestDB(t)
	s := seedData(t, db)
	svc := NewTicketService(db, newTestLocker(), nil, time.Second)
	tk, err := svc.Create(bg, s.customer, "lambat", "lemot")
	require.NoError(t, err)
	_, err = svc.MarkInProgress(bg, tk.ID, s.tech)
	require.NoError(t, err)

	require.NoError(t, svc.RecordPhoto(bg, tk.ID, photoqueue.SavedPhoto{FileName: "a.jpg", UploadedAt: time.Now()}))
	require.NoError(t, svc.RecordPhoto(bg, tk.ID, photoqueue.SavedPhoto{FileName: "b.jpg", UploadedAt: time.Now()}))

	tk, err = svc.SetStatus(bg, tk.ID, domain.TicketResolved, "selesai via panel")
	require.NoError(t, err)
	assert.Equal(t, 2, tk.PhotoCount)

	_, err = svc.SetStatus(bg, tk.ID, domain.TicketNew, "")
	assert.ErrorIs(t, err, ErrValidation)
}

type stubStorage struct{ saved photoqueue.SavedPhoto }

func (s *stubStorage) Save(_ context.Context, _ string, _ photoqueue.Photo) (photoqueue.SavedPhoto, error) {
	return s.saved, nil
}

func TestPhotoRecorderInsertsRows(t *testing.T) {
	db := newTestDB(t)
	s := seedData(t, db)
	svc := NewTicketService(db, newTestLocker(), nil, time.Second)
	tk, err := svc.Create(bg, s.customer, "lambat", "lemot")
	require.NoError(t, err)

	rec := &PhotoRecorder{
		Next:    &stubStorage{saved: photoqueue.SavedPhoto{FileName: "x.jpg", Path: "/tmp/x.jpg", Size: 10, MimeType: "image/jpeg", UploadedAt: time.Now()}},
		Tickets: svc,
	}
	_, err = rec.Save(bg, "1", photoqueue.Photo{})
	require.NoError(t, err)
	_, err = rec.Save(bg, "not-a-number", photoqueue.Photo{})
	require.NoError(t, err)

	photos, err := svc.Photos(bg, tk.ID)
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, "x.jpg", photos[0].FileName)
}
