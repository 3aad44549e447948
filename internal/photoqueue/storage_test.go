package photoqueue

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStorageWritesPhotoAndMetadata(t *testing.T) {
	root := t.TempDir()
	s := NewFileStorage(root)
	s.now = func() time.Time { return time.Date(2024, 3, 9, 14, 30, 0, 0, time.UTC) }
	ctx := context.Background()

	first, err := s.Save(ctx, "TKT-1", Photo{Data: jpeg, Uploader: "6281"})
	require.NoError(t, err)
	second, err := s.Save(ctx, "TKT-1", Photo{Data: jpeg, Uploader: "6281"})
	require.NoError(t, err)

	dir := filepath.Join(root, "tickets", "2024", "03", "TKT-1")
	assert.Equal(t, dir, filepath.Dir(first.Path))
	assert.Equal(t, ".jpg", filepath.Ext(first.FileName))
	assert.Equal(t, "image/jpeg", first.MimeType)
	assert.NotEqual(t, first.FileName, second.FileName)

	data, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, jpeg, data)

	metas, err := s.Metadata("TKT-1")
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "TKT-1", metas[0].TicketID)
	assert.Equal(t, 2, metas[0].TotalPhotos)
	assert.Equal(t, "6281", metas[0].Photos[1].UploadedBy)
}

func TestFileStorageRejectsNonImage(t *testing.T) {
	s := NewFileStorage(t.TempDir())
	_, err := s.Save(context.Background(), "TKT-1", Photo{Data: []byte("hello world")})
	assert.ErrorIs(t, err, ErrNotImage)
}

func TestFileStorageRejectsPathInTicketID(t *testing.T) {
	s := NewFileStorage(t.TempDir())
	_, err := s.Save(context.Background(), "../etc", Photo{Data: jpeg})
	assert.Error(t, err)
}

func TestDebouncerCoalescesResets(t *testing.T) {
	fired := make(chan struct{}, 10)
	d := NewDebouncer(50*time.Millisecond, func() { fired <- struct{}{} })
	for i := 0; i < 5; i++ {
		d.Reset()
		time.Sleep(10 * time.Millisecond)
	}
	assert.True(t, d.Pending())
	time.Sleep(150 * time.Millisecond)
	assert.Len(t, fired, 1)
	assert.False(t, d.Pending())
}

func TestDebouncerStop(t *testing.T) {
	fired := make(chan struct{}, 1)
	d := NewDebouncer(30*time.Millisecond, func() { fired <- struct{}{} })
	d.Reset()
	assert.True(t, d.Stop())
	assert.False(t, d.Stop())
	time.Sleep(80 * time.Millisecond)
	assert.Len(t, fired, 0)
}
