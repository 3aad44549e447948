package photoqueue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrNotImage is returned for uploads whose content is not a recognised image.
var ErrNotImage = errors.New("photo content is not an image")

const metadataFile = "metadata.json"

// SavedPhoto describes a photo written to storage.
type SavedPhoto struct {
	FileName   string    `json:"filename"`
	Path       string    `json:"path"`
	Size       int       `json:"size"`
	MimeType   string    `json:"mimetype"`
	UploadedAt time.Time `json:"uploadedAt"`
	UploadedBy string    `json:"uploadedBy"`
}

// Metadata is the per ticket sidecar summarising uploads.
type Metadata struct {
	TicketID    string       `json:"ticketId"`
	TotalPhotos int          `json:"totalPhotos"`
	Photos      []SavedPhoto `json:"photos"`
	CreatedAt   time.Time    `json:"createdAt"`
	LastUpdated time.Time    `json:"lastUpdated"`
}

type Storage interface {
	Save(ctx context.Context, ticketID string, p Photo) (SavedPhoto, error)
}

// FileStorage writes photos under <root>/tickets/<yyyy>/<mm>/<ticketID>/.
type FileStorage struct {
	root string
	now  func() time.Time

	mu sync.Mutex // guards metadata read-modify-write
}

func NewFileStorage(root string) *FileStorage {
	return &FileStorage{root: root, now: time.Now}
}

func (s *FileStorage) TicketDir(ticketID string, at time.Time) string {
	return filepath.Join(s.root, "tickets", at.Format("2006"), at.Format("01"), ticketID)
}

func (s *FileStorage) Save(ctx context.Context, ticketID string, p Photo) (SavedPhoto, error) {
	if err := ctx.Err(); err != nil {
		return SavedPhoto{}, err
	}
	if strings.ContainsAny(ticketID, `/\`) || ticketID == "" || ticketID == "." || ticketID == ".." {
		return SavedPhoto{}, fmt.Errorf("invalid ticket id %q", ticketID)
	}
	if !filetype.IsImage(p.Data) {
		return SavedPhoto{}, ErrNotImage
	}
	kind, err := filetype.Match(p.Data)
	if err != nil {
		return SavedPhoto{}, fmt.Errorf("detect photo type: %w", err)
	}
	mime := p.MimeType
	if mime == "" {
		mime = kind.MIME.Value
	}

	now := s.now()
	dir := s.TicketDir(ticketID, now)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return SavedPhoto{}, fmt.Errorf("create ticket dir: %w", err)
	}
	name := fmt.Sprintf("%s_%s.%s", now.Format("20060102_150405"), uuid.NewString()[:8], kind.Extension)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, p.Data, 0o644); err != nil {
		return SavedPhoto{}, fmt.Errorf("write photo: %w", err)
	}

	saved := SavedPhoto{
		FileName:   name,
		Path:       path,
		Size:       len(p.Data),
		MimeType:   mime,
		UploadedAt: now,
		UploadedBy: p.Uploader,
	}
	if err := s.appendMetadata(dir, ticketID, saved); err != nil {
		// the photo itself is on disk
		zap.L().Warn("photoqueue: update metadata failed", zap.String("ticket", ticketID), zap.Error(err))
	}
	return saved, nil
}

func (s *FileStorage) appendMetadata(dir, ticketID string, saved SavedPhoto) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(dir, metadataFile)
	meta, err := readMetadata(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if meta == nil {
		meta = &Metadata{TicketID: ticketID, CreatedAt: saved.UploadedAt}
	}
	meta.Photos = append(meta.Photos, saved)
	meta.TotalPhotos = len(meta.Photos)
	meta.LastUpdated = saved.UploadedAt

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &meta, nil
}

// Metadata collects the sidecars of a ticket across all months it received
// photos in, oldest first.
func (s *FileStorage) Metadata(ticketID string) ([]Metadata, error) {
	pattern := filepath.Join(s.root, "tickets", "*", "*", ticketID, metadataFile)
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	out := make([]Metadata, 0, len(paths))
	for _, p := range paths {
		meta, err := readMetadata(p)
		if err != nil {
			return nil, err
		}
		out = append(out, *meta)
	}
	return out, nil
}
