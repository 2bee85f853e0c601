package storage

import (
	"bytes"
	"chat-hub/domain/file"
	"chat-hub/domain/mimetypes"
	"chat-hub/errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// sniffLen is how many leading bytes are inspected to detect the content type.
const sniffLen = 3072

// FileStore keeps uploaded files on local disk under one directory.
type FileStore struct {
	dir       string
	urlPrefix string
	maxSize   int64
	log       *slog.Logger
}

func NewFileStore(dir, urlPrefix string, maxSize int64, log *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &FileStore{dir: dir, urlPrefix: strings.TrimSuffix(urlPrefix, "/"), maxSize: maxSize, log: log}, nil
}

func (s *FileStore) Dir() string {
	return s.dir
}

// Save writes r to disk. The type is sniffed from the content, never trusted
// from the client.
func (s *FileStore) Save(originalName string, r io.Reader, uploadedBy string) (file.File, error) {
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return file.File{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return file.File{}, fmt.Errorf("%w: empty file", errors.ErrValidation)
	}
	detected := mimetype.Detect(head)

	id := uuid.NewString()
	name := id + detected.Extension()
	path := filepath.Join(s.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return file.File{}, fmt.Errorf("create file: %w", err)
	}

	src := io.MultiReader(bytes.NewReader(head), r)
	if s.maxSize > 0 {
		src = io.LimitReader(src, s.maxSize+1)
	}
	size, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && s.maxSize > 0 && size > s.maxSize {
		err = fmt.Errorf("%w: file exceeds %d bytes", errors.ErrValidation, s.maxSize)
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			s.log.Warn("Unable to remove partial upload", "path", path, "error", rmErr)
		}
		return file.File{}, err
	}

	stored := file.File{
		ID:           id,
		OriginalName: filepath.Base(originalName),
		Path:         path,
		URL:          s.urlPrefix + "/" + name,
		MimeType:     string(mimetypes.Normalize(detected.String())),
		Size:         size,
		Kind:         mimetypes.KindOf(detected.String()),
		UploadedBy:   uploadedBy,
		CreatedAt:    time.Now().UTC(),
	}
	s.log.Debug("File stored", "id", id, "mime_type", stored.MimeType, "size", size)
	return stored, nil
}

// Remove deletes the content of f from disk. A file already gone is not an error.
func (s *FileStore) Remove(f file.File) error {
	path := filepath.Join(s.dir, filepath.Base(f.Path))
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file %s: %w", f.ID, err)
	}
	return nil
}
