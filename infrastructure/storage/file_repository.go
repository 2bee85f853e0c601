package storage

import (
	"chat-hub/domain/file"
	"chat-hub/domain/mimetypes"
	"chat-hub/errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dgraph-io/badger/v4"
)

// FileRepository keeps the metadata of uploads. The content itself lives in
// the FileStore.
type FileRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewFileRepository(db *badger.DB, log *slog.Logger) *FileRepository {
	return &FileRepository{db: db, log: log}
}

func fileKey(id string) []byte {
	return []byte("file:id:" + id)
}

// fileOwnerKey indexes uploads by owner: "file-owner:{user_id}:{file_id}".
func fileOwnerKey(userID, id string) []byte {
	return []byte(fmt.Sprintf("file-owner:%s:%s", userID, id))
}

func (r FileRepository) StoreFile(f file.File) error {
	data, err := encodeRecord(fromFile(f))
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(fileKey(f.ID), data); err != nil {
			return err
		}
		return txn.Set(fileOwnerKey(f.UploadedBy, f.ID), nil)
	})
}

func (r FileRepository) GetFile(id string) (file.File, error) {
	var f file.File
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		f, err = getFile(txn, id)
		return err
	})
	return f, err
}

// ListFilesByOwner returns the uploads of userID, newest first.
func (r FileRepository) ListFilesByOwner(userID string) ([]file.File, error) {
	files := make([]file.File, 0)
	prefix := []byte(fmt.Sprintf("file-owner:%s:", userID))
	err := r.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		var ids []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		it.Close()

		for _, id := range ids {
			f, err := getFile(txn, id)
			if errors.Is(err, errors.ErrNotFound) {
				r.log.Warn("Dangling file ownership", "user_id", userID, "file_id", id)
				continue
			}
			if err != nil {
				return err
			}
			files = append(files, f)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(files, func(i, j int) bool {
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}

func (r FileRepository) DeleteFile(id string) error {
	return r.db.Update(func(txn *badger.Txn) error {
		f, err := getFile(txn, id)
		if err != nil {
			return err
		}
		if err := txn.Delete(fileOwnerKey(f.UploadedBy, id)); err != nil {
			return err
		}
		return txn.Delete(fileKey(id))
	})
}

func getFile(txn *badger.Txn, id string) (file.File, error) {
	item, err := txn.Get(fileKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return file.File{}, fmt.Errorf("%w: file %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return file.File{}, err
	}
	var f file.File
	err = item.Value(func(val []byte) error {
		rec, err := decodeRecord(val)
		if err != nil {
			return err
		}
		f = toFile(rec)
		return nil
	})
	return f, err
}

func fromFile(f file.File) map[string]any {
	return map[string]any{
		"id":            f.ID,
		"original_name": f.OriginalName,
		"path":          f.Path,
		"url":           f.URL,
		"mime_type":     f.MimeType,
		"size":          f.Size,
		"kind":          string(f.Kind),
		"uploaded_by":   f.UploadedBy,
		"created_at":    formatTime(f.CreatedAt),
	}
}

func toFile(r record) file.File {
	return file.File{
		ID:           r.str("id"),
		OriginalName: r.str("original_name"),
		Path:         r.str("path"),
		URL:          r.str("url"),
		MimeType:     r.str("mime_type"),
		Size:         r.int64("size"),
		Kind:         mimetypes.Kind(r.str("kind")),
		UploadedBy:   r.str("uploaded_by"),
		CreatedAt:    r.time("created_at"),
	}
}
