package services

import (
	"chat-hub/contract"
	"chat-hub/domain/file"
	"chat-hub/errors"
	"fmt"
	"io"
	"log/slog"
)

type IFileService interface {
	Upload(userID, originalName string, r io.Reader) (file.File, error)
	List(userID string) ([]file.File, error)
	Get(id string) (file.File, error)
	Delete(userID, id string) error
}

type FileService struct {
	log   *slog.Logger
	store contract.IFileStore
	files contract.IFileRepository
}

func NewFileService(log *slog.Logger, store contract.IFileStore, files contract.IFileRepository) *FileService {
	return &FileService{log: log, store: store, files: files}
}

// Upload writes the content and records it. The content is removed again
// when the record cannot be stored.
func (s *FileService) Upload(userID, originalName string, r io.Reader) (file.File, error) {
	stored, err := s.store.Save(originalName, r, userID)
	if err != nil {
		return file.File{}, err
	}
	if err := s.files.StoreFile(stored); err != nil {
		if rmErr := s.store.Remove(stored); rmErr != nil {
			s.log.Warn("Unable to remove orphan upload", "file_id", stored.ID, "error", rmErr)
		}
		return file.File{}, storageError(err)
	}
	s.log.Info("File uploaded", "file_id", stored.ID, "user_id", userID, "size", stored.Size, "kind", stored.Kind)
	return stored, nil
}

// List returns the uploads of userID, newest first.
func (s *FileService) List(userID string) ([]file.File, error) {
	files, err := s.files.ListFilesByOwner(userID)
	if err != nil {
		return nil, storageError(err)
	}
	return files, nil
}

func (s *FileService) Get(id string) (file.File, error) {
	f, err := s.files.GetFile(id)
	if err != nil {
		return file.File{}, storageError(err)
	}
	return f, nil
}

// Delete removes an upload of userID. Messages keep their copy of the
// reference.
func (s *FileService) Delete(userID, id string) error {
	f, err := s.Get(id)
	if err != nil {
		return err
	}
	if f.UploadedBy != userID {
		return fmt.Errorf("%w: file %s belongs to another user", errors.ErrForbidden, id)
	}
	if err := s.files.DeleteFile(id); err != nil {
		return storageError(err)
	}
	if err := s.store.Remove(f); err != nil {
		s.log.Warn("Unable to remove file content", "file_id", id, "error", err)
	}
	s.log.Info("File deleted", "file_id", id, "user_id", userID)
	return nil
}
