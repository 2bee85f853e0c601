package storage

import (
	"chat-hub/domain/file"
	"chat-hub/domain/mimetypes"
	"chat-hub/errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func Test_Store_List_And_Delete_Files(t *testing.T) {
	req := require.New(t)
	repository := NewFileRepository(openBadger(t), slog.Default())
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	older := file.File{
		ID: "f1", OriginalName: "cat.png", Path: "/tmp/f1.png", URL: "/uploads/f1.png",
		MimeType: "image/png", Size: 42, Kind: mimetypes.KindOf("image/png"), UploadedBy: "alice", CreatedAt: at,
	}
	newer := file.File{ID: "f2", OriginalName: "notes.txt", UploadedBy: "alice", CreatedAt: at.Add(time.Hour)}
	foreign := file.File{ID: "f3", OriginalName: "bob.txt", UploadedBy: "bob", CreatedAt: at}

	// Given three uploads, two of them from alice
	for _, f := range []file.File{older, newer, foreign} {
		req.NoError(repository.StoreFile(f))
	}

	// When listing alice's files
	files, err := repository.ListFilesByOwner("alice")

	// Then the newest comes first and every field survives
	req.NoError(err)
	req.Equal([]file.File{newer, older}, files)
	got, err := repository.GetFile("f1")
	req.NoError(err)
	req.Equal(older, got)

	// And a deleted file disappears from both lookups
	req.NoError(repository.DeleteFile("f1"))
	_, err = repository.GetFile("f1")
	req.ErrorIs(err, errors.ErrNotFound)
	files, err = repository.ListFilesByOwner("alice")
	req.NoError(err)
	req.Equal([]file.File{newer}, files)
	req.ErrorIs(repository.DeleteFile("f1"), errors.ErrNotFound)
}
