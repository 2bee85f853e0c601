package services

import (
	"chat-hub/domain/user"
	"chat-hub/errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestUserService_Search(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	svc := NewUserService(f.log, f.users)
	found := []user.User{{ID: "u1", Username: "albert"}}

	// Given a blank query
	_, err := svc.Search("   ", 0)
	req.ErrorIs(err, errors.ErrValidation)

	// When searching without a limit or above the ceiling
	f.users.EXPECT().SearchUsers("al", defaultSearchLimit).Return(found, nil)
	f.users.EXPECT().SearchUsers("al", maxSearchLimit).Return(found, nil)

	// Then the limit is clamped
	got, err := svc.Search(" al ", 0)
	req.NoError(err)
	req.Equal(found, got)
	_, err = svc.Search("al", 500)
	req.NoError(err)
}

func TestUserService_UpdateProfile(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	svc := NewUserService(f.log, f.users)
	name, bio := " alicia ", "hello"
	f.users.EXPECT().GetUserByID("alice").Return(user.User{ID: "alice", Username: "alice", Avatar: "https://a.example.com/x.png"}, nil)
	f.users.EXPECT().UpdateUser(gomock.Any()).DoAndReturn(func(u user.User) error {
		req.Equal("alicia", u.Username)
		req.Equal("hello", u.Bio)
		req.Equal("https://a.example.com/x.png", u.Avatar)
		req.False(u.UpdatedAt.IsZero())
		return nil
	})

	// When alice changes her name and bio only
	updated, err := svc.UpdateProfile("alice", user.ProfileUpdate{Username: &name, Bio: &bio})

	// Then the avatar is untouched
	req.NoError(err)
	req.Equal("alicia", updated.Username)
}

func TestUserService_UpdateProfile_Refusals(t *testing.T) {
	blank, short, taken := "  ", "al", "bob"

	tests := []struct {
		name    string
		update  user.ProfileUpdate
		stored  bool
		store   error
		wantErr error
	}{
		{name: "blank username", update: user.ProfileUpdate{Username: &blank}, wantErr: errors.ErrValidation},
		{name: "short username", update: user.ProfileUpdate{Username: &short}, wantErr: errors.ErrValidation},
		{name: "taken username", update: user.ProfileUpdate{Username: &taken}, stored: true, store: errors.ErrUserAlreadyExists, wantErr: errors.ErrUserAlreadyExists},
		{name: "storage failure", update: user.ProfileUpdate{Username: &taken}, stored: true, store: fmt.Errorf("disk full"), wantErr: errors.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			svc := NewUserService(f.log, f.users)
			if tt.stored {
				f.users.EXPECT().GetUserByID("alice").Return(user.User{ID: "alice", Username: "alice"}, nil)
				f.users.EXPECT().UpdateUser(gomock.Any()).Return(tt.store)
			}

			_, err := svc.UpdateProfile("alice", tt.update)

			req.ErrorIs(err, tt.wantErr)
		})
	}
}
