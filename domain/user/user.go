// Package user defines account and public profile data.
package user

import (
	"strings"
	"time"
)

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Avatar       string
	Bio          string
	Roles        []string
	IsOnline     bool
	LastSeen     time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the public subset attached to outbound events.
type Profile struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

func (u User) Profile() Profile {
	return Profile{ID: u.ID, Username: u.Username, Avatar: u.Avatar}
}

// Account is what the REST layer returns about the authenticated user.
type Account struct {
	Profile
	Email    string    `json:"email"`
	Bio      string    `json:"bio,omitempty"`
	Roles    []string  `json:"roles"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

func (u User) Account() Account {
	return Account{
		Profile:  u.Profile(),
		Email:    u.Email,
		Bio:      u.Bio,
		Roles:    u.Roles,
		IsOnline: u.IsOnline,
		LastSeen: u.LastSeen,
	}
}

// ProfileUpdate lists the editable profile fields, nil means unchanged.
type ProfileUpdate struct {
	Username *string
	Avatar   *string
	Bio      *string
}

func (p ProfileUpdate) Trimmed() ProfileUpdate {
	trim := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := strings.TrimSpace(*s)
		return &v
	}
	return ProfileUpdate{Username: trim(p.Username), Avatar: trim(p.Avatar), Bio: trim(p.Bio)}
}

func (u User) Apply(p ProfileUpdate) User {
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.Avatar != nil {
		u.Avatar = *p.Avatar
	}
	if p.Bio != nil {
		u.Bio = *p.Bio
	}
	return u
}
