package storage

import (
	"chat-hub/domain/user"
	"chat-hub/errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type UserRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewUserRepository(db *badger.DB, log *slog.Logger) *UserRepository {
	return &UserRepository{db: db, log: log}
}

func userKey(id string) []byte {
	return []byte("user:id:" + id)
}

func emailKey(email string) []byte {
	return []byte("user:email:" + strings.ToLower(email))
}

func usernameKey(username string) []byte {
	return []byte("user:name:" + strings.ToLower(username))
}

// CreateUser persists u along with its email and username lookups.
// Both must be unique, otherwise ErrUserAlreadyExists is returned.
func (r UserRepository) CreateUser(u user.User) (user.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = u.CreatedAt
	}
	if len(u.Roles) == 0 {
		u.Roles = []string{"user"}
	}

	data, err := encodeRecord(fromUser(u))
	if err != nil {
		return user.User{}, err
	}

	err = r.db.Update(func(txn *badger.Txn) error {
		for _, key := range [][]byte{emailKey(u.Email), usernameKey(u.Username)} {
			if _, err := txn.Get(key); err == nil {
				return errors.ErrUserAlreadyExists
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
		}
		if err := txn.Set(userKey(u.ID), data); err != nil {
			return err
		}
		if err := txn.Set(emailKey(u.Email), []byte(u.ID)); err != nil {
			return err
		}
		return txn.Set(usernameKey(u.Username), []byte(u.ID))
	})
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (r UserRepository) GetUserByID(id string) (user.User, error) {
	var u user.User
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		u, err = getUser(txn, id)
		return err
	})
	return u, err
}

// GetUserByEmail resolves the email lookup key then loads the user.
func (r UserRepository) GetUserByEmail(email string) (user.User, error) {
	var u user.User
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: user with email %s", errors.ErrNotFound, email)
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		u, err = getUser(txn, string(id))
		return err
	})
	return u, err
}

// SetPresence records the online flag and the last time the user was seen.
func (r UserRepository) SetPresence(id string, online bool, lastSeen time.Time) error {
	return r.db.Update(func(txn *badger.Txn) error {
		u, err := getUser(txn, id)
		if err != nil {
			return err
		}
		u.IsOnline = online
		u.LastSeen = lastSeen
		u.UpdatedAt = lastSeen
		data, err := encodeRecord(fromUser(u))
		if err != nil {
			return err
		}
		return txn.Set(userKey(id), data)
	})
}

// UpdateUser overwrites the record of u. A new username takes over the
// username lookup and must still be unique.
func (r UserRepository) UpdateUser(u user.User) error {
	data, err := encodeRecord(fromUser(u))
	if err != nil {
		return err
	}
	return r.db.Update(func(txn *badger.Txn) error {
		previous, err := getUser(txn, u.ID)
		if err != nil {
			return err
		}
		if !strings.EqualFold(previous.Username, u.Username) {
			if _, err := txn.Get(usernameKey(u.Username)); err == nil {
				return errors.ErrUserAlreadyExists
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}
			if err := txn.Delete(usernameKey(previous.Username)); err != nil {
				return err
			}
		}
		if err := txn.Set(usernameKey(u.Username), []byte(u.ID)); err != nil {
			return err
		}
		return txn.Set(userKey(u.ID), data)
	})
}

// SearchUsers returns up to limit users whose username or email contains
// query, ignoring case, sorted by username.
func (r UserRepository) SearchUsers(query string, limit int) ([]user.User, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	users, err := r.ListUsers()
	if err != nil {
		return nil, err
	}
	found := lo.Filter(users, func(u user.User, _ int) bool {
		return strings.Contains(strings.ToLower(u.Username), needle) ||
			strings.Contains(strings.ToLower(u.Email), needle)
	})
	sort.SliceStable(found, func(i, j int) bool {
		return strings.ToLower(found[i].Username) < strings.ToLower(found[j].Username)
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

// ListUsers scans every user record.
func (r UserRepository) ListUsers() ([]user.User, error) {
	var users []user.User
	prefix := []byte("user:id:")
	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				rec, err := decodeRecord(val)
				if err != nil {
					return err
				}
				users = append(users, toUser(rec))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return users, err
}

func getUser(txn *badger.Txn, id string) (user.User, error) {
	item, err := txn.Get(userKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return user.User{}, fmt.Errorf("%w: user %s", errors.ErrNotFound, id)
	}
	if err != nil {
		return user.User{}, err
	}
	var u user.User
	err = item.Value(func(val []byte) error {
		rec, err := decodeRecord(val)
		if err != nil {
			return err
		}
		u = toUser(rec)
		return nil
	})
	return u, err
}

func fromUser(u user.User) map[string]any {
	return map[string]any{
		"id":            u.ID,
		"username":      u.Username,
		"email":         u.Email,
		"password_hash": u.PasswordHash,
		"avatar":        u.Avatar,
		"bio":           u.Bio,
		"roles":         toList(u.Roles),
		"is_online":     u.IsOnline,
		"last_seen":     formatTime(u.LastSeen),
		"created_at":    formatTime(u.CreatedAt),
		"updated_at":    formatTime(u.UpdatedAt),
	}
}

func toUser(r record) user.User {
	return user.User{
		ID:           r.str("id"),
		Username:     r.str("username"),
		Email:        r.str("email"),
		PasswordHash: r.str("password_hash"),
		Avatar:       r.str("avatar"),
		Bio:          r.str("bio"),
		Roles:        r.strings("roles"),
		IsOnline:     r.boolean("is_online"),
		LastSeen:     r.time("last_seen"),
		CreatedAt:    r.time("created_at"),
		UpdatedAt:    r.time("updated_at"),
	}
}
