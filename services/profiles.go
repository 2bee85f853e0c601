package services

import (
	"chat-hub/contract"
	"chat-hub/domain/user"
	"log/slog"
)

// profileResolver turns user ids into the public profiles embedded in
// outbound events. An unknown user still gets a profile carrying its id.
type profileResolver struct {
	users contract.IUserRepository
	log   *slog.Logger
}

func (p profileResolver) resolve(userID string) user.Profile {
	u, err := p.users.GetUserByID(userID)
	if err != nil {
		p.log.Debug("Unable to resolve profile", "user_id", userID, "error", err)
		return user.Profile{ID: userID}
	}
	return u.Profile()
}
