package http

import (
	"chat-hub/auth"
	"chat-hub/domain/chat"
	"chat-hub/domain/event"
	"chat-hub/domain/user"
	"chat-hub/errors"
	"chat-hub/observability"
	"chat-hub/services"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/samber/lo"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type createChatRequest struct {
	Name      string   `json:"name" validate:"max=100"`
	Type      string   `json:"type" validate:"omitempty,oneof=private group global"`
	MemberIDs []string `json:"memberIds" validate:"max=256,dive,required"`
}

type renameChatRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type addMemberRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type profileRequest struct {
	Username *string `json:"username"`
	Avatar   *string `json:"avatar"`
	Bio      *string `json:"bio"`
}

type sessionResponse struct {
	Token string       `json:"token"`
	User  user.Account `json:"user"`
}

type chatView struct {
	ID            string    `json:"_id"`
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Members       []string  `json:"members"`
	Admins        []string  `json:"admins"`
	LastMessageID string    `json:"lastMessage,omitempty"`
	CreatedBy     string    `json:"createdBy"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

type historyResponse struct {
	Messages   []event.MessageView `json:"messages"`
	NextCursor *string             `json:"nextCursor"`
}

type healthResponse struct {
	Status string                        `json:"status"`
	Stats  observability.MonitoringStats `json:"stats"`
}

func (s *Server) health(c *fiber.Ctx) error {
	resp := healthResponse{Status: "ok"}
	if s.deps.Monitoring != nil {
		resp.Stats = s.deps.Monitoring.GetLatest()
	}
	return c.JSON(resp)
}

func (s *Server) register(c *fiber.Ctx) error {
	var body registerRequest
	if err := s.parse(c, &body); err != nil {
		return err
	}
	session, err := s.deps.Auth.Register(body.Username, body.Email, body.Password)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toSessionResponse(session))
}

func (s *Server) login(c *fiber.Ctx) error {
	var body loginRequest
	if err := s.parse(c, &body); err != nil {
		return err
	}
	session, err := s.deps.Auth.Login(body.Email, body.Password)
	if err != nil {
		return err
	}
	return c.JSON(toSessionResponse(session))
}

func (s *Server) me(c *fiber.Ctx) error {
	u, err := s.deps.Users.Profile(auth.UserIDFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(u.Account())
}

func (s *Server) updateProfile(c *fiber.Ctx) error {
	var body profileRequest
	if err := s.parse(c, &body); err != nil {
		return err
	}
	u, err := s.deps.Users.UpdateProfile(auth.UserIDFrom(c), user.ProfileUpdate{
		Username: body.Username,
		Avatar:   body.Avatar,
		Bio:      body.Bio,
	})
	if err != nil {
		return err
	}
	return c.JSON(u.Account())
}

func (s *Server) userProfile(c *fiber.Ctx) error {
	u, err := s.deps.Users.Profile(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(u.Profile())
}

func (s *Server) searchUsers(c *fiber.Ctx) error {
	users, err := s.deps.Users.Search(c.Query("q"), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return c.JSON(lo.Map(users, func(u user.User, _ int) user.Profile { return u.Profile() }))
}

func (s *Server) onlineUsers(c *fiber.Ctx) error {
	return c.JSON(s.deps.Connections.OnlineUsers())
}

func (s *Server) listChats(c *fiber.Ctx) error {
	chats, err := s.deps.Chats.ListChats(auth.UserIDFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(lo.Map(chats, func(ch chat.Chat, _ int) chatView { return toChatView(ch) }))
}

func (s *Server) createChat(c *fiber.Ctx) error {
	var body createChatRequest
	if err := s.parse(c, &body); err != nil {
		return err
	}
	created, err := s.deps.Chats.CreateChat(c.UserContext(), auth.UserIDFrom(c), chat.CreateChatCommand{
		Name:      body.Name,
		Type:      chat.Type(body.Type),
		MemberIDs: body.MemberIDs,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(toChatView(created))
}

func (s *Server) getChat(c *fiber.Ctx) error {
	found, err := s.deps.Chats.GetChat(auth.UserIDFrom(c), chat.ChatID(c.Params("id")))
	if err != nil {
		return err
	}
	return c.JSON(toChatView(found))
}

func (s *Server) renameChat(c *fiber.Ctx) error {
	var body renameChatRequest
	if err := s.parse(c, &body); err != nil {
		return err
	}
	renamed, err := s.deps.Chats.RenameChat(auth.UserIDFrom(c), chat.ChatID(c.Params("id")), body.Name)
	if err != nil {
		return err
	}
	return c.JSON(toChatView(renamed))
}

func (s *Server) deleteChat(c *fiber.Ctx) error {
	if err := s.deps.Chats.DeleteChat(c.UserContext(), auth.UserIDFrom(c), chat.ChatID(c.Params("id"))); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) addMember(c *fiber.Ctx) error {
	var body addMemberRequest
	if err := s.parse(c, &body); err != nil {
		return err
	}
	updated, err := s.deps.Chats.AddMember(c.UserContext(), auth.UserIDFrom(c), chat.ChatID(c.Params("id")), body.UserID)
	if err != nil {
		return err
	}
	return c.JSON(toChatView(updated))
}

func (s *Server) removeMember(c *fiber.Ctx) error {
	updated, deleted, err := s.deps.Chats.RemoveMember(c.UserContext(), auth.UserIDFrom(c), chat.ChatID(c.Params("id")), c.Params("userId"))
	if err != nil {
		return err
	}
	if deleted {
		return c.SendStatus(fiber.StatusNoContent)
	}
	return c.JSON(toChatView(updated))
}

func (s *Server) history(c *fiber.Ctx) error {
	cmd := chat.GetMessagesCommand{
		ChatID: chat.ChatID(c.Params("id")),
		Limit:  c.QueryInt("limit", 0),
	}
	if cursor := c.Query("cursor"); cursor != "" {
		cmd.Cursor = &cursor
	}
	messages, next, err := s.deps.Messages.History(c.UserContext(), auth.UserIDFrom(c), cmd)
	if err != nil {
		return err
	}
	return c.JSON(historyResponse{Messages: toViews(messages), NextCursor: next})
}

func (s *Server) search(c *fiber.Ctx) error {
	messages, err := s.deps.Messages.Search(c.UserContext(), auth.UserIDFrom(c), chat.SearchMessagesCommand{
		ChatID: chat.ChatID(c.Params("id")),
		Query:  c.Query("q"),
		Limit:  c.QueryInt("limit", 0),
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"messages": toViews(messages)})
}

func (s *Server) markRead(c *fiber.Ctx) error {
	changed, err := s.deps.Messages.MarkRead(c.UserContext(), auth.UserIDFrom(c), chat.ChatID(c.Params("chatId")))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"updated": changed})
}

func (s *Server) deleteMessage(c *fiber.Ctx) error {
	if err := s.deps.Messages.DeleteMessage(c.UserContext(), auth.UserIDFrom(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) upload(c *fiber.Ctx) error {
	if s.deps.Files == nil {
		return fiber.NewError(fiber.StatusNotFound, "file uploads are disabled")
	}
	header, err := c.FormFile("file")
	if err != nil {
		return fmt.Errorf("%w: multipart field \"file\" is required", errors.ErrValidation)
	}
	f, err := header.Open()
	if err != nil {
		return fmt.Errorf("%w: open upload: %v", errors.ErrInternal, err)
	}
	defer f.Close()

	stored, err := s.deps.Files.Upload(auth.UserIDFrom(c), header.Filename, f)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(stored)
}

func (s *Server) listFiles(c *fiber.Ctx) error {
	if s.deps.Files == nil {
		return fiber.NewError(fiber.StatusNotFound, "file uploads are disabled")
	}
	files, err := s.deps.Files.List(auth.UserIDFrom(c))
	if err != nil {
		return err
	}
	return c.JSON(files)
}

func (s *Server) getFile(c *fiber.Ctx) error {
	if s.deps.Files == nil {
		return fiber.NewError(fiber.StatusNotFound, "file uploads are disabled")
	}
	found, err := s.deps.Files.Get(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(found)
}

func (s *Server) deleteFile(c *fiber.Ctx) error {
	if s.deps.Files == nil {
		return fiber.NewError(fiber.StatusNotFound, "file uploads are disabled")
	}
	if err := s.deps.Files.Delete(auth.UserIDFrom(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// parse decodes the JSON body into out and validates its tags.
func (s *Server) parse(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fmt.Errorf("%w: malformed body: %v", errors.ErrValidation, err)
	}
	if err := s.validate.Struct(out); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	return nil
}

func toSessionResponse(session services.Session) sessionResponse {
	return sessionResponse{Token: session.Token.String(), User: session.User.Account()}
}

func toChatView(c chat.Chat) chatView {
	return chatView{
		ID:            c.ID.String(),
		Name:          c.Name,
		Type:          string(c.Type),
		Members:       c.Members,
		Admins:        c.Admins,
		LastMessageID: c.LastMessageID,
		CreatedBy:     c.CreatedBy,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

func toViews(messages []chat.ResolvedMessage) []event.MessageView {
	return lo.Map(messages, func(m chat.ResolvedMessage, _ int) event.MessageView {
		return event.NewMessageView(m)
	})
}
