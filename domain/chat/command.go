package chat

type SendMessageCommand struct {
	ChatID    ChatID
	Text      string
	Type      MessageType
	File      *FileRef
	ReplyToID string
}

type CreateChatCommand struct {
	Name      string
	Type      Type
	MemberIDs []string
}

type GetMessagesCommand struct {
	ChatID ChatID
	Cursor *string
	Limit  int
}

type SearchMessagesCommand struct {
	ChatID ChatID
	Query  string
	Limit  int
}
