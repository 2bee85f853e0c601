package storage

import (
	"fmt"
	"strings"

	"github.com/mama165/sdk-go/database"
)

// InspectMapper renders the hub records for the Badger debug inspector.
// Lookup keys (email, username, message id, chat membership, file owner)
// only hold a reference and are shown as INDEX rows.
func InspectMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	switch {
	case strings.HasPrefix(key, "user:id:"):
		r, err := decodeRecord(val)
		if err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		u := toUser(r)
		row.Type = "USER"
		row.Detail = fmt.Sprintf("%s <%s>", u.Username, u.Email)
		row.Scores = fmt.Sprintf("online:%t", u.IsOnline)
	case strings.HasPrefix(key, "chat:"):
		r, err := decodeRecord(val)
		if err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		c := toChat(r)
		row.Type = "CHAT"
		row.Detail = fmt.Sprintf("[%s] %s", c.Type, c.Name)
		row.Scores = fmt.Sprintf("members:%d", len(c.Members))
	case strings.HasPrefix(key, "msg:"):
		r, err := decodeRecord(val)
		if err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		m := toMessage(r)
		row.Type = "MESSAGE"
		row.Detail = m.Text
		if m.File != nil {
			row.Detail = m.File.Name
		}
		row.Scores = fmt.Sprintf("read:%d deleted:%t", len(m.ReadBy), m.IsDeleted)
	case strings.HasPrefix(key, "file:id:"):
		r, err := decodeRecord(val)
		if err != nil {
			row.Detail = "Error: unmarshal failed"
			return row
		}
		f := toFile(r)
		row.Type = "FILE"
		row.Detail = fmt.Sprintf("%s (%s)", f.OriginalName, f.MimeType)
		row.Scores = fmt.Sprintf("size:%d", f.Size)
	default:
		row.Type = "INDEX"
		row.Detail = string(val)
	}
	return row
}
