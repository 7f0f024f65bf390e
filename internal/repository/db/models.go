package db

import "database/sql"

// DateLayout is the storage format of Conversation.Date
const DateLayout = "2006-01-02"

// Conversation represents one row of the chats table.
// Transcript holds the JSON-encoded message list exactly as stored.
type Conversation struct {
	ID         int64
	Transcript string
	Summary    sql.NullString
	Date       string
}

// SummaryText returns the summary, or "" when it was never computed
func (c Conversation) SummaryText() string {
	if c.Summary.Valid {
		return c.Summary.String
	}
	return ""
}
