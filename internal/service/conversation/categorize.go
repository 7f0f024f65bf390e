package conversation

import (
	"fmt"
	"time"

	"vision-chat/internal/repository/db"
)

// Category is a recency bucket shown as a sidebar heading
type Category string

const (
	Today          Category = "Today"
	Yesterday      Category = "Yesterday"
	Previous7Days  Category = "Previous 7 Days"
	Previous30Days Category = "Previous 30 Days"
	Older          Category = "Older"
)

// CategoryOrder is the fixed display order of the buckets
var CategoryOrder = []Category{Today, Yesterday, Previous7Days, Previous30Days, Older}

// Group is one non-empty bucket of conversations
type Group struct {
	Category      Category
	Conversations []db.Conversation
}

// Categorize buckets date by its calendar-day distance from now.
// Dates in the future count as Today.
func Categorize(now, date time.Time) Category {
	days := dayNumber(now) - dayNumber(date)
	switch {
	case days <= 0:
		return Today
	case days == 1:
		return Yesterday
	case days <= 7:
		return Previous7Days
	case days <= 30:
		return Previous30Days
	default:
		return Older
	}
}

// CategorizeStored buckets a stored YYYY-MM-DD date; unparseable dates are Older
func CategorizeStored(now time.Time, stored string) Category {
	date, err := time.ParseInLocation(db.DateLayout, stored, now.Location())
	if err != nil {
		return Older
	}
	return Categorize(now, date)
}

func dayNumber(t time.Time) int64 {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400
}

// GroupByCategory splits conversations into buckets in CategoryOrder, skipping
// empty ones. The input order is kept within each bucket.
func GroupByCategory(now time.Time, conversations []db.Conversation) []Group {
	buckets := make(map[Category][]db.Conversation, len(CategoryOrder))
	for _, conv := range conversations {
		category := CategorizeStored(now, conv.Date)
		buckets[category] = append(buckets[category], conv)
	}

	groups := make([]Group, 0, len(buckets))
	for _, category := range CategoryOrder {
		if convs := buckets[category]; len(convs) > 0 {
			groups = append(groups, Group{Category: category, Conversations: convs})
		}
	}
	return groups
}

// Label is the sidebar text of a conversation
func Label(conv db.Conversation) string {
	if conv.Summary.Valid {
		return conv.Summary.String
	}
	return fmt.Sprintf("Conversation %d (%s)", conv.ID, conv.Date)
}
