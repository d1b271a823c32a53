package search

import (
	"strconv"
	"strings"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Query represents the structured parameters of a message search.
// It decouples the raw input typed by a user from the index requirements.
type Query struct {
	RawInput        string // The input as typed
	ConversationSID string // Conversation searched
	Terms           string // Free text matched against message text
	SenderID        string // Only messages of this sender, when set
	Limit           int    // Maximum number of hits
}

// NewSearchQuery parses command-line style arguments out of input.
// Example: invoice march --from U42 --limit 5
// A limit given in input wins over limit; an unparsable one is ignored.
func NewSearchQuery(conversationSID, input string, limit int) Query {
	query := Query{
		RawInput:        input,
		ConversationSID: conversationSID,
		Limit:           limit,
	}
	if query.Limit <= 0 {
		query.Limit = DefaultLimit
	}

	parts := strings.Fields(input)
	var textTerms []string

	for i := 0; i < len(parts); i++ {
		part := parts[i]

		// Handle flags like --from U42 or --limit 5
		if strings.HasPrefix(part, "--") && i+1 < len(parts) {
			switch strings.TrimPrefix(part, "--") {
			case "from":
				query.SenderID = parts[i+1]
			case "limit":
				if n, err := strconv.Atoi(parts[i+1]); err == nil && n > 0 {
					query.Limit = n
				}
			}
			i++ // Skip the value part in next iteration
			continue
		}
		textTerms = append(textTerms, part)
	}

	query.Terms = strings.Join(textTerms, " ")
	query.Limit = min(query.Limit, MaxLimit)
	return query
}

// Empty reports whether the query would match everything.
func (q Query) Empty() bool {
	return q.Terms == "" && q.SenderID == ""
}
