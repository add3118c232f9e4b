package generation

import (
	"context"
	"strings"
)

var authKeywords = []string{
	"login", "log in", "sign in", "signup", "sign up", "auth", "password",
	"oauth", "user account", "register",
}

var databaseKeywords = []string{
	"database", "db table", "store data", "save records", "persist",
	"postgres", "mysql", "sql", "crud",
}

// KeywordClassifier detects integration intent from prompt text. It errs on
// the side of flagging so priced integrations always go through explicit
// option selection.
type KeywordClassifier struct{}

var _ Classifier = KeywordClassifier{}

// Classify reports auth/database intent in the text.
func (KeywordClassifier) Classify(_ context.Context, text string) (Intents, error) {
	lower := strings.ToLower(text)
	var out Intents
	for _, kw := range authKeywords {
		if strings.Contains(lower, kw) {
			out.HasAuthIntent = true
			break
		}
	}
	for _, kw := range databaseKeywords {
		if strings.Contains(lower, kw) {
			out.HasDatabaseIntent = true
			break
		}
	}
	return out, nil
}
