// Package clarify defines the clarification exchange model used to
// disambiguate underspecified edit requests before a job starts.
package clarify

// Exchange is one question/answer pair accumulated across negotiation rounds
// for a pending edit.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
