package qa

import (
	"errors"
	"fmt"
	"strings"

	"qalink/internal/models"
)

// Kind classifies a policy error for the transport layer.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindForbidden
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindValidation:
		return "validation_failed"
	}
	return "unknown"
}

// Error codes. Each maps to a user-facing message template.
const (
	CodePostNotFound         = "post_not_found"
	CodeCommentNotFound      = "comment_not_found"
	CodeTopicNotFound        = "topic_not_found"
	CodeVoteNotFound         = "vote_not_found"
	CodeQANotEnabled         = "qa_not_enabled"
	CodeVotingNotPermitted   = "voting_not_permitted"
	CodeSelfVote             = "self_vote"
	CodeCommentDownvote      = "comment_downvote"
	CodeAlreadyVoted         = "already_voted"
	CodeVoteLimitExceeded    = "vote_limit_exceeded"
	CodeHasNotVoted          = "has_not_voted"
	CodeUndoWindowExpired    = "undo_window_expired"
	CodeInvalidAccess        = "invalid_access"
	CodeInvalidDirection     = "invalid_direction"
	CodeCommentQANotEnabled  = "comment_qa_not_enabled"
	CodeCommentNotPermitted  = "comment_not_permitted"
	CodeCommentLimitExceeded = "comment_limit_exceeded"
	CodeCommentTooShort      = "comment_too_short"
	CodeCommentTooLong       = "comment_too_long"
	CodeCommentEditForbidden = "comment_edit_forbidden"
	CodeUserNotFound         = "user_not_found"
	CodeCategoryNotFound     = "category_not_found"
	CodeNotificationNotFound = "notification_not_found"
)

var messages = map[string]string{
	CodePostNotFound:         "The requested post could not be found.",
	CodeCommentNotFound:      "The requested comment could not be found.",
	CodeTopicNotFound:        "The requested topic could not be found.",
	CodeVoteNotFound:         "The vote could not be found.",
	CodeQANotEnabled:         "Q&A is not enabled for this topic.",
	CodeVotingNotPermitted:   "Voting is not permitted on this post.",
	CodeSelfVote:             "You cannot vote on your own post.",
	CodeCommentDownvote:      "Comments can only be upvoted.",
	CodeAlreadyVoted:         "You have already voted in this direction.",
	CodeVoteLimitExceeded:    "You have reached the vote limit for this topic.",
	CodeHasNotVoted:          "You have not voted on this post.",
	CodeUndoWindowExpired:    "You can only undo votes within {minutes} minutes of voting.",
	CodeInvalidAccess:        "You are not permitted to do that.",
	CodeInvalidDirection:     "Invalid vote direction: {direction}.",
	CodeCommentQANotEnabled:  "Comments are only available on Q&A topics.",
	CodeCommentNotPermitted:  "Comments can only be added to questions and answers.",
	CodeCommentLimitExceeded: "This post has reached the limit of {limit} comments.",
	CodeCommentTooShort:      "Comment must be at least {min} characters.",
	CodeCommentTooLong:       "Comment must be at most {max} characters.",
	CodeCommentEditForbidden: "You can only change your own comments.",
	CodeUserNotFound:         "The requested user could not be found.",
	CodeCategoryNotFound:     "The requested category could not be found.",
	CodeNotificationNotFound: "The requested notification could not be found.",
}

// Error is a policy error. Errors with the same code match under errors.Is regardless of params.
type Error struct {
	Kind   Kind
	Code   string
	Params map[string]any
}

func newError(kind Kind, code string, kv ...any) *Error {
	e := &Error{Kind: kind, Code: code}
	if len(kv) > 0 {
		e.Params = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Params[fmt.Sprint(kv[i])] = kv[i+1]
		}
	}
	return e
}

func NotFound(code string, kv ...any) *Error   { return newError(KindNotFound, code, kv...) }
func Forbidden(code string, kv ...any) *Error  { return newError(KindForbidden, code, kv...) }
func Validation(code string, kv ...any) *Error { return newError(KindValidation, code, kv...) }

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Code)
}

// Message renders the user-facing text with params substituted.
func (e *Error) Message() string {
	msg, ok := messages[e.Code]
	if !ok {
		return e.Code
	}
	for k, v := range e.Params {
		msg = strings.ReplaceAll(msg, "{"+k+"}", fmt.Sprint(v))
	}
	return msg
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrPostNotFound         = NotFound(CodePostNotFound)
	ErrCommentNotFound      = NotFound(CodeCommentNotFound)
	ErrTopicNotFound        = NotFound(CodeTopicNotFound)
	ErrVoteNotFound         = NotFound(CodeVoteNotFound)
	ErrQANotEnabled         = Forbidden(CodeQANotEnabled)
	ErrVotingNotAllowed     = Forbidden(CodeVotingNotPermitted)
	ErrSelfVote             = Forbidden(CodeSelfVote)
	ErrCommentDownvote      = Forbidden(CodeCommentDownvote)
	ErrAlreadyVoted         = Forbidden(CodeAlreadyVoted)
	ErrVoteLimitExceeded    = Forbidden(CodeVoteLimitExceeded)
	ErrHasNotVoted          = Forbidden(CodeHasNotVoted)
	ErrUndoWindowExpired    = Forbidden(CodeUndoWindowExpired)
	ErrInvalidAccess        = Forbidden(CodeInvalidAccess)
	ErrUserNotFound         = NotFound(CodeUserNotFound)
	ErrCategoryNotFound     = NotFound(CodeCategoryNotFound)
	ErrNotificationNotFound = NotFound(CodeNotificationNotFound)
)

// UndoWindowExpired carries the configured window for the message.
func UndoWindowExpired(minutes int) *Error {
	return Forbidden(CodeUndoWindowExpired, "minutes", minutes)
}

// NotFoundFor returns the not-found error matching the votable type.
func NotFoundFor(ref Ref) *Error {
	if ref.Type == models.VotableComment {
		return ErrCommentNotFound
	}
	return ErrPostNotFound
}

// KindOf returns the kind of a policy error, or 0 for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
