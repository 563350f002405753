package qa

import (
	"fmt"
	"time"

	"qalink/internal/models"
)

// Ref identifies a votable: an answer post or a comment.
type Ref struct {
	Type models.VotableType
	ID   uint
}

func PostRef(id uint) Ref    { return Ref{Type: models.VotablePost, ID: id} }
func CommentRef(id uint) Ref { return Ref{Type: models.VotableComment, ID: id} }

func (r Ref) String() string {
	return fmt.Sprintf("%s#%d", r.Type, r.ID)
}

// Votable is the locked view of a post or comment taken at the start of a vote transaction.
type Votable struct {
	Ref       Ref
	TopicID   uint
	AuthorID  uint
	VoteCount int

	// post-only fields
	PostNumber int
	IsReply    bool
}

// Actor is the authorization context of the user performing an operation.
type Actor struct {
	ID         uint
	Username   string
	TrustLevel int
	Staff      bool
}

// ActorFromUser builds an Actor from a loaded user.
func ActorFromUser(u *models.User) Actor {
	return Actor{ID: u.ID, Username: u.Username, TrustLevel: u.TrustLevel, Staff: u.IsStaff()}
}

// Voter is one row of the voters list.
type Voter struct {
	ID        uint                 `json:"id"`
	Username  string               `json:"username"`
	Direction models.VoteDirection `json:"direction"`
	VotedAt   time.Time            `json:"-"`
}

// ParseDirection accepts "up" or "down"; an empty value means up.
func ParseDirection(s string) (models.VoteDirection, error) {
	switch models.VoteDirection(s) {
	case "", models.VoteUp:
		return models.VoteUp, nil
	case models.VoteDown:
		return models.VoteDown, nil
	}
	return "", Validation(CodeInvalidDirection, "direction", s)
}

// Reverse returns the opposing direction.
func Reverse(d models.VoteDirection) models.VoteDirection {
	if d == models.VoteUp {
		return models.VoteDown
	}
	return models.VoteUp
}

// Delta is the count change of a single vote in direction d.
func Delta(d models.VoteDirection) int {
	if d == models.VoteDown {
		return -1
	}
	return 1
}
