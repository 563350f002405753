// Package qa implements Q&A voting and answer ranking.
//
// Votes live in an append-only ledger (qa_votes) with a denormalized qa_vote_count on every post and
// comment. VoteManager mutates both inside one transaction per votable; the row is locked first and the
// count moves by an atomic increment. Ranking recomputes the display order of a topic from scratch and
// is safe to run at any time.
package qa
