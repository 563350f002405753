package qa

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"qalink/internal/metrics"
	"qalink/internal/models"
)

// Rank computes the display order of a topic.
//
// With Q&A enabled the root post is 1, answers follow by vote count descending then post number
// ascending, and each answer (the root included) is immediately followed by its nested items in
// creation order. Nested items are QA comments and reply posts; a reply nests under the top-level
// post its reply chain ends at. With Q&A disabled posts fall back to their post number and comments
// lose their position.
func Rank(tree *TopicTree, enabled bool) []SortKey {
	keys := make([]SortKey, 0, len(tree.Posts)+len(tree.Comments))

	if !enabled {
		for _, p := range tree.Posts {
			keys = append(keys, SortKey{Ref: PostRef(p.ID), SortOrder: p.PostNumber})
		}
		for _, c := range tree.Comments {
			keys = append(keys, SortKey{Ref: CommentRef(c.ID), SortOrder: 0})
		}
		return keys
	}

	byNumber := make(map[int]*PostNode, len(tree.Posts))
	for i := range tree.Posts {
		byNumber[tree.Posts[i].PostNumber] = &tree.Posts[i]
	}

	var root *PostNode
	var answers []*PostNode
	nested := make(map[uint][]nestedItem)

	for i := range tree.Posts {
		p := &tree.Posts[i]
		owner := topLevelOwner(p, byNumber)
		switch {
		case owner != p:
			nested[owner.ID] = append(nested[owner.ID], nestedItem{
				ref: PostRef(p.ID), createdAt: p.CreatedAt, tiebreak: uint(p.PostNumber),
			})
		case p.PostNumber == 1:
			root = p
		default:
			answers = append(answers, p)
		}
	}

	known := make(map[uint]bool, len(tree.Posts))
	for _, p := range tree.Posts {
		known[p.ID] = true
	}
	for _, c := range tree.Comments {
		if !known[c.PostID] {
			continue
		}
		nested[c.PostID] = append(nested[c.PostID], nestedItem{
			ref: CommentRef(c.ID), createdAt: c.CreatedAt, tiebreak: c.ID,
		})
	}

	slices.SortFunc(answers, func(a, b *PostNode) int {
		if c := cmp.Compare(b.VoteCount, a.VoteCount); c != 0 {
			return c
		}
		return cmp.Compare(a.PostNumber, b.PostNumber)
	})

	rank := 0
	place := func(p *PostNode) {
		rank++
		keys = append(keys, SortKey{Ref: PostRef(p.ID), SortOrder: rank})
		items := nested[p.ID]
		slices.SortFunc(items, compareNested)
		for _, it := range items {
			rank++
			keys = append(keys, SortKey{Ref: it.ref, SortOrder: rank})
		}
	}

	if root != nil {
		place(root)
	}
	for _, a := range answers {
		place(a)
	}
	return keys
}

type nestedItem struct {
	ref       Ref
	createdAt time.Time
	tiebreak  uint
}

// compareNested orders by creation time; reply posts sort before comments created at the same instant.
func compareNested(a, b nestedItem) int {
	if c := a.createdAt.Compare(b.createdAt); c != 0 {
		return c
	}
	if a.ref.Type != b.ref.Type {
		if a.ref.Type == models.VotablePost {
			return -1
		}
		return 1
	}
	return cmp.Compare(a.tiebreak, b.tiebreak)
}

// topLevelOwner follows the reply chain to a post without a reply marker. Replies may only point
// at earlier posts; a chain that breaks that rule, or points at a missing post, stops there and the
// post it stopped at is treated as top level.
func topLevelOwner(p *PostNode, byNumber map[int]*PostNode) *PostNode {
	cur := p
	for cur.ReplyToPostNumber != nil {
		parent, ok := byNumber[*cur.ReplyToPostNumber]
		if !ok || parent.PostNumber >= cur.PostNumber {
			return cur
		}
		cur = parent
	}
	return cur
}

// Ranker recomputes and persists topic ordering.
type Ranker struct {
	store   RankingStore
	topics  TopicLookup
	clock   clockwork.Clock
	metrics *metrics.Metrics
	log     *logrus.Entry
}

func NewRanker(store RankingStore, topics TopicLookup, clock clockwork.Clock, m *metrics.Metrics, log *logrus.Entry) *Ranker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Ranker{store: store, topics: topics, clock: clock, metrics: m, log: log}
}

// Recompute rebuilds the sort keys of a topic from current vote counts and post numbers.
// It never reads its own previous output.
func (r *Ranker) Recompute(ctx context.Context, topicID uint) error {
	start := r.clock.Now()
	err := r.recompute(ctx, topicID)
	r.metrics.ObserveRanking(err == nil, r.clock.Since(start))
	return err
}

func (r *Ranker) recompute(ctx context.Context, topicID uint) error {
	topic, err := r.topics.Topic(ctx, topicID)
	if err != nil {
		return err
	}
	tree, err := r.store.LoadTopicTree(ctx, topicID)
	if err != nil {
		return err
	}
	keys := Rank(tree, topic.QAEnabled)
	if err := r.store.SaveSortOrders(ctx, topicID, keys); err != nil {
		return err
	}
	r.log.WithFields(logrus.Fields{
		"topic_id":   topicID,
		"qa_enabled": topic.QAEnabled,
		"entries":    len(keys),
	}).Debug("topic order recomputed")
	return nil
}
