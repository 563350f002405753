// Package memstore is an in-memory implementation of the qa and services stores.
// Transactions are serialized and roll back by restoring a snapshot.
package memstore

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"

	"qalink/internal/models"
	"qalink/internal/qa"
)

type state struct {
	users         map[uint]models.User
	categories    map[uint]models.Category
	topics        map[uint]models.Topic
	posts         map[uint]models.Post
	comments      map[uint]models.Comment
	votes         map[uint]models.Vote
	notifications []models.Notification
	nextID        uint
}

func (s *state) clone() state {
	return state{
		users:         maps.Clone(s.users),
		categories:    maps.Clone(s.categories),
		topics:        maps.Clone(s.topics),
		posts:         maps.Clone(s.posts),
		comments:      maps.Clone(s.comments),
		votes:         maps.Clone(s.votes),
		notifications: slices.Clone(s.notifications),
		nextID:        s.nextID,
	}
}

// Store keeps everything in maps. It satisfies qa.VoteStore, qa.TopicLookup, qa.RankingStore,
// services.CommentStore and services.AdminStore.
type Store struct {
	txMu   sync.Mutex
	mu     sync.RWMutex
	data   state
	clock  clockwork.Clock
	policy qa.Policy

	failMu   sync.Mutex
	failures map[string]error
}

func New(clock clockwork.Clock, policy qa.Policy) *Store {
	return &Store{
		clock:  clock,
		policy: policy,
		data: state{
			users:      make(map[uint]models.User),
			categories: make(map[uint]models.Category),
			topics:     make(map[uint]models.Topic),
			posts:      make(map[uint]models.Post),
			comments:   make(map[uint]models.Comment),
			votes:      make(map[uint]models.Vote),
		},
		failures: make(map[string]error),
	}
}

// SetPolicy replaces the policy used to derive topic Q&A status.
func (s *Store) SetPolicy(p qa.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
}

// FailOn makes the named operation return err until cleared with a nil err.
func (s *Store) FailOn(op string, err error) {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	s.failMu.Lock()
	defer s.failMu.Unlock()
	return s.failures[op]
}

func (s *Store) id() uint {
	s.data.nextID++
	return s.data.nextID
}

// --- seeding ---

func (s *Store) AddUser(u models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	if u.Role == "" {
		u.Role = models.RoleUser
	}
	u.CreatedAt = s.clock.Now()
	s.data.users[u.ID] = u
	return u
}

func (s *Store) AddCategory(c models.Category) models.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.id()
	}
	s.data.categories[c.ID] = c
	return c
}

// AddTopic stores a topic; tag names are turned into tags.
func (s *Store) AddTopic(t models.Topic, tags ...string) models.Topic {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.id()
	}
	for _, name := range tags {
		t.Tags = append(t.Tags, models.Tag{ID: s.id(), Name: name})
	}
	t.CreatedAt = s.clock.Now()
	s.data.topics[t.ID] = t
	return t
}

// AddPost stores a post. A zero post number takes the next number in the topic.
func (s *Store) AddPost(p models.Post) models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	if p.PostNumber == 0 {
		max := 0
		for _, other := range s.data.posts {
			if other.TopicID == p.TopicID && other.PostNumber > max {
				max = other.PostNumber
			}
		}
		p.PostNumber = max + 1
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.clock.Now()
	}
	s.data.posts[p.ID] = p
	return p
}

func (s *Store) AddComment(c models.Comment) models.Comment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == 0 {
		c.ID = s.id()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.clock.Now()
	}
	c.User = s.data.users[c.UserID]
	s.data.comments[c.ID] = c
	return c
}

// --- inspection ---

func (s *Store) Post(id uint) models.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.posts[id]
}

func (s *Store) Comment(id uint) models.Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.comments[id]
}

func (s *Store) Topic(ctx context.Context, topicID uint) (*qa.TopicInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.data.topics[topicID]
	if !ok {
		return nil, qa.ErrTopicNotFound
	}
	attrs := qa.TopicAttrs{
		IsCategoryTopic: t.IsCategoryTopic,
		Tags:            t.TagNames(),
		Subtype:         t.Subtype,
	}
	if t.CategoryID != nil {
		attrs.CategoryQAEnabled = s.data.categories[*t.CategoryID].QAEnabled
	}
	return &qa.TopicInfo{
		ID:         t.ID,
		UserID:     t.UserID,
		CategoryID: t.CategoryID,
		QAEnabled:  s.policy.TopicEnabled(attrs),
	}, nil
}

// Votes returns every ledger row in id order.
func (s *Store) Votes() []models.Vote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Collect(maps.Values(s.data.votes))
	slices.SortFunc(out, func(a, b models.Vote) int { return int(a.ID) - int(b.ID) })
	return out
}

func (s *Store) Notifications() []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.data.notifications)
}

// ListNotifications returns the user's notifications, newest first.
func (s *Store) ListNotifications(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Notification
	for _, n := range s.data.notifications {
		if n.UserID == userID && (!unreadOnly || !n.IsRead) {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b models.Notification) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.ID) - int(a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(ctx context.Context, userID, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.data.notifications {
		if n.ID == id && n.UserID == userID {
			s.data.notifications[i].IsRead = true
			return nil
		}
	}
	return qa.ErrNotificationNotFound
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID uint) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i, note := range s.data.notifications {
		if note.UserID == userID && !note.IsRead {
			s.data.notifications[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *Store) FindUser(ctx context.Context, id uint) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.data.users[id]
	if !ok {
		return nil, qa.ErrUserNotFound
	}
	return &u, nil
}

func (s *Store) FindUserByLogin(ctx context.Context, login string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.data.users {
		if strings.EqualFold(u.Username, login) || strings.EqualFold(u.Email, login) {
			return &u, nil
		}
	}
	return nil, qa.ErrUserNotFound
}
