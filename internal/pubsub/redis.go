// Package pubsub delivers topic change notifications to subscribers.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"qalink/internal/qa"
)

// Publisher is the part of a redis client used here.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisNotifier publishes changes to the "/topic/{id}" channel.
type RedisNotifier struct {
	client Publisher
}

func NewRedisNotifier(client Publisher) *RedisNotifier {
	return &RedisNotifier{client: client}
}

// Connect builds a client and checks it with PING.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// TopicChannel is the channel name subscribers of a topic listen on.
func TopicChannel(topicID uint) string {
	return fmt.Sprintf("/topic/%d", topicID)
}

func (n *RedisNotifier) PublishVote(ctx context.Context, topicID uint, change qa.VoteChange) error {
	return n.publish(ctx, topicID, change)
}

func (n *RedisNotifier) PublishComment(ctx context.Context, topicID uint, change qa.CommentChange) error {
	return n.publish(ctx, topicID, change)
}

func (n *RedisNotifier) publish(ctx context.Context, topicID uint, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := n.client.Publish(ctx, TopicChannel(topicID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}
	return nil
}

// LogNotifier only logs changes. It is used when no redis is configured.
type LogNotifier struct {
	log *logrus.Entry
}

func NewLogNotifier(log *logrus.Entry) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) PublishVote(ctx context.Context, topicID uint, change qa.VoteChange) error {
	n.log.WithFields(logrus.Fields{
		"channel":       TopicChannel(topicID),
		"type":          change.Type,
		"id":            change.ID,
		"qa_vote_count": change.VoteCount,
	}).Debug("vote change")
	return nil
}

func (n *LogNotifier) PublishComment(ctx context.Context, topicID uint, change qa.CommentChange) error {
	n.log.WithFields(logrus.Fields{
		"channel":        TopicChannel(topicID),
		"type":           change.Type,
		"id":             change.ID,
		"comments_count": change.CommentsCount,
	}).Debug("comment change")
	return nil
}
