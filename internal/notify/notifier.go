package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"approval-tracker/internal/domain"
)

type Notifier interface {
	NotifyManagers(ctx context.Context, note domain.Notification) error
	Notify(ctx context.Context, userID string, note domain.Notification) error
}

// New returns a Redis-backed notifier when addr is set, otherwise one that
// only logs. The returned func releases the Redis connection.
func New(addr, channel string, users UserDirectory, logger *zap.Logger) (Notifier, func() error) {
	if addr == "" {
		return LogNotifier{Logger: logger}, func() error { return nil }
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return NewRedisNotifier(rdb, users, channel, logger), rdb.Close
}

type UserDirectory interface {
	ListUsersByRole(ctx context.Context, roles ...domain.Role) ([]domain.User, error)
}

// Publisher is the part of *redis.Client the notifier needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Message is what subscribers on the channel receive, one per recipient.
type Message struct {
	RecipientID  string              `json:"recipient_id"`
	Notification domain.Notification `json:"notification"`
}

type RedisNotifier struct {
	publisher Publisher
	users     UserDirectory
	channel   string
	logger    *zap.Logger
}

func NewRedisNotifier(publisher Publisher, users UserDirectory, channel string, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{publisher: publisher, users: users, channel: channel, logger: logger}
}

// NotifyManagers publishes to every ADMIN and COORDINATOR except the actor.
func (n *RedisNotifier) NotifyManagers(ctx context.Context, note domain.Notification) error {
	managers, err := n.users.ListUsersByRole(ctx, domain.RoleAdmin, domain.RoleCoordinator)
	if err != nil {
		return fmt.Errorf("list managers: %w", err)
	}
	var errs []error
	for _, u := range managers {
		if u.ID == note.ActorID {
			continue
		}
		if err := n.Notify(ctx, u.ID, note); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (n *RedisNotifier) Notify(ctx context.Context, userID string, note domain.Notification) error {
	payload, err := json.Marshal(Message{RecipientID: userID, Notification: note})
	if err != nil {
		return err
	}
	if err := n.publisher.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", userID, err)
	}
	n.logger.Debug("notification published",
		zap.String("recipient_id", userID),
		zap.String("document_id", note.DocumentID),
		zap.String("type", string(note.Type)))
	return nil
}

// LogNotifier only logs. It is used when no Redis address is configured.
type LogNotifier struct {
	Logger *zap.Logger
}

func (n LogNotifier) NotifyManagers(_ context.Context, note domain.Notification) error {
	n.log("managers", note)
	return nil
}

func (n LogNotifier) Notify(_ context.Context, userID string, note domain.Notification) error {
	n.log(userID, note)
	return nil
}

func (n LogNotifier) log(recipient string, note domain.Notification) {
	if n.Logger == nil {
		return
	}
	n.Logger.Info("notification",
		zap.String("recipient", recipient),
		zap.String("document_id", note.DocumentID),
		zap.String("type", string(note.Type)),
		zap.String("title", note.Title),
		zap.String("actor_id", note.ActorID))
}
