// Package notify provides Notifier implementations for the submission
// activity.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/petrijr/docflow/pkg/api"
)

// LogNotifier logs the submitted document and acknowledges it.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a LogNotifier writing to logger, or slog.Default()
// when logger is nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, instanceID string, doc api.WorkDocument) (bool, error) {
	n.logger.InfoContext(ctx, "document_submitted",
		slog.String("instance_id", instanceID),
		slog.String("title", doc.Properties.Title),
		slog.String("application_id", doc.Properties.ApplicationID),
		slog.String("creator", doc.Properties.Creator),
		slog.Bool("interview_passed", doc.Interview.Passed),
		slog.Bool("background_check_passed", doc.BackgroundCheck.Passed),
		slog.Bool("contract_passed", doc.Contract.Passed),
	)
	return true, nil
}

// Submission is the message published by RedisNotifier.
type Submission struct {
	InstanceID  string           `json:"instanceId"`
	Document    api.WorkDocument `json:"document"`
	SubmittedAt time.Time        `json:"submittedAt"`
}

// RedisNotifier publishes each submission on a Redis channel. The
// submission counts as acknowledged when at least one subscriber got it.
type RedisNotifier struct {
	client  redis.UniversalClient
	channel string
	now     func() time.Time
}

// DefaultChannel is used when NewRedisNotifier gets an empty channel.
const DefaultChannel = "docflow:submissions"

func NewRedisNotifier(client redis.UniversalClient, channel string) *RedisNotifier {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{client: client, channel: channel, now: time.Now}
}

func (n *RedisNotifier) Notify(ctx context.Context, instanceID string, doc api.WorkDocument) (bool, error) {
	msg, err := json.Marshal(Submission{
		InstanceID:  instanceID,
		Document:    doc,
		SubmittedAt: n.now().UTC(),
	})
	if err != nil {
		return false, api.Fatal(fmt.Errorf("encode submission: %w", err))
	}

	receivers, err := n.client.Publish(ctx, n.channel, msg).Result()
	if err != nil {
		return false, fmt.Errorf("publish submission for %s: %w", instanceID, err)
	}
	return receivers > 0, nil
}
