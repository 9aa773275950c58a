// Package queue hands thumbnail back-fill work to an external worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"go.uber.org/zap"

	"github.com/ppiankov/provenance/internal/model"
)

// ThumbnailJob asks a worker to render a thumbnail for a stored record
type ThumbnailJob struct {
	ContentID int64  `json:"contentId"`
	URL       string `json:"url"`
	Image     string `json:"image"`
	RunID     string `json:"runId,omitempty"`
}

// ThumbnailQueue accepts thumbnail jobs
type ThumbnailQueue interface {
	Enqueue(ctx context.Context, job ThumbnailJob) error
}

// NopQueue drops every job
type NopQueue struct{}

// Enqueue does nothing
func (NopQueue) Enqueue(context.Context, ThumbnailJob) error { return nil }

// SQSAPI is the subset of the SQS client used for sending
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSQueue publishes jobs as JSON messages on an SQS queue
type SQSQueue struct {
	client   SQSAPI
	queueURL string
	logger   *zap.Logger
}

// NewSQSQueue creates a queue around an existing client
func NewSQSQueue(client SQSAPI, queueURL string, logger *zap.Logger) *SQSQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQSQueue{
		client:   client,
		queueURL: queueURL,
		logger:   logger.With(zap.String("component", "queue")),
	}
}

// Enqueue sends one job
func (q *SQSQueue) Enqueue(ctx context.Context, job ThumbnailJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal thumbnail job: %w", err)
	}
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(q.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("failed to send thumbnail job for content %d: %w", job.ContentID, err)
	}
	q.logger.Debug("Thumbnail job queued",
		zap.Int64("content_id", job.ContentID),
		zap.String("url", job.URL))
	return nil
}

// New returns an SQS-backed queue when a queue URL is configured and a
// NopQueue otherwise
func New(ctx context.Context, cfg model.QueueConfig, logger *zap.Logger) (ThumbnailQueue, error) {
	if cfg.ThumbnailQueueURL == "" {
		return NopQueue{}, nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}
	return NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.ThumbnailQueueURL, logger), nil
}
