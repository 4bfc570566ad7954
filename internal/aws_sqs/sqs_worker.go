package aws_sqs

import (
	"context"
	"log/slog"
	"os"
	"sync"

	awsCfg "github.com/aws/aws-sdk-go-v2/config"
	crd "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/IliaW/hotel-crawler/config"
	"github.com/IliaW/hotel-crawler/internal/telemetry"
)

// SQSWorker feeds seed rows from the queue into the crawl. Each message body
// is one JSON seed row; parsing happens downstream so a malformed row can be
// dead-lettered with its raw body intact.
type SQSWorker struct {
	client      *sqs.Client
	url         *string
	seedRowChan chan<- *string
	metrics     *telemetry.SeedMetrics
	cfg         *config.Config
	wg          *sync.WaitGroup
}

func NewSQSWorker(seedRowChan chan<- *string, metrics *telemetry.SeedMetrics, cfg *config.Config,
	wg *sync.WaitGroup) *SQSWorker {
	slog.Info("connecting to sqs...")

	c, err := connect(cfg)
	if err != nil {
		slog.Error("failed to connect to sqs.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	queueUrl, err := c.GetQueueUrl(context.Background(), &sqs.GetQueueUrlInput{QueueName: &cfg.SQSSettings.QueueName})
	if err != nil {
		slog.Error("failed to get queue url.", slog.String("err", err.Error()),
			slog.String("queue_name", cfg.SQSSettings.QueueName))
		os.Exit(1)
	}

	sqsClient := SQSWorker{
		client:      c,
		url:         queueUrl.QueueUrl,
		seedRowChan: seedRowChan,
		metrics:     metrics,
		cfg:         cfg,
		wg:          wg,
	}

	return &sqsClient
}

func (w *SQSWorker) SQSConsumer(ctx context.Context) {
	defer w.wg.Done()
	slog.Info("starting sqs consumer...", slog.String("queue_url", *w.url))

	getInput := &sqs.ReceiveMessageInput{
		QueueUrl:            w.url,
		MaxNumberOfMessages: w.cfg.SQSSettings.MaxNumberOfMessages,
		WaitTimeSeconds:     w.cfg.SQSSettings.WaitTimeSeconds,
		VisibilityTimeout:   w.cfg.SQSSettings.VisibilityTimeout,
	}
	deleteInput := &sqs.DeleteMessageBatchInput{
		QueueUrl: w.url,
		Entries:  nil,
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping sqs consumer...")
			close(w.seedRowChan)
			slog.Info("close seedRowChan.")
			return
		default:
			output, err := w.client.ReceiveMessage(ctx, getInput)
			if err != nil {
				slog.Error("failed to receive message from sqs.", slog.String("err", err.Error()))
				continue
			}
			if len(output.Messages) == 0 {
				slog.Debug("no messages received from sqs.")
				continue
			}

			// Sending seed rows downstream
			entries := make([]types.DeleteMessageBatchRequestEntry, 0, len(output.Messages))
			for _, m := range output.Messages {
				w.seedRowChan <- m.Body
				entries = append(entries, types.DeleteMessageBatchRequestEntry{
					Id:            m.MessageId,
					ReceiptHandle: m.ReceiptHandle,
				})
			}
			// Deleting messages from sqs
			deleteInput.Entries = entries
			slog.Debug("deleting messages from sqs.", slog.Int("size", len(entries)))
			_, err = w.client.DeleteMessageBatch(context.Background(), deleteInput)
			if err != nil {
				slog.Error("failed to delete messages from sqs.", slog.String("err", err.Error()))
				w.metrics.FailMsgCnt(int64(len(entries))) // rows still can be processed
			} else {
				w.metrics.SuccessMsgCnt(int64(len(entries)))
			}
		}
	}
}

func connect(cfg *config.Config) (*sqs.Client, error) {
	sqsConfig, err := awsCfg.LoadDefaultConfig(context.Background(), awsCfg.WithRegion(cfg.SQSSettings.Region))
	if err != nil {
		slog.Error("failed to load sqs config.", slog.String("err", err.Error()))
		return nil, err
	}

	if cfg.Env == "local" {
		sqsConfig.BaseEndpoint = &cfg.SQSSettings.AwsBaseEndpoint // for LocalStack
		sqsConfig.Credentials = crd.NewStaticCredentialsProvider("test", "test", "")
	}

	return sqs.NewFromConfig(sqsConfig), nil
}
