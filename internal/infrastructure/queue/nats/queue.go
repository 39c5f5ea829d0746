package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/core/ports"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/resilience"
)

var _ ports.MessageQueue = (*Queue)(nil)

const (
	DefaultSubject    = "videos.ingest"
	DefaultQueueGroup = "ingest-workers"
)

type Queue struct {
	conn        *nats.Conn
	subject     string
	queueGroup  string
	maxInFlight int
	executor    *resilience.Executor
	observeLag  func(time.Duration)
}

type Options struct {
	QueueGroup           string
	MaxInFlight          int
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor

	// LagObserver receives the publish-to-delivery delay of each ingest message.
	LagObserver func(time.Duration)
}

// ingestMessage is the wire payload of a video ingestion event.
type ingestMessage struct {
	VideoID     string    `json:"video_id"`
	RequestedAt time.Time `json:"requested_at"`
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	if strings.TrimSpace(subject) == "" {
		subject = DefaultSubject
	}
	queueGroup := strings.TrimSpace(options.QueueGroup)
	if queueGroup == "" {
		queueGroup = DefaultQueueGroup
	}
	maxInFlight := options.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = 1
	}

	conn, err := nats.Connect(
		url,
		nats.Name("creator-replica"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:        conn,
		subject:     subject,
		queueGroup:  queueGroup,
		maxInFlight: maxInFlight,
		executor:    options.ResilienceExecutor,
		observeLag:  options.LagObserver,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishVideoIngest(ctx context.Context, videoID string) error {
	payload, err := encodeIngestMessage(videoID, time.Now().UTC())
	if err != nil {
		return err
	}
	err = q.executor.Execute(ctx, "nats.publish", func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}, classifyNATSError)
	if err != nil {
		return publishError(err)
	}
	return nil
}

// SubscribeVideoIngest blocks until ctx is done, running up to maxInFlight handlers at once.
func (q *Queue) SubscribeVideoIngest(ctx context.Context, handler func(context.Context, string) error) error {
	group := new(errgroup.Group)
	group.SetLimit(q.maxInFlight)

	sub, err := q.conn.QueueSubscribe(q.subject, q.queueGroup, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		message, err := decodeIngestMessage(msg.Data)
		if err != nil {
			slog.Warn("ingest_message_rejected", "subject", msg.Subject, "error", err)
			return
		}
		if q.observeLag != nil && !message.RequestedAt.IsZero() {
			q.observeLag(time.Since(message.RequestedAt))
		}
		group.Go(func() error {
			handleIngest(ctx, message.VideoID, handler)
			return nil
		})
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	_ = group.Wait()
	return nil
}

func handleIngest(ctx context.Context, videoID string, handler func(context.Context, string) error) {
	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	err := handler(handlerCtx, videoID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrIngestInProgress):
		slog.Info("ingest_skipped_in_progress", "video_id", videoID)
	default:
		slog.Error("ingest_handler_failed", "video_id", videoID, "error", err)
	}
}

func encodeIngestMessage(videoID string, requestedAt time.Time) ([]byte, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode ingest message", errors.New("video id is required"))
	}
	payload, err := json.Marshal(ingestMessage{VideoID: videoID, RequestedAt: requestedAt})
	if err != nil {
		return nil, fmt.Errorf("marshal ingest message: %w", err)
	}
	return payload, nil
}

// decodeIngestMessage also accepts a bare video id payload, which carries no request time.
func decodeIngestMessage(data []byte) (ingestMessage, error) {
	raw := strings.TrimSpace(string(data))
	if raw == "" {
		return ingestMessage{}, errors.New("empty ingest message")
	}
	if !strings.HasPrefix(raw, "{") {
		return ingestMessage{VideoID: raw}, nil
	}
	var msg ingestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ingestMessage{}, fmt.Errorf("decode ingest message: %w", err)
	}
	msg.VideoID = strings.TrimSpace(msg.VideoID)
	if msg.VideoID == "" {
		return ingestMessage{}, errors.New("ingest message without video id")
	}
	return msg, nil
}
