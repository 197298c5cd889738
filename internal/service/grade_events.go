package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// GradesSavedEvent announces a finished grading run.
type GradesSavedEvent struct {
	ID           string    `json:"id"`
	EvaluationID uint      `json:"evaluation_id"`
	CourseID     uint      `json:"course_id"`
	Saved        int       `json:"saved"`
	FailedIDs    []uint    `json:"failed_ids"`
	ActorID      uint      `json:"actor_id"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// GradeEventPublisher fans grading events out to other services.
type GradeEventPublisher interface {
	PublishGradesSaved(ctx context.Context, event GradesSavedEvent) error
}

type brokerGradeEventPublisher struct {
	nats         *nats.Conn
	natsSubject  string
	redis        *redis.Client
	redisChannel string
	logger       zerolog.Logger
}

// NewGradeEventPublisher publishes to NATS when connected, otherwise to a
// Redis pub/sub channel derived from the same subject. With neither broker
// configured events are dropped.
func NewGradeEventPublisher(natsConn *nats.Conn, subject string, redisClient *redis.Client, logger zerolog.Logger) GradeEventPublisher {
	subject = strings.TrimSpace(subject)
	channel := ""
	if subject != "" {
		subject += ".saved"
		channel = strings.ReplaceAll(subject, ".", ":")
	}

	return &brokerGradeEventPublisher{
		nats:         natsConn,
		natsSubject:  subject,
		redis:        redisClient,
		redisChannel: channel,
		logger:       logger.With().Str("component", "grade_event_publisher").Logger(),
	}
}

func (p *brokerGradeEventPublisher) PublishGradesSaved(ctx context.Context, event GradesSavedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	switch {
	case p.nats != nil && p.natsSubject != "":
		return p.nats.Publish(p.natsSubject, payload)
	case p.redis != nil && p.redisChannel != "":
		return p.redis.Publish(ctx, p.redisChannel, payload).Err()
	default:
		p.logger.Debug().Uint("evaluation_id", event.EvaluationID).Msg("no broker configured, dropping grade event")
		return nil
	}
}
