package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/noah-isme/peer-eval-api/internal/dto"
	"github.com/noah-isme/peer-eval-api/internal/models"
	"github.com/noah-isme/peer-eval-api/internal/observability"
	"github.com/noah-isme/peer-eval-api/internal/repository"
	"github.com/noah-isme/peer-eval-api/internal/scoring"
)

const (
	activityEntityEvaluation = "evaluation"
	defaultGradingWorkers    = 8
)

var (
	// ErrEvaluationNotFound indicates the evaluation does not exist.
	ErrEvaluationNotFound = errors.New("evaluation not found")
	// ErrStudentNotFound indicates a student is not part of the evaluation's course.
	ErrStudentNotFound = errors.New("student not found in course")
)

// PeerEvaluationService exposes peer scoring to the read, write and
// diagnostic call sites.
type PeerEvaluationService interface {
	GetPeerEvaluationScores(ctx context.Context, evaluationID uint, studentIDs []uint) (dto.PeerScoresResponse, error)
	GetStudentPeerScore(ctx context.Context, evaluationID, studentID uint) (dto.PeerEvaluationResultResponse, error)
	SaveGrades(ctx context.Context, evaluationID uint, payload dto.SaveGradesRequest, actor ActivityActor) (dto.SaveGradesResponse, error)
	ListGrades(ctx context.Context, evaluationID uint) ([]dto.GradeResponse, error)
	GetInjusticeCases(ctx context.Context, evaluationID uint) ([]dto.InjusticeCaseResponse, error)
	DetectInjustice(ctx context.Context, payload dto.InjusticeRequest) ([]dto.InjusticeCaseResponse, error)
}

// PeerEvaluationDependencies groups the collaborators of the service.
type PeerEvaluationDependencies struct {
	Evaluations repository.EvaluationRepository
	Responses   repository.ResponseRepository
	Students    repository.StudentRepository
	Grades      repository.GradeRepository
	Engine      *scoring.Engine
	Combiner    scoring.Combiner
	Validator   *validator.Validate
	Cache       *redis.Client
	CacheTTL    time.Duration
	Workers     int
	Events      GradeEventPublisher
	Activity    ActivityRecorder
}

type peerEvaluationService struct {
	evaluations repository.EvaluationRepository
	responses   repository.ResponseRepository
	students    repository.StudentRepository
	grades      repository.GradeRepository
	engine      *scoring.Engine
	combiner    scoring.Combiner
	validator   *validator.Validate
	cache       *redis.Client
	cacheTTL    time.Duration
	workers     int
	events      GradeEventPublisher
	activity    ActivityRecorder
	sanitizer   *bluemonday.Policy
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewPeerEvaluationService constructs the peer scoring service.
func NewPeerEvaluationService(deps PeerEvaluationDependencies, logger zerolog.Logger) PeerEvaluationService {
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultGradingWorkers
	}

	return &peerEvaluationService{
		evaluations: deps.Evaluations,
		responses:   deps.Responses,
		students:    deps.Students,
		grades:      deps.Grades,
		engine:      deps.Engine,
		combiner:    deps.Combiner,
		validator:   deps.Validator,
		cache:       deps.Cache,
		cacheTTL:    deps.CacheTTL,
		workers:     workers,
		events:      deps.Events,
		activity:    deps.Activity,
		sanitizer:   bluemonday.StrictPolicy(),
		tracer:      otel.Tracer("github.com/noah-isme/peer-eval-api/internal/service/peer_evaluation"),
		logger:      logger.With().Str("component", "peer_evaluation_service").Logger(),
		now:         time.Now,
	}
}

func (s *peerEvaluationService) GetPeerEvaluationScores(ctx context.Context, evaluationID uint, studentIDs []uint) (dto.PeerScoresResponse, error) {
	ctx, span := s.tracer.Start(ctx, "peer_scores.read", trace.WithAttributes(
		attribute.Int64("evaluation.id", int64(evaluationID)),
		attribute.Int("peer_scores.filter_size", len(studentIDs)),
	))
	defer span.End()

	cacheable := len(studentIDs) == 0
	cacheKey := peerScoresCacheKey(evaluationID)

	if cacheable && s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey).Result()
		switch {
		case err == nil:
			var response dto.PeerScoresResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				observability.PeerScoreCacheLookups().WithLabelValues("hit").Inc()
				span.SetAttributes(attribute.Bool("peer_scores.cache_hit", true))
				response.CacheHit = true
				return response, nil
			}
			observability.PeerScoreCacheLookups().WithLabelValues("error").Inc()
		case errors.Is(err, redis.Nil):
			observability.PeerScoreCacheLookups().WithLabelValues("miss").Inc()
		default:
			observability.PeerScoreCacheLookups().WithLabelValues("error").Inc()
			s.logger.Warn().Err(err).Uint("evaluation_id", evaluationID).Msg("failed to read peer score cache")
		}
	}

	_, results, err := s.computeScores(ctx, evaluationID, studentIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "peer_scores_failed")
		return dto.PeerScoresResponse{}, err
	}

	response := dto.PeerScoresResponse{
		EvaluationID: evaluationID,
		Results: lo.Map(results, func(result scoring.Result, _ int) dto.PeerEvaluationResultResponse {
			return dto.NewPeerEvaluationResultResponse(result)
		}),
		GeneratedAt: s.now().UTC(),
	}
	observability.PeerScoresComputed().WithLabelValues("read").Add(float64(len(results)))

	if cacheable && s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Uint("evaluation_id", evaluationID).Msg("failed to store peer score cache")
			}
		}
	}

	return response, nil
}

func (s *peerEvaluationService) GetStudentPeerScore(ctx context.Context, evaluationID, studentID uint) (dto.PeerEvaluationResultResponse, error) {
	ctx, span := s.tracer.Start(ctx, "peer_scores.read_student", trace.WithAttributes(
		attribute.Int64("evaluation.id", int64(evaluationID)),
		attribute.Int64("student.id", int64(studentID)),
	))
	defer span.End()

	evaluation, err := s.loadEvaluation(ctx, evaluationID)
	if err != nil {
		span.RecordError(err)
		return dto.PeerEvaluationResultResponse{}, err
	}

	student, err := s.students.GetByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.PeerEvaluationResultResponse{}, ErrStudentNotFound
		}
		span.RecordError(err)
		return dto.PeerEvaluationResultResponse{}, err
	}
	if student.CourseID != evaluation.CourseID {
		return dto.PeerEvaluationResultResponse{}, ErrStudentNotFound
	}

	if _, err := s.engine.ScoringQuestion(evaluation); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scoring_question_invalid")
		return dto.PeerEvaluationResultResponse{}, err
	}

	mates, err := s.students.ListGroupMates(ctx, evaluation.CourseID, student.ID)
	if err != nil {
		s.logger.Warn().Err(err).Uint("student_id", student.ID).Msg("failed to load group mates, score unavailable")
		span.RecordError(err)
		return dto.UnavailablePeerEvaluationResult(student), nil
	}

	responses, err := s.responses.ListByEvaluation(ctx, evaluation.ID)
	if err != nil {
		span.RecordError(err)
		return dto.PeerEvaluationResultResponse{}, err
	}

	result, err := s.engine.ComputePeerScore(evaluation, student, mates, scoring.IndexLatestResponses(responses))
	if err != nil {
		span.RecordError(err)
		return dto.PeerEvaluationResultResponse{}, err
	}
	observability.PeerScoresComputed().WithLabelValues("read").Inc()

	return dto.NewPeerEvaluationResultResponse(result), nil
}

func (s *peerEvaluationService) SaveGrades(ctx context.Context, evaluationID uint, payload dto.SaveGradesRequest, actor ActivityActor) (dto.SaveGradesResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grades.save", trace.WithAttributes(
		attribute.Int64("evaluation.id", int64(evaluationID)),
		attribute.Int64("grading.actor_id", int64(actor.ID)),
	))
	defer span.End()

	if s.validator != nil {
		if err := s.validator.Struct(payload); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "validation_failed")
			return dto.SaveGradesResponse{}, err
		}
	}

	started := s.now()
	evaluation, results, err := s.computeScores(ctx, evaluationID, payload.StudentIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "peer_scores_failed")
		return dto.SaveGradesResponse{}, err
	}
	observability.PeerScoresComputed().WithLabelValues("write").Add(float64(len(results)))

	saved := make([]*dto.GradeResponse, len(results))
	var (
		mu       sync.Mutex
		failures []dto.GradeFailure
	)

	group := new(errgroup.Group)
	group.SetLimit(s.workers)
	for i, result := range results {
		group.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("grade write panicked: %v", r)
				}
				if err != nil {
					s.logger.Error().Err(err).
						Uint("evaluation_id", evaluation.ID).
						Uint("student_id", result.UserInfoID).
						Msg("failed to save grade")
					observability.GradeWrites().WithLabelValues("failure").Inc()
					mu.Lock()
					failures = append(failures, dto.GradeFailure{UserInfoID: result.UserInfoID, Error: err.Error()})
					mu.Unlock()
				}
			}()

			grade, err := s.persistGrade(ctx, evaluation.ID, result)
			if err != nil {
				return err
			}
			response := dto.NewGradeResponse(grade)
			saved[i] = &response
			observability.GradeWrites().WithLabelValues("success").Inc()
			return nil
		})
	}
	// Failures are collected per student above; the group never returns an error.
	_ = group.Wait()

	sort.Slice(failures, func(i, j int) bool {
		return failures[i].UserInfoID < failures[j].UserInfoID
	})

	response := dto.SaveGradesResponse{
		EvaluationID: evaluation.ID,
		Saved:        make([]dto.GradeResponse, 0, len(results)),
		Failed:       failures,
	}
	if response.Failed == nil {
		response.Failed = []dto.GradeFailure{}
	}
	for _, grade := range saved {
		if grade != nil {
			response.Saved = append(response.Saved, *grade)
		}
	}

	span.SetAttributes(
		attribute.Int("grading.saved", len(response.Saved)),
		attribute.Int("grading.failed", len(response.Failed)),
	)
	observability.GradingRunLatency().Observe(s.now().Sub(started).Seconds())

	s.invalidateScores(ctx, evaluation.ID)
	s.afterGradingRun(ctx, evaluation, response, actor)

	return response, nil
}

func (s *peerEvaluationService) ListGrades(ctx context.Context, evaluationID uint) ([]dto.GradeResponse, error) {
	if _, err := s.loadEvaluation(ctx, evaluationID); err != nil {
		return nil, err
	}

	grades, err := s.grades.ListByEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, err
	}

	return dto.NewGradeResponses(grades), nil
}

func (s *peerEvaluationService) GetInjusticeCases(ctx context.Context, evaluationID uint) ([]dto.InjusticeCaseResponse, error) {
	scores, err := s.GetPeerEvaluationScores(ctx, evaluationID, nil)
	if err != nil {
		return nil, err
	}

	entries := lo.Map(scores.Results, func(result dto.PeerEvaluationResultResponse, _ int) scoring.InjusticeEntry {
		return scoring.InjusticeEntry{
			UserInfoID: result.UserInfoID,
			Name:       result.Name,
			Group:      result.Group,
			Score:      result.PeerEvaluationScore.Interface(),
		}
	})

	return s.detect(ctx, entries), nil
}

func (s *peerEvaluationService) DetectInjustice(ctx context.Context, payload dto.InjusticeRequest) ([]dto.InjusticeCaseResponse, error) {
	if s.validator != nil {
		if err := s.validator.Struct(payload); err != nil {
			return nil, err
		}
	}

	entries := lo.Map(payload.Results, func(input dto.InjusticeResultInput, _ int) scoring.InjusticeEntry {
		return scoring.InjusticeEntry{
			UserInfoID: input.UserInfoID,
			Name:       input.Name,
			Group:      input.Group,
			Score:      input.PeerEvaluationScore,
		}
	})

	return s.detect(ctx, entries), nil
}

func (s *peerEvaluationService) detect(ctx context.Context, entries []scoring.InjusticeEntry) []dto.InjusticeCaseResponse {
	_, span := s.tracer.Start(ctx, "injustice.detect", trace.WithAttributes(
		attribute.Int("injustice.entries", len(entries)),
	))
	defer span.End()

	for i := range entries {
		entries[i].Name = strings.TrimSpace(s.sanitizer.Sanitize(entries[i].Name))
	}

	cases := scoring.DetectInjustice(entries)
	observability.InjusticeCasesDetected().Add(float64(len(cases)))
	span.SetAttributes(attribute.Int("injustice.cases", len(cases)))

	return dto.NewInjusticeCaseResponses(cases)
}

// computeScores loads everything the batch engine needs and scores the
// requested students, or the whole roster when studentIDs is empty.
func (s *peerEvaluationService) computeScores(ctx context.Context, evaluationID uint, studentIDs []uint) (models.Evaluation, []scoring.Result, error) {
	evaluation, err := s.loadEvaluation(ctx, evaluationID)
	if err != nil {
		return models.Evaluation{}, nil, err
	}

	roster, err := s.students.ListByCourse(ctx, evaluation.CourseID)
	if err != nil {
		return models.Evaluation{}, nil, fmt.Errorf("load course roster: %w", err)
	}

	targets, err := selectTargets(roster, studentIDs)
	if err != nil {
		return models.Evaluation{}, nil, err
	}

	responses, err := s.responses.ListByEvaluation(ctx, evaluation.ID)
	if err != nil {
		return models.Evaluation{}, nil, fmt.Errorf("load responses: %w", err)
	}

	results, err := s.engine.ComputePeerScores(evaluation, roster, targets, scoring.IndexLatestResponses(responses))
	if err != nil {
		return models.Evaluation{}, nil, err
	}

	return evaluation, results, nil
}

func (s *peerEvaluationService) persistGrade(ctx context.Context, evaluationID uint, result scoring.Result) (models.Grade, error) {
	var previous *string
	stored, err := s.grades.GetByEvaluationAndUser(ctx, evaluationID, result.UserInfoID)
	switch {
	case err == nil:
		previous = &stored.GroupGrade
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return models.Grade{}, fmt.Errorf("load stored grade: %w", err)
	}

	values := s.combiner.Combine(previous, result.PeerEvaluationScore)
	grade := models.Grade{
		EvaluationID:    evaluationID,
		UserInfoID:      result.UserInfoID,
		GroupGrade:      values.GroupGrade,
		EvaluationGrade: values.EvaluationGrade,
		FinalGrade:      values.FinalGrade,
	}
	if err := s.grades.Upsert(ctx, &grade); err != nil {
		return models.Grade{}, fmt.Errorf("upsert grade: %w", err)
	}

	return grade, nil
}

func (s *peerEvaluationService) loadEvaluation(ctx context.Context, evaluationID uint) (models.Evaluation, error) {
	evaluation, err := s.evaluations.GetByID(ctx, evaluationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Evaluation{}, ErrEvaluationNotFound
		}
		return models.Evaluation{}, fmt.Errorf("load evaluation: %w", err)
	}
	return evaluation, nil
}

func (s *peerEvaluationService) invalidateScores(ctx context.Context, evaluationID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, peerScoresCacheKey(evaluationID)).Err(); err != nil {
		s.logger.Warn().Err(err).Uint("evaluation_id", evaluationID).Msg("failed to invalidate peer score cache")
	}
}

func (s *peerEvaluationService) afterGradingRun(ctx context.Context, evaluation models.Evaluation, response dto.SaveGradesResponse, actor ActivityActor) {
	failedIDs := lo.Map(response.Failed, func(failure dto.GradeFailure, _ int) uint {
		return failure.UserInfoID
	})

	if s.events != nil {
		event := GradesSavedEvent{
			ID:           uuid.NewString(),
			EvaluationID: evaluation.ID,
			CourseID:     evaluation.CourseID,
			Saved:        len(response.Saved),
			FailedIDs:    failedIDs,
			ActorID:      actor.ID,
			OccurredAt:   s.now().UTC(),
		}
		if err := s.events.PublishGradesSaved(ctx, event); err != nil {
			s.logger.Warn().Err(err).Uint("evaluation_id", evaluation.ID).Msg("failed to publish grades saved event")
		}
	}

	if s.activity != nil {
		entityID := evaluation.ID
		_, _ = s.activity.Record(ctx, ActivityEntry{
			ActorID:    actor.ID,
			ActorRole:  actor.Role,
			Action:     "grades.saved",
			EntityType: activityEntityEvaluation,
			EntityID:   &entityID,
			Metadata: map[string]interface{}{
				"course_id":  evaluation.CourseID,
				"saved":      len(response.Saved),
				"failed":     len(response.Failed),
				"failed_ids": failedIDs,
			},
		})
	}
}

func selectTargets(roster []models.Student, studentIDs []uint) ([]models.Student, error) {
	if len(studentIDs) == 0 {
		return roster, nil
	}

	byID := lo.KeyBy(roster, func(student models.Student) uint {
		return student.ID
	})

	targets := make([]models.Student, 0, len(studentIDs))
	for _, id := range lo.Uniq(studentIDs) {
		student, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrStudentNotFound, id)
		}
		targets = append(targets, student)
	}
	return targets, nil
}

func peerScoresCacheKey(evaluationID uint) string {
	return fmt.Sprintf("peer-scores:evaluation:%d", evaluationID)
}
