package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/peer-eval-api/internal/dto"
	"github.com/noah-isme/peer-eval-api/internal/models"
	"github.com/noah-isme/peer-eval-api/internal/repository"
	"github.com/noah-isme/peer-eval-api/internal/scoring"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Student{}, &models.Evaluation{}, &models.Response{}, &models.Grade{}, &models.ActivityLog{}))
	return db
}

func strPtr(value string) *string {
	return &value
}

func teamworkEvaluation() models.Evaluation {
	return models.Evaluation{
		ID:       1,
		CourseID: 10,
		Title:    "Sprint review",
		Questions: datatypes.JSONSlice[models.Question]{
			{ID: "q1", Type: "text", Title: "Comments"},
			{ID: "q2", Type: models.QuestionTypeLinear, Title: "Rate your mates", Criteria: []models.Criterion{
				{Label: "Trabajo en equipo", Weight: 1},
			}},
		},
	}
}

// seedGroupA stores one group of three: students 2 and 3 rate student 1 with
// the maximum, student 1 rates student 2 with the minimum.
func seedGroupA(t *testing.T, db *gorm.DB) models.Evaluation {
	t.Helper()
	evaluation := teamworkEvaluation()
	require.NoError(t, db.Create(&evaluation).Error)

	students := []models.Student{
		{ID: 1, CourseID: 10, Name: "Ana", Group: strPtr("A")},
		{ID: 2, CourseID: 10, Name: "Beto", Group: strPtr("A")},
		{ID: 3, CourseID: 10, Name: "Carla", Group: strPtr("A")},
		{ID: 4, CourseID: 10, Name: "Dani"},
	}
	require.NoError(t, db.Create(&students).Error)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	responses := []models.Response{
		{EvaluationID: 1, UserInfoID: 2, CreatedAt: base, Ratings: datatypes.JSONSlice[models.Rating]{
			{RatedID: 1, Criterion: "trabajo-en-equipo", Score: 5},
		}},
		{EvaluationID: 1, UserInfoID: 3, CreatedAt: base, Data: datatypes.JSONSlice[string]{"1--trabajo-en-equipo--5"}},
		{EvaluationID: 1, UserInfoID: 1, CreatedAt: base, Data: datatypes.JSONSlice[string]{"2--trabajo-en-equipo--1"}},
	}
	require.NoError(t, db.Create(&responses).Error)

	return evaluation
}

type serviceFixture struct {
	service PeerEvaluationService
	db      *gorm.DB
	grades  repository.GradeRepository
	events  *recordingPublisher
	cache   *miniredis.Miniredis
}

func newServiceFixture(t *testing.T, grades func(repository.GradeRepository) repository.GradeRepository) serviceFixture {
	t.Helper()
	db := setupServiceDB(t)

	engine, err := scoring.NewEngine(scoring.DefaultScale(), testLogger())
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	gradeRepo := repository.NewGradeRepository(db)
	if grades != nil {
		gradeRepo = grades(gradeRepo)
	}

	events := &recordingPublisher{}
	svc := NewPeerEvaluationService(PeerEvaluationDependencies{
		Evaluations: repository.NewEvaluationRepository(db),
		Responses:   repository.NewResponseRepository(db),
		Students:    repository.NewStudentRepository(db),
		Grades:      gradeRepo,
		Engine:      engine,
		Combiner:    scoring.NewCombiner(scoring.DefaultGroupGrade),
		Validator:   validator.New(),
		Cache:       client,
		CacheTTL:    time.Minute,
		Workers:     2,
		Events:      events,
		Activity:    NewActivityService(repository.NewActivityLogRepository(db), testLogger()),
	}, testLogger())

	return serviceFixture{service: svc, db: db, grades: gradeRepo, events: events, cache: mr}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []GradesSavedEvent
}

func (p *recordingPublisher) PublishGradesSaved(_ context.Context, event GradesSavedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// failingGradeRepository fails upserts for the listed students.
type failingGradeRepository struct {
	repository.GradeRepository
	failFor map[uint]bool
}

func (r *failingGradeRepository) Upsert(ctx context.Context, grade *models.Grade) error {
	if r.failFor[grade.UserInfoID] {
		return errors.New("connection reset")
	}
	return r.GradeRepository.Upsert(ctx, grade)
}

func TestGetPeerEvaluationScoresComputesRoster(t *testing.T) {
	fx := newServiceFixture(t, nil)
	seedGroupA(t, fx.db)

	response, err := fx.service.GetPeerEvaluationScores(context.Background(), 1, nil)
	require.NoError(t, err)
	require.False(t, response.CacheHit)
	require.Len(t, response.Results, 4)

	scores := map[uint]float64{}
	for _, result := range response.Results {
		require.True(t, result.PeerEvaluationScore.Available)
		scores[result.UserInfoID] = result.PeerEvaluationScore.Value
	}
	require.InDelta(t, 1.0, scores[1], 1e-9)
	require.InDelta(t, -0.5, scores[2], 1e-9)
	require.InDelta(t, 0.0, scores[3], 1e-9)
	require.InDelta(t, 0.0, scores[4], 1e-9)
}

func TestGetPeerEvaluationScoresUsesCache(t *testing.T) {
	fx := newServiceFixture(t, nil)
	seedGroupA(t, fx.db)
	ctx := context.Background()

	first, err := fx.service.GetPeerEvaluationScores(ctx, 1, nil)
	require.NoError(t, err)
	require.False(t, first.CacheHit)
	require.True(t, fx.cache.Exists(peerScoresCacheKey(1)))

	second, err := fx.service.GetPeerEvaluationScores(ctx, 1, nil)
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.Len(t, second.Results, len(first.Results))

	filtered, err := fx.service.GetPeerEvaluationScores(ctx, 1, []uint{2})
	require.NoError(t, err)
	require.False(t, filtered.CacheHit)
	require.Len(t, filtered.Results, 1)
	require.Equal(t, uint(2), filtered.Results[0].UserInfoID)
}

func TestGetPeerEvaluationScoresFatalPreconditions(t *testing.T) {
	fx := newServiceFixture(t, nil)
	ctx := context.Background()

	_, err := fx.service.GetPeerEvaluationScores(ctx, 99, nil)
	require.ErrorIs(t, err, ErrEvaluationNotFound)

	evaluation := teamworkEvaluation()
	require.NoError(t, fx.db.Create(&evaluation).Error)
	require.NoError(t, fx.db.Create(&models.Student{ID: 1, CourseID: 10, Name: "Ana"}).Error)

	_, err = fx.service.GetPeerEvaluationScores(ctx, 1, nil)
	require.ErrorIs(t, err, scoring.ErrNoResponses)

	_, err = fx.service.GetPeerEvaluationScores(ctx, 1, []uint{42})
	require.ErrorIs(t, err, ErrStudentNotFound)
}

func TestGetStudentPeerScore(t *testing.T) {
	fx := newServiceFixture(t, nil)
	seedGroupA(t, fx.db)
	ctx := context.Background()

	result, err := fx.service.GetStudentPeerScore(ctx, 1, 1)
	require.NoError(t, err)
	require.InDelta(t, 1.0, result.PeerEvaluationScore.Value, 1e-9)
	require.Equal(t, 2, result.MateCount)

	_, err = fx.service.GetStudentPeerScore(ctx, 1, 77)
	require.ErrorIs(t, err, ErrStudentNotFound)
}

func TestSaveGradesPersistsAndPublishes(t *testing.T) {
	fx := newServiceFixture(t, nil)
	seedGroupA(t, fx.db)
	ctx := context.Background()

	require.NoError(t, fx.grades.Upsert(ctx, &models.Grade{
		EvaluationID: 1, UserInfoID: 1, GroupGrade: "5,5", EvaluationGrade: "0.00", FinalGrade: "5.50",
	}))
	_, err := fx.service.GetPeerEvaluationScores(ctx, 1, nil)
	require.NoError(t, err)

	response, err := fx.service.SaveGrades(ctx, 1, dto.SaveGradesRequest{}, ActivityActor{ID: 9, Role: "teacher"})
	require.NoError(t, err)
	require.Len(t, response.Saved, 4)
	require.Empty(t, response.Failed)
	require.False(t, fx.cache.Exists(peerScoresCacheKey(1)))

	stored, err := fx.grades.GetByEvaluationAndUser(ctx, 1, 1)
	require.NoError(t, err)
	require.Equal(t, "5.50", stored.GroupGrade)
	require.Equal(t, "1.00", stored.EvaluationGrade)
	require.Equal(t, "6.50", stored.FinalGrade)

	stored, err = fx.grades.GetByEvaluationAndUser(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, "4.00", stored.GroupGrade)
	require.Equal(t, "-0.50", stored.EvaluationGrade)
	require.Equal(t, "3.50", stored.FinalGrade)

	require.Len(t, fx.events.events, 1)
	require.Equal(t, 4, fx.events.events[0].Saved)
	require.Equal(t, uint(9), fx.events.events[0].ActorID)

	var logs []models.ActivityLog
	require.NoError(t, fx.db.Where("entity_type = ?", "evaluation").Find(&logs).Error)
	require.Len(t, logs, 1)
	require.Equal(t, "grades.saved", logs[0].Action)
}

func TestSaveGradesIsIdempotent(t *testing.T) {
	fx := newServiceFixture(t, nil)
	seedGroupA(t, fx.db)
	ctx := context.Background()

	first, err := fx.service.SaveGrades(ctx, 1, dto.SaveGradesRequest{StudentIDs: []uint{1}}, ActivityActor{})
	require.NoError(t, err)
	second, err := fx.service.SaveGrades(ctx, 1, dto.SaveGradesRequest{StudentIDs: []uint{1}}, ActivityActor{})
	require.NoError(t, err)

	require.Equal(t, first.Saved[0].FinalGrade, second.Saved[0].FinalGrade)

	var count int64
	require.NoError(t, fx.db.Model(&models.Grade{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestSaveGradesReportsPartialFailures(t *testing.T) {
	fx := newServiceFixture(t, func(inner repository.GradeRepository) repository.GradeRepository {
		return &failingGradeRepository{GradeRepository: inner, failFor: map[uint]bool{3: true, 2: true}}
	})
	seedGroupA(t, fx.db)

	response, err := fx.service.SaveGrades(context.Background(), 1, dto.SaveGradesRequest{}, ActivityActor{})
	require.NoError(t, err)

	require.Len(t, response.Saved, 2)
	require.Equal(t, uint(1), response.Saved[0].UserInfoID)
	require.Equal(t, uint(4), response.Saved[1].UserInfoID)

	require.Len(t, response.Failed, 2)
	require.Equal(t, uint(2), response.Failed[0].UserInfoID)
	require.Equal(t, uint(3), response.Failed[1].UserInfoID)
	require.Contains(t, response.Failed[0].Error, "connection reset")

	require.Len(t, fx.events.events, 1)
	require.Equal(t, []uint{2, 3}, fx.events.events[0].FailedIDs)
}

func TestSaveGradesRejectsInvalidPayload(t *testing.T) {
	fx := newServiceFixture(t, nil)
	seedGroupA(t, fx.db)

	_, err := fx.service.SaveGrades(context.Background(), 1, dto.SaveGradesRequest{StudentIDs: []uint{0}}, ActivityActor{})
	var validationErrors validator.ValidationErrors
	require.ErrorAs(t, err, &validationErrors)
}

func TestListGrades(t *testing.T) {
	fx := newServiceFixture(t, nil)
	seedGroupA(t, fx.db)
	ctx := context.Background()

	_, err := fx.service.SaveGrades(ctx, 1, dto.SaveGradesRequest{StudentIDs: []uint{1, 2}}, ActivityActor{})
	require.NoError(t, err)

	grades, err := fx.service.ListGrades(ctx, 1)
	require.NoError(t, err)
	require.Len(t, grades, 2)

	_, err = fx.service.ListGrades(ctx, 5)
	require.ErrorIs(t, err, ErrEvaluationNotFound)
}

func TestGetInjusticeCasesFromReadPath(t *testing.T) {
	fx := newServiceFixture(t, nil)
	evaluation := teamworkEvaluation()
	require.NoError(t, fx.db.Create(&evaluation).Error)
	require.NoError(t, fx.db.Create(&[]models.Student{
		{ID: 1, CourseID: 10, Name: "Ana", Group: strPtr("B")},
		{ID: 2, CourseID: 10, Name: "Beto", Group: strPtr("B")},
	}).Error)
	require.NoError(t, fx.db.Create(&[]models.Response{
		{EvaluationID: 1, UserInfoID: 1, Data: datatypes.JSONSlice[string]{"2--trabajo-en-equipo--1"}},
		{EvaluationID: 1, UserInfoID: 2, Data: datatypes.JSONSlice[string]{"1--trabajo-en-equipo--2"}},
	}).Error)

	cases, err := fx.service.GetInjusticeCases(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.Equal(t, "B", cases[0].Group)
	require.Equal(t, 2, cases[0].StudentCount)
	require.InDelta(t, -0.75, cases[0].AverageScore, 1e-9)
	require.Equal(t, uint(2), cases[0].Students[0].UserInfoID)
}

func TestDetectInjusticeSanitizesNames(t *testing.T) {
	fx := newServiceFixture(t, nil)

	cases, err := fx.service.DetectInjustice(context.Background(), dto.InjusticeRequest{
		Results: []dto.InjusticeResultInput{
			{UserInfoID: 1, Name: "<b>Ana</b>", Group: strPtr("A"), PeerEvaluationScore: -0.5},
			{UserInfoID: 2, Name: "Beto", Group: strPtr("A"), PeerEvaluationScore: "N/A"},
			{UserInfoID: 3, Name: "Carla", PeerEvaluationScore: -1.0},
		},
	})
	require.NoError(t, err)
	require.Len(t, cases, 1)
	require.Equal(t, "A", cases[0].Group)
	require.InDelta(t, -0.25, cases[0].AverageScore, 1e-9)
	require.Equal(t, "Ana", cases[0].Students[0].Name)

	_, err = fx.service.DetectInjustice(context.Background(), dto.InjusticeRequest{
		Results: []dto.InjusticeResultInput{{UserInfoID: 0}},
	})
	require.Error(t, err)
}

func TestPeerScoresResponseRoundTripsThroughCache(t *testing.T) {
	payload, err := json.Marshal(dto.PeerScoresResponse{
		EvaluationID: 1,
		Results: []dto.PeerEvaluationResultResponse{
			{UserInfoID: 1, PeerEvaluationScore: dto.UnavailableScore()},
		},
	})
	require.NoError(t, err)
	require.Contains(t, string(payload), `"peer_evaluation_score":"N/A"`)

	var decoded dto.PeerScoresResponse
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.False(t, decoded.Results[0].PeerEvaluationScore.Available)
}
