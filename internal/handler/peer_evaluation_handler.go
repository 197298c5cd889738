package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/peer-eval-api/internal/dto"
	"github.com/noah-isme/peer-eval-api/internal/scoring"
	"github.com/noah-isme/peer-eval-api/internal/service"
	"github.com/noah-isme/peer-eval-api/internal/utils"
)

// PeerEvaluationHandler exposes peer scores, grading runs and injustice reports.
type PeerEvaluationHandler struct {
	service service.PeerEvaluationService
	logger  zerolog.Logger
}

// NewPeerEvaluationHandler constructs the handler.
func NewPeerEvaluationHandler(service service.PeerEvaluationService, logger zerolog.Logger) *PeerEvaluationHandler {
	return &PeerEvaluationHandler{
		service: service,
		logger:  logger.With().Str("component", "peer_evaluation_handler").Logger(),
	}
}

// Register attaches the evaluation routes. gradingGuards run before the
// grading endpoint only.
func (h *PeerEvaluationHandler) Register(router fiber.Router, gradingGuards ...fiber.Handler) {
	router.Post("/injustice", h.detectInjustice)
	router.Get("/:id/peer-scores", h.listPeerScores)
	router.Get("/:id/peer-scores/:studentId", h.getStudentPeerScore)
	router.Get("/:id/grades", h.listGrades)
	router.Get("/:id/injustice", h.injusticeCases)

	handlers := append(append([]fiber.Handler{}, gradingGuards...), h.saveGrades)
	router.Post("/:id/grades", handlers...)
}

func (h *PeerEvaluationHandler) listPeerScores(c *fiber.Ctx) error {
	evaluationID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid evaluation id")
	}

	studentIDs, err := parseUintList(c.Query("student_ids"))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	response, err := h.service.GetPeerEvaluationScores(c.UserContext(), evaluationID, studentIDs)
	if err != nil {
		return h.fail(c, err, evaluationID, "failed to compute peer scores")
	}

	return utils.SendSuccess(c, "peer scores retrieved", response)
}

func (h *PeerEvaluationHandler) getStudentPeerScore(c *fiber.Ctx) error {
	evaluationID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid evaluation id")
	}
	studentID, err := parseUintParam(c, "studentId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid student id")
	}

	result, err := h.service.GetStudentPeerScore(c.UserContext(), evaluationID, studentID)
	if err != nil {
		return h.fail(c, err, evaluationID, "failed to compute peer score")
	}

	return utils.SendSuccess(c, "peer score retrieved", result)
}

func (h *PeerEvaluationHandler) saveGrades(c *fiber.Ctx) error {
	evaluationID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid evaluation id")
	}

	var payload dto.SaveGradesRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
		}
	}

	response, err := h.service.SaveGrades(c.UserContext(), evaluationID, payload, activityActorFromContext(c))
	if err != nil {
		return h.fail(c, err, evaluationID, "failed to save grades")
	}

	if len(response.Failed) > 0 {
		requestLogger(h.logger, c).Warn().
			Uint("evaluation_id", evaluationID).
			Int("failed", len(response.Failed)).
			Msg("grading run finished with failures")
		return utils.SendSuccessWithStatus(c, fiber.StatusMultiStatus, "grades partially saved", response)
	}

	return utils.SendSuccess(c, "grades saved", response)
}

func (h *PeerEvaluationHandler) listGrades(c *fiber.Ctx) error {
	evaluationID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid evaluation id")
	}

	grades, err := h.service.ListGrades(c.UserContext(), evaluationID)
	if err != nil {
		return h.fail(c, err, evaluationID, "failed to list grades")
	}

	return utils.SendSuccess(c, "grades retrieved", grades)
}

func (h *PeerEvaluationHandler) injusticeCases(c *fiber.Ctx) error {
	evaluationID, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid evaluation id")
	}

	cases, err := h.service.GetInjusticeCases(c.UserContext(), evaluationID)
	if err != nil {
		return h.fail(c, err, evaluationID, "failed to detect injustice cases")
	}

	return utils.SendSuccess(c, "injustice cases retrieved", cases)
}

func (h *PeerEvaluationHandler) detectInjustice(c *fiber.Ctx) error {
	var payload dto.InjusticeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid payload")
	}

	cases, err := h.service.DetectInjustice(c.UserContext(), payload)
	if err != nil {
		return h.fail(c, err, 0, "failed to detect injustice cases")
	}

	return utils.SendSuccess(c, "injustice cases detected", cases)
}

func (h *PeerEvaluationHandler) fail(c *fiber.Ctx, err error, evaluationID uint, message string) error {
	switch {
	case errors.Is(err, service.ErrEvaluationNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "evaluation not found")
	case errors.Is(err, service.ErrStudentNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, scoring.ErrNoResponses),
		errors.Is(err, scoring.ErrNoScoringQuestion),
		errors.Is(err, scoring.ErrInvalidCriteria):
		return utils.SendError(c, fiber.StatusUnprocessableEntity, err.Error())
	case isValidationError(err):
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", validationDetails(err))
	default:
		requestLogger(h.logger, c).Error().Err(err).Uint("evaluation_id", evaluationID).Msg(message)
		return utils.SendError(c, fiber.StatusInternalServerError, message)
	}
}
