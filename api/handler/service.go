package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/livebox/models"
	"github.com/use-agent/livebox/orchestrator"
)

// Service is the core the handlers expose. *orchestrator.Orchestrator
// implements it.
type Service interface {
	Scrape(ctx context.Context, target string) (*orchestrator.Outcome, error)
	ScrapeRendered(ctx context.Context, target string) (*orchestrator.Outcome, error)
	ScrapeAuto(ctx context.Context, target string) (*orchestrator.Outcome, error)

	SaveCredentials(header string) (int, error)
	LoadCredentials() (string, error)
	ClearCredentials() (bool, error)
	CredentialsPath() string
	Login(ctx context.Context) (int, error)

	InteractivePending() bool
	PendingSurfaces() []string
}

// errorDetail converts err to an API error and its HTTP status.
func errorDetail(err error) (int, *models.ErrorDetail) {
	var se *models.ScrapeError
	if !errors.As(err, &se) {
		se = models.NewScrapeError(models.ErrCodeInternal, err.Error(), err)
	}
	return statusOf(se.Code), se.ToDetail()
}

// statusOf translates error codes to HTTP status codes.
func statusOf(code string) int {
	switch code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNeedsLogin, models.ErrCodeExtractionFailed:
		return http.StatusForbidden // 403
	case models.ErrCodeCredentialsNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeInteractiveCancelled:
		return http.StatusRequestTimeout // 408
	case models.ErrCodeNeedsCaptcha:
		return http.StatusLocked // 423
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeTransport:
		return http.StatusBadGateway // 502
	case models.ErrCodeInteractiveFailed:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeInteractiveTimeout:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ScrapeResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: err.Error(),
		},
	})
}
