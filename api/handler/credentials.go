package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/livebox/models"
)

// GetCredentials returns a handler for GET /api/v1/credentials.
func GetCredentials(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header, err := svc.LoadCredentials()
		if err != nil {
			respondCredentialsError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.CredentialsResponse{
			Success: true,
			Cookie:  header,
			Count:   countPairs(header),
			Path:    svc.CredentialsPath(),
		})
	}
}

// PutCredentials returns a handler for PUT /api/v1/credentials.
func PutCredentials(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.CredentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		n, err := svc.SaveCredentials(req.Cookie)
		if err != nil {
			respondCredentialsError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.CredentialsResponse{
			Success: true,
			Count:   n,
			Path:    svc.CredentialsPath(),
		})
	}
}

// DeleteCredentials returns a handler for DELETE /api/v1/credentials.
// Deleting when nothing is saved succeeds with removed=false.
func DeleteCredentials(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		removed, err := svc.ClearCredentials()
		if err != nil {
			respondCredentialsError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.CredentialsResponse{
			Success: true,
			Removed: &removed,
			Path:    svc.CredentialsPath(),
		})
	}
}

// Login returns a handler for POST /api/v1/login. It blocks until the user
// signs in through the interactive surface, the wait times out or the
// client goes away.
func Login(svc Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		n, err := svc.Login(c.Request.Context())
		if err != nil {
			respondCredentialsError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.CredentialsResponse{
			Success: true,
			Count:   n,
			Path:    svc.CredentialsPath(),
		})
	}
}

func respondCredentialsError(c *gin.Context, err error) {
	status, detail := errorDetail(err)
	c.JSON(status, models.CredentialsResponse{Success: false, Error: detail})
}

// countPairs counts the cookies in a header produced by the store.
func countPairs(header string) int {
	if header == "" {
		return 0
	}
	return strings.Count(header, ";") + 1
}
