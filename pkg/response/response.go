package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-identity-api/internal/models"
	appErrors "github.com/noah-isme/sma-identity-api/pkg/errors"
	"github.com/noah-isme/sma-identity-api/pkg/middleware/requestid"
)

// Envelope is the body of every API response. Exactly one of Data and Error
// is set; Meta always carries the request ID when one was assigned.
type Envelope struct {
	Data       interface{}            `json:"data,omitempty"`
	Error      *appErrors.Error       `json:"error,omitempty"`
	Pagination *models.Pagination     `json:"pagination,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}

// OK responds 200 with data and optional extra meta entries.
func OK(c *gin.Context, data interface{}, meta ...map[string]interface{}) {
	write(c, http.StatusOK, Envelope{Data: data}, meta...)
}

// Page responds 200 with one page of items.
func Page(c *gin.Context, items interface{}, page models.Pagination) {
	write(c, http.StatusOK, Envelope{Data: items, Pagination: &page})
}

// Created responds 201 with the provisioned resource.
func Created(c *gin.Context, data interface{}) {
	write(c, http.StatusCreated, Envelope{Data: data})
}

// Error converts err to its API shape. Internal causes are attached to the
// gin context for the access log and never serialised.
func Error(c *gin.Context, err error) {
	appErr := appErrors.FromError(err)
	if appErr.Err != nil {
		_ = c.Error(appErr.Err)
	}
	write(c, appErr.Status, Envelope{Error: appErr})
}

// NoContent sends a 204 response.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

func write(c *gin.Context, status int, env Envelope, meta ...map[string]interface{}) {
	for _, m := range meta {
		for k, v := range m {
			if env.Meta == nil {
				env.Meta = make(map[string]interface{}, len(m)+1)
			}
			env.Meta[k] = v
		}
	}
	if reqID := requestid.Value(c); reqID != "" {
		if env.Meta == nil {
			env.Meta = map[string]interface{}{}
		}
		env.Meta["request_id"] = reqID
	}
	c.Header("Cache-Control", "no-store")
	c.Header("Pragma", "no-cache")
	c.JSON(status, env)
}
