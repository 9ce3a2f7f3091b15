package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vladislavdragonenkov/sales/internal/domain"
)

// Envelope — единый формат ответа API.
type Envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    any                 `json:"data,omitempty"`
	Errors  []domain.FieldError `json:"errors,omitempty"`
}

// StatusFor переводит класс доменной ошибки в HTTP-статус.
func StatusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindNone:
		return http.StatusOK
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindInvalidState:
		return http.StatusUnprocessableEntity
	case domain.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func RespondOK(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Envelope{Success: true, Message: message, Data: data})
}

// RespondError отвечает ошибкой; для валидации добавляет список нарушений по полям.
func RespondError(c *gin.Context, err error) {
	env := Envelope{Message: domain.Message(err)}
	if verr, ok := asValidation(err); ok {
		env.Errors = verr.Fields
	}
	if StatusFor(err) >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(StatusFor(err), env)
}

// RespondStatus отвечает ошибкой с явным статусом, без доменной классификации.
func RespondStatus(c *gin.Context, status int, message string) {
	c.JSON(status, Envelope{Message: message})
}

func asValidation(err error) (*domain.ValidationError, bool) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
