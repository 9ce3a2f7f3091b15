package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Общая ошибка входных данных, подробности в ValidationError.
	ErrValidation = errors.New("validation failed")
	// ErrSaleNotFound возвращается, если продажа не найдена в хранилище.
	ErrSaleNotFound = errors.New("sale not found")
	// ErrItemNotFound возвращается, если позиции нет в продаже.
	ErrItemNotFound = errors.New("item not found in sale")
	// Повторная отмена продажи.
	ErrSaleAlreadyCancelled = errors.New("sale is already cancelled")
	// Повторная отмена позиции.
	ErrItemAlreadyCancelled = errors.New("item is already cancelled")
	// Отмена позиции в отменённой продаже.
	ErrCannotCancelItemFromCancelledSale = errors.New("cannot cancel an item from a cancelled sale")
	// Изменение отменённой продажи.
	ErrCannotUpdateCancelledSale = errors.New("cannot update a cancelled sale")
	// Запись с таким ID уже есть в хранилище.
	ErrSaleAlreadyExists = errors.New("sale already exists")
	// ID позиции уже занят позицией другой продажи.
	ErrItemIDTaken = errors.New("item id is used by another sale")
	// ErrSaleVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrSaleVersionConflict = errors.New("sale version conflict")
	// Ошибка публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
	// Пустой ключ идемпотентности.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// Пустой hash запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// Ключ идемпотентности отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// Ключ уже зарегистрирован.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// Ключ переиспользован с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
	// Запрос с этим ключом ещё обрабатывается.
	ErrIdempotencyInProgress = errors.New("idempotency key is being processed")
)

// NotFoundError уточняет ErrSaleNotFound идентификатором продажи.
type NotFoundError struct {
	SaleID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("sale with ID %s not found", e.SaleID)
}

func (e *NotFoundError) Unwrap() error { return ErrSaleNotFound }

// SaleNotFound создаёт ошибку отсутствующей продажи.
func SaleNotFound(id string) error {
	return &NotFoundError{SaleID: id}
}

// FieldError описывает одно нарушение правил валидации.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError собирает все нарушения по запросу.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Add добавляет нарушение.
func (e *ValidationError) Add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// Err возвращает nil, если нарушений нет.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// ErrorKind — класс ошибки для транспортного слоя и метрик.
type ErrorKind string

const (
	KindNone         ErrorKind = ""
	KindValidation   ErrorKind = "validation"
	KindNotFound     ErrorKind = "not_found"
	KindInvalidState ErrorKind = "invalid_state"
	KindConflict     ErrorKind = "conflict"
	KindPersistence  ErrorKind = "persistence"
)

// KindOf классифицирует ошибку. Всё неизвестное считается ошибкой хранилища.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrSaleNotFound), errors.Is(err, ErrItemNotFound):
		return KindNotFound
	case errors.Is(err, ErrSaleAlreadyCancelled),
		errors.Is(err, ErrItemAlreadyCancelled),
		errors.Is(err, ErrCannotCancelItemFromCancelledSale),
		errors.Is(err, ErrCannotUpdateCancelledSale):
		return KindInvalidState
	case errors.Is(err, ErrSaleVersionConflict), errors.Is(err, ErrSaleAlreadyExists), errors.Is(err, ErrItemIDTaken):
		return KindConflict
	default:
		return KindPersistence
	}
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrSaleVersionConflict)
}

// IsIdempotencyConflict проверяет конфликты по ключу идемпотентности.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyAlreadyExists) ||
		errors.Is(err, ErrIdempotencyHashMismatch) ||
		errors.Is(err, ErrIdempotencyInProgress)
}

var publicMessages = map[error]string{
	ErrValidation:                        "Validation Failed",
	ErrItemNotFound:                      "Item not found in sale",
	ErrSaleAlreadyCancelled:              "Sale is already cancelled",
	ErrItemAlreadyCancelled:              "Item is already cancelled",
	ErrCannotCancelItemFromCancelledSale: "Cannot cancel an item from a cancelled sale",
	ErrCannotUpdateCancelledSale:         "Cannot update a cancelled sale",
	ErrSaleVersionConflict:               "Sale was modified concurrently",
	ErrSaleAlreadyExists:                 "Sale already exists",
	ErrItemIDTaken:                       "Item ID is already used by another sale",
}

// Message возвращает текст ошибки для клиента API.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		return fmt.Sprintf("Sale with ID %s not found", nf.SaleID)
	}
	for sentinel, msg := range publicMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	if errors.Is(err, ErrSaleNotFound) {
		return "Resource not found"
	}
	return "Internal server error"
}
