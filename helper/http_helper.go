package helper

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"crowpro-api/models"
)

const (
	textError = `error`
	textOk    = `ok`
)

// ResponseHelper ...
type ResponseHelper struct {
	C        *gin.Context
	Status   string
	Message  string
	Data     interface{}
	Code     int
	CodeType string
}

// HTTPHelper ...
type HTTPHelper struct {
	Validate   *validator.Validate
	Translator ut.Translator
	Log        *slog.Logger
}

// NewHTTPHelper hooks the English translator into gin's validator so binding
// errors come back as readable per-field messages keyed by json name.
func NewHTTPHelper(log *slog.Logger) *HTTPHelper {
	h := &HTTPHelper{Log: log}

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	h.Translator, _ = uni.GetTranslator("en")

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		h.Validate = v
	} else {
		h.Validate = validator.New()
	}

	h.Validate.RegisterTagNameFunc(jsonFieldName)
	if err := en_translations.RegisterDefaultTranslations(h.Validate, h.Translator); err != nil && log != nil {
		log.Warn("register validator translations", "error", err)
	}

	return h
}

func jsonFieldName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			continue
		}
		if name != "" {
			return name
		}
	}
	return fld.Name
}

// GetStatusCode ...
func (u *HTTPHelper) GetStatusCode(err error) int {
	if err == nil {
		return http.StatusOK
	}

	var (
		authErr       *models.ErrorAuthenticationFailed
		permissionErr *models.ErrorPermissionDenied
		validationErr *models.ErrorValidation
		notFoundErr   *models.ErrorNotFound
		conflictErr   *models.ErrorConflict
	)

	switch {
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &permissionErr):
		return http.StatusForbidden
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &conflictErr):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func codeType(status int) string {
	switch status {
	case http.StatusBadRequest:
		return `badRequest`
	case http.StatusUnauthorized:
		return `unAuthorized`
	case http.StatusForbidden:
		return `forbidden`
	case http.StatusNotFound:
		return `notFound`
	case http.StatusConflict:
		return `conflict`
	case http.StatusTooManyRequests:
		return `tooManyRequests`
	default:
		return `internalServerError`
	}
}

// SetResponse ...
// Set response data.
func (u *HTTPHelper) SetResponse(c *gin.Context, status string, message string, data interface{}, code int, codeType string) ResponseHelper {
	return ResponseHelper{c, status, message, data, code, codeType}
}

// SendError ...
// Send error response to consumers. code is the HTTP status.
func (u *HTTPHelper) SendError(c *gin.Context, message string, data interface{}, code int, codeType string) error {
	res := u.SetResponse(c, textError, message, data, code, codeType)

	return u.SendResponse(res)
}

// SendErrorFrom maps a service error to its status. Internal errors are logged
// and reported without detail.
func (u *HTTPHelper) SendErrorFrom(c *gin.Context, err error) error {
	status := u.GetStatusCode(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		if u.Log != nil {
			u.Log.ErrorContext(c.Request.Context(), "request failed",
				"method", c.Request.Method,
				"path", c.FullPath(),
				"error", err,
			)
		}
		message = "internal server error"
	}

	return u.SendError(c, message, u.EmptyJsonMap(), status, codeType(status))
}

// SendBadRequest ...
// Send bad request response to consumers.
func (u *HTTPHelper) SendBadRequest(c *gin.Context, message string, data interface{}) error {
	return u.SendError(c, message, data, http.StatusBadRequest, `badRequest`)
}

// SendBindError reports a failed ShouldBind call, translating validator errors per field.
func (u *HTTPHelper) SendBindError(c *gin.Context, err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return u.SendValidationError(c, validationErrors)
	}
	return u.SendBadRequest(c, "malformed request body", u.EmptyJsonMap())
}

// SendValidationError ...
// Send validation error response to consumers.
func (u *HTTPHelper) SendValidationError(c *gin.Context, validationErrors validator.ValidationErrors) error {
	errorResponse := map[string][]string{}
	for _, err := range validationErrors {
		msg := err.Error()
		if u.Translator != nil {
			msg = err.Translate(u.Translator)
		}
		errorResponse[err.Field()] = append(errorResponse[err.Field()], msg)
	}

	c.JSON(http.StatusBadRequest, map[string]interface{}{
		"code":         http.StatusBadRequest,
		"code_type":    "validationError",
		"code_message": errorResponse,
		"data":         u.EmptyJsonMap(),
	})
	return nil
}

// SendUnauthorizedError ...
// Send unauthorized response to consumers.
func (u *HTTPHelper) SendUnauthorizedError(c *gin.Context, message string, data interface{}) error {
	return u.SendError(c, message, data, http.StatusUnauthorized, `unAuthorized`)
}

// SendNotFoundError ...
// Send not found response to consumers.
func (u *HTTPHelper) SendNotFoundError(c *gin.Context, message string, data interface{}) error {
	return u.SendError(c, message, data, http.StatusNotFound, `notFound`)
}

// SendSuccess ...
// Send success response to consumers.
func (u *HTTPHelper) SendSuccess(c *gin.Context, message string, data interface{}) error {
	res := u.SetResponse(c, textOk, message, data, http.StatusOK, `success`)

	return u.SendResponse(res)
}

// SendCreated ...
func (u *HTTPHelper) SendCreated(c *gin.Context, message string, data interface{}) error {
	res := u.SetResponse(c, textOk, message, data, http.StatusCreated, `created`)

	return u.SendResponse(res)
}

// SendNoContent ...
func (u *HTTPHelper) SendNoContent(c *gin.Context) error {
	c.Status(http.StatusNoContent)
	return nil
}

// SendPaged sends a list page with its pagination block.
func (u *HTTPHelper) SendPaged(c *gin.Context, message string, results interface{}, page, limit int, total int64) error {
	return u.SendSuccess(c, message, map[string]interface{}{
		"results":    results,
		"pagination": u.GeneratePaging(c, limit, page, int(total)),
	})
}

// SendResponse ...
// Send response. res.Code is used as the HTTP status.
func (u *HTTPHelper) SendResponse(res ResponseHelper) error {
	if len(res.Message) == 0 {
		res.Message = `success`
	}
	if res.Code == 0 {
		res.Code = http.StatusOK
	}

	res.C.JSON(res.Code, map[string]interface{}{
		"code":         res.Code,
		"code_type":    res.CodeType,
		"code_message": res.Message,
		"data":         res.Data,
	})
	return nil
}

func (u *HTTPHelper) EmptyJsonMap() map[string]interface{} {
	return make(map[string]interface{})
}

// get pagination URL, keeping the other query parameters
func (u *HTTPHelper) GetPagingUrl(c *gin.Context, page, limit int) string {
	r := c.Request
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}

	query := r.URL.Query()
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	return scheme + "://" + r.Host + r.URL.Path + "?" + query.Encode()
}

// Set paginantion response
func (u *HTTPHelper) GeneratePaging(c *gin.Context, limit, page, totalRecord int) map[string]interface{} {
	prevURL, nextURL, firstURL, lastURL := "", "", "", ""

	totalPages := 0
	if limit > 0 {
		totalPages = int(math.Ceil(float64(totalRecord) / float64(limit)))
	}

	if page > 1 && totalPages >= page {
		prevURL = u.GetPagingUrl(c, page-1, limit)
		firstURL = u.GetPagingUrl(c, 1, limit)
	}

	if totalPages > page {
		nextURL = u.GetPagingUrl(c, page+1, limit)
		lastURL = u.GetPagingUrl(c, totalPages, limit)
	}

	links := map[string]interface{}{
		"previous": prevURL,
		"next":     nextURL,
		"first":    firstURL,
		"last":     lastURL,
	}

	pagination := map[string]interface{}{
		"total_records": totalRecord,
		"per_page":      limit,
		"current_page":  page,
		"total_pages":   totalPages,
		"links":         links,
	}

	return pagination
}
