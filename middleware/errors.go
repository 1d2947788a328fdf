package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"loopfan-backend/apperrors"
)

type errorBody struct {
	Message string                 `json:"message"`
	Details []apperrors.FieldError `json:"details,omitempty"`
	Stack   string                 `json:"stack,omitempty"`
}

type errorEnvelope struct {
	Success bool      `json:"success"`
	Error   errorBody `json:"error"`
}

// UseJSONFieldNames makes validation errors report json field names instead
// of Go struct field names.
func UseJSONFieldNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// ErrorHandler renders the last error attached to the context as the error
// envelope. Handlers only call c.Error and return.
func ErrorHandler(logger *zap.Logger, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := classify(c.Errors.Last().Err)
		body := errorBody{Message: appErr.Message, Details: appErr.Details}

		if appErr.Status >= http.StatusInternalServerError {
			logger.Error("API Error",
				zap.Int("status", appErr.Status),
				zap.String("message", appErr.Message),
				zap.Error(appErr.Err),
				zap.String("path", c.Request.URL.Path),
				zap.String("method", c.Request.Method),
			)
			if !production && appErr.Err != nil {
				body.Stack = appErr.Err.Error()
			}
		}

		c.JSON(appErr.Status, errorEnvelope{Success: false, Error: body})
	}
}

func classify(err error) *apperrors.Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]apperrors.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, apperrors.FieldError{Field: fieldPath(fe), Message: describe(fe)})
		}
		return apperrors.Validation("Validation failed", details...)
	}

	return apperrors.From(err)
}

// fieldPath strips the request struct name from the namespace, e.g.
// "CreateContentRequest.requiredTiers[0]" becomes "requiredTiers[0]".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	case "email":
		return "must be a valid email"
	case "eth_addr":
		return "Invalid Ethereum address"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// Recovery turns a panic into an internal error for ErrorHandler to render.
func Recovery(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Panic recovered",
					zap.Any("error", rec),
					zap.String("stacktrace", string(debug.Stack())),
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
				)
				_ = c.Error(apperrors.Internal("Internal Server Error", fmt.Errorf("panic: %v", rec)))
				c.Abort()
			}
		}()
		c.Next()
	}
}

// NoRoute answers unmatched routes.
func NoRoute(c *gin.Context) {
	c.JSON(http.StatusNotFound, errorEnvelope{Success: false, Error: errorBody{Message: "Route not found"}})
}
