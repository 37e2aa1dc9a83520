// Package validation screens transaction input before it reaches the
// feature store: identifier shape, label hygiene, amount and timestamp
// sanity, plus the request-size guard at the HTTP edge.
package validation

import (
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize caps request bodies at 1MB.
const MaxRequestSize = 1 << 20

// MaxLabelLength caps merchant, location, and payment method labels.
const MaxLabelLength = 256

// Identifiers: 1 to 128 of letters, digits, dot, underscore, colon, dash.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// ValidationError names the field that failed and why.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects every failure from one Validate pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Rule checks one field and reports nil when it passes.
type Rule func() *ValidationError

// Validate runs every rule and gathers the failures. A nil result means
// the input passed.
func Validate(rules ...Rule) ValidationErrors {
	var failures ValidationErrors
	for _, rule := range rules {
		if ve := rule(); ve != nil {
			failures = append(failures, *ve)
		}
	}
	return failures
}

// Required fails on empty or all-whitespace values.
func Required(field, value string) Rule {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidID accepts well-formed identifiers. Empty values pass; pair with
// Required when the field must be present.
func ValidID(field, value string) Rule {
	return func() *ValidationError {
		if value != "" && !idPattern.MatchString(value) {
			return &ValidationError{Field: field, Message: "must contain only letters, digits, and ._:- (max 128 chars)"}
		}
		return nil
	}
}

// ValidAmount admits zero and positive finite values. Zero-amount
// transactions are real; NaN, infinities, and negatives are not.
func ValidAmount(field string, value float64) Rule {
	return func() *ValidationError {
		switch {
		case math.IsNaN(value) || math.IsInf(value, 0):
			return &ValidationError{Field: field, Message: "must be a finite number"}
		case value < 0:
			return &ValidationError{Field: field, Message: "must not be negative"}
		}
		return nil
	}
}

// ValidTimestamp wants RFC 3339. Empty passes; callers default empty
// timestamps to the current time.
func ValidTimestamp(field, value string) Rule {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if _, err := time.Parse(time.RFC3339, value); err != nil {
			return &ValidationError{Field: field, Message: "must be an RFC 3339 timestamp"}
		}
		return nil
	}
}

// SanitizeLabel trims a free-form label, strips NUL bytes, and truncates
// to MaxLabelLength.
func SanitizeLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\x00", "")
	if len(s) > MaxLabelLength {
		s = s[:MaxLabelLength]
	}
	return s
}

// RequestSizeMiddleware caps request bodies. Reads past maxSize fail, and
// the JSON binder surfaces them as malformed-body errors.
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// UserParamMiddleware rejects malformed :id path parameters before any
// handler sees them.
func UserParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := c.Param("id"); id != "" && !idPattern.MatchString(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_user_id",
				"message": "user id must contain only letters, digits, and ._:- (max 128 chars)",
			})
			return
		}
		c.Next()
	}
}
