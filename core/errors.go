package core

import (
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes attached to every error that crosses a package boundary so
// callers and log scrapers can branch without string matching messages.
const (
	TextCodeBadInput       = "P1_BAD_INPUT"
	TextCodeValidation     = "P1_VALIDATION"
	TextCodeAuthFailed     = "P1_AUTH_FAILED"
	TextCodeForbidden      = "P1_FORBIDDEN"
	TextCodeNetwork        = "P1_NETWORK"
	TextCodeTimeout        = "P1_TIMEOUT"
	TextCodeSchemaNotFound = "P1_SCHEMA_NOT_FOUND"
	TextCodeEncryptFailed  = "P1_ENCRYPT_FAILED"
	TextCodeDecryptFailed  = "P1_DECRYPT_FAILED"
	TextCodeAPIFailed      = "P1_API_FAILED"
	TextCodeInternal       = "P1_INTERNAL"
)

// NewError builds a categorized error with the convention text code for the
// category. Use the With* chain on the result for extra metadata.
func NewError(message string, category goerrors.Category) *goerrors.Error {
	return goerrors.New(message, category).WithTextCode(textCodeFor(category))
}

// WrapError wraps a source error preserving its chain while assigning the
// category and matching text code.
func WrapError(src error, category goerrors.Category, message string) *goerrors.Error {
	return goerrors.Wrap(src, category, message).WithTextCode(textCodeFor(category))
}

func textCodeFor(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput:
		return TextCodeBadInput
	case goerrors.CategoryValidation:
		return TextCodeValidation
	case goerrors.CategoryAuth:
		return TextCodeAuthFailed
	case goerrors.CategoryAuthz:
		return TextCodeForbidden
	case goerrors.CategoryNotFound:
		return TextCodeSchemaNotFound
	case goerrors.CategoryExternal:
		return TextCodeAPIFailed
	case goerrors.CategoryOperation:
		return TextCodeNetwork
	default:
		return TextCodeInternal
	}
}

func missingFieldsError(fields []string) error {
	return NewError(
		fmt.Sprintf("core: credential missing required fields: %s", strings.Join(fields, ", ")),
		goerrors.CategoryValidation,
	).WithMetadata(map[string]any{"missing": fields})
}

func hasTextCode(err error, code string) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.TextCode == code
}

// IsTimeout reports whether err was classified as a request deadline hit.
func IsTimeout(err error) bool { return hasTextCode(err, TextCodeTimeout) }

// IsAuthFailure reports whether err came from a rejected token grant or an
// expired/invalid bearer token.
func IsAuthFailure(err error) bool { return hasTextCode(err, TextCodeAuthFailed) }

// IsForbidden reports whether err came from a 403, i.e. the worker app
// authenticated but lacks the required roles.
func IsForbidden(err error) bool { return hasTextCode(err, TextCodeForbidden) }

// IsSchemaNotFound reports whether the User schema could not be located.
func IsSchemaNotFound(err error) bool { return hasTextCode(err, TextCodeSchemaNotFound) }

// IsDecryptFailure reports whether stored credentials could not be
// decrypted, which usually means the key file changed hosts or users.
func IsDecryptFailure(err error) bool { return hasTextCode(err, TextCodeDecryptFailed) }
