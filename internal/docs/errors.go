package docs

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/api/googleapi"
)

// AccessErrorKind classifies why a document could not be used
type AccessErrorKind string

const (
	AccessNotFound     AccessErrorKind = "not_found"
	AccessDenied       AccessErrorKind = "permission_denied"
	AccessUnauthorized AccessErrorKind = "unauthorized"
)

// AccessError is a terminal failure caused by document sharing or credentials
type AccessError struct {
	Kind           AccessErrorKind
	DocumentID     string
	ServiceAccount string
	Err            error
}

func (e *AccessError) Error() string {
	grantee := "the service account"
	if e.ServiceAccount != "" {
		grantee = e.ServiceAccount
	}
	switch e.Kind {
	case AccessNotFound:
		return fmt.Sprintf("document %s not found or not shared: grant edit access to %s", e.DocumentID, grantee)
	case AccessDenied:
		return fmt.Sprintf("permission denied on document %s: grant edit access to %s", e.DocumentID, grantee)
	default:
		return fmt.Sprintf("document service rejected the credentials for %s: check the service account key", e.DocumentID)
	}
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// IsAccessError reports whether err is, or wraps, an *AccessError
func IsAccessError(err error) bool {
	var ae *AccessError
	return errors.As(err, &ae)
}

// classifyError turns Google API status codes into *AccessError and wraps everything else
func (c *Client) classifyError(op, documentID string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		var kind AccessErrorKind
		switch apiErr.Code {
		case http.StatusNotFound:
			kind = AccessNotFound
		case http.StatusForbidden:
			kind = AccessDenied
		case http.StatusUnauthorized:
			kind = AccessUnauthorized
		}
		if kind != "" {
			return &AccessError{Kind: kind, DocumentID: documentID, ServiceAccount: c.serviceAccount, Err: err}
		}
	}
	return fmt.Errorf("failed to %s document %s: %w", op, documentID, err)
}
