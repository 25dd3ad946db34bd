package testutil

import (
	"net/http"

	id "kycgate/pkg/domain"
	"kycgate/pkg/requestcontext"
)

// WithSubject adds the authenticated subject to the request context, as the
// auth middleware would. Invalid IDs are ignored.
func WithSubject(req *http.Request, subjectID string) *http.Request {
	parsed, err := id.ParseSubjectID(subjectID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithSubjectID(req.Context(), parsed))
}

// WithAdjudicator marks the request as carrying a valid admin token.
func WithAdjudicator(req *http.Request) *http.Request {
	return req.WithContext(requestcontext.WithAdjudicator(req.Context()))
}
