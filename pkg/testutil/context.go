package testutil

import (
	"net/http"

	id "checkin/pkg/domain"
	"checkin/pkg/requestcontext"
)

// WithOperator places an authenticated operator on the request context, the
// way the bearer-token middleware does.
func WithOperator(req *http.Request, operatorID id.OperatorID, username string) *http.Request {
	return req.WithContext(requestcontext.WithOperator(req.Context(), operatorID, username))
}

// WithBearer sets the Authorization header.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
