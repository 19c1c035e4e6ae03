package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// remoteError matches the {"error":{"message":...}} body most JSON APIs,
// Cloudinary included, return on failure.
type remoteError struct {
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// maps it onto an AppError. 4xx answers become invalid input carrying the
// remote message; everything else is an upstream failure of collaborator.
func ParseResponseError(resp *http.Response, collaborator string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.Upstream(collaborator, fmt.Errorf("status %d, read body: %w", resp.StatusCode, err))
	}

	message := string(body)
	var remote remoteError
	if json.Unmarshal(body, &remote) == nil && remote.Error != nil && remote.Error.Message != "" {
		message = remote.Error.Message
	}

	if IsClientError(resp.StatusCode) {
		return apperrors.InvalidInput(fmt.Sprintf("%s: %s", collaborator, message))
	}
	return apperrors.Upstream(collaborator, fmt.Errorf("status %d: %s", resp.StatusCode, message))
}

// IsClientError reports whether status is a 4xx code.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
