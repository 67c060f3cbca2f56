package gmail

import (
	"errors"
	"fmt"

	"google.golang.org/api/googleapi"
)

// ErrAuth marks authentication/authorization failures from the Gmail API.
// These are fatal for the current scan: callers abort instead of continuing
// with partial data.
var ErrAuth = errors.New("gmail authentication failed")

// wrapAuth tags 401/403 API errors with ErrAuth so callers can distinguish
// fatal auth failures from per-message trouble.
func wrapAuth(err error) error {
	if err == nil {
		return nil
	}
	var ge *googleapi.Error
	if errors.As(err, &ge) && (ge.Code == 401 || ge.Code == 403) {
		return fmt.Errorf("%w: %v", ErrAuth, err)
	}
	return err
}

// isNotFound reports a 404 API error, used to make deletions idempotent.
func isNotFound(err error) bool {
	var ge *googleapi.Error
	return errors.As(err, &ge) && ge.Code == 404
}
