package quotaerrors

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNotFoundErrorMessage(t *testing.T) {
	err := &NotFoundError{OrganizationID: "O1"}
	require.Contains(t, err.Error(), "O1")
}

func TestBadRequestErrorMessage(t *testing.T) {
	err := &BadRequestError{Reason: "id mismatch"}
	require.Contains(t, err.Error(), "id mismatch")
}

func TestLockTimeoutErrorMessage(t *testing.T) {
	err := &LockTimeoutError{Key: "org:O1:lock", Waited: 5 * time.Second}
	require.Contains(t, err.Error(), "org:O1:lock")
	require.Contains(t, err.Error(), "5s")
}

func TestStoreErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := &StoreError{Op: "get family", Err: cause}

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "get family")
}
