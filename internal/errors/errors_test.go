package errors_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	svcErr "github.com/oggyb/cunhao-core/internal/errors"
)

func TestSentinelsMatchByCode(t *testing.T) {
	err := fmt.Errorf("vote: %w", svcErr.New(svcErr.CodeAlreadyVoted, nil))

	assert.True(t, errors.Is(err, svcErr.ErrAlreadyVoted))
	assert.False(t, errors.Is(err, svcErr.ErrNotCurator))
	assert.Equal(t, svcErr.CodeAlreadyVoted, svcErr.CodeOf(err))
}

func TestDetailIsRendered(t *testing.T) {
	err := svcErr.WithDetail(svcErr.CodeLinkTokenInvalid, "consumed")

	assert.Equal(t, "link token is invalid (consumed)", err.Error())
	assert.True(t, errors.Is(err, svcErr.ErrLinkTokenInvalid))
}

func TestFromGorm(t *testing.T) {
	assert.NoError(t, svcErr.FromGorm("op", nil))
	assert.ErrorIs(t, svcErr.FromGorm("op", gorm.ErrRecordNotFound), svcErr.ErrNotFound)
	assert.ErrorIs(t, svcErr.FromGorm("op", gorm.ErrDuplicatedKey), svcErr.ErrDuplicate)
	assert.ErrorIs(t, svcErr.FromGorm("op", context.Canceled), context.Canceled)

	err := svcErr.FromGorm("users.get", errors.New("connection refused"))
	assert.ErrorIs(t, err, svcErr.ErrStorageUnavailable)
	assert.True(t, svcErr.IsTransient(err))
	assert.Contains(t, err.Error(), "users.get")
}

func TestMap(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{svcErr.ErrNotCurator, codes.PermissionDenied},
		{svcErr.ErrAlreadyClosed, codes.FailedPrecondition},
		{svcErr.Storage("x", errors.New("boom")), codes.Unavailable},
		{gorm.ErrRecordNotFound, codes.NotFound},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{errors.New("other"), codes.Internal},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, status.Code(svcErr.Map(c.err)), c.err.Error())
	}
	assert.NoError(t, svcErr.Map(nil))
}
