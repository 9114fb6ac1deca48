package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresverguilla1987/mixtli-nube/internal/audit"
	"github.com/andresverguilla1987/mixtli-nube/pkg/token"
)

func TestPrivate_PinScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.put(t, "albums/private/secret.jpg", "s")

	require.NoError(t, env.access.SetPin(ctx, "private", "4321"))

	_, err := env.access.CheckPin(ctx, "private", "0000")
	assert.ErrorIs(t, err, ErrUnauthorized)

	grant, err := env.access.CheckPin(ctx, "private", "4321")
	require.NoError(t, err)
	assert.NotEmpty(t, grant.AccessToken)
	assert.Equal(t, env.now.Add(time.Hour).Unix(), grant.Exp)

	_, err = env.listing.ListAlbum(ctx, "private", "", 0, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	page, err := env.listing.ListAlbum(ctx, "private", grant.AccessToken, 0, "")
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "albums/private/secret.jpg", page.Items[0].Key)
}

func TestCheckPin_UniformDecline(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.access.SetPin(ctx, "locked", "123456"))

	_, noPin := env.access.CheckPin(ctx, "open", "123456")
	_, wrongPin := env.access.CheckPin(ctx, "locked", "654321")

	assert.ErrorIs(t, noPin, ErrUnauthorized)
	assert.ErrorIs(t, wrongPin, ErrUnauthorized)
	assert.Equal(t, noPin.Error(), wrongPin.Error())
}

func TestAuthorize_RejectsExpiredAndForeignTokens(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.access.SetPin(ctx, "private", "4321"))
	require.NoError(t, env.access.SetPin(ctx, "other", "9999"))

	grant, err := env.access.CheckPin(ctx, "private", "4321")
	require.NoError(t, err)
	require.NoError(t, env.access.Authorize(ctx, "private", grant.AccessToken))

	assert.ErrorIs(t, env.access.Authorize(ctx, "other", grant.AccessToken), ErrUnauthorized)
	assert.ErrorIs(t, env.access.Authorize(ctx, "private", "garbage"), ErrUnauthorized)

	// A token signed with the right key but already expired.
	expired, _, err := env.tokens.Issue(token.Claims{Album: "private"}, -time.Minute)
	require.NoError(t, err)
	assert.ErrorIs(t, env.access.Authorize(ctx, "private", expired), ErrUnauthorized)

	env.now = env.now.Add(2 * time.Hour)
	assert.ErrorIs(t, env.access.Authorize(ctx, "private", grant.AccessToken), ErrUnauthorized)

	// Public albums ignore tokens entirely.
	assert.NoError(t, env.access.Authorize(ctx, "public", ""))
}

func TestSetPin_Validation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	for _, pin := range []string{"", "123", "abcd", "1234567890123", "12 34"} {
		assert.ErrorIs(t, env.access.SetPin(ctx, "trip", pin), ErrInvalidRequest, pin)
	}
	assert.ErrorIs(t, env.access.SetPin(ctx, "bad/album", "1234"), ErrInvalidRequest)
}

func TestClearPin(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	require.NoError(t, env.access.SetPin(ctx, "private", "4321"))
	assert.ErrorIs(t, env.access.Authorize(ctx, "private", ""), ErrUnauthorized)

	require.NoError(t, env.access.ClearPin(ctx, "private"))
	assert.NoError(t, env.access.Authorize(ctx, "private", ""))

	_, err := env.access.CheckPin(ctx, "private", "4321")
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, []string{audit.ActionPinSet, audit.ActionPinClear}, env.recorder.actions())
}
