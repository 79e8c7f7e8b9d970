package magiclink_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edustack/go-access-server/magiclink"
)

func newTestService(t *testing.T, now func() time.Time) *magiclink.Service {
	t.Helper()

	opts := []magiclink.ServiceOption{}
	if now != nil {
		opts = append(opts, magiclink.WithNowTime(now))
	}
	service, err := magiclink.NewService(magiclink.NewMemoryStore(), opts...)
	require.NoError(t, err)
	return service
}

func TestIssueRedeem_RoundTrip(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	raw, err := service.Issue(ctx, "user-1", "enrollment-1", "c1", time.Hour)
	require.NoError(t, err)
	require.Contains(t, raw, ".")

	redemption, err := service.Redeem(ctx, raw)
	require.NoError(t, err)
	require.Equal(t, "user-1", redemption.UserID)
	require.Equal(t, "enrollment-1", redemption.EnrollmentID)
	require.Equal(t, "c1", redemption.CourseID)
}

func TestRedeem_SingleUse(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	raw, err := service.Issue(ctx, "user-1", "enrollment-1", "c1", time.Hour)
	require.NoError(t, err)

	_, err = service.Redeem(ctx, raw)
	require.NoError(t, err)

	_, err = service.Redeem(ctx, raw)
	require.ErrorIs(t, err, magiclink.LinkInvalidErr)
}

func TestRedeem_Expired(t *testing.T) {
	issuedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	current := issuedAt
	service := newTestService(t, func() time.Time { return current })
	ctx := context.Background()

	raw, err := service.Issue(ctx, "user-1", "enrollment-1", "", time.Hour)
	require.NoError(t, err)

	current = issuedAt.Add(time.Hour + time.Second)
	_, err = service.Redeem(ctx, raw)
	require.ErrorIs(t, err, magiclink.LinkInvalidErr)
}

func TestRedeem_WrongSecret(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	raw, err := service.Issue(ctx, "user-1", "enrollment-1", "", time.Hour)
	require.NoError(t, err)

	id, _, ok := strings.Cut(raw, ".")
	require.True(t, ok)

	_, err = service.Redeem(ctx, id+"."+strings.Repeat("x", 43))
	require.ErrorIs(t, err, magiclink.LinkInvalidErr)
}

func TestRedeem_MalformedCredential(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	for _, raw := range []string{"", "no-separator", ".secret-only", "id-only."} {
		_, err := service.Redeem(ctx, raw)
		require.ErrorIs(t, err, magiclink.LinkInvalidErr, "input %q", raw)
	}
}

func TestRedeem_UnknownLink(t *testing.T) {
	service := newTestService(t, nil)

	_, err := service.Redeem(context.Background(), "unknown-id.some-secret")
	require.ErrorIs(t, err, magiclink.LinkInvalidErr)
}

func TestIssue_Validation(t *testing.T) {
	service := newTestService(t, nil)
	ctx := context.Background()

	_, err := service.Issue(ctx, "", "enrollment-1", "", time.Hour)
	require.Error(t, err)

	_, err = service.Issue(ctx, "user-1", "", "", time.Hour)
	require.Error(t, err)

	_, err = service.Issue(ctx, "user-1", "enrollment-1", "", 0)
	require.Error(t, err)
}
