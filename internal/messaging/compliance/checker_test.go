package compliance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/realty-ai-agent/pkg/logging"
)

type memoryOptOuts struct {
	phones map[string]string
	err    error
}

func newMemoryOptOuts() *memoryOptOuts { return &memoryOptOuts{phones: map[string]string{}} }

func (m *memoryOptOuts) IsOptedOut(_ context.Context, phone string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	_, ok := m.phones[phone]
	return ok, nil
}

func (m *memoryOptOuts) RecordOptOut(_ context.Context, phone, personID string) error {
	if m.err != nil {
		return m.err
	}
	m.phones[phone] = personID
	return nil
}

func (m *memoryOptOuts) ClearOptOut(_ context.Context, phone string) error {
	delete(m.phones, phone)
	return nil
}

type fixedConsent bool

func (f fixedConsent) HasConsent(context.Context, string) (bool, error) { return bool(f), nil }

type memoryConsent map[string]bool

func (m memoryConsent) HasConsent(_ context.Context, phone string) (bool, error) { return m[phone], nil }

func (m memoryConsent) RecordConsent(_ context.Context, phone string, granted bool, _ string) error {
	m[phone] = granted
	return nil
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"(512) 555-0199", "+15125550199", true},
		{"1-512-555-0199", "+15125550199", true},
		{"+44 20 7946 0958", "+442079460958", true},
		{"555-0199", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizePhone(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestChecker_Statuses(t *testing.T) {
	ctx := context.Background()
	night := time.Date(2024, 10, 5, 23, 0, 0, 0, time.UTC)
	quiet, err := ParseQuietHours("21:00", "08:00", "UTC")
	require.NoError(t, err)

	optOuts := newMemoryOptOuts()
	optOuts.phones["+15125550100"] = "p0"

	tests := []struct {
		name    string
		checker *Checker
		phone   string
		want    Status
	}{
		{"allowed", NewChecker(optOuts, logging.Discard()), "512-555-0199", StatusAllowed},
		{"invalid", NewChecker(optOuts, logging.Discard()), "12345", StatusInvalidPhone},
		{"opted out", NewChecker(optOuts, logging.Discard()), "(512) 555-0100", StatusOptedOut},
		{"no consent", NewChecker(optOuts, logging.Discard(), WithConsentStore(fixedConsent(false))), "5125550199", StatusNoConsent},
		{"reply during quiet hours", NewChecker(optOuts, logging.Discard(),
			WithQuietHours(quiet), WithCheckerClock(func() time.Time { return night })), "5125550199", StatusAllowed},
		{"outreach during quiet hours", NewChecker(optOuts, logging.Discard(), WithPurpose(PurposeOutreach),
			WithQuietHours(quiet), WithCheckerClock(func() time.Time { return night })), "5125550199", StatusQuietHours},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.checker.CheckSendAllowed(ctx, tt.phone, "person-1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, tt.want == StatusAllowed, res.Allowed())
		})
	}
}

func TestChecker_ConsentedLeadPasses(t *testing.T) {
	ctx := context.Background()
	consent := memoryConsent{}
	checker := NewChecker(newMemoryOptOuts(), logging.Discard(), WithConsentStore(consent))

	res, err := checker.CheckSendAllowed(ctx, "512-555-0199", "person-1")
	require.NoError(t, err)
	assert.Equal(t, StatusNoConsent, res.Status)

	require.NoError(t, checker.RecordConsent(ctx, "(512) 555-0199", true, "website"))
	assert.True(t, consent["+15125550199"])

	res, err = checker.CheckSendAllowed(ctx, "512-555-0199", "person-1")
	require.NoError(t, err)
	assert.Equal(t, StatusAllowed, res.Status)

	require.NoError(t, checker.RecordConsent(ctx, "5125550199", false, "website"))
	res, err = checker.CheckSendAllowed(ctx, "5125550199", "person-1")
	require.NoError(t, err)
	assert.Equal(t, StatusNoConsent, res.Status)

	assert.ErrorIs(t, checker.RecordConsent(ctx, "12345", true, "website"), ErrInvalidPhone)
}

func TestChecker_RecordConsentWithoutGatingIsNoop(t *testing.T) {
	ctx := context.Background()
	require.NoError(t, NewChecker(newMemoryOptOuts(), logging.Discard()).RecordConsent(ctx, "12345", true, "website"))
	require.NoError(t, NewChecker(newMemoryOptOuts(), logging.Discard(), WithConsentStore(fixedConsent(true))).RecordConsent(ctx, "5125550199", true, "website"))
}

func TestChecker_QuietHoursRetryAt(t *testing.T) {
	night := time.Date(2024, 10, 5, 23, 0, 0, 0, time.UTC)
	quiet, err := ParseQuietHours("21:00", "08:00", "UTC")
	require.NoError(t, err)
	c := NewChecker(newMemoryOptOuts(), logging.Discard(), WithPurpose(PurposeOutreach),
		WithQuietHours(quiet), WithCheckerClock(func() time.Time { return night }))

	res, err := c.CheckSendAllowed(context.Background(), "5125550199", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 10, 6, 8, 0, 0, 0, time.UTC), res.RetryAt)
}

func TestChecker_StoreErrorPropagates(t *testing.T) {
	optOuts := newMemoryOptOuts()
	optOuts.err = errors.New("db down")
	_, err := NewChecker(optOuts, logging.Discard()).CheckSendAllowed(context.Background(), "5125550199", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, optOuts.err)
}

func TestChecker_RecordOptOutIdempotent(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	durable := newMemoryOptOuts()
	store := NewRedisOptOutStore(client, durable, logging.Discard())
	c := NewChecker(store, logging.Discard())

	require.NoError(t, c.RecordOptOut(ctx, "512-555-0199", "p1"))
	require.NoError(t, c.RecordOptOut(ctx, "+1 512 555 0199", "p1"))
	assert.Len(t, durable.phones, 1)

	res, err := c.CheckSendAllowed(ctx, "5125550199", "p1")
	require.NoError(t, err)
	assert.Equal(t, StatusOptedOut, res.Status)

	assert.ErrorIs(t, c.RecordOptOut(ctx, "nope", "p1"), ErrInvalidPhone)

	require.NoError(t, c.ClearOptOut(ctx, "5125550199"))
	res, err = c.CheckSendAllowed(ctx, "5125550199", "p1")
	require.NoError(t, err)
	assert.Equal(t, StatusAllowed, res.Status)
}

func TestRedisOptOutStore_WarmsCacheFromDurable(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	durable := newMemoryOptOuts()
	durable.phones["+15125550199"] = "p1"
	store := NewRedisOptOutStore(client, durable, logging.Discard())

	optedOut, err := store.IsOptedOut(ctx, "+15125550199")
	require.NoError(t, err)
	assert.True(t, optedOut)
	assert.True(t, mr.Exists(optOutKey("+15125550199")))
}

func TestRedisRateLimiter(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	day := time.Date(2024, 10, 5, 12, 0, 0, 0, time.UTC)
	limiter := NewRedisRateLimiter(client, 2, time.UTC)
	limiter.now = func() time.Time { return day }

	c := NewChecker(newMemoryOptOuts(), logging.Discard(), WithRateLimiter(limiter))
	phone := "5125550199"

	for i := 0; i < 2; i++ {
		res, err := c.CheckSendAllowed(ctx, phone, "")
		require.NoError(t, err)
		require.Equal(t, StatusAllowed, res.Status, "send %d", i)
		require.NoError(t, c.RecordSend(ctx, phone))
	}
	res, err := c.CheckSendAllowed(ctx, phone, "")
	require.NoError(t, err)
	assert.Equal(t, StatusRateLimited, res.Status)

	key := "sms_rate:+15125550199:20241005"
	assert.True(t, mr.Exists(key))
	assert.Equal(t, rateKeyTTL, mr.TTL(key))

	limiter.now = func() time.Time { return day.Add(24 * time.Hour) }
	res, err = c.CheckSendAllowed(ctx, phone, "")
	require.NoError(t, err)
	assert.Equal(t, StatusAllowed, res.Status)
}

func TestRedisRateLimiter_Disabled(t *testing.T) {
	_, client := newRedis(t)
	limiter := NewRedisRateLimiter(client, 0, nil)
	exceeded, err := limiter.Exceeded(context.Background(), "+15125550199")
	require.NoError(t, err)
	assert.False(t, exceeded)
}
