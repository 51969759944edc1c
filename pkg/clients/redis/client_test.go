package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
)

type mockCmdable struct {
	mock.Mock
}

func (m *mockCmdable) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	args := m.Called(ctx, key, value, expiration)
	return args.Get(0).(*redis.BoolCmd)
}

func (m *mockCmdable) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	args := m.Called(ctx, keys)
	return args.Get(0).(*redis.IntCmd)
}

func (m *mockCmdable) Ping(ctx context.Context) *redis.StatusCmd {
	args := m.Called(ctx)
	return args.Get(0).(*redis.StatusCmd)
}

func (m *mockCmdable) Close() error {
	return m.Called().Error(0)
}

// ===========================================================================
// Commands
// ===========================================================================

func TestClient_SetNX(t *testing.T) {
	t.Parallel()
	m := &mockCmdable{}
	client := NewFromClient(m, nil)

	m.On("SetNX", mock.Anything, "webhook:msg_1", "1", time.Hour).
		Return(redis.NewBoolResult(true, nil)).Once()
	m.On("SetNX", mock.Anything, "webhook:msg_1", "1", time.Hour).
		Return(redis.NewBoolResult(false, nil)).Once()

	first, err := client.SetNX(context.Background(), "webhook:msg_1", "1", time.Hour)
	require.NoError(t, err)
	assert.True(t, first)

	second, err := client.SetNX(context.Background(), "webhook:msg_1", "1", time.Hour)
	require.NoError(t, err)
	assert.False(t, second)
	m.AssertExpectations(t)
}

func TestClient_SetNX_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want sserr.Code
	}{
		{"connection", errors.New("connection refused"), sserr.CodeInternalDatabase},
		{"deadline", context.DeadlineExceeded, sserr.CodeTimeoutDatabase},
		{"canceled", context.Canceled, sserr.CodeInternalDatabase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := &mockCmdable{}
			m.On("SetNX", mock.Anything, "k", "v", time.Minute).Return(redis.NewBoolResult(false, tt.err))

			_, err := NewFromClient(m, nil).SetNX(context.Background(), "k", "v", time.Minute)
			assert.Equal(t, tt.want, sserr.GetCode(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClient_Del(t *testing.T) {
	t.Parallel()
	m := &mockCmdable{}
	client := NewFromClient(m, nil)
	m.On("Del", mock.Anything, []string{"a"}).Return(redis.NewIntResult(1, nil)).Once()
	m.On("Del", mock.Anything, []string{"b"}).Return(redis.NewIntResult(0, errors.New("EOF"))).Once()

	n, err := client.Del(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = client.Del(context.Background(), "b")
	assert.Equal(t, sserr.CodeInternalDatabase, sserr.GetCode(err))
}

func TestClient_Health(t *testing.T) {
	t.Parallel()
	m := &mockCmdable{}
	m.On("Ping", mock.Anything).Return(redis.NewStatusResult("PONG", nil)).Once()
	m.On("Ping", mock.Anything).Return(redis.NewStatusResult("", errors.New("down"))).Once()
	client := NewFromClient(m, nil)

	require.NoError(t, client.Health(context.Background()))
	assert.Equal(t, sserr.CodeUnavailableDependency, sserr.GetCode(client.Health(context.Background())))
}

func TestClient_Close(t *testing.T) {
	t.Parallel()
	m := &mockCmdable{}
	m.On("Close").Return(nil)
	require.NoError(t, NewFromClient(m, nil).Close())
	m.AssertCalled(t, "Close")
}

// ===========================================================================
// Config
// ===========================================================================

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	cfg := Config{}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultPoolSize, cfg.PoolSize)

	bad := []Config{
		{URI: "http://localhost:6379"},
		{Port: 70000},
		{DB: -1},
		{PoolSize: 1, MinIdleConns: 5},
		{DialTimeout: -time.Second},
	}
	for _, c := range bad {
		assert.Error(t, c.Validate(), "%+v", c)
	}

	uri := Config{URI: "rediss://:pw@cache:6380/2"}
	assert.NoError(t, uri.Validate())
}

func TestConfig_Configured(t *testing.T) {
	t.Parallel()
	var nilCfg *Config
	assert.False(t, nilCfg.Configured())
	assert.False(t, (&Config{PoolSize: 10}).Configured())
	assert.True(t, (&Config{Host: "cache"}).Configured())
	assert.True(t, (&Config{URI: "redis://cache:6379/0"}).Configured())
	assert.True(t, DefaultConfig().Configured())
}

func TestSecret_Redacts(t *testing.T) {
	t.Parallel()
	s := Secret("pw")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "pw", s.Value())
}

func TestTruncateStatement(t *testing.T) {
	t.Parallel()
	long := ""
	for range maxStatementTruncateLen + 5 {
		long += "é"
	}
	got := truncateStatement(long)
	assert.Equal(t, maxStatementTruncateLen+3, len([]rune(got)))
	assert.Equal(t, "GET k", truncateStatement("GET k"))
}
