package binanceclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeGate/internal/ports"
)

type mockLogger struct {
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

var _ ports.MarketDataClient = (*Client)(nil)

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	c, err := New(Config{UseTestnet: true, Logger: &mockLogger{}})
	require.NoError(t, err)
	assert.Equal(t, baseURLTestnet, c.futuresClient.BaseURL)

	c, err = New(Config{Logger: &mockLogger{}})
	require.NoError(t, err)
	assert.Equal(t, baseURLProduction, c.futuresClient.BaseURL)
}

func TestClient_HandleError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"rate limited", &common.APIError{Code: -1003, Message: "too many requests"}, ports.ErrRateLimited},
		{"bad signature", &common.APIError{Code: -1022}, ports.ErrAuthenticationFailed},
		{"invalid symbol", &common.APIError{Code: -1121, Message: "Invalid symbol."}, ports.ErrInvalidRequest},
		{"server error", &common.APIError{Code: -1001}, ports.ErrExchangeUnavailable},
		{"unmapped code", &common.APIError{Code: -9999}, ports.ErrUnknown},
		{"deadline", context.DeadlineExceeded, ports.ErrTimeout},
		{"canceled", context.Canceled, ports.ErrContextCanceled},
		{"connection refused", errors.New("dial tcp: connection refused"), ports.ErrConnectionFailed},
		{"other", errors.New("boom"), ports.ErrUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &mockLogger{}
			c := &Client{logger: logger}

			err := c.handleError(context.Background(), tt.err, "GetKlines")
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, tt.err)
			assert.Len(t, logger.errorMsgs, 1)
		})
	}

	assert.NoError(t, (&Client{logger: &mockLogger{}}).handleError(context.Background(), nil, "Ping"))
}

func TestTranslateBinanceKline(t *testing.T) {
	open := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	bk := &futures.Kline{
		OpenTime:  open.UnixMilli(),
		CloseTime: open.Add(5*time.Minute).UnixMilli() - 1,
		Open:      "100.5", High: "101", Low: "99.75", Close: "100.25", Volume: "1234.5",
	}

	k, err := translateBinanceKline(bk, "BTCUSDT", "5m")
	require.NoError(t, err)
	assert.Equal(t, open, k.OpenTime)
	assert.Equal(t, "BTCUSDT", k.Symbol)
	assert.Equal(t, "5m", k.Interval)
	assert.Equal(t, 100.5, k.Open)
	assert.Equal(t, 101.0, k.High)
	assert.Equal(t, 99.75, k.Low)
	assert.Equal(t, 100.25, k.Close)
	assert.Equal(t, 1234.5, k.Volume)
	assert.True(t, k.IsFinal)

	bk.Low = "n/a"
	_, err = translateBinanceKline(bk, "BTCUSDT", "5m")
	assert.ErrorContains(t, err, "low price")

	_, err = translateBinanceKline(nil, "BTCUSDT", "5m")
	assert.Error(t, err)
}

func TestClient_GetKlinesRejectsBadLimit(t *testing.T) {
	c, err := New(Config{Logger: &mockLogger{}})
	require.NoError(t, err)

	_, err = c.GetKlines(context.Background(), "BTCUSDT", "5m", 0)
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)

	_, err = c.GetKlinesRange(context.Background(), "BTCUSDT", "5m", time.Now(), time.Now().Add(-time.Hour))
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}
