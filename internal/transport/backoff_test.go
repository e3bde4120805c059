package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesAndCaps(t *testing.T) {
	b := DefaultBackoff()
	assert.Equal(t, 60*time.Second, b.Delay(0))
	assert.Equal(t, 120*time.Second, b.Delay(1))
	assert.Equal(t, 240*time.Second, b.Delay(2))
	assert.Equal(t, 300*time.Second, b.Delay(3))
	assert.Equal(t, 300*time.Second, b.Delay(10))
}

func TestBackoffNeverRetries4xx(t *testing.T) {
	b := DefaultBackoff()
	_, retry := b.ShouldRetry(&StatusError{Code: 403, Msg: "forbidden"}, 0)
	assert.False(t, retry)
}

func TestBackoffRetries5xxUntilMaxRetries(t *testing.T) {
	b := DefaultBackoff()
	_, retry := b.ShouldRetry(&StatusError{Code: 503, Msg: "unavailable"}, 9)
	assert.True(t, retry)
	_, retry = b.ShouldRetry(&StatusError{Code: 503, Msg: "unavailable"}, 10)
	assert.False(t, retry)
}

func TestCounterTooLowDetection(t *testing.T) {
	assert.True(t, CounterTooLow(&StatusError{Code: 409, Msg: "stale"}))
	assert.False(t, CounterTooLow(&StatusError{Code: 500, Msg: "oops"}))
}
