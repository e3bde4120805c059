package ids

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewIsMonotonicForRepeatedTimestamp(t *testing.T) {
	at := time.Unix(1700000000, 0)
	a := New(at)
	b := New(at)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}
