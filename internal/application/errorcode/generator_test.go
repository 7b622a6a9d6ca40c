package errorcode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/bryanwahyu/cbomkit/internal/application"
)

func TestGeneratorResetsDaily(t *testing.T) {
	now := time.Date(2024, 6, 13, 23, 59, 0, 0, time.UTC)
	g := New(application.ClockFunc(func() time.Time { return now }))

	assert.Equal(t, "ERR-API-2024-0613-0001", g.Next("api"))
	assert.Equal(t, "ERR-DB-2024-0613-0002", g.Next("db"))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, "ERR-API-2024-0614-0001", g.Next("api"))
}
