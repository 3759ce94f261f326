package report

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitWithoutDSNIsNoop(t *testing.T) {
	assert.NoError(t, Init("", "test"))

	assert.NotPanics(t, func() {
		Capture(errors.New("boom"), map[string]string{"stage": "test"})
		Capture(nil, nil)
		Recovered("panic value")
		Flush()
	})
}

func TestInitRejectsMalformedDSN(t *testing.T) {
	assert.Error(t, Init("not a dsn", "test"))
}
