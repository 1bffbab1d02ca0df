package memory

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/pagesweep/pkg/store/block"
	"github.com/marmos91/pagesweep/pkg/store/block/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) block.Store {
		return New()
	})
}

func TestHealthError(t *testing.T) {
	s := New()
	ioErr := errors.New("medium error")

	s.SetHealthError(ioErr)
	assert.ErrorIs(t, s.HealthCheck(t.Context()), ioErr)

	s.SetHealthError(nil)
	assert.NoError(t, s.HealthCheck(t.Context()))
}
