package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewSupervisorDefaults(t *testing.T) {
	s := NewSupervisor(0, 0, nil)

	require.Equal(t, 1, s.count, "at least one worker")
	require.Equal(t, 10*time.Second, s.grace)
	require.Equal(t, "-single", s.singleFlag)
	require.NotNil(t, s.log)
}
