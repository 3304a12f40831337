package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInit_Levels(t *testing.T) {
	l, err := Init("DEBUG", "dev")
	require.NoError(t, err)
	defer l.Closer()
	require.Equal(t, zap.DebugLevel, l.Level.Level())

	l2, err := Init("garbage", "prod")
	require.NoError(t, err)
	defer l2.Closer()
	require.Equal(t, zap.InfoLevel, l2.Level.Level())
}

func TestNop(t *testing.T) {
	l := Nop()
	require.NotNil(t, l.Component("rescan"))
	l.Closer()
}
