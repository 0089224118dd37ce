package main

import (
	"errors"
	"testing"

	"github.com/fmueller/voxbatch/internal/cli"
	"github.com/stretchr/testify/require"
)

func TestShouldPrintUsageHint(t *testing.T) {
	t.Parallel()

	require.True(t, shouldPrintUsageHint(errors.New("unknown command \"bad\" for \"voxbatch\"")))
	require.True(t, shouldPrintUsageHint(errors.New("unknown flag: --oops")))
	require.True(t, shouldPrintUsageHint(errors.New("accepts 1 arg(s), received 0")))
	require.True(t, shouldPrintUsageHint(errors.New("requires at least 1 arg(s), only received 0")))
	require.False(t, shouldPrintUsageHint(errors.New("download model \"small\": context deadline exceeded")))
	require.False(t, shouldPrintUsageHint(errors.New("some items failed: 1 of 3")))
	require.False(t, shouldPrintUsageHint(nil))
}

func TestHelpHintTarget(t *testing.T) {
	t.Parallel()

	root := cli.NewRootCmd()
	require.Equal(t, "voxbatch", helpHintTarget(root, []string{"--badflag"}))
	require.Equal(t, "voxbatch", helpHintTarget(root, []string{"badcmd"}))
	require.Equal(t, "voxbatch transcribe", helpHintTarget(root, []string{"transcribe"}))
	require.Equal(t, "voxbatch folder", helpHintTarget(root, []string{"folder", "--output", "x.txt"}))
	require.Equal(t, "voxbatch", helpHintTarget(nil, nil))
}
