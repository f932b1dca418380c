package main

import (
	"bytes"
	"log/slog"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInterrupted(t *testing.T) {
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	defer slog.SetDefault(prev)

	var code int
	exit := func(c int) { code = c }

	t.Run("SIGTERM exits 130", func(t *testing.T) {
		buf.Reset()
		code = 0
		interrupted(syscall.SIGTERM, exit)
		assert.Equal(t, 130, code)
		assert.Contains(t, buf.String(), "benchmark batch interrupted")
		assert.Contains(t, buf.String(), "terminated")
	})

	t.Run("SIGINT exits 130", func(t *testing.T) {
		buf.Reset()
		code = 0
		interrupted(os.Interrupt, exit)
		assert.Equal(t, exitInterrupted, code)
		assert.Contains(t, buf.String(), "interrupt")
	})
}
