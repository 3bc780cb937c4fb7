package core

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanguard/scanguard/pkg/target"
	"github.com/scanguard/scanguard/pkg/tool"
)

func testCatalog(t *testing.T) *tool.Catalog {
	t.Helper()
	c, err := tool.NewCatalog(tool.Descriptor{Name: "portscan", AllowedFlags: []string{"-s"}})
	require.NoError(t, err)
	return c
}

func TestWithLogger_SetsCustomLogger(t *testing.T) {
	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewExecutor(testCatalog(t), target.MustNew(target.Config{}), WithLogger(custom))
	assert.Same(t, custom, e.logger)
}

func TestNewExecutor_DefaultLogger(t *testing.T) {
	e := NewExecutor(testCatalog(t), target.MustNew(target.Config{}))
	require.NotNil(t, e.logger)
	assert.Same(t, slog.Default(), e.logger)
}

func TestWithLogger_NilKeepsDefault(t *testing.T) {
	e := NewExecutor(testCatalog(t), target.MustNew(target.Config{}), WithLogger(nil))
	assert.Same(t, slog.Default(), e.logger)
}
