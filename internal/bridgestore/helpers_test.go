package bridgestore

import (
	"log/slog"
	"testing"

	"github.com/vk/flowsync/internal/ctxlog"
	"github.com/vk/flowsync/internal/testutil"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	ctx, _ := testutil.Context(t)
	return ctxlog.FromContext(ctx)
}
