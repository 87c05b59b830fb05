package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnsureCorrelationIDKeepsExisting(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "corr-1")
	ctx, id := EnsureCorrelationID(ctx)
	assert.Equal(t, "corr-1", id)
	assert.Equal(t, "corr-1", CorrelationIDFromContext(ctx))
}

func TestEnsureCorrelationIDMintsULID(t *testing.T) {
	ctx, id := EnsureCorrelationID(context.Background())
	assert.Len(t, id, 26)
	assert.Equal(t, id, CorrelationIDFromContext(ctx))
}

func TestActorRoundTrip(t *testing.T) {
	kind, id := ActorFromContext(context.Background())
	assert.Empty(t, kind)
	assert.Empty(t, id)

	kind, id = ActorFromContext(WithActor(context.Background(), "donor", " user-1 "))
	assert.Equal(t, "donor", kind)
	assert.Equal(t, "user-1", id)
}
