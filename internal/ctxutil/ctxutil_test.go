package ctxutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/tsunagi/internal/auth"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", RequestIDFromContext(ctx))
	assert.Equal(t, "req-1", RequestIDFromContext(WithRequestID(ctx, "req-1")))
}

func TestFunctionAllowed(t *testing.T) {
	ctx := context.Background()
	assert.True(t, FunctionAllowed(ctx, "query"), "no claims means no restriction")

	scoped := WithClaims(ctx, &auth.Claims{Functions: []string{"echo"}})
	assert.True(t, FunctionAllowed(scoped, "echo"))
	assert.False(t, FunctionAllowed(scoped, "query"))
	assert.NotNil(t, ClaimsFromContext(scoped))
}
