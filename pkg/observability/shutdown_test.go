package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownStack_UnwindsInReverse(t *testing.T) {
	t.Parallel()

	var (
		order []string
		stack shutdownStack
	)

	errMeter := errors.New("meter flush failed")

	stack.push(func(context.Context) error {
		order = append(order, "tracer")

		return nil
	})
	stack.push(func(context.Context) error {
		order = append(order, "meter")

		return errMeter
	})

	err := stack.unwind(context.Background())
	require.ErrorIs(t, err, errMeter)
	assert.Equal(t, []string{"meter", "tracer"}, order)

	require.NoError(t, stack.unwind(context.Background()))
	assert.Len(t, order, 2)
}

func TestResourceAttributes_DefaultsServiceName(t *testing.T) {
	t.Parallel()

	attrs := resourceAttributes(Config{Environment: "ci"})

	require.Len(t, attrs, 2)
	assert.Equal(t, defaultServiceName, attrs[0].Value.AsString())
	assert.Equal(t, "ci", attrs[1].Value.AsString())
}
