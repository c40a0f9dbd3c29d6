package state

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	valkeymock "github.com/valkey-io/valkey-go/mock"
	"go.uber.org/mock/gomock"
)

func TestValkeyManager(t *testing.T) {
	t.Run("Consume method", func(t *testing.T) {
		t.Run("increments the window counter", func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockClient := valkeymock.NewClient(ctrl)
			manager := NewValkeyManager(mockClient)
			ctx := context.Background()

			mockClient.EXPECT().
				Do(ctx, valkeymock.MatchFn(func(cmd []string) bool {
					return cmd[0] == "EVAL" &&
						cmd[len(cmd)-2] == "switchyard:rate:openai" &&
						cmd[len(cmd)-1] == "60000"
				}, "EVAL script with window key and expiry")).
				Return(valkeymock.Result(valkeymock.ValkeyInt64(1)))

			assert.NoError(t, manager.Consume(ctx, "openai"))
		})

		t.Run("surfaces client errors", func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockClient := valkeymock.NewClient(ctrl)
			manager := NewValkeyManager(mockClient)
			ctx := context.Background()

			mockClient.EXPECT().
				Do(ctx, gomock.Any()).
				Return(valkeymock.ErrorResult(errors.New("connection refused")))

			assert.Error(t, manager.Consume(ctx, "openai"))
		})
	})

	t.Run("Usage method", func(t *testing.T) {
		t.Run("returns the current count", func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockClient := valkeymock.NewClient(ctrl)
			manager := NewValkeyManager(mockClient)
			ctx := context.Background()

			mockClient.EXPECT().
				Do(ctx, valkeymock.Match("GET", "switchyard:rate:openai")).
				Return(valkeymock.Result(valkeymock.ValkeyInt64(42)))

			usage, err := manager.Usage(ctx, "openai")
			assert.NoError(t, err)
			assert.Equal(t, 42, usage)
		})

		t.Run("missing key reads as zero", func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockClient := valkeymock.NewClient(ctrl)
			manager := NewValkeyManager(mockClient)
			ctx := context.Background()

			mockClient.EXPECT().
				Do(ctx, valkeymock.Match("GET", "switchyard:rate:openai")).
				Return(valkeymock.Result(valkeymock.ValkeyNil()))

			usage, err := manager.Usage(ctx, "openai")
			assert.NoError(t, err)
			assert.Equal(t, 0, usage)
		})
	})
}
