package state

import (
	"context"
	"fmt"

	"github.com/valkey-io/valkey-go"
)

// ValkeyManager shares rate windows across gateway instances through Valkey.
// Window boundaries are computed from the Valkey server clock so that all
// instances agree on them.
type ValkeyManager struct {
	client valkey.Client
}

func NewValkeyManager(client valkey.Client) *ValkeyManager {
	return &ValkeyManager{client: client}
}

func (v *ValkeyManager) Consume(ctx context.Context, provider string) error {
	key := windowKey(provider)

	// Atomically increment the window counter, starting a fresh window with
	// its own expiry when none exists.
	script := `
		local count = redis.call('INCR', KEYS[1])
		if count == 1 then
			redis.call('PEXPIRE', KEYS[1], ARGV[1])
		end
		return count
	`

	resp := v.client.Do(ctx, v.client.B().Eval().Script(script).Numkeys(1).Key(key).Arg(
		fmt.Sprintf("%d", Window.Milliseconds()),
	).Build())
	return resp.Error()
}

func (v *ValkeyManager) Usage(ctx context.Context, provider string) (int, error) {
	resp := v.client.Do(ctx, v.client.B().Get().Key(windowKey(provider)).Build())
	count, err := resp.AsInt64()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return 0, nil
		}
		return 0, err
	}
	return int(count), nil
}

func windowKey(provider string) string {
	return fmt.Sprintf("switchyard:rate:%s", provider)
}
