package cli

import (
	"context"

	"lifesim/internal/syncq"
)

type ReplayResult struct {
	Command syncq.Command
	Err     error
}

// Replay sends queued commands in order. It stops at the first transport
// failure and returns the commands still pending, that one included.
// Commands the API refused are dropped and reported with their error.
func Replay(ctx context.Context, c *Client, cmds []syncq.Command) ([]ReplayResult, []syncq.Command) {
	var out []ReplayResult
	for i, cmd := range cmds {
		_, err := c.Do(ctx, cmd.Method, cmd.Path, cmd.ActorID, cmd.Body, cmd.IdempotencyKey)
		if IsOffline(err) {
			return out, cmds[i:]
		}
		out = append(out, ReplayResult{Command: cmd, Err: err})
	}
	return out, nil
}
