package main

import (
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/dailyyoga/cronkit/cron"
	"github.com/dailyyoga/cronkit/logger"
	"go.uber.org/zap"
)

const (
	shell = "/bin/sh"
	// maxOutput caps the command output kept in the log
	maxOutput = 4 << 10
	// waitDelay bounds the wait for output pipes after the command is killed
	waitDelay = time.Second
)

// commandTask runs t.Command through the shell. A non-zero exit is a task
// failure. On timeout or engine stop the whole process group is killed, so
// children the shell forked do not outlive the run.
func commandTask(t TaskConfig, log logger.Logger) cron.Task {
	log = logger.OrNop(log)
	return cron.TaskFunc(t.Name, func(ctx context.Context) error {
		if t.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, t.Timeout)
			defer cancel()
		}

		cmd := exec.CommandContext(ctx, shell, "-c", t.Command)
		killGroupOnCancel(cmd)
		cmd.WaitDelay = waitDelay
		out, err := cmd.CombinedOutput()
		fields := []zap.Field{zap.String("task", t.Name)}
		if id, ok := cron.TaskIDFromContext(ctx); ok {
			fields = append(fields, zap.String("task_id", string(id)))
		}
		if len(out) > maxOutput {
			out = out[len(out)-maxOutput:]
		}
		fields = append(fields, zap.ByteString("output", out))

		if err != nil {
			log.Warn("command failed", append(fields, zap.Error(err))...)
			return fmt.Errorf("crond: %s: %w", t.Name, err)
		}
		log.Debug("command finished", fields...)
		return nil
	})
}
