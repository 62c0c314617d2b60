package cron

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stellarlinkco/atlastools/internal/catalog"
)

// ToolRunner executes a job's tool through the catalog. The envelope JSON is
// the job result; any failure in it is also returned as the error.
func ToolRunner(cat *catalog.Catalog) JobFunc {
	return func(ctx context.Context, job CronJob) (string, error) {
		exec := cat.ExecuteTool(ctx, job.Payload.Tool, job.Payload.Input)
		out, err := json.Marshal(exec)
		if err != nil {
			return "", fmt.Errorf("encode result: %w", err)
		}
		if !exec.Succeeded() {
			return string(out), errors.New(exec.FailureMessage())
		}
		return string(out), nil
	}
}
