package graph

import (
	"context"
	"fmt"
)

// KeyRetryCount is the state key the retry wrapper uses to bound repeated
// executions of a node within one run.
const KeyRetryCount = "retry_count"

// WithRetry bounds how many times fn may execute in one workflow run.
// Each invocation increments the shared retry counter before delegating;
// once the counter has reached maxRetries the wrapped node is not invoked
// again and a retry_exhausted event is emitted instead. Routers that loop
// back to a retried node rely on this bound for termination.
func WithRetry(fn NodeFunc, maxRetries int) NodeFunc {
	return func(ctx context.Context, st State, em *Emitter) error {
		count := st.GetInt(KeyRetryCount)
		if count >= maxRetries {
			return em.NodeStarted(ctx, "retry_exhausted",
				fmt.Sprintf("已达到最大重试次数 %d", maxRetries))
		}
		st[KeyRetryCount] = count + 1
		if err := em.NodeStarted(ctx, "retry_attempt", fmt.Sprintf("第 %d 次重试", count+1)); err != nil {
			return err
		}
		return fn(ctx, st, em)
	}
}
