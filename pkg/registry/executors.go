package registry

import (
	"github.com/flowlineio/flowline/pkg/executors/chatwebhook"
	"github.com/flowlineio/flowline/pkg/executors/httprequest"
	"github.com/flowlineio/flowline/pkg/executors/llm"
	"github.com/flowlineio/flowline/pkg/executors/transform"
	"github.com/flowlineio/flowline/pkg/executors/trigger"
)

// RegisterDefaultExecutors registers all built-in node kinds. Called once at
// process start; the registry is read-only afterwards.
func (r *Registry) RegisterDefaultExecutors() {
	r.Register(trigger.NewManualExecutor())
	r.Register(trigger.NewStripeExecutor())
	r.Register(trigger.NewGoogleFormExecutor())

	r.Register(httprequest.NewExecutor())
	r.Register(transform.NewExecutor())
	r.Register(llm.NewExecutor())
	r.Register(chatwebhook.NewExecutor())
}
