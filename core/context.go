package core

import (
	"github.com/kbukum/restkit/filelock"
	"github.com/kbukum/restkit/logger"
	"github.com/kbukum/restkit/mapper"
	"github.com/kbukum/restkit/observability"
	"github.com/kbukum/restkit/reachability"
	"github.com/kbukum/restkit/taskqueue"
)

// Context holds the process-wide collaborators shared by every component of
// a client. Components borrow them; the Context owns them.
type Context struct {
	Logger       *logger.Logger
	Reachability *reachability.Monitor
	Locks        *filelock.Table
	Mapper       *mapper.Registry
	Metrics      *observability.Metrics
	Tasks        *taskqueue.Queue
}

// NewContext creates a Context. A nil registry gets an empty one; nil
// metrics record nothing.
func NewContext(log *logger.Logger, registry *mapper.Registry, metrics *observability.Metrics) *Context {
	log = logger.OrGlobal(log)
	if registry == nil {
		registry = mapper.NewRegistry(mapper.WithLogger(log))
	}
	return &Context{
		Logger:       log,
		Reachability: reachability.NewMonitor(log),
		Locks:        filelock.NewTable(),
		Mapper:       registry,
		Metrics:      metrics,
		Tasks:        taskqueue.New(),
	}
}

// Close detaches every reachability listener.
func (c *Context) Close() {
	c.Reachability.RemoveAllListeners()
}
