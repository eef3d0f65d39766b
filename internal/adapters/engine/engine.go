package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/eleven-am/conduit/internal/domain"
	"github.com/eleven-am/conduit/internal/helpers/metadata"
	"github.com/eleven-am/conduit/internal/ports"
	"github.com/eleven-am/conduit/internal/xjson"
)

// Engine owns every active run. Each submitted run gets one background task
// that walks the workflow's nodes in order.
type Engine struct {
	config   domain.EngineConfig
	registry ports.NodeRegistryPort
	storage  ports.StoragePort
	bus      ports.EventBus
	logger   *slog.Logger
	metrics  *domain.ExecutionMetrics
	boot     *metadata.Provider

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	runs   map[string]*runControl
	closed bool
}

func NewEngine(config domain.EngineConfig, registry ports.NodeRegistryPort, storage ports.StoragePort, bus ports.EventBus, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := domain.DefaultEngineConfig()
	if config.PersistTimeout <= 0 {
		config.PersistTimeout = defaults.PersistTimeout
	}
	if config.DefaultPriority == "" {
		config.DefaultPriority = defaults.DefaultPriority
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Engine{
		config:   config,
		registry: registry,
		storage:  storage,
		bus:      bus,
		logger:   logger.With("component", "engine"),
		metrics:  domain.NewExecutionMetrics(),
		boot:     metadata.NewProvider(),
		ctx:      ctx,
		cancel:   cancel,
		runs:     make(map[string]*runControl),
	}
}

// Submit validates the workflow, persists a pending run and starts it in the
// background. Nothing is persisted when validation fails.
func (e *Engine) Submit(ctx context.Context, workflow *domain.Workflow, params map[string]interface{}, opts ...RunOption) (*RunHandle, error) {
	options := runOptions{priority: e.config.DefaultPriority, trigger: domain.DefaultTrigger}
	for _, opt := range opts {
		opt(&options)
	}

	if err := e.validateWorkflow(workflow); err != nil {
		e.logger.Warn("workflow rejected", errorLogAttrs(engineComponent, err)...)
		return nil, err
	}
	if !options.priority.IsValid() {
		return nil, domain.NewValidationError("priority", fmt.Sprintf("unknown priority %q", options.priority))
	}

	params, err := normalize("params", params)
	if err != nil {
		return nil, err
	}

	vars, err := domain.InitialVariables(workflow, params)
	if err != nil {
		return nil, &domain.ValidationError{Field: "params", Message: "cannot merge params into workflow variables", Err: err}
	}

	run := domain.NewRun(workflow, params, options.priority)
	if options.trigger != "" {
		run.Trigger = options.trigger
	}
	for k, v := range options.metadata {
		run.Metadata[k] = v
	}
	if run.Metadata, err = normalize("metadata", e.boot.Stamp(run.Metadata)); err != nil {
		return nil, err
	}

	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, domain.ErrEngineClosed
	}

	if err := e.storage.SaveRun(ctx, run); err != nil {
		e.metrics.IncrementPersistenceFailures()
		perr := domain.NewPersistenceError("save_run", run.ID, err)
		e.logger.Error("failed to persist new run", errorLogAttrs(engineComponent, perr)...)
		return nil, perr
	}

	rc := newRunControl(run, workflow, vars, e.logger)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, domain.ErrEngineClosed
	}
	e.runs[run.ID] = rc
	e.wg.Add(1)
	e.mu.Unlock()

	rc.mu.Lock()
	initial := rc.run.Clone()
	e.bus.Publish(domain.RunMessage(rc.run))
	rc.mu.Unlock()

	e.metrics.IncrementRunsStarted()
	rc.logger.Info("run submitted", "nodes", len(workflow.Nodes), "trigger", run.Trigger)

	go e.runWorkflow(rc)

	return &RunHandle{ID: run.ID, engine: e, rc: rc, initial: initial}, nil
}

// Execute submits the workflow and returns the pending run without waiting.
func (e *Engine) Execute(ctx context.Context, workflow *domain.Workflow, params map[string]interface{}, priority domain.Priority) (domain.Run, error) {
	var opts []RunOption
	if priority != "" {
		opts = append(opts, WithPriority(priority))
	}

	handle, err := e.Submit(ctx, workflow, params, opts...)
	if err != nil {
		return domain.Run{}, err
	}
	return handle.Initial(), nil
}

func (e *Engine) validateWorkflow(workflow *domain.Workflow) error {
	if err := workflow.Validate(); err != nil {
		return err
	}

	for i, node := range workflow.Nodes {
		executor, err := e.registry.GetExecutor(node.Type)
		if err != nil {
			return &domain.ValidationError{
				Field:   fmt.Sprintf("nodes[%d].type", i),
				Message: fmt.Sprintf("node %s: %v", node.ID, err),
				Err:     err,
			}
		}
		if err := executor.ValidateConfig(node.Config); err != nil {
			return &domain.ValidationError{
				Field:   fmt.Sprintf("nodes[%d].config", i),
				Message: fmt.Sprintf("node %s: %v", node.ID, err),
				Err:     err,
			}
		}
	}
	return nil
}

// release forgets a finished run. The run task calls it on exit.
func (e *Engine) release(rc *runControl) {
	e.mu.Lock()
	delete(e.runs, rc.run.ID)
	e.mu.Unlock()
	close(rc.done)
}

// GetRun prefers the live snapshot of an active run over storage.
func (e *Engine) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	e.mu.RLock()
	rc, ok := e.runs[runID]
	e.mu.RUnlock()
	if ok {
		return rc.snapshot(), nil
	}

	return e.storage.GetRun(ctx, runID)
}

func (e *Engine) ListRuns(ctx context.Context, limit int) ([]domain.Run, error) {
	return e.storage.ListRuns(ctx, limit)
}

func (e *Engine) ListRunsByWorkflow(ctx context.Context, workflowID string, limit int) ([]domain.Run, error) {
	return e.storage.ListRunsByWorkflow(ctx, workflowID, limit)
}

// GetLogs returns every persisted event of a run in insertion order.
func (e *Engine) GetLogs(ctx context.Context, runID string) ([]domain.Event, error) {
	return e.storage.FetchLogs(ctx, runID)
}

func (e *Engine) SaveTemplate(ctx context.Context, workflowID, name string, params map[string]interface{}) (domain.ParameterTemplate, error) {
	if workflowID == "" {
		return domain.ParameterTemplate{}, domain.NewValidationError("workflow_id", "workflow id is required")
	}
	if name == "" {
		return domain.ParameterTemplate{}, domain.NewValidationError("name", "template name is required")
	}
	params, err := normalize("params", params)
	if err != nil {
		return domain.ParameterTemplate{}, err
	}
	if params == nil {
		params = make(map[string]interface{})
	}

	template := domain.ParameterTemplate{
		ID:         domain.NewTemplateID(),
		WorkflowID: workflowID,
		Name:       name,
		Params:     params,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.storage.SaveTemplate(ctx, template); err != nil {
		return domain.ParameterTemplate{}, err
	}

	e.logger.Debug("template saved", "template_id", template.ID, "workflow_id", workflowID)
	return template, nil
}

// normalize gives caller maps the value shapes the store hands back, so a
// saved value compares equal to what a later read returns.
func normalize(field string, m map[string]interface{}) (map[string]interface{}, error) {
	out, err := xjson.Normalize(m)
	if err != nil {
		return nil, domain.NewValidationError(field, "value is not JSON serializable: "+err.Error())
	}
	return out, nil
}

func (e *Engine) ListTemplates(ctx context.Context, workflowID string) ([]domain.ParameterTemplate, error) {
	return e.storage.ListTemplates(ctx, workflowID)
}

func (e *Engine) DeleteTemplate(ctx context.Context, templateID string) error {
	return e.storage.DeleteTemplate(ctx, templateID)
}

func (e *Engine) SaveTrigger(ctx context.Context, workflowID, triggerType string, config map[string]interface{}, enabled bool) (domain.Trigger, error) {
	if workflowID == "" {
		return domain.Trigger{}, domain.NewValidationError("workflow_id", "workflow id is required")
	}
	if triggerType == "" {
		return domain.Trigger{}, domain.NewValidationError("type", "trigger type is required")
	}
	config, err := normalize("config", config)
	if err != nil {
		return domain.Trigger{}, err
	}
	if config == nil {
		config = make(map[string]interface{})
	}

	trigger := domain.Trigger{
		ID:         domain.NewTriggerID(),
		WorkflowID: workflowID,
		Type:       triggerType,
		Config:     config,
		Enabled:    enabled,
		CreatedAt:  time.Now().UTC(),
	}
	if err := e.storage.SaveTrigger(ctx, trigger); err != nil {
		return domain.Trigger{}, err
	}

	e.logger.Debug("trigger saved", "trigger_id", trigger.ID, "workflow_id", workflowID, "type", triggerType)
	return trigger, nil
}

func (e *Engine) ListTriggers(ctx context.Context, workflowID string) ([]domain.Trigger, error) {
	return e.storage.ListTriggers(ctx, workflowID)
}

func (e *Engine) DeleteTrigger(ctx context.Context, triggerID string) error {
	return e.storage.DeleteTrigger(ctx, triggerID)
}

func (e *Engine) ListNodeTypes() []string {
	return e.registry.ListNodeTypes()
}

func (e *Engine) RegisterNodeType(nodeType string, factory ports.ExecutorFactory) error {
	return e.registry.Register(nodeType, factory)
}

// ActiveRuns returns snapshots of the runs that have not finished, oldest first.
func (e *Engine) ActiveRuns() []domain.Run {
	e.mu.RLock()
	controls := make([]*runControl, 0, len(e.runs))
	for _, rc := range e.runs {
		controls = append(controls, rc)
	}
	e.mu.RUnlock()

	runs := make([]domain.Run, 0, len(controls))
	for _, rc := range controls {
		runs = append(runs, rc.snapshot())
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs
}

func (e *Engine) Metrics() domain.ExecutionMetrics {
	return e.metrics.GetSnapshot()
}

func (e *Engine) Subscribe() ports.Subscription {
	return e.bus.Subscribe()
}

func (e *Engine) SubscribeRun(runID string) ports.Subscription {
	return e.bus.SubscribeRun(runID)
}

func (e *Engine) Unsubscribe(sub ports.Subscription) {
	e.bus.Unsubscribe(sub)
}

func (e *Engine) BusStats() ports.BusStats {
	return e.bus.Stats()
}

// BootID identifies this engine instance in the metadata of the runs it owns.
func (e *Engine) BootID() string {
	return e.boot.BootID()
}

func (e *Engine) IsClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}

// Shutdown stops accepting runs, cancels the active ones at their next
// checkpoint and waits for their tasks until ctx expires.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	active := len(e.runs)
	e.mu.Unlock()

	e.logger.Info("shutting down engine", "active_runs", active)
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Debug("engine stopped")
		return nil
	case <-ctx.Done():
		e.logger.Warn("engine shutdown timed out", "error", ctx.Err())
		return ctx.Err()
	}
}
