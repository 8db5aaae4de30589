// Package worker scores simulation requests received from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
)

var tracer = otel.Tracer("kestrel-worker")

// ModelResolver loads the scoring model for a product or model id.
type ModelResolver interface {
	Resolve(ctx context.Context, tenantID, productID, modelID string) (*domain.ScoringModel, error)
}

// Recorder counts processed simulations per product.
type Recorder interface {
	RecordSimulation(ctx context.Context, tenantID, productID string) (int64, error)
}

// Worker processes simulation requests asynchronously from the EventBus.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	models    ModelResolver
	processor *decision.Processor
	recorder  Recorder

	jobs          chan job
	subscriptions []domain.Subscription
	mu            sync.Mutex
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

type job struct {
	tenantID string
	msg      *domain.Message
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all tenants).
	TenantIDs []string

	// WorkerCount is the number of goroutines scoring messages.
	WorkerCount int
}

// NewWorker creates a new async worker. repo and recorder may be nil.
func NewWorker(bus domain.EventBus, repo domain.Repository, models ModelResolver, processor *decision.Processor, recorder Recorder) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		models:    models,
		processor: processor,
		recorder:  recorder,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the processing pool and subscribes for the given tenants.
func (w *Worker) Start(cfg Config) error {
	count := cfg.WorkerCount
	if count <= 0 {
		count = 1
	}

	w.mu.Lock()
	if w.jobs != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}
	w.jobs = make(chan job, count*16)
	w.mu.Unlock()

	for i := 0; i < count; i++ {
		w.wg.Add(1)
		go w.run()
	}

	if len(cfg.TenantIDs) == 0 {
		return w.subscribe(domain.AllTenants)
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.subscribe(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
		"worker_count", count,
	)

	return nil
}

func (w *Worker) subscribe(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicSimulationRequested, func(ctx context.Context, msg *domain.Message) error {
		// A tenant subscription only sees its own subject; a global one
		// trusts the tenant the bus derived from the subject.
		t := tenantID
		if tenantID == domain.AllTenants {
			t = msg.TenantID
		}
		if t == "" || t == domain.AllTenants {
			return fmt.Errorf("message %s carries no tenant", msg.ID)
		}
		select {
		case w.jobs <- job{tenantID: t, msg: msg}:
			return nil
		case <-w.ctx.Done():
			return w.ctx.Err()
		}
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicSimulationRequested,
	)
	return nil
}

func (w *Worker) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case j := <-w.jobs:
			if err := w.processSimulation(w.ctx, j.tenantID, j.msg); err != nil {
				slog.Error("simulation processing failed",
					"message_id", j.msg.ID,
					"tenant_id", j.tenantID,
					"error", err,
				)
			}
		}
	}
}

// SimulationMessage is the payload of a simulation request.
type SimulationMessage struct {
	SimulationID  string               `json:"simulationId"`
	TenantID      string               `json:"tenantId"`
	TraceID       string               `json:"traceId"`
	ProductID     string               `json:"productId,omitempty"`
	ModelID       string               `json:"modelId,omitempty"`
	ApplicantID   string               `json:"applicantId,omitempty"`
	Values        domain.Values        `json:"values"`
	MissingPolicy domain.MissingPolicy `json:"missingPolicy,omitempty"`
}

// processSimulation scores one request through the pipeline.
func (w *Worker) processSimulation(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var simMsg SimulationMessage
	if err := json.Unmarshal(msg.Payload, &simMsg); err != nil {
		return fmt.Errorf("failed to parse simulation message: %w", err)
	}

	if simMsg.TenantID != "" && simMsg.TenantID != tenantID {
		return fmt.Errorf("simulation %s names tenant %q but was published for %q",
			simMsg.SimulationID, simMsg.TenantID, tenantID)
	}

	traceID := simMsg.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	ctx, span := tracer.Start(ctx, "worker.simulation")
	defer span.End()
	span.SetAttributes(
		attribute.String("tenant.id", tenantID),
		attribute.String("simulation.id", simMsg.SimulationID),
		attribute.String("product.id", simMsg.ProductID),
		attribute.String("trace.id", traceID),
	)

	fail := func(err error) error {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	// 1. Load the model
	model, err := w.models.Resolve(ctx, tenantID, simMsg.ProductID, simMsg.ModelID)
	if err != nil {
		return fail(fmt.Errorf("failed to resolve model: %w", err))
	}

	// 2. Score and recommend
	sim, err := w.processor.Process(ctx, &decision.Request{
		ID:            simMsg.SimulationID,
		TenantID:      tenantID,
		TraceID:       traceID,
		ProductID:     simMsg.ProductID,
		ApplicantID:   simMsg.ApplicantID,
		Model:         model,
		Values:        simMsg.Values,
		MissingPolicy: simMsg.MissingPolicy,
		StartTime:     start,
	})
	if err != nil {
		return fail(err)
	}
	span.SetAttributes(
		attribute.String("simulation.status", string(sim.Result.Status)),
		attribute.Float64("simulation.score", sim.Result.ScoreFinal),
	)

	// 3. Save
	if w.repo != nil {
		if err := w.repo.SaveSimulation(ctx, tenantID, sim); err != nil {
			slog.Error("failed to save simulation",
				"simulation_id", sim.ID,
				"error", err,
			)
		}
	}
	if w.recorder != nil {
		if _, err := w.recorder.RecordSimulation(ctx, tenantID, sim.ProductID); err != nil {
			slog.Warn("failed to record simulation",
				"simulation_id", sim.ID,
				"error", err,
			)
		}
	}

	// 4. Publish the outcome
	resultPayload, err := json.Marshal(sim)
	if err != nil {
		return fail(fmt.Errorf("failed to encode simulation: %w", err))
	}
	if err := w.bus.Publish(ctx, tenantID, domain.TopicSimulationScored, resultPayload); err != nil {
		slog.Error("failed to publish scored simulation",
			"simulation_id", sim.ID,
			"error", err,
		)
	}

	if decision.ShouldNotify(sim) {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicSimulationBlocked, resultPayload); err != nil {
			slog.Error("failed to publish blocked simulation",
				"simulation_id", sim.ID,
				"error", err,
			)
		}
	}

	slog.Info("simulation processed",
		"simulation_id", sim.ID,
		"tenant_id", tenantID,
		"status", sim.Result.Status,
		"score", sim.Result.ScoreFinal,
		"recommendation", sim.Recommendation,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.mu.Lock()
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.cancel()
	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	QueuedMessages    int      `json:"queuedMessages"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		QueuedMessages:    len(w.jobs),
	}
}
