package workorder

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"order-sync/core/identity"
	"order-sync/core/reconcile"
	"order-sync/core/registry"
	"order-sync/core/report"
)

// Service orchestrates the full pipeline: stored rows in, reconciled tracker
// items and a run report out.
type Service struct {
	rows *RowStore
	ids  identity.Store
	exec *reconcile.Executor
	reg  *registry.Registry
	log  *zap.Logger
	opts reconcile.Options
}

// NewService creates the work-order sync service.
func NewService(rows *RowStore, ids identity.Store, exec *reconcile.Executor, reg *registry.Registry, log *zap.Logger, opts reconcile.Options) *Service {
	return &Service{rows: rows, ids: ids, exec: exec, reg: reg, log: log, opts: opts}
}

// SyncAll reconciles the given products, or every stored product when the
// list is empty. Unmapped products are reported as skipped, not failed.
func (s *Service) SyncAll(ctx context.Context, products []string) (*report.Report, error) {
	if len(products) == 0 {
		var err error
		products, err = s.rows.Products(ctx)
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(products)

	rep := report.New(s.opts.DryRun)
	for _, product := range products {
		projectKey, ok := s.reg.Lookup(product)
		if !ok {
			s.log.Warn("product has no project mapping, skipping",
				zap.String("product", product))
			rep.AddSkipped(product, "no project mapping")
			continue
		}

		run, err := s.syncProduct(ctx, product, projectKey)
		if err != nil {
			rep.AddSkipped(product, err.Error())
			continue
		}
		rep.AddProduct(product, projectKey, *run)
	}
	rep.Finish()
	return rep, nil
}

// syncProduct runs one product end to end: delta pre-filter, load, group,
// compile, validate, reconcile.
func (s *Service) syncProduct(ctx context.Context, product, projectKey string) (*reconcile.RunResult, error) {
	// First tier of the delta filter: two batch queries. When no order has
	// rows newer than its checkpoint, the whole product is skipped without
	// loading or compiling anything.
	rowTimes, err := s.rows.AllRowTimes(ctx, product)
	if err != nil {
		return nil, err
	}
	if len(rowTimes) == 0 {
		s.log.Info("no orders for product", zap.String("product", product))
		return &reconcile.RunResult{}, nil
	}

	checkpoints := s.checkpoints(ctx, projectKey)
	if !s.opts.ForceSync && allCurrent(rowTimes, checkpoints) {
		var run reconcile.RunResult
		for _, orderID := range sortedKeys(rowTimes) {
			run.Add(reconcile.ApplyResult{OrderID: orderID, NoopCount: 1})
		}
		s.log.Info("no source rows newer than checkpoints, product skipped",
			zap.String("product", product),
			zap.Int("orders", len(rowTimes)))
		return &run, nil
	}

	records, err := s.rows.LoadRecords(ctx, product)
	if err != nil {
		return nil, err
	}
	orders := Group(records)
	if len(orders) == 0 {
		s.log.Info("no orders for product", zap.String("product", product))
		return &reconcile.RunResult{}, nil
	}

	fm, err := s.exec.FieldMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("load field map: %w", err)
	}
	options, err := s.exec.OptionMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("load option map: %w", err)
	}

	plans := CompileAll(orders, projectKey, fm)
	ResolveOptions(plans, fm, options)
	rep := Validate(plans, fm, DefaultRequiredFields())
	allowed, blocked := Decide(rep, s.opts.ContinueOnError)

	var run reconcile.RunResult

	// Blocked orders surface as failed results so nothing disappears
	// silently from the report.
	blockedSet := make(map[string]bool, len(blocked))
	for _, id := range blocked {
		blockedSet[id] = true
	}
	for _, ov := range rep.PerOrder {
		if !blockedSet[ov.OrderID] {
			continue
		}
		errs := ov.Errors
		if len(errs) == 0 {
			errs = []string{"blocked: sibling order failed validation"}
		}
		run.Add(reconcile.ApplyResult{
			OrderID:  ov.OrderID,
			Errors:   errs,
			Warnings: ov.Warnings,
		})
	}

	allowedSet := make(map[string]bool, len(allowed))
	for _, id := range allowed {
		allowedSet[id] = true
	}

	var pending []reconcile.OrderPlan
	for _, plan := range plans {
		if !allowedSet[plan.OrderID] {
			continue
		}
		if s.unchanged(ctx, plan, checkpoints) {
			s.log.Debug("source rows unchanged, skipping order",
				zap.String("order", plan.OrderID))
			run.Add(reconcile.ApplyResult{
				OrderID:   plan.OrderID,
				NoopCount: 1 + len(plan.Units),
			})
			continue
		}
		pending = append(pending, plan)
	}

	if len(pending) > 0 {
		result := s.exec.Reconcile(ctx, pending)
		for _, r := range result.PerOrder {
			run.Add(r)
		}
	}

	s.log.Info("product reconciled",
		zap.String("product", product),
		zap.String("project", projectKey),
		zap.Int("orders", run.Totals.Orders),
		zap.Int("failed", run.Totals.Failed))
	return &run, nil
}

// checkpoints loads the project's order checkpoints in one query. A failed
// load disables the pre-filter for this run rather than aborting it.
func (s *Service) checkpoints(ctx context.Context, projectKey string) map[string]time.Time {
	cps, err := s.ids.AllCheckpoints(ctx, projectKey)
	if err != nil {
		s.log.Warn("checkpoint load failed, delta pre-filter disabled",
			zap.String("project", projectKey), zap.Error(err))
		return nil
	}
	return cps
}

// allCurrent reports whether every order's newest row is at or before its
// checkpoint. Orders without a checkpoint have never been applied.
func allCurrent(rowTimes, checkpoints map[string]time.Time) bool {
	for orderID, last := range rowTimes {
		cp, ok := checkpoints[orderID]
		if !ok || last.After(cp) {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]time.Time) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// unchanged is the second tier of the delta filter: the order's checkpoint
// must cover its newest row and its raw rows must hash to the value recorded
// after the last successful apply. Any uncertainty reconciles.
func (s *Service) unchanged(ctx context.Context, plan reconcile.OrderPlan, checkpoints map[string]time.Time) bool {
	if s.opts.ForceSync || plan.SourceHash == "" {
		return false
	}
	if cp, ok := checkpoints[plan.OrderID]; !ok || plan.LastRowAt.After(cp) {
		return false
	}
	last, err := s.ids.SourceHash(ctx, plan.ProjectKey, plan.OrderID)
	if err != nil {
		if !errors.Is(err, identity.ErrNotFound) {
			s.log.Warn("source hash lookup failed",
				zap.String("order", plan.OrderID), zap.Error(err))
		}
		return false
	}
	return last == plan.SourceHash
}

// PreviewOrder is one order's compiled shape, for inspection without writes.
type PreviewOrder struct {
	OrderID   string   `json:"order_id"`
	Container string   `json:"container_summary"`
	Units     int      `json:"units"`
	OK        bool     `json:"ok"`
	Errors    []string `json:"errors,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Preview compiles and validates a product without touching the tracker
// beyond the field-map read.
func (s *Service) Preview(ctx context.Context, product string) ([]PreviewOrder, error) {
	projectKey, ok := s.reg.Lookup(product)
	if !ok {
		return nil, fmt.Errorf("product %q has no project mapping", product)
	}
	records, err := s.rows.LoadRecords(ctx, product)
	if err != nil {
		return nil, err
	}
	fm, err := s.exec.FieldMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("load field map: %w", err)
	}
	options, err := s.exec.OptionMap(ctx)
	if err != nil {
		return nil, fmt.Errorf("load option map: %w", err)
	}

	plans := CompileAll(Group(records), projectKey, fm)
	ResolveOptions(plans, fm, options)
	rep := Validate(plans, fm, DefaultRequiredFields())

	validation := make(map[string]OrderValidation, len(rep.PerOrder))
	for _, ov := range rep.PerOrder {
		validation[ov.OrderID] = ov
	}

	out := make([]PreviewOrder, 0, len(plans))
	for _, plan := range plans {
		ov := validation[plan.OrderID]
		out = append(out, PreviewOrder{
			OrderID:   plan.OrderID,
			Container: plan.Container.Summary,
			Units:     len(plan.Units),
			OK:        ov.OK,
			Errors:    ov.Errors,
			Warnings:  ov.Warnings,
		})
	}
	return out, nil
}
