package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"order-sync/core/identity"
	"order-sync/core/tracker"
)

// Executor drives one logical order through its apply lifecycle:
// resolve → short-circuit check → create/update → unit fan-out → register.
// It is the only component that touches the tracker and the identity store.
type Executor struct {
	client tracker.Client
	store  identity.Store
	log    *zap.Logger
	opts   Options
	cache  *runCache
}

// NewExecutor builds an executor for one reconciliation pass. Metadata caches
// are created fresh here and never outlive the executor.
func NewExecutor(client tracker.Client, store identity.Store, log *zap.Logger, opts Options) (*Executor, error) {
	if err := opts.Normalize(); err != nil {
		return nil, fmt.Errorf("reconcile options: %w", err)
	}
	return &Executor{
		client: client,
		store:  store,
		log:    log,
		opts:   opts,
		cache:  newRunCache(client),
	}, nil
}

// FieldMap exposes the cached custom-field map so callers can compile plans
// against the same metadata the executor applies with.
func (e *Executor) FieldMap(ctx context.Context) (map[string]string, error) {
	return e.cache.FieldMap(ctx)
}

// OptionMap exposes the cached option-title → href map for list custom
// fields, loaded once per run.
func (e *Executor) OptionMap(ctx context.Context) (map[string]string, error) {
	return e.cache.Options(ctx)
}

// Reconcile applies a batch of order plans across a bounded worker pool.
// Orders are independent: one order's failure never aborts its siblings, and
// there is no ordering guarantee between orders. Cancellation stops
// scheduling new orders; in-flight orders finish or fail cleanly.
func (e *Executor) Reconcile(ctx context.Context, plans []OrderPlan) *RunResult {
	results := make([]ApplyResult, len(plans))
	sem := make(chan struct{}, e.opts.WorkerCount)
	var wg sync.WaitGroup

	for i, plan := range plans {
		if ctx.Err() != nil {
			results[i] = ApplyResult{
				OrderID: plan.OrderID,
				Errors:  []string{"run cancelled before order was scheduled"},
			}
			continue
		}
		select {
		case <-ctx.Done():
			results[i] = ApplyResult{
				OrderID: plan.OrderID,
				Errors:  []string{"run cancelled before order was scheduled"},
			}
			continue
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, plan OrderPlan) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = e.applyOrder(ctx, plan)
		}(i, plan)
	}
	wg.Wait()

	run := &RunResult{}
	for _, r := range results {
		run.Add(r)
	}
	e.log.Info("reconcile pass finished",
		zap.Int("orders", run.Totals.Orders),
		zap.Int("created", run.Totals.Created),
		zap.Int("updated", run.Totals.Updated),
		zap.Int("noops", run.Totals.Noops),
		zap.Int("failed", run.Totals.Failed),
		zap.Int("retries", run.Totals.Retries))
	return run
}

// applyOrder runs the per-order state machine. Any panic is absorbed into the
// order's error list so a bad order can never take down the batch loop.
func (e *Executor) applyOrder(ctx context.Context, plan OrderPlan) (res ApplyResult) {
	res = ApplyResult{OrderID: plan.OrderID, StartedAt: time.Now()}
	defer func() {
		if r := recover(); r != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("order processing panicked: %v", r))
		}
		res.Duration = time.Since(res.StartedAt)
	}()

	log := e.log.With(zap.String("order_id", plan.OrderID), zap.String("project", plan.ProjectKey))

	proj, err := e.cache.project(ctx, plan.ProjectKey)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	containerTypeID, err := e.cache.typeID(ctx, proj.ID, e.opts.ContainerType)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	unitTypeID, err := e.cache.typeID(ctx, proj.ID, e.opts.UnitType)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	containerKey, createdNow, err := e.applyContainer(ctx, log, plan, proj.ID, containerTypeID, &res)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}

	if createdNow {
		log.Debug("unit fan-out running concurrent creates", zap.Int("units", len(plan.Units)))
	}
	e.fanOutUnits(ctx, plan, proj.ID, unitTypeID, containerKey, createdNow, &res)

	if !res.Failed() && !e.opts.DryRun {
		if plan.SourceHash != "" {
			if err := e.store.SetSourceHash(ctx, plan.ProjectKey, plan.OrderID, plan.SourceHash); err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("source hash registration failed: %v", err))
			}
		}
		if !plan.LastRowAt.IsZero() {
			if err := e.store.SetCheckpoint(ctx, plan.ProjectKey, plan.OrderID, plan.LastRowAt); err != nil {
				res.Warnings = append(res.Warnings, fmt.Sprintf("checkpoint registration failed: %v", err))
			}
		}
	}
	return res
}

// applyContainer resolves and applies the order's container item. It returns
// the remote key and whether the container was created in this pass, which
// decides the unit fan-out concurrency policy.
func (e *Executor) applyContainer(ctx context.Context, log *zap.Logger, plan OrderPlan, projectID, typeID string, res *ApplyResult) (string, bool, error) {
	fp := Fingerprint(plan.Container)

	key, err := e.store.ResolveContainer(ctx, plan.ProjectKey, plan.OrderID)
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrNotFound):
		// No mapping on record: best-effort remote recovery before create, so
		// a lost registration never turns into a duplicate item.
		key, err = e.searchContainer(ctx, plan, projectID, typeID)
		if err != nil {
			return "", false, err
		}
	default:
		// Store failure is not "not found". Creating here could duplicate.
		return "", false, fmt.Errorf("identity store lookup for container: %w", err)
	}

	if key == "" {
		created, retries, err := e.createItem(ctx, tracker.Payload{
			ProjectID:   projectID,
			TypeID:      typeID,
			Summary:     plan.Container.Summary,
			Description: plan.Container.Description,
			DueDate:     plan.Container.DueDate,
			Fields:      plan.Container.Fields,
		})
		res.RetryCount += retries
		if err != nil {
			return "", false, fmt.Errorf("create container: %w", err)
		}
		res.CreatedKeys = append(res.CreatedKeys, created.Key)
		e.register(ctx, plan, identity.KindContainer, 0, created.Key, fp, res)
		log.Info("container created", zap.String("key", created.Key))
		return created.Key, true, nil
	}

	if !e.opts.ForceSync {
		last, lerr := e.store.LastFingerprint(ctx, plan.ProjectKey, identity.KindContainer, plan.OrderID, 0)
		if lerr != nil && !errors.Is(lerr, identity.ErrNotFound) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("container fingerprint lookup failed: %v", lerr))
		}
		if lerr == nil && last == fp {
			res.NoopCount++
			e.register(ctx, plan, identity.KindContainer, 0, key, fp, res)
			log.Debug("container unchanged, short-circuit", zap.String("key", key))
			return key, false, nil
		}
	}

	updatedKey, outcomeStr, retries, err := e.applyExisting(ctx, plan, key, tracker.Payload{
		ProjectID:   projectID,
		TypeID:      typeID,
		Summary:     plan.Container.Summary,
		Description: plan.Container.Description,
		DueDate:     plan.Container.DueDate,
		Fields:      plan.Container.Fields,
	}, plan.Container)
	res.RetryCount += retries
	if err != nil {
		return "", false, fmt.Errorf("update container %s: %w", key, err)
	}
	switch outcomeStr {
	case "noop":
		res.NoopCount++
	case "updated", "recovered":
		res.UpdatedKeys = append(res.UpdatedKeys, updatedKey)
	}
	e.register(ctx, plan, identity.KindContainer, 0, updatedKey, fp, res)
	return updatedKey, false, nil
}

// fanOutUnits applies the order's unit items. Concurrent creates are only
// safe when the container was created in this same pass: there is provably no
// pre-existing unit to race against, so lookups are skipped and pure creates
// run under a bounded pool. Otherwise units go strictly sequentially through
// the full resolve-diff-apply path.
func (e *Executor) fanOutUnits(ctx context.Context, plan OrderPlan, projectID, typeID, parentKey string, createdNow bool, res *ApplyResult) {
	if createdNow {
		sem := make(chan struct{}, e.opts.UnitWorkers)
		var wg sync.WaitGroup
		var mu sync.Mutex
		for _, unit := range plan.Units {
			sem <- struct{}{}
			wg.Add(1)
			go func(unit UnitItem) {
				defer wg.Done()
				defer func() { <-sem }()
				created, retries, err := e.createItem(ctx, e.unitPayload(unit, projectID, typeID, parentKey))
				mu.Lock()
				defer mu.Unlock()
				res.RetryCount += retries
				if err != nil {
					res.Errors = append(res.Errors, fmt.Sprintf("create unit %s-%d: %v", plan.OrderID, unit.Instance, err))
					return
				}
				res.CreatedKeys = append(res.CreatedKeys, created.Key)
				e.register(ctx, plan, identity.KindUnit, unit.Instance, created.Key, Fingerprint(unit.ItemPlan), res)
			}(unit)
		}
		wg.Wait()
		return
	}

	for _, unit := range plan.Units {
		if err := e.applyUnit(ctx, plan, unit, projectID, typeID, parentKey, res); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("unit %s-%d: %v", plan.OrderID, unit.Instance, err))
		}
	}
}

// applyUnit runs the full resolve-diff-apply path for one unit item.
func (e *Executor) applyUnit(ctx context.Context, plan OrderPlan, unit UnitItem, projectID, typeID, parentKey string, res *ApplyResult) error {
	fp := Fingerprint(unit.ItemPlan)

	key, err := e.store.ResolveUnit(ctx, plan.ProjectKey, plan.OrderID, unit.Instance)
	switch {
	case err == nil:
	case errors.Is(err, identity.ErrNotFound):
		key, err = e.searchBySummary(ctx, projectID, typeID, unit.Summary)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("identity store lookup: %w", err)
	}

	if key == "" {
		created, retries, err := e.createItem(ctx, e.unitPayload(unit, projectID, typeID, parentKey))
		res.RetryCount += retries
		if err != nil {
			return fmt.Errorf("create: %w", err)
		}
		res.CreatedKeys = append(res.CreatedKeys, created.Key)
		e.register(ctx, plan, identity.KindUnit, unit.Instance, created.Key, fp, res)
		return nil
	}

	if !e.opts.ForceSync {
		last, lerr := e.store.LastFingerprint(ctx, plan.ProjectKey, identity.KindUnit, plan.OrderID, unit.Instance)
		if lerr != nil && !errors.Is(lerr, identity.ErrNotFound) {
			res.Warnings = append(res.Warnings, fmt.Sprintf("unit %s-%d fingerprint lookup failed: %v", plan.OrderID, unit.Instance, lerr))
		}
		if lerr == nil && last == fp {
			res.NoopCount++
			e.register(ctx, plan, identity.KindUnit, unit.Instance, key, fp, res)
			return nil
		}
	}

	updatedKey, outcomeStr, retries, err := e.applyExisting(ctx, plan, key, e.unitPayload(unit, projectID, typeID, parentKey), unit.ItemPlan)
	res.RetryCount += retries
	if err != nil {
		return fmt.Errorf("update %s: %w", key, err)
	}
	switch outcomeStr {
	case "noop":
		res.NoopCount++
	case "updated", "recovered":
		res.UpdatedKeys = append(res.UpdatedKeys, updatedKey)
	}
	e.register(ctx, plan, identity.KindUnit, unit.Instance, updatedKey, fp, res)
	return nil
}

// applyExisting diffs the desired item against the live remote copy and
// performs the minimal update. A stale remote key (item deleted behind our
// back) falls back to a create and reports as "recovered". Returns the final
// remote key, one of "noop" | "updated" | "recovered", and the retry count.
func (e *Executor) applyExisting(ctx context.Context, plan OrderPlan, key string, fullPayload tracker.Payload, desired ItemPlan) (string, string, int, error) {
	retries := 0

	current, r, err := e.getItem(ctx, key)
	retries += r
	if err != nil {
		if tracker.IsNotFound(err) {
			return e.recoverStale(ctx, plan, key, fullPayload, retries)
		}
		return "", "", retries, err
	}

	cs := Diff(desired, current, e.opts.ForceSync)
	if cs.Empty() {
		return key, "noop", retries, nil
	}
	if e.opts.DryRun {
		return key, "updated", retries, nil
	}

	version := current.Version
	for attempt := 0; ; attempt++ {
		_, err := e.client.UpdateItem(ctx, key, version, cs.Payload())
		switch classify(err) {
		case outcomeOK:
			return key, "updated", retries, nil
		case outcomeConflict:
			// Someone moved the lock version. Re-fetch, re-diff against the
			// fresh copy, and retry against the same attempt budget.
			if attempt+1 >= e.opts.MaxRetries {
				return "", "", retries, err
			}
			retries++
			fresh, gr, gerr := e.getItem(ctx, key)
			retries += gr
			if gerr != nil {
				if tracker.IsNotFound(gerr) {
					return e.recoverStale(ctx, plan, key, fullPayload, retries)
				}
				return "", "", retries, gerr
			}
			version = fresh.Version
			cs = Diff(desired, fresh, e.opts.ForceSync)
			if cs.Empty() {
				return key, "noop", retries, nil
			}
		case outcomeStale:
			return e.recoverStale(ctx, plan, key, fullPayload, retries)
		case outcomeRetryable:
			if attempt+1 >= e.opts.MaxRetries {
				return "", "", retries, err
			}
			retries++
			if serr := sleep(ctx, backoffDelay(attempt, e.opts.BackoffBase, e.opts.BackoffCap, err)); serr != nil {
				return "", "", retries, serr
			}
		default:
			return "", "", retries, err
		}
	}
}

// recoverStale handles an update target the tracker no longer knows: the item
// was deleted remotely, so the same logical item is created fresh and the
// outcome reported as recovered rather than failed.
func (e *Executor) recoverStale(ctx context.Context, plan OrderPlan, staleKey string, payload tracker.Payload, retries int) (string, string, int, error) {
	e.log.Warn("remote item vanished, falling back to create",
		zap.String("order_id", plan.OrderID), zap.String("stale_key", staleKey))
	created, r, err := e.createItem(ctx, payload)
	retries += r
	if err != nil {
		return "", "", retries, fmt.Errorf("fallback create after stale key %s: %w", staleKey, err)
	}
	return created.Key, "recovered", retries, nil
}

// createItem creates a remote item under the retry policy. Conflict and
// stale classifications cannot apply to a create; anything but a retryable
// failure is terminal.
func (e *Executor) createItem(ctx context.Context, p tracker.Payload) (*tracker.Item, int, error) {
	if e.opts.DryRun {
		return &tracker.Item{Key: "dry-run:" + p.Summary, Summary: p.Summary}, 0, nil
	}
	retries := 0
	for attempt := 0; ; attempt++ {
		item, err := e.client.CreateItem(ctx, p)
		switch classify(err) {
		case outcomeOK:
			return item, retries, nil
		case outcomeRetryable:
			if attempt+1 >= e.opts.MaxRetries {
				return nil, retries, err
			}
			retries++
			if serr := sleep(ctx, backoffDelay(attempt, e.opts.BackoffBase, e.opts.BackoffCap, err)); serr != nil {
				return nil, retries, serr
			}
		default:
			return nil, retries, err
		}
	}
}

// getItem fetches a remote item under the retry policy.
func (e *Executor) getItem(ctx context.Context, key string) (*tracker.Item, int, error) {
	retries := 0
	for attempt := 0; ; attempt++ {
		item, err := e.client.GetItem(ctx, key)
		switch classify(err) {
		case outcomeOK:
			return item, retries, nil
		case outcomeRetryable:
			if attempt+1 >= e.opts.MaxRetries {
				return nil, retries, err
			}
			retries++
			if serr := sleep(ctx, backoffDelay(attempt, e.opts.BackoffBase, e.opts.BackoffCap, err)); serr != nil {
				return nil, retries, serr
			}
		default:
			return nil, retries, err
		}
	}
}

// searchContainer is the remote identity-recovery chain for containers:
// the order-id custom field first, then exact summary, then contains.
func (e *Executor) searchContainer(ctx context.Context, plan OrderPlan, projectID, typeID string) (string, error) {
	if plan.IdentityFieldID != "" {
		items, err := e.client.SearchItems(ctx, tracker.SearchQuery{
			ProjectID:   projectID,
			TypeID:      typeID,
			FieldEquals: map[string]string{plan.IdentityFieldID: plan.OrderID},
		})
		if err != nil {
			return "", fmt.Errorf("search container by identity field: %w", err)
		}
		if len(items) > 0 {
			return items[0].Key, nil
		}
	}
	if key, err := e.searchBySummary(ctx, projectID, typeID, plan.Container.Summary); err != nil || key != "" {
		return key, err
	}
	items, err := e.client.SearchItems(ctx, tracker.SearchQuery{
		ProjectID:       projectID,
		TypeID:          typeID,
		SummaryContains: plan.OrderID,
	})
	if err != nil {
		return "", fmt.Errorf("search container by order id: %w", err)
	}
	if len(items) > 0 {
		return items[0].Key, nil
	}
	return "", nil
}

func (e *Executor) searchBySummary(ctx context.Context, projectID, typeID, summary string) (string, error) {
	items, err := e.client.SearchItems(ctx, tracker.SearchQuery{
		ProjectID:     projectID,
		TypeID:        typeID,
		SummaryEquals: summary,
	})
	if err != nil {
		return "", fmt.Errorf("search by summary: %w", err)
	}
	if len(items) > 0 {
		return items[0].Key, nil
	}
	return "", nil
}

// register writes the identity mapping after a successful apply. Failures are
// warnings only: the remote write already landed, so the worst case is one
// redundant diff next run, never data loss.
func (e *Executor) register(ctx context.Context, plan OrderPlan, kind identity.Kind, instance int, key, fp string, res *ApplyResult) {
	if e.opts.DryRun {
		return
	}
	var err error
	if kind == identity.KindContainer {
		err = e.store.RegisterContainer(ctx, plan.ProjectKey, plan.OrderID, key, fp)
	} else {
		err = e.store.RegisterUnit(ctx, plan.ProjectKey, plan.OrderID, instance, key, fp)
	}
	if err != nil {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("identity registration failed for %s %s (instance %d): %v", kind, key, instance, err))
	}
}

func (e *Executor) unitPayload(unit UnitItem, projectID, typeID, parentKey string) tracker.Payload {
	return tracker.Payload{
		ProjectID:   projectID,
		TypeID:      typeID,
		Summary:     unit.Summary,
		Description: unit.Description,
		DueDate:     unit.DueDate,
		ParentKey:   parentKey,
		Fields:      unit.Fields,
	}
}
