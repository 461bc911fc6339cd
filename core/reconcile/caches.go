package reconcile

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"order-sync/core/tracker"
)

// runCache holds the tracker metadata one pass needs repeatedly: resolved
// projects, per-project type ids, the custom-field map and option hrefs.
// It is owned by the executor and dies with the run, so stale metadata can
// never leak between passes. Concurrent order workers share it; singleflight
// collapses duplicate loads.
type runCache struct {
	client tracker.Client
	group  singleflight.Group

	mu       sync.Mutex
	projects map[string]*tracker.Project
	types    map[string]map[string]tracker.ItemType
	fieldMap map[string]string
	options  map[string]string
}

func newRunCache(client tracker.Client) *runCache {
	return &runCache{
		client:   client,
		projects: map[string]*tracker.Project{},
		types:    map[string]map[string]tracker.ItemType{},
	}
}

// project resolves a project by key, once per run.
func (c *runCache) project(ctx context.Context, key string) (*tracker.Project, error) {
	c.mu.Lock()
	if p, ok := c.projects[key]; ok {
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("project:"+key, func() (any, error) {
		p, err := c.client.ResolveProject(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("resolve project %q: %w", key, err)
		}
		c.mu.Lock()
		c.projects[key] = p
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*tracker.Project), nil
}

// typeID resolves an item type by name within a project.
func (c *runCache) typeID(ctx context.Context, projectID, typeName string) (string, error) {
	c.mu.Lock()
	byName, ok := c.types[projectID]
	c.mu.Unlock()

	if !ok {
		v, err, _ := c.group.Do("types:"+projectID, func() (any, error) {
			types, err := c.client.ListTypes(ctx, projectID)
			if err != nil {
				return nil, fmt.Errorf("list types for project %s: %w", projectID, err)
			}
			c.mu.Lock()
			c.types[projectID] = types
			c.mu.Unlock()
			return types, nil
		})
		if err != nil {
			return "", err
		}
		byName = v.(map[string]tracker.ItemType)
	}

	t, ok := byName[strings.ToLower(typeName)]
	if !ok {
		return "", fmt.Errorf("item type %q not available in project %s", typeName, projectID)
	}
	return t.ID, nil
}

// FieldMap returns the lowercased display-name → field-id map, loaded once.
func (c *runCache) FieldMap(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	if c.fieldMap != nil {
		fm := c.fieldMap
		c.mu.Unlock()
		return fm, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("fieldmap", func() (any, error) {
		fm, err := c.client.ListCustomFields(ctx)
		if err != nil {
			return nil, fmt.Errorf("list custom fields: %w", err)
		}
		c.mu.Lock()
		c.fieldMap = fm
		c.mu.Unlock()
		return fm, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]string), nil
}

// Options returns the lowercased option-title → href map, loaded once.
func (c *runCache) Options(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	if c.options != nil {
		opts := c.options
		c.mu.Unlock()
		return opts, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("options", func() (any, error) {
		opts, err := c.client.ListCustomOptions(ctx)
		if err != nil {
			return nil, fmt.Errorf("list custom options: %w", err)
		}
		c.mu.Lock()
		c.options = opts
		c.mu.Unlock()
		return opts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]string), nil
}
