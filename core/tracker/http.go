package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"order-sync/core/fields"

	"go.uber.org/zap"
)

// httpClient talks to an OpenProject-style HAL/JSON API: basic auth with an
// API key, lockVersion optimistic concurrency, customFieldN attributes and
// option references in _links form.
type httpClient struct {
	base     string
	apiKey   string
	pageSize int
	hc       *http.Client
	logger   *zap.Logger
}

// NewClient creates an HTTP tracker client from configuration.
func NewClient(cfg Config, logger *zap.Logger) (Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("tracker base_url is required")
	}
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}
	return &httpClient{
		base:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		pageSize: pageSize,
		hc:       &http.Client{Timeout: time.Duration(timeout) * time.Second},
		logger:   logger,
	}, nil
}

// halLink is a HAL reference with an optional title.
type halLink struct {
	Href  string `json:"href,omitempty"`
	Title string `json:"title,omitempty"`
}

// wireItem mirrors the work item wire format. Custom fields arrive as
// top-level customFieldN attributes and are captured via Extra.
type wireItem struct {
	ID          json.Number `json:"id"`
	LockVersion int         `json:"lockVersion"`
	Subject     string      `json:"subject"`
	DueDate     string      `json:"dueDate"`
	Description *struct {
		Raw string `json:"raw"`
	} `json:"description"`
	Links map[string]halLink `json:"_links"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (w *wireItem) UnmarshalJSON(data []byte) error {
	type alias wireItem
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Extra = make(map[string]json.RawMessage)
	for k, v := range raw {
		if strings.HasPrefix(k, "customField") {
			a.Extra[k] = v
		}
	}
	*w = wireItem(a)
	return nil
}

func (w *wireItem) toItem() *Item {
	item := &Item{
		Key:     w.ID.String(),
		Version: w.LockVersion,
		Summary: w.Subject,
		DueDate: w.DueDate,
		Fields:  fields.Map{},
	}
	if w.Description != nil {
		item.Description = w.Description.Raw
	}
	if l, ok := w.Links["type"]; ok {
		item.TypeName = l.Title
	}
	if l, ok := w.Links["project"]; ok {
		item.ProjectID = lastSegment(l.Href)
	}
	for id, raw := range w.Extra {
		item.Fields.Set(id, decodeFieldValue(raw))
	}
	return item
}

// decodeFieldValue maps a wire custom field to a tagged value: option
// references keep their href, numbers stay numeric, everything else is text.
func decodeFieldValue(raw json.RawMessage) fields.Value {
	var obj struct {
		Href  string `json:"href"`
		Links struct {
			Self halLink `json:"self"`
		} `json:"_links"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Href != "" {
			return fields.Option(obj.Href)
		}
		if obj.Links.Self.Href != "" {
			return fields.Option(obj.Links.Self.Href)
		}
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return fields.Number(num)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return fields.String(s)
	}
	return fields.Value{}
}

func lastSegment(href string) string {
	href = strings.TrimRight(href, "/")
	if i := strings.LastIndex(href, "/"); i >= 0 {
		return href[i+1:]
	}
	return href
}

// buildBody converts a Payload into the wire format.
func buildBody(p Payload, version int, withVersion bool) map[string]any {
	body := map[string]any{}
	links := map[string]any{}
	if p.Summary != "" {
		body["subject"] = p.Summary
	}
	if p.Description != "" {
		body["description"] = map[string]string{"raw": p.Description, "format": "markdown"}
	}
	if p.DueDate != "" {
		body["dueDate"] = p.DueDate
	}
	if p.ProjectID != "" {
		links["project"] = halLink{Href: "/api/v3/projects/" + p.ProjectID}
	}
	if p.TypeID != "" {
		links["type"] = halLink{Href: "/api/v3/types/" + p.TypeID}
	}
	if p.ParentKey != "" {
		links["parent"] = halLink{Href: "/api/v3/work_packages/" + p.ParentKey}
	}
	if len(links) > 0 {
		body["_links"] = links
	}
	for _, id := range p.Fields.Keys() {
		v := p.Fields[id]
		switch v.Kind {
		case fields.KindOption:
			body[id] = halLink{Href: v.Href}
		case fields.KindNumber:
			body[id] = v.Num
		default:
			body[id] = v.Str
		}
	}
	if withVersion {
		body["lockVersion"] = version
	}
	return body
}

func (c *httpClient) do(ctx context.Context, method, path string, body any, out any) error {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	req.SetBasicAuth("apikey", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("tracker request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb struct {
			ErrorIdentifier string `json:"errorIdentifier"`
			Message         string `json:"message"`
		}
		if json.Unmarshal(data, &eb) == nil {
			apiErr.Identifier = eb.ErrorIdentifier
			apiErr.Message = eb.Message
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if secs, convErr := strconv.Atoi(ra); convErr == nil && secs > 0 {
				apiErr.RetryAfter = time.Duration(secs) * time.Second
			}
		}
		c.logger.Debug("tracker error response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode))
		return apiErr
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

type collection struct {
	Embedded struct {
		Elements []json.RawMessage `json:"elements"`
	} `json:"_embedded"`
}

func (c *httpClient) ResolveProject(ctx context.Context, key string) (*Project, error) {
	var col collection
	if err := c.do(ctx, http.MethodGet, "/api/v3/projects", nil, &col); err != nil {
		return nil, err
	}
	want := strings.ToLower(strings.TrimSpace(key))
	for _, raw := range col.Embedded.Elements {
		var p struct {
			ID         json.Number `json:"id"`
			Identifier string      `json:"identifier"`
			Name       string      `json:"name"`
		}
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		if strings.ToLower(p.Identifier) == want || strings.ToLower(p.Name) == want || p.ID.String() == key {
			return &Project{ID: p.ID.String(), Identifier: p.Identifier, Name: p.Name}, nil
		}
	}
	return nil, &APIError{Status: 404, Message: fmt.Sprintf("project %q could not be found", key)}
}

func (c *httpClient) ListTypes(ctx context.Context, projectID string) (map[string]ItemType, error) {
	var col collection
	if err := c.do(ctx, http.MethodGet, "/api/v3/projects/"+projectID+"/types", nil, &col); err != nil {
		return nil, err
	}
	out := make(map[string]ItemType, len(col.Embedded.Elements))
	for _, raw := range col.Embedded.Elements {
		var t struct {
			ID   json.Number `json:"id"`
			Name string      `json:"name"`
		}
		if err := json.Unmarshal(raw, &t); err != nil {
			continue
		}
		out[strings.ToLower(t.Name)] = ItemType{ID: t.ID.String(), Name: t.Name}
	}
	return out, nil
}

func (c *httpClient) CreateItem(ctx context.Context, p Payload) (*Item, error) {
	var w wireItem
	if err := c.do(ctx, http.MethodPost, "/api/v3/work_packages", buildBody(p, 0, false), &w); err != nil {
		return nil, err
	}
	return w.toItem(), nil
}

func (c *httpClient) UpdateItem(ctx context.Context, key string, version int, p Payload) (*Item, error) {
	var w wireItem
	if err := c.do(ctx, http.MethodPatch, "/api/v3/work_packages/"+key, buildBody(p, version, true), &w); err != nil {
		return nil, err
	}
	return w.toItem(), nil
}

func (c *httpClient) GetItem(ctx context.Context, key string) (*Item, error) {
	var w wireItem
	if err := c.do(ctx, http.MethodGet, "/api/v3/work_packages/"+key, nil, &w); err != nil {
		return nil, err
	}
	return w.toItem(), nil
}

func (c *httpClient) SearchItems(ctx context.Context, q SearchQuery) ([]Item, error) {
	type filter map[string]map[string]any
	filters := []filter{}
	if q.ProjectID != "" {
		filters = append(filters, filter{"project": {"operator": "=", "values": []string{q.ProjectID}}})
	}
	if q.TypeID != "" {
		filters = append(filters, filter{"type": {"operator": "=", "values": []string{q.TypeID}}})
	}
	if q.SummaryEquals != "" {
		filters = append(filters, filter{"subject": {"operator": "=", "values": []string{q.SummaryEquals}}})
	} else if q.SummaryContains != "" {
		filters = append(filters, filter{"subject": {"operator": "**", "values": []string{q.SummaryContains}}})
	}
	for id, val := range q.FieldEquals {
		filters = append(filters, filter{id: {"operator": "=", "values": []string{val}}})
	}
	fb, err := json.Marshal(filters)
	if err != nil {
		return nil, fmt.Errorf("encode filters: %w", err)
	}
	size := q.PageSize
	if size <= 0 {
		size = c.pageSize
	}
	path := "/api/v3/work_packages?pageSize=" + strconv.Itoa(size) + "&filters=" + url.QueryEscape(string(fb))

	var col collection
	if err := c.do(ctx, http.MethodGet, path, nil, &col); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(col.Embedded.Elements))
	for _, raw := range col.Embedded.Elements {
		var w wireItem
		if err := json.Unmarshal(raw, &w); err != nil {
			continue
		}
		items = append(items, *w.toItem())
	}
	return items, nil
}

func (c *httpClient) ListCustomFields(ctx context.Context) (map[string]string, error) {
	var col collection
	if err := c.do(ctx, http.MethodGet, "/api/v3/custom_fields", nil, &col); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(col.Embedded.Elements))
	for _, raw := range col.Embedded.Elements {
		var f struct {
			ID   json.Number `json:"id"`
			Name string      `json:"name"`
		}
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		if f.Name != "" {
			out[strings.ToLower(strings.TrimSpace(f.Name))] = "customField" + f.ID.String()
		}
	}
	return out, nil
}

func (c *httpClient) ListCustomOptions(ctx context.Context) (map[string]string, error) {
	var col collection
	if err := c.do(ctx, http.MethodGet, "/api/v3/custom_options", nil, &col); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(col.Embedded.Elements))
	for _, raw := range col.Embedded.Elements {
		var o struct {
			ID    json.Number `json:"id"`
			Value string      `json:"value"`
			Links struct {
				Self halLink `json:"self"`
			} `json:"_links"`
		}
		if err := json.Unmarshal(raw, &o); err != nil {
			continue
		}
		title := strings.ToLower(strings.TrimSpace(o.Value))
		if title == "" {
			continue
		}
		href := o.Links.Self.Href
		if href == "" {
			href = "/api/v3/custom_options/" + o.ID.String()
		}
		out[title] = href
	}
	return out, nil
}

func (c *httpClient) ListStatuses(ctx context.Context) (map[string]Status, error) {
	var col collection
	if err := c.do(ctx, http.MethodGet, "/api/v3/statuses", nil, &col); err != nil {
		return nil, err
	}
	out := make(map[string]Status, len(col.Embedded.Elements))
	for _, raw := range col.Embedded.Elements {
		var s struct {
			ID   json.Number `json:"id"`
			Name string      `json:"name"`
		}
		if err := json.Unmarshal(raw, &s); err != nil {
			continue
		}
		out[strings.ToLower(s.Name)] = Status{
			ID:   s.ID.String(),
			Name: s.Name,
			Href: "/api/v3/statuses/" + s.ID.String(),
		}
	}
	return out, nil
}
