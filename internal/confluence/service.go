package confluence

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/stellarlinkco/atlastools/internal/atlassian"
	"github.com/stellarlinkco/atlastools/internal/config"
)

const contentPath = "/rest/api/content"

// Service wraps the Confluence Cloud REST API and shapes its responses.
type Service struct {
	client *atlassian.Client
}

func NewService(client *atlassian.Client) *Service {
	return &Service{client: client}
}

// Provider returns the shared Service, building it on first use.
type Provider func() (*Service, error)

func LazyProvider(cfg config.AtlassianConfig, log zerolog.Logger, opts ...atlassian.Option) Provider {
	return sync.OnceValues(func() (*Service, error) {
		client, err := atlassian.NewClient("confluence", cfg, log, opts...)
		if err != nil {
			return nil, err
		}
		return NewService(client), nil
	})
}

func pagePath(id string, rest ...string) string {
	p := contentPath + "/" + atlassian.PathEscape(id)
	if len(rest) > 0 {
		p += "/" + strings.Join(rest, "/")
	}
	return p
}

func (s *Service) GetPage(ctx context.Context, id, expand string) (*Page, error) {
	var q url.Values
	if expand != "" {
		q = url.Values{"expand": {expand}}
	}
	body, err := s.client.Get(ctx, pagePath(id), q)
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return nil, fmt.Errorf("invalid response from Confluence API")
	}
	p := s.simplify(doc)
	return &p, nil
}

func (s *Service) Search(ctx context.Context, cql string, limit, start int) (*SearchResult, error) {
	body, err := s.client.Get(ctx, "/rest/api/search", url.Values{
		"cql":   {cql},
		"limit": {strconv.Itoa(limit)},
		"start": {strconv.Itoa(start)},
	})
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)
	out := &SearchResult{Results: []Page{}, Start: start, Limit: limit}
	for _, item := range doc.Get("results").Array() {
		content := item.Get("content")
		if !content.Exists() {
			content = item
		}
		out.Results = append(out.Results, s.simplify(content))
	}
	if total := doc.Get("totalSize"); total.Exists() {
		out.Total = total.Int()
	} else {
		out.Total = int64(len(out.Results))
	}
	return out, nil
}

func (s *Service) GetChildren(ctx context.Context, id string, limit int) ([]Page, error) {
	body, err := s.client.Get(ctx, pagePath(id, "child", "page"), url.Values{"limit": {strconv.Itoa(limit)}})
	if err != nil {
		return nil, err
	}
	out := []Page{}
	for _, child := range gjson.GetBytes(body, "results").Array() {
		out = append(out, s.simplify(child))
	}
	return out, nil
}

func (s *Service) GetAncestors(ctx context.Context, id string) ([]Ancestor, error) {
	body, err := s.client.Get(ctx, pagePath(id), url.Values{"expand": {"ancestors"}})
	if err != nil {
		return nil, err
	}
	out := []Ancestor{}
	for _, a := range gjson.GetBytes(body, "ancestors").Array() {
		out = append(out, Ancestor{
			ID:    a.Get("id").String(),
			Title: a.Get("title").String(),
			Type:  a.Get("type").String(),
		})
	}
	return out, nil
}

func (s *Service) GetLabels(ctx context.Context, id string) ([]string, error) {
	body, err := s.client.Get(ctx, pagePath(id, "label"), nil)
	if err != nil {
		return nil, err
	}
	out := []string{}
	for _, l := range gjson.GetBytes(body, "results.#.name").Array() {
		out = append(out, l.String())
	}
	return out, nil
}

func (s *Service) GetComments(ctx context.Context, id string, limit int) ([]Comment, error) {
	body, err := s.client.Get(ctx, pagePath(id, "child", "comment"), url.Values{
		"limit":  {strconv.Itoa(limit)},
		"expand": {"body.storage"},
	})
	if err != nil {
		return nil, err
	}
	out := []Comment{}
	for _, c := range gjson.GetBytes(body, "results").Array() {
		out = append(out, Comment{
			ID:    c.Get("id").String(),
			Title: c.Get("title").String(),
			Body:  c.Get("body.storage.value").String(),
		})
	}
	return out, nil
}

func storage(value string) map[string]any {
	return map[string]any{"storage": map[string]any{"value": value, "representation": "storage"}}
}

func (s *Service) CreatePage(ctx context.Context, spaceKey, title, content, parentID string) (*CreatedPage, error) {
	payload := map[string]any{
		"type":  "page",
		"title": title,
		"space": map[string]any{"key": spaceKey},
		"body":  storage(content),
	}
	if parentID != "" {
		payload["ancestors"] = []any{map[string]any{"id": parentID}}
	}
	body, err := s.client.Post(ctx, contentPath, nil, payload)
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)
	return &CreatedPage{
		PageID:  doc.Get("id").String(),
		Title:   doc.Get("title").String(),
		PageURL: s.webURL(doc),
	}, nil
}

// UpdatePage writes a new version. A blank title or body keeps the current
// value, which costs one extra read.
func (s *Service) UpdatePage(ctx context.Context, id string, version int, title, content string) (int, error) {
	if title == "" || content == "" {
		current, err := s.GetPage(ctx, id, "body.storage")
		if err != nil {
			return 0, err
		}
		if title == "" {
			title = current.Title
		}
		if content == "" {
			content = current.Body
		}
	}

	next := version + 1
	body, err := s.client.Put(ctx, pagePath(id), nil, map[string]any{
		"version": map[string]any{"number": next},
		"title":   title,
		"type":    "page",
		"body":    storage(content),
	})
	if err != nil {
		return 0, err
	}
	if n := gjson.GetBytes(body, "version.number"); n.Exists() {
		return int(n.Int()), nil
	}
	return next, nil
}

func (s *Service) DeletePage(ctx context.Context, id string) error {
	_, err := s.client.Delete(ctx, pagePath(id), nil)
	return err
}

func (s *Service) AddLabel(ctx context.Context, id, label string) error {
	_, err := s.client.Post(ctx, pagePath(id, "label"), nil, []any{map[string]any{"name": label}})
	return err
}

func (s *Service) AddComment(ctx context.Context, id, content string) (string, error) {
	body, err := s.client.Post(ctx, contentPath, nil, map[string]any{
		"type":      "comment",
		"container": map[string]any{"id": id, "type": "page"},
		"body":      storage(content),
	})
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "id").String(), nil
}

// CurrentUser returns the display name of the authenticated user.
func (s *Service) CurrentUser(ctx context.Context) (string, error) {
	body, err := s.client.Get(ctx, "/rest/api/user/current", nil)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "displayName").String(), nil
}

func (s *Service) simplify(doc gjson.Result) Page {
	return Page{
		ID:       doc.Get("id").String(),
		Title:    doc.Get("title").String(),
		Type:     doc.Get("type").String(),
		SpaceKey: doc.Get("space.key").String(),
		Version:  int(doc.Get("version.number").Int()),
		Body:     doc.Get("body.storage.value").String(),
		URL:      s.webURL(doc),
	}
}

// webURL resolves the relative webui link against the site base.
func (s *Service) webURL(doc gjson.Result) string {
	webui := doc.Get("_links.webui").String()
	if webui == "" || !strings.HasPrefix(webui, "/") {
		return webui
	}
	base := doc.Get("_links.base").String()
	if base == "" {
		base = s.client.BaseURL()
	}
	return strings.TrimRight(base, "/") + webui
}
