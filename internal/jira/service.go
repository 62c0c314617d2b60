package jira

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/stellarlinkco/atlastools/internal/atlassian"
	"github.com/stellarlinkco/atlastools/internal/config"
)

const apiBase = "/rest/api/3"

// Service wraps the Jira Cloud REST API v3 and shapes its responses.
type Service struct {
	client *atlassian.Client
}

func NewService(client *atlassian.Client) *Service {
	return &Service{client: client}
}

// Provider returns the shared Service, building it on first use.
type Provider func() (*Service, error)

// LazyProvider defers client construction, and therefore credential checks,
// until a Jira tool is first loaded.
func LazyProvider(cfg config.AtlassianConfig, log zerolog.Logger, opts ...atlassian.Option) Provider {
	return sync.OnceValues(func() (*Service, error) {
		client, err := atlassian.NewClient("jira", cfg, log, opts...)
		if err != nil {
			return nil, err
		}
		return NewService(client), nil
	})
}

// GetIssueOptions narrows what GetIssue returns.
type GetIssueOptions struct {
	Fields       string
	Expand       string
	CommentLimit int
}

func (s *Service) GetIssue(ctx context.Context, key string, opts GetIssueOptions) (*Issue, error) {
	fields := opts.Fields
	if fields == "" {
		fields = "*all"
	}
	q := url.Values{"fields": {fields}}
	if opts.Expand != "" {
		q.Set("expand", opts.Expand)
	}

	body, err := s.client.Get(ctx, apiBase+"/issue/"+atlassian.PathEscape(key), q)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(body) || !gjson.ParseBytes(body).IsObject() {
		return nil, fmt.Errorf("invalid response from Jira API")
	}
	issue := simplifyIssue(gjson.ParseBytes(body), opts.CommentLimit, opts.Expand != "")
	return &issue, nil
}

func (s *Service) Search(ctx context.Context, jql string, maxResults, startAt int, fields string) (*SearchResult, error) {
	if fields == "" {
		fields = "*navigable"
	}
	q := url.Values{
		"jql":        {jql},
		"maxResults": {strconv.Itoa(maxResults)},
		"startAt":    {strconv.Itoa(startAt)},
	}
	for _, f := range strings.Split(fields, ",") {
		if f = strings.TrimSpace(f); f != "" {
			q.Add("fields", f)
		}
	}

	body, err := s.client.Get(ctx, apiBase+"/search/jql", q)
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)
	out := &SearchResult{
		Issues:     []Issue{},
		Total:      doc.Get("total").Int(),
		StartAt:    startAt,
		MaxResults: maxResults,
	}
	for _, raw := range doc.Get("issues").Array() {
		out.Issues = append(out.Issues, simplifyIssue(raw, 0, false))
	}
	if !doc.Get("total").Exists() {
		out.Total = int64(len(out.Issues))
	}
	return out, nil
}

func (s *Service) GetTransitions(ctx context.Context, key string) ([]Transition, error) {
	body, err := s.client.Get(ctx, apiBase+"/issue/"+atlassian.PathEscape(key)+"/transitions", nil)
	if err != nil {
		return nil, err
	}
	out := []Transition{}
	for _, t := range gjson.GetBytes(body, "transitions").Array() {
		out = append(out, Transition{
			ID:   t.Get("id").String(),
			Name: t.Get("name").String(),
			To: TransitionTarget{
				ID:       t.Get("to.id").String(),
				Name:     t.Get("to.name").String(),
				Category: t.Get("to.statusCategory.name").String(),
			},
		})
	}
	return out, nil
}

func (s *Service) GetComments(ctx context.Context, key string, maxResults int) ([]Comment, error) {
	q := url.Values{"maxResults": {strconv.Itoa(maxResults)}}
	body, err := s.client.Get(ctx, apiBase+"/issue/"+atlassian.PathEscape(key)+"/comment", q)
	if err != nil {
		return nil, err
	}
	out := []Comment{}
	for _, c := range gjson.GetBytes(body, "comments").Array() {
		out = append(out, Comment{
			ID:      c.Get("id").String(),
			Author:  c.Get("author.displayName").String(),
			Body:    atlassian.ADFToText(c.Get("body")),
			Created: c.Get("created").String(),
			Updated: c.Get("updated").String(),
		})
	}
	return out, nil
}

func (s *Service) AddComment(ctx context.Context, key, text string) (*CreatedComment, error) {
	body, err := s.client.Post(ctx, apiBase+"/issue/"+atlassian.PathEscape(key)+"/comment", nil,
		map[string]any{"body": atlassian.TextToADF(text)})
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)
	return &CreatedComment{
		ID:      doc.Get("id").String(),
		Author:  doc.Get("author.displayName").String(),
		Created: doc.Get("created").String(),
	}, nil
}

func (s *Service) TransitionIssue(ctx context.Context, key, transitionID, comment string) error {
	payload := map[string]any{"transition": map[string]any{"id": transitionID}}
	if comment != "" {
		payload["update"] = map[string]any{
			"comment": []any{map[string]any{"add": map[string]any{"body": atlassian.TextToADF(comment)}}},
		}
	}
	_, err := s.client.Post(ctx, apiBase+"/issue/"+atlassian.PathEscape(key)+"/transitions", nil, payload)
	return err
}

func (s *Service) GetProjects(ctx context.Context) ([]Project, error) {
	body, err := s.client.Get(ctx, apiBase+"/project", nil)
	if err != nil {
		return nil, err
	}
	out := []Project{}
	for _, p := range gjson.ParseBytes(body).Array() {
		out = append(out, Project{
			ID:          p.Get("id").String(),
			Key:         p.Get("key").String(),
			Name:        p.Get("name").String(),
			ProjectType: p.Get("projectTypeKey").String(),
		})
	}
	return out, nil
}

// IssueChanges holds the fields to set when creating or updating an issue.
// Zero values are left out of the request.
type IssueChanges struct {
	Summary      string
	Description  string
	Priority     string
	Assignee     string
	Labels       []string
	Components   []string
	CustomFields map[string]any
}

func (c IssueChanges) fields() map[string]any {
	out := map[string]any{}
	if c.Summary != "" {
		out["summary"] = c.Summary
	}
	if c.Description != "" {
		out["description"] = atlassian.TextToADF(c.Description)
	}
	if c.Priority != "" {
		out["priority"] = map[string]any{"name": c.Priority}
	}
	if c.Assignee != "" {
		out["assignee"] = map[string]any{"accountId": c.Assignee}
	}
	if c.Labels != nil {
		out["labels"] = c.Labels
	}
	if c.Components != nil {
		components := make([]any, 0, len(c.Components))
		for _, name := range c.Components {
			components = append(components, map[string]any{"name": name})
		}
		out["components"] = components
	}
	for k, v := range c.CustomFields {
		out[k] = v
	}
	return out
}

func (s *Service) CreateIssue(ctx context.Context, projectKey, issueType string, changes IssueChanges) (*CreatedIssue, error) {
	if issueType == "" {
		issueType = "Task"
	}
	fields := changes.fields()
	fields["project"] = map[string]any{"key": projectKey}
	fields["issuetype"] = map[string]any{"name": issueType}

	body, err := s.client.Post(ctx, apiBase+"/issue", nil, map[string]any{"fields": fields})
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)
	return &CreatedIssue{
		ID:   doc.Get("id").String(),
		Key:  doc.Get("key").String(),
		Self: doc.Get("self").String(),
	}, nil
}

// UpdateIssue sets the given fields and returns their Jira names.
func (s *Service) UpdateIssue(ctx context.Context, key string, changes IssueChanges) ([]string, error) {
	fields := changes.fields()
	if len(fields) == 0 {
		return nil, &atlassian.Error{Kind: atlassian.KindValidation, Message: "no fields to update"}
	}
	if _, err := s.client.Put(ctx, apiBase+"/issue/"+atlassian.PathEscape(key), nil, map[string]any{"fields": fields}); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// AssignIssue assigns key to accountID, or unassigns it when accountID is
// empty.
func (s *Service) AssignIssue(ctx context.Context, key, accountID string) error {
	var id any
	if accountID != "" {
		id = accountID
	}
	_, err := s.client.Put(ctx, apiBase+"/issue/"+atlassian.PathEscape(key)+"/assignee", nil, map[string]any{"accountId": id})
	return err
}

func (s *Service) DeleteIssue(ctx context.Context, key string, deleteSubtasks bool) error {
	q := url.Values{"deleteSubtasks": {strconv.FormatBool(deleteSubtasks)}}
	_, err := s.client.Delete(ctx, apiBase+"/issue/"+atlassian.PathEscape(key), q)
	return err
}

func (s *Service) UpdateComment(ctx context.Context, key, commentID, text string) error {
	path := apiBase + "/issue/" + atlassian.PathEscape(key) + "/comment/" + atlassian.PathEscape(commentID)
	_, err := s.client.Put(ctx, path, nil, map[string]any{"body": atlassian.TextToADF(text)})
	return err
}

func (s *Service) DeleteComment(ctx context.Context, key, commentID string) error {
	path := apiBase + "/issue/" + atlassian.PathEscape(key) + "/comment/" + atlassian.PathEscape(commentID)
	_, err := s.client.Delete(ctx, path, nil)
	return err
}

// UserProfile returns the account with accountID, or the authenticated user
// when accountID is empty.
func (s *Service) UserProfile(ctx context.Context, accountID string) (*UserProfile, error) {
	path, q := apiBase+"/myself", url.Values(nil)
	if accountID != "" {
		path, q = apiBase+"/user", url.Values{"accountId": {accountID}}
	}
	body, err := s.client.Get(ctx, path, q)
	if err != nil {
		return nil, err
	}
	doc := gjson.ParseBytes(body)
	return &UserProfile{
		AccountID:   doc.Get("accountId").String(),
		DisplayName: doc.Get("displayName").String(),
		Email:       doc.Get("emailAddress").String(),
		Active:      doc.Get("active").Bool(),
		TimeZone:    doc.Get("timeZone").String(),
	}, nil
}

// Myself returns the display name of the authenticated user. It doubles as a
// credentials check.
func (s *Service) Myself(ctx context.Context) (string, error) {
	p, err := s.UserProfile(ctx, "")
	if err != nil {
		return "", err
	}
	return p.DisplayName, nil
}

func (s *Service) GetFields(ctx context.Context) ([]Field, error) {
	body, err := s.client.Get(ctx, apiBase+"/field", nil)
	if err != nil {
		return nil, err
	}
	out := []Field{}
	for _, f := range gjson.ParseBytes(body).Array() {
		field := Field{
			ID:     f.Get("id").String(),
			Name:   f.Get("name").String(),
			Custom: f.Get("custom").Bool(),
		}
		if sc := f.Get("schema"); sc.IsObject() {
			field.Schema = sc.Value()
		}
		out = append(out, field)
	}
	return out, nil
}

func (s *Service) GetPriorities(ctx context.Context) ([]Option, error) {
	return s.options(ctx, "/priority")
}

func (s *Service) GetResolutions(ctx context.Context) ([]Option, error) {
	return s.options(ctx, "/resolution")
}

func (s *Service) options(ctx context.Context, path string) ([]Option, error) {
	body, err := s.client.Get(ctx, apiBase+path, nil)
	if err != nil {
		return nil, err
	}
	out := []Option{}
	for _, o := range gjson.ParseBytes(body).Array() {
		out = append(out, Option{
			ID:          o.Get("id").String(),
			Name:        o.Get("name").String(),
			Description: o.Get("description").String(),
		})
	}
	return out, nil
}

func simplifyIssue(raw gjson.Result, commentLimit int, expanded bool) Issue {
	f := raw.Get("fields")
	issue := Issue{
		Key:  raw.Get("key").String(),
		ID:   raw.Get("id").String(),
		Self: raw.Get("self").String(),
		Fields: IssueFields{
			Summary:     f.Get("summary").String(),
			Description: atlassian.ADFToText(f.Get("description")),
			Created:     f.Get("created").String(),
			Updated:     f.Get("updated").String(),
		},
	}
	fields := &issue.Fields

	if st := f.Get("status"); st.IsObject() {
		fields.Status = &Status{Name: st.Get("name").String(), Category: st.Get("statusCategory.name").String()}
	}
	if it := f.Get("issuetype"); it.IsObject() {
		fields.IssueType = &Named{Name: it.Get("name").String()}
	}
	if p := f.Get("priority"); p.IsObject() {
		fields.Priority = &Named{Name: p.Get("name").String()}
	}
	fields.Assignee = userOf(f.Get("assignee"))
	fields.Reporter = userOf(f.Get("reporter"))

	for _, l := range f.Get("labels").Array() {
		fields.Labels = append(fields.Labels, l.String())
	}
	for _, c := range f.Get("components").Array() {
		if c.IsObject() {
			fields.Components = append(fields.Components, c.Get("name").String())
		}
	}
	if commentLimit > 0 {
		for i, c := range f.Get("comment.comments").Array() {
			if i >= commentLimit {
				break
			}
			fields.Comments = append(fields.Comments, IssueComment{
				Author:  c.Get("author.displayName").String(),
				Body:    atlassian.ADFToText(c.Get("body")),
				Created: c.Get("created").String(),
			})
		}
	}
	for _, a := range f.Get("attachment").Array() {
		fields.Attachments = append(fields.Attachments, Attachment{
			Filename:    a.Get("filename").String(),
			Size:        a.Get("size").Int(),
			ContentType: a.Get("mimeType").String(),
			URL:         a.Get("content").String(),
		})
	}

	if expanded {
		if cl := raw.Get("changelog"); cl.Exists() {
			issue.Changelog = cl.Value()
		}
		if tr := raw.Get("transitions"); tr.Exists() {
			issue.Transitions = tr.Value()
		}
	}
	return issue
}

func userOf(u gjson.Result) *User {
	if !u.IsObject() {
		return nil
	}
	return &User{DisplayName: u.Get("displayName").String(), Email: u.Get("emailAddress").String()}
}
