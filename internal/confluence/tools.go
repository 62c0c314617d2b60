package confluence

import (
	"context"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/stellarlinkco/atlastools/internal/atlassian"
	"github.com/stellarlinkco/atlastools/internal/tool"
)

// Category groups every Confluence tool.
const Category = "confluence"

type GetPageInput struct {
	PageID string `json:"page_id"`
	Expand string `json:"expand,omitempty"`
}

type SearchInput struct {
	CQL   string `json:"cql"`
	Limit int    `json:"limit"`
	Start int    `json:"start"`
}

type PageIDInput struct {
	PageID string `json:"page_id"`
}

type PageListInput struct {
	PageID string `json:"page_id"`
	Limit  int    `json:"limit"`
}

type CreatePageInput struct {
	SpaceKey string `json:"space_key"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	ParentID string `json:"parent_id,omitempty"`
}

type UpdatePageInput struct {
	PageID        string `json:"page_id"`
	VersionNumber int    `json:"version_number"`
	Title         string `json:"title,omitempty"`
	Body          string `json:"body,omitempty"`
}

type AddLabelInput struct {
	PageID string `json:"page_id"`
	Label  string `json:"label"`
}

type AddCommentInput struct {
	PageID string `json:"page_id"`
	Body   string `json:"body"`
}

func pageIDProp() *jsonschema.Schema {
	return tool.String("Confluence page ID", 1)
}

func limitProp(desc string) *jsonschema.Schema {
	return tool.Integer(desc, tool.Bound(1), tool.Bound(100), tool.Default(25))
}

// Register adds the Confluence tools to reg.
func Register(reg *tool.Registry, provider Provider) error {
	tools := []struct {
		desc tool.Descriptor
		bind func(*Service) tool.Handler
	}{
		{
			desc: tool.MustDescriptor("confluence_get_page", Category,
				"Get a Confluence page by ID, including its storage-format body when expanded.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"page_id": pageIDProp(),
					"expand":  tool.String("Comma-separated list of properties to expand, e.g. 'body.storage,version'", 0),
				}, "page_id"),
				tool.OutputSchema(tool.SchemaFor[PageResult]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.getPageTool) },
		},
		{
			desc: tool.MustDescriptor("confluence_search", Category,
				"Search Confluence content using CQL (Confluence Query Language).",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"cql":   tool.String("CQL query, e.g. 'space = DEV AND type = page'", 1),
					"limit": limitProp("Maximum number of results to return"),
					"start": tool.Integer("Index of the first result to return", tool.Bound(0), nil, tool.Default(0)),
				}, "cql"),
				tool.OutputSchema(tool.SchemaFor[SearchResult]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.searchTool) },
		},
		{
			desc: tool.MustDescriptor("confluence_get_page_children", Category,
				"List the child pages of a Confluence page.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"page_id": pageIDProp(),
					"limit":   limitProp("Maximum number of children to return"),
				}, "page_id"),
				tool.OutputSchema(tool.SchemaFor[Children]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.getChildrenTool) },
		},
		{
			desc: tool.MustDescriptor("confluence_get_page_ancestors", Category,
				"List the ancestors of a Confluence page, root first.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{"page_id": pageIDProp()}, "page_id"),
				tool.OutputSchema(tool.SchemaFor[Ancestors]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.getAncestorsTool) },
		},
		{
			desc: tool.MustDescriptor("confluence_get_labels", Category,
				"List the labels on a Confluence page.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{"page_id": pageIDProp()}, "page_id"),
				tool.OutputSchema(tool.SchemaFor[Labels]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.getLabelsTool) },
		},
		{
			desc: tool.MustDescriptor("confluence_get_comments", Category,
				"List the comments on a Confluence page.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"page_id": pageIDProp(),
					"limit":   limitProp("Maximum number of comments to return"),
				}, "page_id"),
				tool.OutputSchema(tool.SchemaFor[Comments]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.getCommentsTool) },
		},
		{
			desc: tool.MustDescriptor("confluence_create_page", Category,
				"Create a Confluence page in a space, optionally under a parent page.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"space_key": tool.String("Key of the space to create the page in", 1),
					"title":     tool.String("Page title", 1),
					"body":      tool.String("Page body in Confluence storage format (XHTML)", 0),
					"parent_id": tool.String("Optional parent page ID", 0),
				}, "space_key", "title", "body"),
				tool.OutputSchema(tool.SchemaFor[CreatedPage]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.createPageTool) },
		},
		{
			desc: tool.MustDescriptor("confluence_update_page", Category,
				"Update a Confluence page. The version number must be the page's current version.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"page_id":        pageIDProp(),
					"version_number": tool.Integer("Current version number of the page", tool.Bound(1), nil, nil),
					"title":          tool.String("New title; the current title is kept when omitted", 0),
					"body":           tool.String("New body in storage format; the current body is kept when omitted", 0),
				}, "page_id", "version_number"),
				tool.OutputSchema(tool.SchemaFor[UpdatedPage]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.updatePageTool) },
		},
		{
			desc: tool.MustDescriptor("confluence_delete_page", Category,
				"Delete a Confluence page.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{"page_id": pageIDProp()}, "page_id"),
				tool.OutputSchema(tool.SchemaFor[DeletedPage]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.deletePageTool) },
		},
		{
			desc: tool.MustDescriptor("confluence_add_label", Category,
				"Add a label to a Confluence page.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"page_id": pageIDProp(),
					"label":   tool.String("Label name", 1),
				}, "page_id", "label"),
				tool.OutputSchema(tool.SchemaFor[AddedLabel]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.addLabelTool) },
		},
		{
			desc: tool.MustDescriptor("confluence_add_comment", Category,
				"Add a comment to a Confluence page.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"page_id": pageIDProp(),
					"body":    tool.String("Comment body in storage format", 1),
				}, "page_id", "body"),
				tool.OutputSchema(tool.SchemaFor[CreatedComment]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.addCommentTool) },
		},
	}

	for _, t := range tools {
		if err := reg.Register(t.desc, factory(provider, t.bind)); err != nil {
			return err
		}
	}
	return nil
}

func factory(provider Provider, bind func(*Service) tool.Handler) tool.Factory {
	return func() (tool.Handler, error) {
		svc, err := provider()
		if err != nil {
			return nil, err
		}
		return bind(svc), nil
	}
}

func (s *Service) getPageTool(ctx context.Context, in GetPageInput) (*tool.Result, error) {
	p, err := s.GetPage(ctx, in.PageID, in.Expand)
	if err != nil {
		return pageFailure(err, in.PageID, "Error fetching page")
	}
	return tool.Succeed(PageResult{Page: *p}), nil
}

func (s *Service) searchTool(ctx context.Context, in SearchInput) (*tool.Result, error) {
	res, err := s.Search(ctx, in.CQL, in.Limit, in.Start)
	if err != nil {
		return pageFailure(err, "", "Error searching content")
	}
	return tool.Succeed(res), nil
}

func (s *Service) getChildrenTool(ctx context.Context, in PageListInput) (*tool.Result, error) {
	children, err := s.GetChildren(ctx, in.PageID, in.Limit)
	if err != nil {
		return pageFailure(err, in.PageID, "Error fetching child pages")
	}
	return tool.Succeed(Children{PageID: in.PageID, Children: children}), nil
}

func (s *Service) getAncestorsTool(ctx context.Context, in PageIDInput) (*tool.Result, error) {
	as, err := s.GetAncestors(ctx, in.PageID)
	if err != nil {
		return pageFailure(err, in.PageID, "Error fetching ancestors")
	}
	return tool.Succeed(Ancestors{PageID: in.PageID, Ancestors: as}), nil
}

func (s *Service) getLabelsTool(ctx context.Context, in PageIDInput) (*tool.Result, error) {
	labels, err := s.GetLabels(ctx, in.PageID)
	if err != nil {
		return pageFailure(err, in.PageID, "Error fetching labels")
	}
	return tool.Succeed(Labels{PageID: in.PageID, Labels: labels}), nil
}

func (s *Service) getCommentsTool(ctx context.Context, in PageListInput) (*tool.Result, error) {
	cs, err := s.GetComments(ctx, in.PageID, in.Limit)
	if err != nil {
		return pageFailure(err, in.PageID, "Error fetching comments")
	}
	return tool.Succeed(Comments{PageID: in.PageID, Comments: cs}), nil
}

func (s *Service) createPageTool(ctx context.Context, in CreatePageInput) (*tool.Result, error) {
	created, err := s.CreatePage(ctx, in.SpaceKey, in.Title, in.Body, in.ParentID)
	if err != nil {
		return pageFailure(err, "", "Error creating page")
	}
	return tool.Succeed(created), nil
}

func (s *Service) updatePageTool(ctx context.Context, in UpdatePageInput) (*tool.Result, error) {
	v, err := s.UpdatePage(ctx, in.PageID, in.VersionNumber, in.Title, in.Body)
	if err != nil {
		return pageFailure(err, in.PageID, "Error updating page")
	}
	return tool.Succeed(UpdatedPage{PageID: in.PageID, NewVersion: v}), nil
}

func (s *Service) deletePageTool(ctx context.Context, in PageIDInput) (*tool.Result, error) {
	if err := s.DeletePage(ctx, in.PageID); err != nil {
		return pageFailure(err, in.PageID, "Error deleting page")
	}
	return tool.Succeed(DeletedPage{PageID: in.PageID, Deleted: true}), nil
}

func (s *Service) addLabelTool(ctx context.Context, in AddLabelInput) (*tool.Result, error) {
	if err := s.AddLabel(ctx, in.PageID, in.Label); err != nil {
		return pageFailure(err, in.PageID, "Error adding label")
	}
	return tool.Succeed(AddedLabel{PageID: in.PageID, Label: in.Label}), nil
}

func (s *Service) addCommentTool(ctx context.Context, in AddCommentInput) (*tool.Result, error) {
	id, err := s.AddComment(ctx, in.PageID, in.Body)
	if err != nil {
		return pageFailure(err, in.PageID, "Error adding comment")
	}
	return tool.Succeed(CreatedComment{CommentID: id}), nil
}

func pageFailure(err error, pageID, action string) (*tool.Result, error) {
	var ae *atlassian.Error
	if !errors.As(err, &ae) {
		return tool.Fail(tool.CodeRemoteError, "%s: %v", action, err), nil
	}
	if ae.Kind == atlassian.KindNotFound && pageID != "" {
		return tool.Fail(tool.CodeNotFound, "Page %s not found", pageID), nil
	}
	return tool.Fail(ae.Code(), "%s: %s", action, ae.Message), nil
}
