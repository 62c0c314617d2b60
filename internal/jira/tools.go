package jira

import (
	"context"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/stellarlinkco/atlastools/internal/atlassian"
	"github.com/stellarlinkco/atlastools/internal/tool"
)

// Category groups every Jira tool.
const Category = "jira"

type GetIssueInput struct {
	IssueKey     string `json:"issue_key"`
	Fields       string `json:"fields,omitempty"`
	Expand       string `json:"expand,omitempty"`
	CommentLimit int    `json:"comment_limit"`
}

type SearchInput struct {
	JQL        string `json:"jql"`
	MaxResults int    `json:"max_results"`
	StartAt    int    `json:"start_at"`
	Fields     string `json:"fields,omitempty"`
}

type IssueKeyInput struct {
	IssueKey string `json:"issue_key"`
}

type GetCommentsInput struct {
	IssueKey   string `json:"issue_key"`
	MaxResults int    `json:"max_results"`
}

type AddCommentInput struct {
	IssueKey string `json:"issue_key"`
	Body     string `json:"body"`
}

type TransitionIssueInput struct {
	IssueKey     string `json:"issue_key"`
	TransitionID string `json:"transition_id"`
	Comment      string `json:"comment,omitempty"`
}

type CreateIssueInput struct {
	ProjectKey   string         `json:"project_key"`
	Summary      string         `json:"summary"`
	IssueType    string         `json:"issue_type"`
	Description  string         `json:"description,omitempty"`
	Priority     string         `json:"priority,omitempty"`
	Assignee     string         `json:"assignee,omitempty"`
	Labels       []string       `json:"labels,omitempty"`
	Components   []string       `json:"components,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

type UpdateIssueInput struct {
	IssueKey     string         `json:"issue_key"`
	Summary      string         `json:"summary,omitempty"`
	Description  string         `json:"description,omitempty"`
	Priority     string         `json:"priority,omitempty"`
	Assignee     string         `json:"assignee,omitempty"`
	Labels       []string       `json:"labels,omitempty"`
	Components   []string       `json:"components,omitempty"`
	CustomFields map[string]any `json:"custom_fields,omitempty"`
}

type AssignIssueInput struct {
	IssueKey  string `json:"issue_key"`
	AccountID string `json:"account_id,omitempty"`
}

type DeleteIssueInput struct {
	IssueKey       string `json:"issue_key"`
	DeleteSubtasks bool   `json:"delete_subtasks"`
}

type UpdateCommentInput struct {
	IssueKey  string `json:"issue_key"`
	CommentID string `json:"comment_id"`
	Body      string `json:"body"`
}

type CommentRefInput struct {
	IssueKey  string `json:"issue_key"`
	CommentID string `json:"comment_id"`
}

type UserProfileInput struct {
	AccountID string `json:"account_id,omitempty"`
}

func issueKeyProp() *jsonschema.Schema {
	return tool.String("Jira issue key (e.g., 'PROJ-123', 'BUG-456')", 1)
}

// Register adds the Jira tools to reg. Nothing is loaded until a tool is
// first used; provider is called from the tool factories.
func Register(reg *tool.Registry, provider Provider) error {
	tools := []struct {
		desc tool.Descriptor
		bind func(*Service) tool.Handler
	}{
		{
			desc: tool.MustDescriptor("jira_get_issue", Category,
				"Get details of a specific Jira issue including fields, comments, attachments and optional expanded data.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"issue_key":     issueKeyProp(),
					"fields":        tool.String("Comma-separated list of fields to return, or '*all' for all fields", 0),
					"expand":        tool.String("Comma-separated list of fields to expand, e.g. 'changelog', 'transitions'", 0),
					"comment_limit": tool.Integer("Maximum number of comments to include (0 for none, max 100)", tool.Bound(0), tool.Bound(100), tool.Default(10)),
				}, "issue_key"),
				tool.OutputSchema(tool.SchemaFor[Issue]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.getIssueTool) },
		},
		{
			desc: tool.MustDescriptor("jira_search", Category,
				"Search Jira issues using JQL (Jira Query Language).",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"jql":         tool.String("JQL query, e.g. 'project = PROJ AND status = Open'", 1),
					"max_results": tool.Integer("Maximum number of issues to return", tool.Bound(1), tool.Bound(100), tool.Default(50)),
					"start_at":    tool.Integer("Index of the first issue to return", tool.Bound(0), nil, tool.Default(0)),
					"fields":      tool.String("Comma-separated list of fields to return", 0),
				}, "jql"),
				tool.OutputSchema(tool.SchemaFor[SearchResult]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.searchTool) },
		},
		{
			desc: tool.MustDescriptor("jira_get_transitions", Category,
				"Get the workflow transitions available for a Jira issue.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{"issue_key": issueKeyProp()}, "issue_key"),
				tool.OutputSchema(tool.SchemaFor[TransitionList]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.getTransitionsTool) },
		},
		{
			desc: tool.MustDescriptor("jira_get_comments", Category,
				"Get the comments on a Jira issue.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"issue_key":   issueKeyProp(),
					"max_results": tool.Integer("Maximum number of comments to return", tool.Bound(1), tool.Bound(100), tool.Default(50)),
				}, "issue_key"),
				tool.OutputSchema(tool.SchemaFor[CommentList]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.getCommentsTool) },
		},
		{
			desc: tool.MustDescriptor("jira_add_comment", Category,
				"Add a plain-text comment to a Jira issue.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"issue_key": issueKeyProp(),
					"body":      tool.String("Comment text; blank lines separate paragraphs", 1),
				}, "issue_key", "body"),
				tool.OutputSchema(tool.SchemaFor[CreatedComment]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.addCommentTool) },
		},
		{
			desc: tool.MustDescriptor("jira_transition_issue", Category,
				"Move a Jira issue through its workflow using a transition ID from jira_get_transitions.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"issue_key":     issueKeyProp(),
					"transition_id": tool.String("Transition ID", 1),
					"comment":       tool.String("Optional comment added with the transition", 0),
				}, "issue_key", "transition_id"),
				tool.OutputSchema(tool.SchemaFor[TransitionResult]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.transitionIssueTool) },
		},
		{
			desc: tool.MustDescriptor("jira_get_projects", Category,
				"List the Jira projects visible to the configured user.",
				tool.ObjectSchema(nil),
				tool.OutputSchema(tool.SchemaFor[ProjectList]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.getProjectsTool) },
		},
		{
			desc: tool.MustDescriptor("jira_create_issue", Category,
				"Create a Jira issue in a project.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"project_key":   tool.String("Project key (e.g., 'PROJ')", 1),
					"summary":       tool.String("Issue summary", 1),
					"issue_type":    tool.WithDefault(tool.String("Issue type name, e.g. 'Task', 'Bug', 'Story'", 1), "Task"),
					"description":   tool.String("Plain-text description; blank lines separate paragraphs", 0),
					"priority":      tool.String("Priority name, e.g. 'High'", 0),
					"assignee":      tool.String("Account ID of the assignee", 0),
					"labels":        tool.Strings("Labels to set"),
					"components":    tool.Strings("Component names to set"),
					"custom_fields": tool.FreeObject("Extra fields keyed by field ID, e.g. {\"customfield_10010\": 5}"),
				}, "project_key", "summary"),
				tool.OutputSchema(tool.SchemaFor[CreatedIssue]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.createIssueTool) },
		},
		{
			desc: tool.MustDescriptor("jira_update_issue", Category,
				"Update fields of a Jira issue. Only the fields given are changed.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"issue_key":     issueKeyProp(),
					"summary":       tool.String("New summary", 0),
					"description":   tool.String("New plain-text description", 0),
					"priority":      tool.String("New priority name", 0),
					"assignee":      tool.String("Account ID of the new assignee", 0),
					"labels":        tool.Strings("Labels, replacing the current ones"),
					"components":    tool.Strings("Component names, replacing the current ones"),
					"custom_fields": tool.FreeObject("Extra fields keyed by field ID"),
				}, "issue_key"),
				tool.OutputSchema(tool.SchemaFor[IssueUpdate]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.updateIssueTool) },
		},
		{
			desc: tool.MustDescriptor("jira_assign_issue", Category,
				"Assign a Jira issue to a user, or unassign it when no account ID is given.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"issue_key":  issueKeyProp(),
					"account_id": tool.String("Account ID of the assignee; omit to unassign", 0),
				}, "issue_key"),
				tool.OutputSchema(tool.SchemaFor[Assignment]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.assignIssueTool) },
		},
		{
			desc: tool.MustDescriptor("jira_delete_issue", Category,
				"Delete a Jira issue.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"issue_key":       issueKeyProp(),
					"delete_subtasks": tool.Boolean("Also delete the issue's subtasks", false),
				}, "issue_key"),
				tool.OutputSchema(tool.SchemaFor[DeletedIssue]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.deleteIssueTool) },
		},
		{
			desc: tool.MustDescriptor("jira_update_comment", Category,
				"Replace the text of a comment on a Jira issue.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"issue_key":  issueKeyProp(),
					"comment_id": tool.String("Comment ID", 1),
					"body":       tool.String("New comment text", 1),
				}, "issue_key", "comment_id", "body"),
				tool.OutputSchema(tool.SchemaFor[CommentChange]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.updateCommentTool) },
		},
		{
			desc: tool.MustDescriptor("jira_delete_comment", Category,
				"Delete a comment from a Jira issue.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"issue_key":  issueKeyProp(),
					"comment_id": tool.String("Comment ID", 1),
				}, "issue_key", "comment_id"),
				tool.OutputSchema(tool.SchemaFor[CommentChange]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.deleteCommentTool) },
		},
		{
			desc: tool.MustDescriptor("jira_get_user_profile", Category,
				"Get a Jira user profile. Without an account ID, returns the configured user.",
				tool.ObjectSchema(map[string]*jsonschema.Schema{
					"account_id": tool.String("Account ID to look up", 0),
				}),
				tool.OutputSchema(tool.SchemaFor[UserProfile]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.getUserProfileTool) },
		},
		{
			desc: tool.MustDescriptor("jira_get_fields", Category,
				"List the system and custom fields defined on the Jira site.",
				tool.ObjectSchema(nil),
				tool.OutputSchema(tool.SchemaFor[FieldList]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.getFieldsTool) },
		},
		{
			desc: tool.MustDescriptor("jira_get_priorities", Category,
				"List the issue priorities defined on the Jira site.",
				tool.ObjectSchema(nil),
				tool.OutputSchema(tool.SchemaFor[PriorityList]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.getPrioritiesTool) },
		},
		{
			desc: tool.MustDescriptor("jira_get_resolutions", Category,
				"List the issue resolutions defined on the Jira site.",
				tool.ObjectSchema(nil),
				tool.OutputSchema(tool.SchemaFor[ResolutionList]())),
			bind: func(s *Service) tool.Handler { return tool.Bind(s.getResolutionsTool) },
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

func (s *Service) getIssueTool(ctx context.Context, in GetIssueInput) (*tool.Result, error) {
	issue, err := s.GetIssue(ctx, in.IssueKey, GetIssueOptions{
		Fields:       in.Fields,
		Expand:       in.Expand,
		CommentLimit: in.CommentLimit,
	})
	if err != nil {
		return issueFailure(err, in.IssueKey, "Error fetching issue")
	}
	return tool.Succeed(issue), nil
}

func (s *Service) searchTool(ctx context.Context, in SearchInput) (*tool.Result, error) {
	res, err := s.Search(ctx, in.JQL, in.MaxResults, in.StartAt, in.Fields)
	if err != nil {
		return issueFailure(err, "", "Error searching issues")
	}
	return tool.Succeed(res), nil
}

func (s *Service) getTransitionsTool(ctx context.Context, in IssueKeyInput) (*tool.Result, error) {
	ts, err := s.GetTransitions(ctx, in.IssueKey)
	if err != nil {
		return issueFailure(err, in.IssueKey, "Error fetching transitions")
	}
	return tool.Succeed(TransitionList{IssueKey: in.IssueKey, Transitions: ts}), nil
}

func (s *Service) getCommentsTool(ctx context.Context, in GetCommentsInput) (*tool.Result, error) {
	cs, err := s.GetComments(ctx, in.IssueKey, in.MaxResults)
	if err != nil {
		return issueFailure(err, in.IssueKey, "Error fetching comments")
	}
	return tool.Succeed(CommentList{IssueKey: in.IssueKey, Comments: cs}), nil
}

func (s *Service) addCommentTool(ctx context.Context, in AddCommentInput) (*tool.Result, error) {
	c, err := s.AddComment(ctx, in.IssueKey, in.Body)
	if err != nil {
		return issueFailure(err, in.IssueKey, "Error adding comment")
	}
	return tool.Succeed(c), nil
}

func (s *Service) transitionIssueTool(ctx context.Context, in TransitionIssueInput) (*tool.Result, error) {
	if err := s.TransitionIssue(ctx, in.IssueKey, in.TransitionID, in.Comment); err != nil {
		return issueFailure(err, in.IssueKey, "Error transitioning issue")
	}
	return tool.Succeed(TransitionResult{IssueKey: in.IssueKey, TransitionID: in.TransitionID, Transitioned: true}), nil
}

func (s *Service) getProjectsTool(ctx context.Context, _ struct{}) (*tool.Result, error) {
	ps, err := s.GetProjects(ctx)
	if err != nil {
		return issueFailure(err, "", "Error fetching projects")
	}
	return tool.Succeed(ProjectList{Projects: ps}), nil
}

func (s *Service) createIssueTool(ctx context.Context, in CreateIssueInput) (*tool.Result, error) {
	created, err := s.CreateIssue(ctx, in.ProjectKey, in.IssueType, IssueChanges{
		Summary:      in.Summary,
		Description:  in.Description,
		Priority:     in.Priority,
		Assignee:     in.Assignee,
		Labels:       in.Labels,
		Components:   in.Components,
		CustomFields: in.CustomFields,
	})
	if err != nil {
		return issueFailure(err, "", "Error creating issue")
	}
	return tool.Succeed(created), nil
}

func (s *Service) updateIssueTool(ctx context.Context, in UpdateIssueInput) (*tool.Result, error) {
	fields, err := s.UpdateIssue(ctx, in.IssueKey, IssueChanges{
		Summary:      in.Summary,
		Description:  in.Description,
		Priority:     in.Priority,
		Assignee:     in.Assignee,
		Labels:       in.Labels,
		Components:   in.Components,
		CustomFields: in.CustomFields,
	})
	if err != nil {
		return issueFailure(err, in.IssueKey, "Error updating issue")
	}
	return tool.Succeed(IssueUpdate{IssueKey: in.IssueKey, Fields: fields, Updated: true}), nil
}

func (s *Service) assignIssueTool(ctx context.Context, in AssignIssueInput) (*tool.Result, error) {
	if err := s.AssignIssue(ctx, in.IssueKey, in.AccountID); err != nil {
		return issueFailure(err, in.IssueKey, "Error assigning issue")
	}
	return tool.Succeed(Assignment{IssueKey: in.IssueKey, AccountID: in.AccountID, Assigned: in.AccountID != ""}), nil
}

func (s *Service) deleteIssueTool(ctx context.Context, in DeleteIssueInput) (*tool.Result, error) {
	if err := s.DeleteIssue(ctx, in.IssueKey, in.DeleteSubtasks); err != nil {
		return issueFailure(err, in.IssueKey, "Error deleting issue")
	}
	return tool.Succeed(DeletedIssue{IssueKey: in.IssueKey, DeleteSubtasks: in.DeleteSubtasks, Deleted: true}), nil
}

func (s *Service) updateCommentTool(ctx context.Context, in UpdateCommentInput) (*tool.Result, error) {
	if err := s.UpdateComment(ctx, in.IssueKey, in.CommentID, in.Body); err != nil {
		return commentFailure(err, in.IssueKey, in.CommentID, "Error updating comment")
	}
	return tool.Succeed(CommentChange{IssueKey: in.IssueKey, CommentID: in.CommentID, Updated: true}), nil
}

func (s *Service) deleteCommentTool(ctx context.Context, in CommentRefInput) (*tool.Result, error) {
	if err := s.DeleteComment(ctx, in.IssueKey, in.CommentID); err != nil {
		return commentFailure(err, in.IssueKey, in.CommentID, "Error deleting comment")
	}
	return tool.Succeed(CommentChange{IssueKey: in.IssueKey, CommentID: in.CommentID, Deleted: true}), nil
}

func (s *Service) getUserProfileTool(ctx context.Context, in UserProfileInput) (*tool.Result, error) {
	p, err := s.UserProfile(ctx, in.AccountID)
	if err != nil {
		if in.AccountID != "" && atlassian.IsNotFound(err) {
			return tool.Fail(tool.CodeNotFound, "User %s not found", in.AccountID), nil
		}
		return issueFailure(err, "", "Error fetching user profile")
	}
	return tool.Succeed(p), nil
}

func (s *Service) getFieldsTool(ctx context.Context, _ struct{}) (*tool.Result, error) {
	fs, err := s.GetFields(ctx)
	if err != nil {
		return issueFailure(err, "", "Error fetching fields")
	}
	return tool.Succeed(FieldList{Fields: fs}), nil
}

func (s *Service) getPrioritiesTool(ctx context.Context, _ struct{}) (*tool.Result, error) {
	ps, err := s.GetPriorities(ctx)
	if err != nil {
		return issueFailure(err, "", "Error fetching priorities")
	}
	return tool.Succeed(PriorityList{Priorities: ps}), nil
}

func (s *Service) getResolutionsTool(ctx context.Context, _ struct{}) (*tool.Result, error) {
	rs, err := s.GetResolutions(ctx)
	if err != nil {
		return issueFailure(err, "", "Error fetching resolutions")
	}
	return tool.Succeed(ResolutionList{Resolutions: rs}), nil
}

// commentFailure reports a missing comment by both keys. Jira answers 404 for
// either a missing issue or a missing comment.
func commentFailure(err error, key, commentID, action string) (*tool.Result, error) {
	if atlassian.IsNotFound(err) {
		return tool.Fail(tool.CodeNotFound, "Comment %s on issue %s not found", commentID, key), nil
	}
	return issueFailure(err, key, action)
}

// issueFailure turns a service error into a tool-reported failure.
func issueFailure(err error, key, action string) (*tool.Result, error) {
	var ae *atlassian.Error
	if !errors.As(err, &ae) {
		return tool.Fail(tool.CodeRemoteError, "%s: %v", action, err), nil
	}
	switch {
	case ae.Kind == atlassian.KindNotFound && key != "":
		return tool.Fail(tool.CodeNotFound, "Issue %s not found", key), nil
	case atlassian.IsAuth(err):
		return tool.Fail(ae.Code(), "Authentication failed. Check your credentials"), nil
	default:
		return tool.Fail(ae.Code(), "%s: %s", action, ae.Message), nil
	}
}
