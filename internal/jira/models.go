package jira

// Issue is the simplified form of a Jira issue returned by jira_get_issue and
// jira_search.
type Issue struct {
	Key         string      `json:"key"`
	ID          string      `json:"id"`
	Self        string      `json:"self,omitempty"`
	Fields      IssueFields `json:"fields"`
	Changelog   any         `json:"changelog,omitempty"`
	Transitions any         `json:"transitions,omitempty"`
}

type IssueFields struct {
	Summary     string         `json:"summary,omitempty"`
	Description string         `json:"description,omitempty"`
	Status      *Status        `json:"status,omitempty"`
	IssueType   *Named         `json:"issue_type,omitempty"`
	Priority    *Named         `json:"priority,omitempty"`
	Assignee    *User          `json:"assignee,omitempty"`
	Reporter    *User          `json:"reporter,omitempty"`
	Created     string         `json:"created,omitempty"`
	Updated     string         `json:"updated,omitempty"`
	Labels      []string       `json:"labels,omitempty"`
	Components  []string       `json:"components,omitempty"`
	Comments    []IssueComment `json:"comments,omitempty"`
	Attachments []Attachment   `json:"attachments,omitempty"`
}

type Status struct {
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

type Named struct {
	Name string `json:"name"`
}

type User struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

type IssueComment struct {
	Author  string `json:"author,omitempty"`
	Body    string `json:"body"`
	Created string `json:"created,omitempty"`
}

type Attachment struct {
	Filename    string `json:"filename"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
	URL         string `json:"url,omitempty"`
}

type SearchResult struct {
	Issues     []Issue `json:"issues"`
	Total      int64   `json:"total"`
	StartAt    int     `json:"start_at"`
	MaxResults int     `json:"max_results"`
}

type Transition struct {
	ID   string           `json:"id"`
	Name string           `json:"name"`
	To   TransitionTarget `json:"to"`
}

type TransitionTarget struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	Category string `json:"category,omitempty"`
}

type TransitionList struct {
	IssueKey    string       `json:"issue_key"`
	Transitions []Transition `json:"transitions"`
}

type Comment struct {
	ID      string `json:"id"`
	Author  string `json:"author,omitempty"`
	Body    string `json:"body"`
	Created string `json:"created,omitempty"`
	Updated string `json:"updated,omitempty"`
}

type CommentList struct {
	IssueKey string    `json:"issue_key"`
	Comments []Comment `json:"comments"`
}

type CreatedComment struct {
	ID      string `json:"id"`
	Author  string `json:"author,omitempty"`
	Created string `json:"created,omitempty"`
}

type TransitionResult struct {
	IssueKey     string `json:"issue_key"`
	TransitionID string `json:"transition_id"`
	Transitioned bool   `json:"transitioned"`
}

type Project struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	ProjectType string `json:"project_type,omitempty"`
}

type ProjectList struct {
	Projects []Project `json:"projects"`
}

type CreatedIssue struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self,omitempty"`
}

type IssueUpdate struct {
	IssueKey string   `json:"issue_key"`
	Fields   []string `json:"fields"`
	Updated  bool     `json:"updated"`
}

type Assignment struct {
	IssueKey  string `json:"issue_key"`
	AccountID string `json:"account_id,omitempty"`
	Assigned  bool   `json:"assigned"`
}

type DeletedIssue struct {
	IssueKey       string `json:"issue_key"`
	DeleteSubtasks bool   `json:"delete_subtasks"`
	Deleted        bool   `json:"deleted"`
}

type CommentChange struct {
	IssueKey  string `json:"issue_key"`
	CommentID string `json:"comment_id"`
	Updated   bool   `json:"updated,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`
}

// UserProfile is a Jira account as returned by /myself or /user.
type UserProfile struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
	Active      bool   `json:"active"`
	TimeZone    string `json:"timezone,omitempty"`
}

type Field struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Custom bool   `json:"custom"`
	Schema any    `json:"schema,omitempty"`
}

type FieldList struct {
	Fields []Field `json:"fields"`
}

// Option is a named site-wide value such as a priority or a resolution.
type Option struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type PriorityList struct {
	Priorities []Option `json:"priorities"`
}

type ResolutionList struct {
	Resolutions []Option `json:"resolutions"`
}
