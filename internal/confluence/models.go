package confluence

// Page is the simplified form of Confluence content.
type Page struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Type     string `json:"type,omitempty"`
	SpaceKey string `json:"space_key,omitempty"`
	Version  int    `json:"version,omitempty"`
	Body     string `json:"body,omitempty"`
	URL      string `json:"url,omitempty"`
}

type PageResult struct {
	Page Page `json:"page"`
}

type SearchResult struct {
	Results []Page `json:"results"`
	Total   int64  `json:"total"`
	Start   int    `json:"start"`
	Limit   int    `json:"limit"`
}

type Children struct {
	PageID   string `json:"page_id"`
	Children []Page `json:"children"`
}

type Ancestor struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Type  string `json:"type,omitempty"`
}

type Ancestors struct {
	PageID    string     `json:"page_id"`
	Ancestors []Ancestor `json:"ancestors"`
}

type Labels struct {
	PageID string   `json:"page_id"`
	Labels []string `json:"labels"`
}

type Comment struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
}

type Comments struct {
	PageID   string    `json:"page_id"`
	Comments []Comment `json:"comments"`
}

type CreatedPage struct {
	PageID  string `json:"page_id"`
	Title   string `json:"title,omitempty"`
	PageURL string `json:"page_url,omitempty"`
}

type UpdatedPage struct {
	PageID     string `json:"page_id"`
	NewVersion int    `json:"new_version"`
}

type DeletedPage struct {
	PageID  string `json:"page_id"`
	Deleted bool   `json:"deleted"`
}

type AddedLabel struct {
	PageID string `json:"page_id"`
	Label  string `json:"label"`
}

type CreatedComment struct {
	CommentID string `json:"comment_id"`
}
