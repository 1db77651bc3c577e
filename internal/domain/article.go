package domain

import (
	"regexp"
	"strings"
	"time"
)

// ArticleID is the feed-assigned identifier shared by the ledger, device listings and candidates.
type ArticleID string

// String returns the raw identifier.
func (id ArticleID) String() string {
	return string(id)
}

// LedgerEntry records one article that was delivered to the device at some point.
type LedgerEntry struct {
	ID          ArticleID
	NumPages    int
	SourceURL   string
	DisplayName string
	AddedAt     time.Time
	DeletedAt   *time.Time
}

// Deleted reports whether the article was removed from the device after delivery.
func (e LedgerEntry) Deleted() bool {
	return e.DeletedAt != nil
}

// Candidate is a feed item seen during the current run.
type Candidate struct {
	ID              ArticleID
	PublicationID   string
	PublicationName string
	Title           string
	SourceURL       string
	PublishedAt     time.Time
	RenderedName    string
}

// Publication is a subscribed newsletter.
type Publication struct {
	ID   string
	Name string
}

// Post is a raw feed item before publication names are resolved.
type Post struct {
	ID            ArticleID
	PublicationID string
	Title         string
	CanonicalURL  string
	PostDate      time.Time
}

// PostPage is one page of the reader inbox.
type PostPage struct {
	Posts []Post
	More  bool
}

const displayExt = ".pdf"

var (
	trailingIDExpr = regexp.MustCompile(`\[([^\[\]]*)\][^\[\]]*$`)
	unsafeNameRepl = strings.NewReplacer("/", "-", "\\", "-", "[", "(", "]", ")", "\n", " ", "\r", " ", "\t", " ")
)

// DisplayName builds the device filename for an article. The id is always the last
// bracketed token so it can be recovered from device listings.
func DisplayName(publication, title string, id ArticleID) string {
	publication = strings.TrimSpace(unsafeNameRepl.Replace(publication))
	title = strings.TrimSpace(unsafeNameRepl.Replace(title))
	if publication == "" {
		publication = "Unknown"
	}
	return publication + " - " + title + " [" + string(id) + "]" + displayExt
}

// ParseDisplayID extracts the article id from the final bracketed token of a filename.
func ParseDisplayID(name string) (ArticleID, bool) {
	m := trailingIDExpr.FindStringSubmatch(name)
	if m == nil || strings.TrimSpace(m[1]) == "" {
		return "", false
	}
	return ArticleID(m[1]), true
}
