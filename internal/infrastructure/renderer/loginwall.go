package renderer

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// paywallSelector matches the markup Substack renders in place of a locked post body.
const paywallSelector = ".paywall, .paywall-title, [data-component-name='Paywall'], [data-testid='paywall']"

const signInSelector = "form[action*='sign-in'], input[type='password'], input[name='email'][type='email']"

// signInTextFloor is the article length under which a page carrying a sign-in form is a login wall.
const signInTextFloor = 500

// DetectLoginWall inspects a rendered page and returns a non-empty reason when it looks like
// a sign-in or paywall page instead of the article. minChars <= 0 disables the length check.
func DetectLoginWall(rawHTML, pageURL string, minChars int) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("parse page: %w", err)
	}

	if doc.Find(paywallSelector).Length() > 0 {
		return "paywall", nil
	}

	textLen, err := articleTextLength(rawHTML, pageURL)
	if err != nil {
		return "", err
	}

	if doc.Find(signInSelector).Length() > 0 && textLen < signInTextFloor {
		return "sign-in form", nil
	}
	if minChars > 0 && textLen < minChars {
		return fmt.Sprintf("article body too short (%d < %d chars)", textLen, minChars), nil
	}
	return "", nil
}

func articleTextLength(rawHTML, pageURL string) (int, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return 0, fmt.Errorf("parse url: %w", err)
	}
	article, err := readability.FromReader(strings.NewReader(rawHTML), parsed)
	if err != nil {
		// readability gives up on pages without a main content block
		return 0, nil
	}
	content, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return 0, fmt.Errorf("parse article: %w", err)
	}
	text := strings.Join(strings.Fields(content.Text()), " ")
	return utf8.RuneCountInString(text), nil
}
