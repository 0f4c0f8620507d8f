package trackers

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Appsum/JackettCore/internal/indexer"
	"github.com/Appsum/JackettCore/internal/indexer/schema"
	"github.com/Appsum/JackettCore/internal/webclient"
)

// arcticScene scrapes a gazelle-style private site. Login is a form post to
// login.php; searches hit torrents.php and are parsed out of the HTML
// torrent table.
type arcticScene struct {
	*indexer.BaseIndexer
}

func newArcticScene(def Definition, deps Deps) indexer.Indexer {
	a := &arcticScene{
		BaseIndexer: indexer.NewBase(indexer.BaseConfig{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			SiteLink:    def.Link,
			Schema: schema.MustNew(
				schema.Text("Username"),
				schema.Text("Password"),
				schema.Info("Note", "Six failed login attempts in a row will lock the account for two hours."),
			),
			Client:    deps.Client,
			Protector: deps.Protector,
			Logger:    deps.Logger,
		}),
	}

	for _, m := range def.Categories {
		native, err := strconv.Atoi(m.ID)
		if err != nil {
			continue
		}
		a.AddCategoryMapping(native, m.Cat)
	}

	return a
}

func (a *arcticScene) setting(id string) string {
	if f, ok := a.ConfigSchema().Field(id); ok {
		return f.Value
	}
	return ""
}

// ApplyConfiguration logs in with the submitted credentials. The site answers
// a good login with a redirect away from login.php; anything else is treated
// as a rejection and the page's warning text is surfaced to the user.
func (a *arcticScene) ApplyConfiguration(ctx context.Context, payload schema.Payload) (indexer.ConfigurationStatus, error) {
	if err := a.LoadPayload(payload); err != nil {
		return indexer.StatusFailed, err
	}

	form := url.Values{
		"username":   {a.setting("username")},
		"password":   {a.setting("password")},
		"keeplogged": {"1"},
	}
	resp, err := a.Client().PostForm(ctx, webclient.Request{
		URL: resolveURL(a.SiteLink(), "login.php"),
	}, form)
	if err != nil {
		return indexer.StatusFailed, err
	}

	loggedIn := resp.IsRedirect() && !strings.Contains(resp.RedirectingTo, "login.php")
	err = a.ConfigureIfOK(resp.Cookies, loggedIn, func() error {
		message := "login failed, check the credentials"
		if doc, derr := goquery.NewDocumentFromReader(strings.NewReader(resp.Content())); derr == nil {
			if warning := strings.TrimSpace(doc.Find("#loginform .warning").Text()); warning != "" {
				message = warning
			}
		}
		return a.Rejected(message)
	})
	if err != nil {
		return indexer.StatusFailed, err
	}
	return indexer.StatusRequiresTesting, nil
}

// PerformQuery runs a search against torrents.php. Rows that fail to parse
// are skipped individually; a page that does not look like a result listing
// at all fails the whole query.
func (a *arcticScene) PerformQuery(ctx context.Context, query *indexer.Query) ([]indexer.ReleaseResult, error) {
	params := url.Values{
		"order_by":  {"time"},
		"order_way": {"desc"},
	}
	if kw := query.Keywords(); kw != "" {
		params.Set("searchstr", kw)
	}
	for _, native := range nativeCategories(a.Categories(), query.Categories) {
		params.Set(fmt.Sprintf("filter_cat[%d]", native), "1")
	}

	resp, err := a.Client().Get(ctx, webclient.Request{
		URL:     resolveURL(a.SiteLink(), "torrents.php?"+params.Encode()),
		Cookies: a.CookieHeader(),
	})
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.Content()))
	if err != nil {
		return nil, a.ParseError(resp.Content(), err)
	}

	rows := doc.Find("table#torrent_table > tbody > tr.torrent")
	if rows.Length() == 0 && doc.Find("table#torrent_table").Length() == 0 {
		// Not a listing page at all; the session may have expired.
		return nil, a.ParseError(resp.Content(), fmt.Errorf("no torrent table in response"))
	}

	var results []indexer.ReleaseResult
	rows.Each(func(_ int, row *goquery.Selection) {
		release, err := a.parseRow(row)
		if err != nil {
			logger := a.Logger()
			logger.Debug().Err(err).Msg("skipping unparseable result row")
			return
		}
		if release == nil {
			return
		}
		results = append(results, *release)
	})

	return results, nil
}

// parseRow extracts one release from a torrent table row. A nil result with
// nil error means the row's category has no universal mapping and the row is
// dropped silently.
func (a *arcticScene) parseRow(row *goquery.Selection) (*indexer.ReleaseResult, error) {
	catHref, _ := row.Find("td.cats_col a").Attr("href")
	native, err := strconv.Atoi(queryParam(catHref, "filter_cat"))
	if err != nil {
		return nil, fmt.Errorf("category cell: %w", err)
	}
	universal, ok := a.Categories().Resolve(native)
	if !ok {
		return nil, nil
	}

	titleLink := row.Find(`a[href^="torrents.php?id="]`).First()
	title := strings.TrimSpace(titleLink.Text())
	if title == "" {
		return nil, fmt.Errorf("row has no title")
	}
	detailsHref, _ := titleLink.Attr("href")

	downloadHref, ok := row.Find(`a[href^="torrents.php?action=download"]`).First().Attr("href")
	if !ok {
		return nil, fmt.Errorf("row has no download link")
	}

	cells := row.Find("td")
	size, err := parseSize(strings.TrimSpace(cells.Eq(4).Text()))
	if err != nil {
		return nil, fmt.Errorf("size cell: %w", err)
	}
	seeders, err := strconv.Atoi(cleanNumber(cells.Eq(6).Text()))
	if err != nil {
		return nil, fmt.Errorf("seeders cell: %w", err)
	}
	leechers, err := strconv.Atoi(cleanNumber(cells.Eq(7).Text()))
	if err != nil {
		return nil, fmt.Errorf("leechers cell: %w", err)
	}

	published, _ := cells.Eq(3).Find("span").Attr("title")
	publishDate, err := parseDate(published)
	if err != nil {
		return nil, fmt.Errorf("date cell: %w", err)
	}

	return &indexer.ReleaseResult{
		Title:           title,
		GUID:            resolveURL(a.SiteLink(), detailsHref),
		Comments:        resolveURL(a.SiteLink(), detailsHref),
		Link:            resolveURL(a.SiteLink(), downloadHref),
		PublishDate:     publishDate,
		Size:            size,
		Seeders:         seeders,
		Peers:           seeders + leechers,
		Category:        universal,
		MinimumRatio:    1,
		MinimumSeedTime: 48 * 3600,
	}, nil
}

// queryParam pulls a single query parameter out of a relative href.
func queryParam(href, key string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get(key)
}
