package trackers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Appsum/JackettCore/internal/indexer"
	"github.com/Appsum/JackettCore/internal/indexer/schema"
	"github.com/Appsum/JackettCore/internal/webclient"
)

// nimbusPeer talks to a public site's JSON search API. There is no login;
// applying a configuration probes the API with an empty search to prove the
// site is reachable.
type nimbusPeer struct {
	*indexer.BaseIndexer
}

func newNimbusPeer(def Definition, deps Deps) indexer.Indexer {
	n := &nimbusPeer{
		BaseIndexer: indexer.NewBase(indexer.BaseConfig{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			SiteLink:    def.Link,
			Schema: schema.MustNew(
				schema.Bool("Prefer magnet links", true),
				schema.Bool("Freeleech only", false),
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
		n.AddCategoryMapping(native, m.Cat)
	}

	return n
}

func (n *nimbusPeer) flag(id string) bool {
	if f, ok := n.ConfigSchema().Field(id); ok {
		return f.Checked
	}
	return false
}

// ApplyConfiguration probes the site with an unfiltered search, the same way
// the options will be used later. An empty listing means the site is up but
// serving nothing useful, so the options are rejected rather than trusted.
func (n *nimbusPeer) ApplyConfiguration(ctx context.Context, payload schema.Payload) (indexer.ConfigurationStatus, error) {
	if err := n.LoadPayload(payload); err != nil {
		return indexer.StatusFailed, err
	}

	releases, err := n.PerformQuery(ctx, &indexer.Query{})
	if err != nil {
		return indexer.StatusFailed, err
	}

	err = n.ConfigureIfOK("", len(releases) > 0, func() error {
		return n.Rejected("could not find any releases, the site may be down")
	})
	if err != nil {
		return indexer.StatusFailed, err
	}
	return indexer.StatusConfigured, nil
}

// Wire types for the search API.
type nimbusListing struct {
	Results []nimbusRelease `json:"results"`
}

type nimbusRelease struct {
	Name     string `json:"name"`
	Details  string `json:"details"`
	Download string `json:"download"`
	Magnet   string `json:"magnet"`
	Category int    `json:"category"`
	Size     int64  `json:"size"`
	Seeders  int    `json:"seeders"`
	// Peers as reported by the API already includes seeders.
	Peers     int    `json:"peers"`
	Added     string `json:"added"`
	Freeleech bool   `json:"freeleech"`
}

func (n *nimbusPeer) PerformQuery(ctx context.Context, query *indexer.Query) ([]indexer.ReleaseResult, error) {
	params := url.Values{}
	if kw := query.Keywords(); kw != "" {
		params.Set("q", kw)
	}
	if natives := nativeCategories(n.Categories(), query.Categories); len(natives) > 0 {
		ids := make([]string, len(natives))
		for i, c := range natives {
			ids[i] = strconv.Itoa(c)
		}
		params.Set("cats", strings.Join(ids, ","))
	}
	if n.flag("freeleechonly") {
		params.Set("freeleech", "1")
	}

	resp, err := n.Client().Get(ctx, webclient.Request{
		URL: resolveURL(n.SiteLink(), "api/v1/search?"+params.Encode()),
	})
	if err != nil {
		return nil, err
	}

	var listing nimbusListing
	if err := json.Unmarshal(resp.Body, &listing); err != nil {
		return nil, n.ParseError(resp.Content(), err)
	}

	var results []indexer.ReleaseResult
	for _, rel := range listing.Results {
		release, err := n.parseRelease(rel)
		if err != nil {
			logger := n.Logger()
			logger.Debug().Err(err).Str("name", rel.Name).Msg("skipping unparseable release")
			continue
		}
		if release == nil {
			continue
		}
		results = append(results, *release)
	}
	return results, nil
}

func (n *nimbusPeer) parseRelease(rel nimbusRelease) (*indexer.ReleaseResult, error) {
	universal, ok := n.Categories().Resolve(rel.Category)
	if !ok {
		return nil, nil
	}
	if rel.Name == "" {
		return nil, fmt.Errorf("release has no name")
	}

	added, err := time.Parse(time.RFC3339, rel.Added)
	if err != nil {
		return nil, fmt.Errorf("added timestamp: %w", err)
	}

	var link string
	switch {
	case n.flag("prefermagnetlinks") && rel.Magnet != "":
		link = rel.Magnet
	case rel.Download != "":
		link = resolveURL(n.SiteLink(), rel.Download)
	case rel.Magnet != "":
		link = rel.Magnet
	default:
		return nil, fmt.Errorf("release has no download link")
	}

	return &indexer.ReleaseResult{
		Title:       rel.Name,
		GUID:        resolveURL(n.SiteLink(), rel.Details),
		Comments:    resolveURL(n.SiteLink(), rel.Details),
		Link:        link,
		PublishDate: added,
		Size:        rel.Size,
		Seeders:     rel.Seeders,
		Peers:       rel.Peers,
		Category:    universal,
	}, nil
}

// CleanLinks strips the referral parameter the site appends to download
// links. Running it twice yields the same output.
func (n *nimbusPeer) CleanLinks(results []indexer.ReleaseResult) []indexer.ReleaseResult {
	results = n.BaseIndexer.CleanLinks(results)
	for i := range results {
		results[i].Link = stripParam(results[i].Link, "ref")
	}
	return results
}

func stripParam(link, key string) string {
	u, err := url.Parse(link)
	if err != nil || u.RawQuery == "" {
		return link
	}
	q := u.Query()
	if !q.Has(key) {
		return link
	}
	q.Del(key)
	u.RawQuery = q.Encode()
	return u.String()
}
