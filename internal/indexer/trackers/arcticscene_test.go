package trackers

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Appsum/JackettCore/internal/indexer"
	"github.com/Appsum/JackettCore/internal/indexer/schema"
	"github.com/Appsum/JackettCore/internal/webclient"
)

const arcticListingHTML = `<html><body>
<table id="torrent_table">
<tbody>
<tr class="colhead"><td>Cat</td><td>Name</td><td>Files</td><td>Time</td><td>Size</td><td>Snatches</td><td>Seeders</td><td>Leechers</td></tr>
<tr class="torrent">
  <td class="cats_col"><a href="torrents.php?filter_cat=11">HD</a></td>
  <td>
    <a href="torrents.php?id=341">Some.Movie.2024.1080p.BluRay</a>
    <a href="torrents.php?action=download&amp;id=341">DL</a>
  </td>
  <td>2</td>
  <td><span title="2024-03-01 12:30:00">1 hour ago</span></td>
  <td>8.5 GB</td>
  <td>30</td>
  <td>12</td>
  <td>3</td>
</tr>
<tr class="torrent">
  <td class="cats_col"><a href="torrents.php?filter_cat=99">Unknown</a></td>
  <td>
    <a href="torrents.php?id=342">Unmapped.Category.Release</a>
    <a href="torrents.php?action=download&amp;id=342">DL</a>
  </td>
  <td>1</td>
  <td><span title="2024-03-01 13:00:00">now</span></td>
  <td>1 GB</td>
  <td>0</td>
  <td>1</td>
  <td>0</td>
</tr>
<tr class="torrent">
  <td class="cats_col"><a href="torrents.php?filter_cat=11">HD</a></td>
  <td><a href="torrents.php?id=343">Broken.Row.No.Download</a></td>
  <td>1</td>
  <td><span title="2024-03-01 14:00:00">now</span></td>
  <td>1 GB</td>
  <td>0</td>
  <td>1</td>
  <td>0</td>
</tr>
</tbody>
</table>
</body></html>`

func newTestArctic(t *testing.T, client webclient.Client) *arcticScene {
	t.Helper()
	ix := newArcticScene(definitionFor(t, "arcticscene"), testDeps(client))
	a, ok := ix.(*arcticScene)
	if !ok {
		t.Fatalf("builder returned %T", ix)
	}
	return a
}

func credentials() schema.Payload {
	return schema.Payload{
		{ID: "username", Value: "alice"},
		{ID: "password", Value: "hunter2"},
	}
}

func TestArcticApplyConfigurationSuccess(t *testing.T) {
	client := &fakeClient{postResp: &webclient.Response{
		Status:        302,
		RedirectingTo: "index.php",
		Cookies:       "session=abc; keeplogged=1",
	}}
	a := newTestArctic(t, client)

	status, err := a.ApplyConfiguration(context.Background(), credentials())
	if err != nil {
		t.Fatalf("ApplyConfiguration failed: %v", err)
	}
	if status != indexer.StatusRequiresTesting {
		t.Errorf("status = %v, want StatusRequiresTesting", status)
	}
	if !a.IsConfigured() {
		t.Error("indexer not configured after login")
	}
	if a.CookieHeader() != "session=abc; keeplogged=1" {
		t.Errorf("cookie = %q, want the login session", a.CookieHeader())
	}

	if client.lastForm.Get("username") != "alice" || client.lastForm.Get("password") != "hunter2" {
		t.Errorf("login form = %v, want the submitted credentials", client.lastForm)
	}
	if client.lastForm.Get("keeplogged") != "1" {
		t.Error("login form is missing keeplogged")
	}
	if !strings.HasSuffix(client.lastPost.URL, "/login.php") {
		t.Errorf("login URL = %q", client.lastPost.URL)
	}
}

func TestArcticApplyConfigurationRejected(t *testing.T) {
	client := &fakeClient{postResp: &webclient.Response{
		Status: 200,
		Body:   []byte(`<form id="loginform"><span class="warning">You entered an invalid password.</span></form>`),
	}}
	a := newTestArctic(t, client)

	status, err := a.ApplyConfiguration(context.Background(), credentials())
	if status != indexer.StatusFailed {
		t.Errorf("status = %v, want StatusFailed", status)
	}
	rejection, ok := indexer.IsConfigRejected(err)
	if !ok {
		t.Fatalf("err = %v, want a rejection", err)
	}
	if rejection.Message != "You entered an invalid password." {
		t.Errorf("message = %q, want the site's warning text", rejection.Message)
	}
	if a.IsConfigured() {
		t.Error("indexer configured after a rejected login")
	}

	// The rejection carries the form state for re-rendering.
	if len(rejection.Payload) == 0 {
		t.Fatal("rejection has no payload")
	}
	for _, fv := range rejection.Payload {
		if fv.ID == "password" && fv.Value == "hunter2" {
			t.Error("rejection payload exposes the plaintext password")
		}
	}
}

func TestArcticApplyConfigurationRedirectBackToLogin(t *testing.T) {
	// A redirect back to login.php is a failed login, not a success.
	client := &fakeClient{postResp: &webclient.Response{
		Status:        302,
		RedirectingTo: "login.php?invalid=1",
	}}
	a := newTestArctic(t, client)

	_, err := a.ApplyConfiguration(context.Background(), credentials())
	if _, ok := indexer.IsConfigRejected(err); !ok {
		t.Fatalf("err = %v, want a rejection", err)
	}
}

func TestArcticPerformQuery(t *testing.T) {
	client := &fakeClient{getResp: &webclient.Response{Status: 200, Body: []byte(arcticListingHTML)}}
	a := newTestArctic(t, client)
	a.ConfigSchema().CookieHeader().Value = "session=abc"

	results, err := a.PerformQuery(context.Background(), &indexer.Query{Term: "some movie"})
	if err != nil {
		t.Fatalf("PerformQuery failed: %v", err)
	}

	// The unmapped-category row and the row without a download link are
	// dropped; only the complete one survives.
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}

	r := results[0]
	if r.Title != "Some.Movie.2024.1080p.BluRay" {
		t.Errorf("Title = %q", r.Title)
	}
	if r.Link != "https://arcticscene.org/torrents.php?action=download&id=341" {
		t.Errorf("Link = %q", r.Link)
	}
	if r.GUID != "https://arcticscene.org/torrents.php?id=341" {
		t.Errorf("GUID = %q", r.GUID)
	}
	if r.Category != indexer.CategoryMoviesHD {
		t.Errorf("Category = %d, want %d", r.Category, indexer.CategoryMoviesHD)
	}
	if want := int64(8.5 * float64(1<<30)); r.Size != want {
		t.Errorf("Size = %d, want %d", r.Size, want)
	}
	if r.Seeders != 12 {
		t.Errorf("Seeders = %d, want 12", r.Seeders)
	}
	// Leechers arrive as a separate column; peers leave inclusive.
	if r.Peers != 15 {
		t.Errorf("Peers = %d, want 15", r.Peers)
	}
	wantDate := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	if !r.PublishDate.Equal(wantDate) {
		t.Errorf("PublishDate = %v, want %v", r.PublishDate, wantDate)
	}
	if r.MinimumRatio != 1 || r.MinimumSeedTime != 48*3600 {
		t.Errorf("seed rules = %v/%d", r.MinimumRatio, r.MinimumSeedTime)
	}

	// The session cookie travels with the search request.
	if client.lastGet.Cookies != "session=abc" {
		t.Errorf("request cookies = %q", client.lastGet.Cookies)
	}
	if !strings.Contains(client.lastGet.URL, "searchstr=some+movie") {
		t.Errorf("URL %q is missing the search term", client.lastGet.URL)
	}
}

func TestArcticPerformQueryCategoryFilter(t *testing.T) {
	client := &fakeClient{getResp: &webclient.Response{Status: 200, Body: []byte(arcticListingHTML)}}
	a := newTestArctic(t, client)

	_, err := a.PerformQuery(context.Background(), &indexer.Query{
		Categories: []int{indexer.CategoryMoviesHD},
	})
	if err != nil {
		t.Fatalf("PerformQuery failed: %v", err)
	}
	if !strings.Contains(client.lastGet.URL, "filter_cat%5B11%5D=1") {
		t.Errorf("URL %q is missing the native category filter", client.lastGet.URL)
	}
}

func TestArcticPerformQueryEmptyListing(t *testing.T) {
	// A page with the torrent table but no rows is a valid empty listing.
	client := &fakeClient{getResp: &webclient.Response{
		Status: 200,
		Body:   []byte(`<html><body><table id="torrent_table"><tbody></tbody></table></body></html>`),
	}}
	a := newTestArctic(t, client)

	results, err := a.PerformQuery(context.Background(), &indexer.Query{})
	if err != nil {
		t.Fatalf("PerformQuery failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results, want 0", len(results))
	}
}

func TestArcticPerformQueryNotAListing(t *testing.T) {
	// No torrent table at all means the session likely expired.
	client := &fakeClient{getResp: &webclient.Response{
		Status: 200,
		Body:   []byte(`<html><body><h1>Login</h1></body></html>`),
	}}
	a := newTestArctic(t, client)

	_, err := a.PerformQuery(context.Background(), &indexer.Query{})
	var broken *indexer.BrokenError
	if !errors.As(err, &broken) {
		t.Fatalf("error = %v, want *BrokenError", err)
	}
}
