package crawler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/samvad-hq/samvad-article-pipeline/pkg/feeds"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListingDiscoveryFollowsPaginationUntilNoNextLink(t *testing.T) {
	site := newFakeSite()
	site.set("https://news.test/latest", listingHTML("/latest?page=2", "/a1", "/a2", "/a3", "/a4", "/a5", "/a6"))
	site.set("https://news.test/latest?page=2", listingHTML("", "/a7", "/a8", "/a9", "/a10"))

	d := NewListingDiscoverer(ListingOptions{SettleTimeout: time.Second}, nil)
	page, _ := site.NewPage(context.Background(), listingSource())

	res, err := d.Discover(context.Background(), page, listingSource())
	require.NoError(t, err)
	require.Len(t, res.Links, 10)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, "https://news.test/a1", res.Links[0].URL)
	assert.Equal(t, "Story a1", res.Links[0].Title)
	assert.Equal(t, "daily", res.Links[0].Source)
	assert.Equal(t, "https://news.test/a10", res.Links[9].URL)
	assert.NotEmpty(t, res.ContentHash)
	assert.Empty(t, res.Failures)
}

func TestListingDiscoveryRespectsLimits(t *testing.T) {
	site := newFakeSite()
	site.set("https://news.test/latest", listingHTML("/latest?page=2", "/a1", "/a2", "/a3"))
	site.set("https://news.test/latest?page=2", listingHTML("/latest?page=3", "/a4", "/a5"))
	site.set("https://news.test/latest?page=3", listingHTML("", "/a6"))

	src := listingSource()
	src.MaxPages = 2
	page, _ := site.NewPage(context.Background(), src)
	res, err := NewListingDiscoverer(ListingOptions{}, nil).Discover(context.Background(), page, src)
	require.NoError(t, err)
	assert.Len(t, res.Links, 5)
	assert.Zero(t, site.visited("https://news.test/latest?page=3"))

	src.MaxPages = 0
	src.MaxItems = 4
	res, err = NewListingDiscoverer(ListingOptions{}, nil).Discover(context.Background(), page, src)
	require.NoError(t, err)
	assert.Len(t, res.Links, 4)
}

func TestListingDiscoveryStopsOnPaginationCycle(t *testing.T) {
	site := newFakeSite()
	site.set("https://news.test/latest", listingHTML("/latest", "/a1"))

	page, _ := site.NewPage(context.Background(), listingSource())
	res, err := NewListingDiscoverer(ListingOptions{}, nil).Discover(context.Background(), page, listingSource())
	require.NoError(t, err)
	assert.Len(t, res.Links, 1)
	assert.Equal(t, 1, site.visited("https://news.test/latest"))
}

func TestListingDiscoveryDedupesAndSkipsUnusableLinks(t *testing.T) {
	site := newFakeSite()
	site.set("https://news.test/latest", `<ul>
<li class="story"><a href="/a1#comments">One</a></li>
<li class="story"><a href="/a1">One again</a></li>
<li class="story"><a href="mailto:desk@news.test">Mail</a></li>
<li class="story"><span>No link</span></li>
<li class="story"><a href="https://other.test/x">Elsewhere</a></li>
</ul>`)

	page, _ := site.NewPage(context.Background(), listingSource())
	res, err := NewListingDiscoverer(ListingOptions{}, nil).Discover(context.Background(), page, listingSource())
	require.NoError(t, err)
	require.Len(t, res.Links, 2)
	assert.Equal(t, "https://news.test/a1", res.Links[0].URL)
	assert.Equal(t, "https://other.test/x", res.Links[1].URL)
}

func TestListingDiscoveryIsolatesFailingListingURLs(t *testing.T) {
	site := newFakeSite()
	site.set("https://news.test/latest", listingHTML("", "/a1", "/a2"))

	src := listingSource()
	src.ListingURLs = []string{"https://news.test/missing", "https://news.test/latest"}
	page, _ := site.NewPage(context.Background(), src)

	res, err := NewListingDiscoverer(ListingOptions{}, nil).Discover(context.Background(), page, src)
	require.NoError(t, err)
	assert.Len(t, res.Links, 2)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "https://news.test/missing", res.Failures[0].URL)

	src.ListingURLs = []string{"https://news.test/missing"}
	_, err = NewListingDiscoverer(ListingOptions{}, nil).Discover(context.Background(), page, src)
	require.Error(t, err)
	var transient *domain.TransientFetchError
	assert.True(t, errors.As(err, &transient))
}

func TestListingHashTracksListingContent(t *testing.T) {
	site := newFakeSite()
	site.set("https://news.test/latest", listingHTML("", "/a1", "/a2"))
	page, _ := site.NewPage(context.Background(), listingSource())
	d := NewListingDiscoverer(ListingOptions{}, nil)

	first, err := d.Discover(context.Background(), page, listingSource())
	require.NoError(t, err)
	again, err := d.Discover(context.Background(), page, listingSource())
	require.NoError(t, err)
	assert.Equal(t, first.ContentHash, again.ContentHash)

	site.set("https://news.test/latest", listingHTML("", "/a3", "/a1", "/a2"))
	changed, err := d.Discover(context.Background(), page, listingSource())
	require.NoError(t, err)
	assert.NotEqual(t, first.ContentHash, changed.ContentHash)
}

func TestListingHashEmptyWhenNothingMatches(t *testing.T) {
	site := newFakeSite()
	site.set("https://news.test/latest", "<html><body><p>redesigned</p></body></html>")
	page, _ := site.NewPage(context.Background(), listingSource())

	res, err := NewListingDiscoverer(ListingOptions{}, nil).Discover(context.Background(), page, listingSource())
	require.NoError(t, err)
	assert.Empty(t, res.Links)
	assert.Empty(t, res.ContentHash)
}

func TestListingDiscoveryReturnsContextError(t *testing.T) {
	site := newFakeSite()
	site.set("https://news.test/latest", listingHTML("", "/a1"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	page, _ := site.NewPage(ctx, listingSource())
	_, err := NewListingDiscoverer(ListingOptions{}, nil).Discover(ctx, page, listingSource())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFeedDiscovererHashesLinkURLs(t *testing.T) {
	src := domain.SourceConfig{Name: "wire", Type: domain.SourceTypeRSS, FeedURLs: []string{"https://wire.test/rss"}}
	links := []domain.CandidateLink{{URL: "https://wire.test/1"}, {URL: "https://wire.test/2"}}

	d := NewFeedDiscoverer(fakeFeedReader{res: feeds.Result{Links: links}})
	res, err := d.Discover(context.Background(), nil, src)
	require.NoError(t, err)
	assert.Len(t, res.Links, 2)
	assert.NotEmpty(t, res.ContentHash)

	again, err := d.Discover(context.Background(), nil, src)
	require.NoError(t, err)
	assert.Equal(t, res.ContentHash, again.ContentHash)
}

func TestFeedDiscovererFailsWhenEveryFeedFails(t *testing.T) {
	src := domain.SourceConfig{Name: "wire", Type: domain.SourceTypeRSS, FeedURLs: []string{"https://wire.test/rss"}}
	reader := fakeFeedReader{res: feeds.Result{Failures: []domain.LinkFailure{{URL: "https://wire.test/rss", Err: errors.New("boom")}}}}

	_, err := NewFeedDiscoverer(reader).Discover(context.Background(), nil, src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestRegistryResolvesByType(t *testing.T) {
	listing := NewListingDiscoverer(ListingOptions{}, nil)
	rss := NewFeedDiscoverer(fakeFeedReader{})
	reg := NewDiscovererRegistry(map[string]Discoverer{"Listing": listing, "rss": rss})

	d, err := reg.For(domain.SourceConfig{Name: "a"})
	require.NoError(t, err)
	assert.Same(t, listing, d)

	d, err = reg.For(domain.SourceConfig{Name: "b", Type: " RSS "})
	require.NoError(t, err)
	assert.Equal(t, rss, d)

	_, err = reg.For(domain.SourceConfig{Name: "c", Type: "carrier-pigeon"})
	require.Error(t, err)
	assert.True(t, domain.IsConfiguration(err))
}
