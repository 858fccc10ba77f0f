package crawler

import (
	"testing"
	"time"

	"github.com/samvad-hq/samvad-article-pipeline/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePrefersPageFieldsOverLinkMetadata(t *testing.T) {
	published := time.Date(2025, 3, 4, 8, 0, 0, 0, time.FixedZone("IST", 5*3600+1800))
	linkDate := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := NewFormatter(domain.SourceConfig{Name: "daily", BaseURL: "https://news.test"})

	art, err := f.Normalize(
		domain.CandidateLink{URL: "/a1", Title: "Listing title", FeaturedImage: "/thumb.jpg", PublishedAt: &linkDate},
		domain.PageFields{
			Title:         "  Page   title ",
			Body:          "Body",
			Author:        "  Jane  Doe ",
			PublishedAt:   &published,
			FeaturedImage: "/hero.jpg",
			Keywords:      []string{"Politics", "politics", " Economy "},
		},
		"",
	)
	require.NoError(t, err)
	assert.Equal(t, "https://news.test/a1", art.URL)
	assert.Equal(t, ArticleID("https://news.test/a1"), art.ID)
	assert.Equal(t, "Page title", art.Title)
	assert.Equal(t, "Jane Doe", art.Author)
	assert.Equal(t, "https://news.test/hero.jpg", art.FeaturedImage)
	assert.Equal(t, []string{"politics", "economy"}, art.Keywords)
	assert.Equal(t, "daily", art.SourceName)
	require.NotNil(t, art.PublishedAt)
	assert.Equal(t, time.UTC, art.PublishedAt.Location())
	assert.True(t, art.PublishedAt.Equal(published))
}

func TestNormalizeFallsBackToLinkMetadata(t *testing.T) {
	linkDate := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	f := NewFormatter(domain.SourceConfig{Name: "daily", BaseURL: "https://news.test"})

	art, err := f.Normalize(
		domain.CandidateLink{URL: "https://news.test/a1", Title: "Listing title", FeaturedImage: "/thumb.jpg", PublishedAt: &linkDate, Source: "daily"},
		domain.PageFields{ContainerText: "Container text"},
		"https://news.test/a1",
	)
	require.NoError(t, err)
	assert.Equal(t, "Listing title", art.Title)
	assert.Equal(t, "Container text", art.Body)
	assert.Equal(t, "https://news.test/thumb.jpg", art.FeaturedImage)
	assert.Equal(t, &linkDate, art.PublishedAt)
	assert.NotNil(t, art.Keywords)
}

func TestNormalizeFollowsRedirectOrigin(t *testing.T) {
	f := NewFormatter(domain.SourceConfig{Name: "daily", BaseURL: "https://news.test"})

	art, err := f.Normalize(
		domain.CandidateLink{URL: "https://news.test/a1"},
		domain.PageFields{Title: "Moved", FeaturedImage: "/img/a.jpg"},
		"https://m.news.test/story/a1",
	)
	require.NoError(t, err)
	assert.Equal(t, "https://m.news.test/story/a1", art.URL)
	assert.Equal(t, ArticleID("https://m.news.test/story/a1"), art.ID)
	assert.Equal(t, "https://m.news.test/img/a.jpg", art.FeaturedImage)
	assert.Equal(t, "https://m.news.test/", f.Base())

	// later articles in the batch resolve against the new origin
	next, err := f.Normalize(domain.CandidateLink{URL: "/a2"}, domain.PageFields{}, "")
	require.NoError(t, err)
	assert.Equal(t, "https://m.news.test/a2", next.URL)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	published := time.Date(2025, 3, 4, 8, 0, 0, 0, time.UTC)
	f := NewFormatter(domain.SourceConfig{Name: "daily", BaseURL: "https://news.test"})

	first, err := f.Normalize(
		domain.CandidateLink{URL: "/a1#top", Title: "Title"},
		domain.PageFields{Body: " Some\n body ", Author: "A  B", PublishedAt: &published, FeaturedImage: "hero.jpg", Keywords: []string{"X", "y"}},
		"",
	)
	require.NoError(t, err)

	second, err := f.Normalize(
		domain.CandidateLink{URL: first.URL, Source: first.SourceName},
		domain.PageFields{
			Title:         first.Title,
			Body:          first.Body,
			Author:        first.Author,
			PublishedAt:   first.PublishedAt,
			FeaturedImage: first.FeaturedImage,
			Keywords:      first.Keywords,
		},
		first.URL,
	)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNormalizeRejectsNonHTTPURL(t *testing.T) {
	f := NewFormatter(domain.SourceConfig{Name: "daily"})

	_, err := f.Normalize(domain.CandidateLink{URL: "/relative-without-base"}, domain.PageFields{}, "")
	require.Error(t, err)

	_, err = f.Normalize(domain.CandidateLink{URL: "https://news.test/a"}, domain.PageFields{}, "ftp://news.test/a")
	require.Error(t, err)
}

func TestArticleIDIsStable(t *testing.T) {
	assert.Equal(t, ArticleID("https://news.test/a1"), ArticleID("https://news.test/a1"))
	assert.NotEqual(t, ArticleID("https://news.test/a1"), ArticleID("https://news.test/a2"))
	assert.Len(t, ArticleID("x"), 40)
}
