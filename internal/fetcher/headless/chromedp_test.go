package headless

import (
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/shufersal-scraper/internal/catalog"
)

const listingURL = "https://shop.example/online/he/dairy"

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	f, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, defaultSettleDelay, f.cfg.SettleDelay)
	assert.Equal(t, defaultNavTimeout, f.cfg.NavigationTimeout)
	assert.NotNil(t, f.tabs)

	unlimited, err := NewChromedp(Config{})
	require.NoError(t, err)
	defer unlimited.Close()
	assert.Nil(t, unlimited.tabs)
}

func TestPageFromRenderRejectsErrorStatus(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusForbidden, http.StatusNotFound, http.StatusInternalServerError} {
		page, err := pageFromRender(listingURL, rendered{
			html:   "<html><body>blocked</body></html>",
			status: status,
		})
		var fetchErr *catalog.FetchError
		require.ErrorAs(t, err, &fetchErr, "status %d", status)
		assert.Equal(t, status, fetchErr.StatusCode)
		assert.Equal(t, listingURL, fetchErr.URL)
		assert.Empty(t, page.Body)
	}
}

func TestPageFromRenderKeepsDocument(t *testing.T) {
	t.Parallel()

	page, err := pageFromRender(listingURL, rendered{
		html:        "<html><body><li class=\"miglog-prod\"></li></body></html>",
		location:    listingURL + "?page=1",
		status:      http.StatusOK,
		headers:     http.Header{"Content-Type": {"text/html"}},
		responseURL: listingURL + "/",
		elapsed:     time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, listingURL, page.URL)
	assert.Equal(t, listingURL+"/", page.FinalURL)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, "text/html", page.Headers.Get("Content-Type"))
	assert.Contains(t, string(page.Body), "miglog-prod")
	assert.Equal(t, time.Second, page.Duration)

	// No document event: status defaults to 200 and the tab location wins.
	page, err = pageFromRender(listingURL, rendered{html: "<html></html>", location: listingURL + "?page=2"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, page.StatusCode)
	assert.Equal(t, listingURL+"?page=2", page.FinalURL)
	assert.NotNil(t, page.Headers)
}

func TestDocumentResponseTracksLastDocument(t *testing.T) {
	t.Parallel()

	doc := &documentResponse{}
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 301, URL: listingURL},
	})
	doc.observe(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  403,
			URL:     listingURL + "/",
			Headers: network.Headers{"Set-Cookie": []any{"a=1", "b=2"}, "Server": "edge"},
		},
	})
	doc.observe(&network.EventResponseReceived{
		Type:     network.ResourceTypeImage,
		Response: &network.Response{Status: 200, URL: "https://shop.example/logo.png"},
	})
	doc.observe(&network.EventLoadingFinished{})

	status, headers, url := doc.snapshot()
	assert.Equal(t, 403, status)
	assert.Equal(t, listingURL+"/", url)
	assert.Equal(t, []string{"a=1", "b=2"}, headers.Values("Set-Cookie"))
	assert.Equal(t, "edge", headers.Get("Server"))

	_, err := pageFromRender(listingURL, rendered{status: status, headers: headers, responseURL: url})
	var fetchErr *catalog.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusForbidden, fetchErr.StatusCode)
}

func TestNetworkHeaders(t *testing.T) {
	t.Parallel()

	out := networkHeaders(http.Header{
		"Accept-Language": {"he-IL"},
		"X-Trace":         {"a", "b"},
		"X-Empty":         {},
	})
	assert.Equal(t, network.Headers{
		"Accept-Language": "he-IL",
		"X-Trace":         []string{"a", "b"},
	}, out)
}
