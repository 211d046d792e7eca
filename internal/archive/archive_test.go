package archive_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/shufersal-scraper/internal/archive"
	"github.com/JakeFAU/shufersal-scraper/internal/fetcher/fetchertest"
	"github.com/JakeFAU/shufersal-scraper/internal/hash/sha256"
	"github.com/JakeFAU/shufersal-scraper/internal/storage"
	"github.com/JakeFAU/shufersal-scraper/internal/storage/local"
	"github.com/JakeFAU/shufersal-scraper/internal/storage/memory"
)

const page = "https://www.shufersal.co.il/online/he/A01"

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var clock = fixedClock{t: time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC)}

func TestFetchArchivesBody(t *testing.T) {
	t.Parallel()
	fetcher := fetchertest.New(map[string]string{page: "<html>dairy</html>"})
	store := new(storage.MockBlobStore)
	a, err := archive.New(fetcher, store, sha256.New(), clock, "pages", nil)
	require.NoError(t, err)

	name, err := a.ObjectName(page)
	require.NoError(t, err)
	assert.Regexp(t, `^pages/2026-10-17/[0-9a-f]{64}\.html$`, name)

	store.On("PutObject", mock.Anything, name, "text/html; charset=utf-8", "<html>dairy</html>").
		Return("file:///tmp/"+name, nil).Once()

	got, err := a.Fetch(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "<html>dairy</html>", string(got.Body))
	store.AssertExpectations(t)
}

func TestFetchFailureSkipsArchive(t *testing.T) {
	t.Parallel()
	fetcher := fetchertest.New(nil)
	fetcher.FailWithStatus(page, 503)
	store := new(storage.MockBlobStore)
	a, err := archive.New(fetcher, store, sha256.New(), clock, "", nil)
	require.NoError(t, err)

	_, err = a.Fetch(context.Background(), page)
	require.Error(t, err)
	store.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestArchiveErrorDoesNotFailFetch(t *testing.T) {
	t.Parallel()
	fetcher := fetchertest.New(map[string]string{page: "<html></html>"})
	store := new(storage.MockBlobStore)
	store.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("bucket gone"))
	a, err := archive.New(fetcher, store, sha256.New(), clock, "pages", nil)
	require.NoError(t, err)

	_, err = a.Fetch(context.Background(), page)
	assert.NoError(t, err)
	store.AssertNumberOfCalls(t, "PutObject", 1)
}

func TestArchiveToLocalDir(t *testing.T) {
	t.Parallel()
	fetcher := fetchertest.New(map[string]string{page: "<html>x</html>"})
	store, err := local.New(local.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	a, err := archive.New(fetcher, store, sha256.New(), clock, "run", nil)
	require.NoError(t, err)

	_, err = a.Fetch(context.Background(), page)
	require.NoError(t, err)
	_, err = a.Fetch(context.Background(), page)
	require.NoError(t, err, "same day overwrites the same object")
}

func TestArchiveKeepsEveryURL(t *testing.T) {
	t.Parallel()
	other := page + "?page=1"
	fetcher := fetchertest.New(map[string]string{page: "first", other: "second"})
	store := memory.NewBlobStore()
	a, err := archive.New(fetcher, store, sha256.New(), clock, "pages", nil)
	require.NoError(t, err)

	for _, u := range []string{page, other, page} {
		_, err := a.Fetch(context.Background(), u)
		require.NoError(t, err)
	}
	require.Len(t, store.Paths(), 2)

	name, err := a.ObjectName(other)
	require.NoError(t, err)
	data, ok := store.Object(name)
	require.True(t, ok)
	assert.Equal(t, "second", string(data))
}

func TestNewValidation(t *testing.T) {
	t.Parallel()
	fetcher := fetchertest.New(nil)
	store := storage.NoOpBlobStore{}
	_, err := archive.New(nil, store, sha256.New(), clock, "", nil)
	assert.Error(t, err)
	_, err = archive.New(fetcher, nil, sha256.New(), clock, "", nil)
	assert.Error(t, err)
	_, err = archive.New(fetcher, store, nil, clock, "", nil)
	assert.Error(t, err)
	_, err = archive.New(fetcher, store, sha256.New(), nil, "", nil)
	assert.Error(t, err)
}
