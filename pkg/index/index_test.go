package index

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listingFor(files ...string) string {
	page := "<html><body>\n"
	for _, f := range files {
		page += fmt.Sprintf(`<a href="../../packages/%s#sha256=abc">%s</a><br/>`+"\n", f, f)
	}
	return page + "</body></html>\n"
}

func indexServer(t *testing.T, listings map[string]string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		listing, ok := listings[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, listing)
	}))
}

func TestLatestVersion(t *testing.T) {
	server := indexServer(t, map[string]string{
		"/alpha/": listingFor(
			"alpha-1.9.0.tar.gz",
			"alpha-1.10.0.tar.gz", // numerically, not lexically, the highest
			"alpha-1.2.0.tar.gz",
			"alpha-1.10.0-py3-none-any.whl",
		),
	})
	defer server.Close()

	remote := NewRemote(server.URL, 100, 10)
	version, err := remote.LatestVersion(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, "1.10.0", version)
}

func TestLatestVersionNotPublished(t *testing.T) {
	server := indexServer(t, nil)
	defer server.Close()

	remote := NewRemote(server.URL, 100, 10)
	_, err := remote.LatestVersion(context.Background(), "never-released")
	assert.Equal(t, ErrNotPublished, err)
}

func TestLatestVersionServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream broke", http.StatusBadGateway)
	}))
	defer server.Close()

	remote := NewRemote(server.URL, 100, 10)
	_, err := remote.LatestVersion(context.Background(), "alpha")
	require.Error(t, err)
	assert.NotEqual(t, ErrNotPublished, err, "a transient failure is not the same as absence")
}

func TestVersionsFromListing(t *testing.T) {
	listing := listingFor(
		"zope-interface-6.1.tar.gz", // dashes in the name itself
		"zope-interface-6.2.tar.gz",
		"zope_interface-6.0.tar.gz",
	)
	assert.Equal(t, []string{"6.1", "6.2", "6.0"}, versionsFromListing(listing))
}

func TestLatestFallsBackToStringOrdering(t *testing.T) {
	// Post-releases aren't semver; string ordering matches how the index
	// sorts listings, which is the best we can do for such schemes.
	assert.Equal(t, "1.0.post1", latest([]string{"1.0.post1", "0.9"}))
	assert.Equal(t, "1.10.0", latest([]string{"1.9.0", "1.10.0"}))
}
