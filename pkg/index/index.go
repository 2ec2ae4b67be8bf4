// Package index queries the package index for published versions. The
// index exposes no JSON API; the contract is a "simple" HTML directory
// listing per package, so the client scrapes artifact filenames out of
// anchor tags and derives versions from them.
package index

import (
	"context"
	"io/ioutil"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// ErrNotPublished means the index has never seen the package. This is a
// normal state for a freshly onboarded package, distinct from a transient
// query failure.
var ErrNotPublished = errors.New("package not published in index")

// Client answers "what is the highest published version of this package".
// It is an interface so we can wrap it in instrumentation and caching, and
// substitute fakes in tests.
type Client interface {
	LatestVersion(ctx context.Context, name string) (string, error)
}

const sdistSuffix = ".tar.gz"

var anchorPattern = regexp.MustCompile(`<a[^>]*>([^<]*\.tar\.gz)</a>`)

// Remote scrapes the live index over HTTPS, rate limited so sweeps over
// the whole catalog don't hammer it.
type Remote struct {
	BaseURL string
	HTTP    *http.Client
	Limiter *rate.Limiter
}

// NewRemote returns a Remote with a bounded request timeout and the given
// requests-per-second budget.
func NewRemote(baseURL string, rps float64, burst int) *Remote {
	return &Remote{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
		Limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (r *Remote) LatestVersion(ctx context.Context, name string) (string, error) {
	if r.Limiter != nil {
		if err := r.Limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	url := strings.TrimSuffix(r.BaseURL, "/") + "/" + name + "/"
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return "", err
	}
	req = req.WithContext(ctx)

	client := r.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "querying index for %s", name)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotPublished
	case resp.StatusCode != http.StatusOK:
		return "", errors.Errorf("index returned %s for %s", resp.Status, name)
	}

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrapf(err, "reading index listing for %s", name)
	}

	versions := versionsFromListing(string(body))
	if len(versions) == 0 {
		return "", errors.Errorf("no source distributions in index listing for %s", name)
	}
	return latest(versions), nil
}

// versionsFromListing extracts the version component of every source
// distribution filename in the listing. Filenames look like
// name-1.2.3.tar.gz; the version is whatever follows the final dash.
func versionsFromListing(listing string) []string {
	var versions []string
	for _, m := range anchorPattern.FindAllStringSubmatch(listing, -1) {
		filename := strings.TrimSuffix(m[1], sdistSuffix)
		dash := strings.LastIndex(filename, "-")
		if dash < 0 || dash == len(filename)-1 {
			continue
		}
		versions = append(versions, filename[dash+1:])
	}
	return versions
}

// latest picks the highest version. Semantic ordering when every entry
// parses, plain string ordering otherwise; the latter matches how the index
// itself sorts listings.
func latest(versions []string) string {
	parsed := make([]*semver.Version, 0, len(versions))
	for _, v := range versions {
		sv, err := semver.NewVersion(v)
		if err != nil {
			sort.Strings(versions)
			return versions[len(versions)-1]
		}
		parsed = append(parsed, sv)
	}
	best := 0
	for i := 1; i < len(parsed); i++ {
		if parsed[i].GreaterThan(parsed[best]) {
			best = i
		}
	}
	return versions[best]
}
