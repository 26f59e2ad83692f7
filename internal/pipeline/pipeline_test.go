package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/tibia-housing-crawler/internal/extract"
	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
	"github.com/JakeFAU/tibia-housing-crawler/internal/ingest"
	"github.com/JakeFAU/tibia-housing-crawler/internal/retry"
	"github.com/JakeFAU/tibia-housing-crawler/internal/storage/memory"
)

const testBase = "https://example.test"

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Unix(1700000000, 0) }

type row struct {
	id     int64
	name   string
	town   string
	status string
}

func worldsPage(names ...string) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="TableContainer"><div class="Text">Game World Overview</div><table>`)
	for _, n := range names {
		fmt.Fprintf(&b, `<tr class="Odd"><td><a>%s</a></td><td>1</td><td>Europe</td><td>Open PvP</td><td></td><td></td></tr>`, n)
	}
	b.WriteString(`</table></div></body></html>`)
	return b.String()
}

func housesPage(next string, rows ...row) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="TableContainer"><div class="TableContent"><table>`)
	for _, r := range rows {
		fmt.Fprintf(&b, `<tr bgcolor="#F1E0C6"><td>%s</td><td>50 sqm</td><td>1k gold</td><td>%s</td>`+
			`<td><form><input type="hidden" name="houseid" value="%d"/><input type="hidden" name="town" value="%s"/></form></td></tr>`,
			r.name, r.status, r.id, r.town)
	}
	b.WriteString(`</table></div>`)
	if next != "" {
		fmt.Fprintf(&b, `<div class="PageNavigation"><a href="%s">Next</a></div>`, next)
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

type fakeFetcher struct {
	mu     sync.Mutex
	pages  map[string]string
	fail   map[string]int
	calls  map[string]int
	always error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: map[string]string{}, fail: map[string]int{}, calls: map[string]int{}}
}

func key(d housing.Descriptor) string {
	if d.URL != "" {
		return d.URL
	}
	if d.Page == housing.PageWorlds {
		return "worlds"
	}
	return fmt.Sprintf("%s|%s|%s", d.World, d.Town, d.Category)
}

func (f *fakeFetcher) FetchText(_ context.Context, d housing.Descriptor) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := key(d)
	f.calls[k]++
	if f.always != nil {
		return "", f.always
	}
	if f.fail[k] > 0 {
		f.fail[k]--
		return "", &housing.HTTPError{StatusCode: 503, URL: k}
	}
	if page, ok := f.pages[k]; ok {
		return page, nil
	}
	return housesPage(""), nil
}

func (f *fakeFetcher) callCount(k string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[k]
}

func newPipeline(t *testing.T, fetcher housing.Fetcher, sink housing.Sink, opts Options) *Pipeline {
	t.Helper()
	retrier := retry.New(retry.Config{MaxAttempts: 3, Base: 2, Unit: time.Millisecond}, nil,
		retry.WithSleeper(func(context.Context, time.Duration) error { return nil }))
	if opts.Policy.Concurrency == 0 {
		opts.Policy.Concurrency = 2
	}
	if opts.MaxPages == 0 {
		opts.MaxPages = 5
	}
	p, err := New(fetcher, extract.New(testBase, nil), retrier, sink, fixedClock{}, nil, opts)
	require.NoError(t, err)
	return p
}

func TestRunEndToEnd(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["worlds"] = worldsPage("Antica", "Zunera", "Secura Test")
	fetcher.pages["Antica|Thais|houses"] = housesPage("/next?p=2",
		row{id: 1, name: "Market Street 1", town: "Thais", status: "rented"},
		row{id: 2, name: "Market Street 2", town: "Thais", status: "available"},
	)
	fetcher.pages[testBase+"/next?p=2"] = housesPage("",
		row{id: 3, name: "Market Street 3", town: "Thais", status: "auctioned (no bid yet)"},
	)
	fetcher.pages["Antica|Thais|guildhalls"] = housesPage("",
		row{id: 100, name: "Warriors' Guildhall", town: "Thais", status: "rented"},
	)
	fetcher.pages["Antica|Venore|houses"] = housesPage("",
		row{id: 4, name: "Canal 4", town: "Venore", status: "available"},
	)
	fetcher.fail["Antica|Venore|houses"] = 2

	store := memory.NewStore()
	sink, err := ingest.New(store, fixedClock{}, nil)
	require.NoError(t, err)

	p := newPipeline(t, fetcher, sink, Options{PerTown: true, Towns: []string{"Thais", "Venore"}})
	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Servers)
	assert.Equal(t, 4, stats.Houses)
	assert.Equal(t, 1, stats.Guildhalls)
	assert.Equal(t, 3, fetcher.callCount("Antica|Venore|houses"))
	assert.Zero(t, fetcher.callCount("Secura Test|Thais|houses"))

	ref, ok := store.ServerRef(housing.ServerID("Antica"))
	require.True(t, ok)
	rows := store.Listings(ref)
	require.Len(t, rows, 5)
	assert.True(t, rows[0].Listing.Guildhall)

	_, ok = store.ServerRef(housing.ServerID("Zunera"))
	assert.False(t, ok, "worlds without listings are not persisted")
}

func TestRunReingestIsIdempotent(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["worlds"] = worldsPage("Alpha", "Alpha Test")
	fetcher.pages["Alpha||houses"] = housesPage("",
		row{id: 1, name: "Harbour 1", town: "Thais", status: "rented"},
		row{id: 2, name: "Harbour 2", town: "Thais", status: "available"},
	)

	store := memory.NewStore()
	sink, err := ingest.New(store, fixedClock{}, nil)
	require.NoError(t, err)
	p := newPipeline(t, fetcher, sink, Options{})

	_, err = p.Run(context.Background())
	require.NoError(t, err)

	fetcher.mu.Lock()
	fetcher.pages["Alpha||houses"] = housesPage("",
		row{id: 2, name: "Harbour 2 Renovated", town: "Thais", status: "rented"},
		row{id: 3, name: "Harbour 3", town: "Thais", status: "auctioned (no bid yet)"},
	)
	fetcher.mu.Unlock()

	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Servers)
	assert.Equal(t, 2, stats.Houses)

	_, ok := store.ServerRef(housing.ServerID("Alpha Test"))
	assert.False(t, ok)
	assert.Zero(t, fetcher.callCount("Alpha Test||houses"))

	ref, ok := store.ServerRef(housing.ServerID("Alpha"))
	require.True(t, ok)
	rows := store.Listings(ref)
	require.Len(t, rows, 3)

	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.Listing.ID)
	}
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.Equal(t, "Harbour 2 Renovated", rows[1].Listing.Name)
	assert.Equal(t, housing.StatusRented, rows[1].Listing.Status)
}

// slowFetcher delays listing fetches and records how many overlap.
type slowFetcher struct {
	inner *fakeFetcher
	delay time.Duration

	mu       sync.Mutex
	inFlight int
	peak     int
}

func (f *slowFetcher) FetchText(ctx context.Context, d housing.Descriptor) (string, error) {
	if d.Page == housing.PageWorlds {
		return f.inner.FetchText(ctx, d)
	}
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.peak {
		f.peak = f.inFlight
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	time.Sleep(f.delay)
	return f.inner.FetchText(ctx, d)
}

func TestCollectFansOutThroughBatchRunner(t *testing.T) {
	t.Parallel()

	inner := newFakeFetcher()
	inner.pages["worlds"] = worldsPage("Antica")
	inner.pages["Antica|Thais|houses"] = housesPage("", row{id: 1, name: "A", town: "Thais", status: "rented"})
	inner.pages["Antica|Venore|houses"] = housesPage("", row{id: 2, name: "B", town: "Venore", status: "rented"})
	inner.pages["Antica|Carlin|guildhalls"] = housesPage("", row{id: 3, name: "C Guildhall", town: "Carlin", status: "rented"})
	fetcher := &slowFetcher{inner: inner, delay: 20 * time.Millisecond}

	store := memory.NewStore()
	sink, err := ingest.New(store, fixedClock{}, nil)
	require.NoError(t, err)
	p := newPipeline(t, fetcher, sink, Options{
		Policy:  housing.RequestPolicy{Concurrency: 3},
		PerTown: true,
		Towns:   []string{"Thais", "Venore", "Carlin"},
	})

	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Houses)
	assert.Equal(t, 1, stats.Guildhalls)

	fetcher.mu.Lock()
	peak := fetcher.peak
	fetcher.mu.Unlock()
	assert.LessOrEqual(t, peak, 3)
	assert.Greater(t, peak, 1)
}

func TestRunExhaustionIsFatal(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.always = &housing.BlockedError{URL: "worlds", Marker: "Just a moment..."}

	p := newPipeline(t, fetcher, ingestSink(t), Options{PerTown: true, Towns: []string{"Thais"}})
	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.ErrorIs(t, err, housing.ErrBlocked)
	assert.Equal(t, 3, fetcher.callCount("worlds"))
}

func TestRunListingExhaustionStopsRun(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["worlds"] = worldsPage("Antica")
	fetcher.fail["Antica|Thais|houses"] = 10

	p := newPipeline(t, fetcher, ingestSink(t), Options{PerTown: true, Towns: []string{"Thais", "Venore"}})
	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, retry.ErrExhausted)
	assert.Zero(t, fetcher.callCount("Antica|Venore|houses"))
}

func TestRunMaintenanceIsFatal(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["worlds"] = "<html><body><p>Maintenance</p></body></html>"

	p := newPipeline(t, fetcher, ingestSink(t), Options{PerTown: true, Towns: []string{"Thais"}})
	_, err := p.Run(context.Background())
	require.ErrorIs(t, err, extract.ErrMaintenance)
	assert.True(t, IsFatal(err))

	fetcher = newFakeFetcher()
	fetcher.pages["worlds"] = worldsPage("Antica")
	fetcher.pages["Antica|Thais|houses"] = "<html><body>down</body></html>"
	p = newPipeline(t, fetcher, ingestSink(t), Options{PerTown: true, Towns: []string{"Thais"}})
	_, err = p.Run(context.Background())
	require.ErrorIs(t, err, extract.ErrMaintenance)
}

func TestFetchListingHonoursMaxPages(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["Antica||houses"] = housesPage("/p/2", row{id: 1, name: "A", town: "Thais", status: "rented"})
	fetcher.pages[testBase+"/p/2"] = housesPage("/p/3", row{id: 2, name: "B", town: "Thais", status: "rented"})
	fetcher.pages[testBase+"/p/3"] = housesPage("/p/4", row{id: 3, name: "C", town: "Thais", status: "rented"})

	p := newPipeline(t, fetcher, ingestSink(t), Options{MaxPages: 2})
	got, err := p.fetchListing(context.Background(), housing.Server{ID: 1, Name: "Antica"},
		housing.ListingPage("Antica", "", housing.CategoryHouses))
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Zero(t, fetcher.callCount(testBase+"/p/3"))
}

func TestFetchListingStopsOnPaginationLoop(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["Antica||houses"] = housesPage("/p/2", row{id: 1, name: "A", town: "Thais", status: "rented"})
	fetcher.pages[testBase+"/p/2"] = housesPage("/p/2", row{id: 2, name: "B", town: "Thais", status: "rented"})

	p := newPipeline(t, fetcher, ingestSink(t), Options{MaxPages: 10})
	got, err := p.fetchListing(context.Background(), housing.Server{ID: 1, Name: "Antica"},
		housing.ListingPage("Antica", "", housing.CategoryHouses))
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 1, fetcher.callCount(testBase+"/p/2"))
}

type failingSink struct{}

func (failingSink) Persist(_ context.Context, s housing.Server, l []housing.Listing) (housing.ServerResult, error) {
	return housing.ServerResult{Server: s.Name, Failed: len(l)}, errors.New("db down")
}

func TestScrapeServerPersistFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["Antica||houses"] = housesPage("", row{id: 1, name: "A", town: "Thais", status: "rented"})

	p := newPipeline(t, fetcher, failingSink{}, Options{})
	res, err := p.ScrapeServer(context.Background(), housing.Server{ID: 1, Name: "Antica"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
}

func TestDiscoverFiltersServers(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["worlds"] = worldsPage("Antica", "Zunera", "Belobra")

	p := newPipeline(t, fetcher, ingestSink(t), Options{Servers: []string{"Zunera", "Missing"}})
	servers, err := p.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "Zunera", servers[0].Name)
	assert.Equal(t, housing.ServerID("Zunera"), servers[0].ID)
}

func TestRunNoServers(t *testing.T) {
	t.Parallel()

	fetcher := newFakeFetcher()
	fetcher.pages["worlds"] = worldsPage()

	p := newPipeline(t, fetcher, ingestSink(t), Options{})
	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Servers)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	retrier := retry.New(retry.Config{}, nil)
	_, err := New(nil, extract.New("", nil), retrier, failingSink{}, fixedClock{}, nil, Options{})
	assert.Error(t, err)
	_, err = New(newFakeFetcher(), extract.New("", nil), retrier, nil, fixedClock{}, nil, Options{})
	assert.Error(t, err)
}

func ingestSink(t *testing.T) housing.Sink {
	t.Helper()
	sink, err := ingest.New(memory.NewStore(), fixedClock{}, nil)
	require.NoError(t, err)
	return sink
}
