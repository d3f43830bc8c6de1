package refresh

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/raykavin/rsdash/pkg/client"
	"github.com/raykavin/rsdash/pkg/core"
	"github.com/stretchr/testify/require"
)

type fakeChart struct {
	sync.Mutex
	configs []core.ChartConfig
	err     error
}

func (f *fakeChart) Update(config core.ChartConfig) error {
	f.Lock()
	defer f.Unlock()
	if f.err != nil {
		return f.err
	}
	f.configs = append(f.configs, config)
	return nil
}

func (f *fakeChart) last() core.ChartConfig {
	f.Lock()
	defer f.Unlock()
	return f.configs[len(f.configs)-1]
}

func (f *fakeChart) updates() int {
	f.Lock()
	defer f.Unlock()
	return len(f.configs)
}

type fakeRegion struct {
	sync.Mutex
	content string
	writes  int
	err     error
}

func (f *fakeRegion) SetContent(markup string) error {
	f.Lock()
	defer f.Unlock()
	if f.err != nil {
		return f.err
	}
	f.content = markup
	f.writes++
	return nil
}

func (f *fakeRegion) get() string {
	f.Lock()
	defer f.Unlock()
	return f.content
}

type touchProbe struct {
	touch atomic.Bool
}

func (p *touchProbe) TouchEnabled() bool {
	return p.touch.Load()
}

type stubFetcher struct {
	mu         sync.Mutex
	calls      []string
	gates      map[string]chan struct{}
	started    map[string]chan struct{}
	respectCtx bool
	err        error
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		gates:   make(map[string]chan struct{}),
		started: make(map[string]chan struct{}),
	}
}

// hold makes fetches of year block until the returned release is called
func (f *stubFetcher) hold(year string) (started <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate, begin := make(chan struct{}), make(chan struct{})
	f.gates[year], f.started[year] = gate, begin
	return begin, func() { close(gate) }
}

func (f *stubFetcher) Fetch(ctx context.Context, year string) (*core.Payload, error) {
	f.mu.Lock()
	f.calls = append(f.calls, year)
	gate, begin := f.gates[year], f.started[year]
	err := f.err
	f.mu.Unlock()

	if begin != nil {
		close(begin)
	}
	if gate != nil {
		if f.respectCtx {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		} else {
			<-gate
		}
	}

	if err != nil {
		return nil, err
	}
	return payloadFor(year), nil
}

func (f *stubFetcher) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func payloadFor(year string) *core.Payload {
	return &core.Payload{
		WorldMap:       fmt.Sprintf("<svg>%s-ndvi</svg>", year),
		WorldMap2:      fmt.Sprintf("<svg>%s-lulc</svg>", year),
		WorldMap3:      fmt.Sprintf("<svg>%s-lst</svg>", year),
		NDVICategories: []string{year + "-01", year + "-02"},
		NDVIValues:     []float64{0.1, 0.2},
		LSTCategories:  []string{year + "-01"},
		LSTValues:      []float64{300.5},
	}
}

type fixture struct {
	ndvi, lst *fakeChart
	regions   [3]*fakeRegion
	targets   Targets
}

func newFixture() *fixture {
	f := &fixture{ndvi: &fakeChart{}, lst: &fakeChart{}}
	f.targets.NDVI, f.targets.LST = f.ndvi, f.lst
	for i := range f.regions {
		f.regions[i] = &fakeRegion{}
		f.targets.Maps[i] = f.regions[i]
	}
	return f
}

type recordingNotifier struct {
	sync.Mutex
	refreshed []string
	errors    []error
}

func (n *recordingNotifier) Notify(string) {}

func (n *recordingNotifier) OnRefresh(year string) {
	n.Lock()
	defer n.Unlock()
	n.refreshed = append(n.refreshed, year)
}

func (n *recordingNotifier) OnError(err error) {
	n.Lock()
	defer n.Unlock()
	n.errors = append(n.errors, err)
}

type memoryRecorder struct {
	sync.Mutex
	records []core.RefreshRecord
}

func (m *memoryRecorder) Record(_ context.Context, record core.RefreshRecord) error {
	m.Lock()
	defer m.Unlock()
	m.records = append(m.records, record)
	return nil
}

func TestNew_Validation(t *testing.T) {
	fx := newFixture()

	_, err := New(nil, fx.targets)
	require.Error(t, err)

	targets := fx.targets
	targets.LST = nil
	_, err = New(newStubFetcher(), targets)
	require.Error(t, err)

	targets = fx.targets
	targets.Maps[2] = nil
	_, err = New(newStubFetcher(), targets)
	require.ErrorContains(t, err, "region 3")
}

func TestController_Refresh_AppliesPayload(t *testing.T) {
	fx := newFixture()
	fetcher := newStubFetcher()

	controller, err := New(fetcher, fx.targets)
	require.NoError(t, err)

	require.NoError(t, controller.Refresh(context.Background(), "2021"))
	require.Equal(t, []string{"2021"}, fetcher.requested())

	require.Equal(t, "<svg>2021-ndvi</svg>", fx.regions[0].get())
	require.Equal(t, "<svg>2021-lulc</svg>", fx.regions[1].get())
	require.Equal(t, "<svg>2021-lst</svg>", fx.regions[2].get())

	ndvi := fx.ndvi.last()
	require.Equal(t, "NDVI TIME SERIES", ndvi.Title.Text)
	require.Equal(t, []string{"2021-01", "2021-02"}, ndvi.Categories())
	require.Equal(t, []float64{0.1, 0.2}, ndvi.Data())
	require.Equal(t, "NDVI", ndvi.YAxis.Title.Text)
	require.Equal(t, PointerHint, ndvi.Subtitle.Text)

	lst := fx.lst.last()
	require.Equal(t, "LST TIME SERIES", lst.Title.Text)
	require.Equal(t, "LST_Day_1km", lst.YAxis.Title.Text)
	require.Equal(t, "LST Data", lst.Series[0].Name)
	require.Equal(t, []float64{300.5}, lst.Data())

	year, gen := controller.Current()
	require.Equal(t, "2021", year)
	require.Equal(t, uint64(1), gen)
}

func TestController_Refresh_SingleRequest(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.URL.RequestURI())
		mu.Unlock()

		fmt.Fprint(w, `{"world_map":"<svg>A</svg>","world_map2":"<svg>B</svg>","world_map3":"<svg>C</svg>",
			"graph1AXA":["2021-01","2021-02"],"graph1AYA":[0.1,0.2],"graph1AX":["2021-01"],"graph1AY":[299.1]}`)
	}))
	defer server.Close()

	fetcher, err := client.New(server.URL)
	require.NoError(t, err)

	fx := newFixture()
	controller, err := New(fetcher, fx.targets)
	require.NoError(t, err)

	for _, year := range []string{"2019", "20 21"} {
		mu.Lock()
		requests = nil
		mu.Unlock()

		require.NoError(t, controller.Refresh(context.Background(), year))

		mu.Lock()
		require.Len(t, requests, 1)
		require.Equal(t, client.Route+"?year="+map[string]string{"2019": "2019", "20 21": "20+21"}[year], requests[0])
		mu.Unlock()
	}

	require.Equal(t, "<svg>A</svg>", fx.regions[0].get())
	require.Equal(t, []float64{0.1, 0.2}, fx.ndvi.last().Data())
}

func TestController_ChangeYear(t *testing.T) {
	tt := []struct {
		name   string
		source core.YearSource
		want   string
	}{
		{name: "no selector", source: nil, want: "2021"},
		{name: "empty selector", source: core.StaticYear(""), want: "2021"},
		{name: "blank selector", source: core.StaticYear("  "), want: "2021"},
		{name: "selected", source: core.StaticYear("2019"), want: "2019"},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture()
			fetcher := newStubFetcher()

			controller, err := New(fetcher, fx.targets, WithYearSource(tc.source))
			require.NoError(t, err)

			require.NoError(t, controller.ChangeYear(context.Background()))
			require.Equal(t, []string{tc.want}, fetcher.requested())
		})
	}
}

func TestController_ChangeYear_CustomDefault(t *testing.T) {
	fx := newFixture()
	fetcher := newStubFetcher()

	controller, err := New(fetcher, fx.targets, WithDefaultYear("2020"))
	require.NoError(t, err)

	require.NoError(t, controller.ChangeYear(context.Background()))
	require.Equal(t, []string{"2020"}, fetcher.requested())
}

func TestController_Refresh_SubtitleFollowsDevice(t *testing.T) {
	fx := newFixture()
	probe := &touchProbe{}

	controller, err := New(newStubFetcher(), fx.targets, WithDevice(probe))
	require.NoError(t, err)

	require.NoError(t, controller.Refresh(context.Background(), "2021"))
	require.Equal(t, PointerHint, fx.ndvi.last().Subtitle.Text)
	require.Equal(t, PointerHint, fx.lst.last().Subtitle.Text)

	probe.touch.Store(true)
	require.NoError(t, controller.Refresh(context.Background(), "2021"))
	require.Equal(t, TouchHint, fx.ndvi.last().Subtitle.Text)
	require.Equal(t, TouchHint, fx.lst.last().Subtitle.Text)
}

func TestController_Refresh_MalformedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"world_map":"<svg>A</svg>","world_map2":"","world_map3":""}`)
	}))
	defer server.Close()

	fetcher, err := client.New(server.URL)
	require.NoError(t, err)

	var handled []error
	fx := newFixture()
	controller, err := New(fetcher, fx.targets, WithErrorHandler(func(_ string, err error) {
		handled = append(handled, err)
	}))
	require.NoError(t, err)

	require.NotPanics(t, func() {
		err = controller.Refresh(context.Background(), "2021")
	})

	var malformed *core.MalformedPayloadError
	require.True(t, errors.As(err, &malformed))
	require.Equal(t, "graph1AXA", malformed.Field)
	require.Len(t, handled, 1)

	require.Empty(t, fx.regions[0].get())
	require.Zero(t, fx.ndvi.updates())
	require.Zero(t, fx.lst.updates())

	_, gen := controller.Current()
	require.Zero(t, gen)
}

func TestController_Refresh_NilPayload(t *testing.T) {
	fx := newFixture()
	fetcher := fetcherFunc(func(context.Context, string) (*core.Payload, error) {
		return nil, nil
	})

	controller, err := New(fetcher, fx.targets)
	require.NoError(t, err)

	err = controller.Refresh(context.Background(), "2021")
	require.True(t, errors.Is(err, core.ErrMalformedPayload))
}

type fetcherFunc func(ctx context.Context, year string) (*core.Payload, error)

func (f fetcherFunc) Fetch(ctx context.Context, year string) (*core.Payload, error) {
	return f(ctx, year)
}

func TestController_Refresh_EmptyYear(t *testing.T) {
	fx := newFixture()
	fetcher := newStubFetcher()

	controller, err := New(fetcher, fx.targets)
	require.NoError(t, err)

	require.ErrorIs(t, controller.Refresh(context.Background(), ""), ErrEmptyYear)
	require.Empty(t, fetcher.requested())
}

func TestController_Refresh_PartialApply(t *testing.T) {
	fx := newFixture()
	fx.regions[1].err = errors.New("detached")

	controller, err := New(newStubFetcher(), fx.targets)
	require.NoError(t, err)

	err = controller.Refresh(context.Background(), "2020")

	var applyErr *ApplyError
	require.True(t, errors.As(err, &applyErr))
	require.Equal(t, "map region 2", applyErr.Step)

	require.Equal(t, "<svg>2020-ndvi</svg>", fx.regions[0].get())
	require.Empty(t, fx.regions[2].get())
	require.Zero(t, fx.ndvi.updates())
	require.Zero(t, fx.lst.updates())
}

func TestController_Refresh_ChartFailure(t *testing.T) {
	fx := newFixture()
	fx.lst.err = errors.New("destroyed")

	controller, err := New(newStubFetcher(), fx.targets)
	require.NoError(t, err)

	err = controller.Refresh(context.Background(), "2020")
	require.ErrorContains(t, err, "lst chart")
	require.Equal(t, 1, fx.ndvi.updates())
}

func TestController_Refresh_FetchError(t *testing.T) {
	fx := newFixture()
	fetcher := newStubFetcher()
	fetcher.err = errors.New("connection refused")
	notifier := &recordingNotifier{}
	recorder := &memoryRecorder{}

	controller, err := New(fetcher, fx.targets, WithNotifier(notifier), WithRecorder(recorder))
	require.NoError(t, err)

	err = controller.Refresh(context.Background(), "2021")
	require.ErrorContains(t, err, "connection refused")
	require.Len(t, notifier.errors, 1)
	require.Empty(t, notifier.refreshed)

	require.Len(t, recorder.records, 1)
	require.Equal(t, core.RefreshFailed, recorder.records[0].Status)
	require.Contains(t, recorder.records[0].Error, "connection refused")
}

func TestController_Refresh_NotifiesSuccess(t *testing.T) {
	fx := newFixture()
	notifier := &recordingNotifier{}
	recorder := &memoryRecorder{}

	controller, err := New(newStubFetcher(), fx.targets, WithNotifier(notifier), WithRecorder(recorder))
	require.NoError(t, err)

	require.NoError(t, controller.Refresh(context.Background(), "2019"))
	require.Equal(t, []string{"2019"}, notifier.refreshed)
	require.Len(t, recorder.records, 1)
	require.Equal(t, core.RefreshApplied, recorder.records[0].Status)
	require.Equal(t, uint64(1), recorder.records[0].Generation)
}

// A slow older refresh must not overwrite a newer one: it is cancelled and
// its result discarded.
func TestController_Overlap_LatestInvocationWins(t *testing.T) {
	fx := newFixture()
	fetcher := newStubFetcher()
	fetcher.respectCtx = true
	recorder := &memoryRecorder{}

	controller, err := New(fetcher, fx.targets, WithRecorder(recorder))
	require.NoError(t, err)
	require.Equal(t, LatestInvocation, controller.Policy())

	started, release := fetcher.hold("2019")
	defer release()

	older := controller.RefreshAsync(context.Background(), "2019")
	<-started

	require.NoError(t, controller.Refresh(context.Background(), "2020"))

	select {
	case err := <-older:
		require.ErrorIs(t, err, core.ErrSuperseded)
	case <-time.After(time.Second):
		t.Fatal("older refresh was not cancelled")
	}

	year, gen := controller.Current()
	require.Equal(t, "2020", year)
	require.Equal(t, uint64(2), gen)
	require.Equal(t, "<svg>2020-ndvi</svg>", fx.regions[0].get())
	require.Equal(t, []string{"2020-01", "2020-02"}, fx.ndvi.last().Categories())
	require.Equal(t, 1, fx.ndvi.updates())

	statuses := map[string]core.RefreshStatus{}
	for _, record := range recorder.records {
		statuses[record.Year] = record.Status
	}
	require.Equal(t, core.RefreshSuperseded, statuses["2019"])
	require.Equal(t, core.RefreshApplied, statuses["2020"])
}

// Fetchers that ignore cancellation still cannot overwrite newer results.
func TestController_Overlap_LatestInvocationDiscardsLateResult(t *testing.T) {
	fx := newFixture()
	fetcher := newStubFetcher()

	controller, err := New(fetcher, fx.targets)
	require.NoError(t, err)

	started, release := fetcher.hold("2019")
	older := controller.RefreshAsync(context.Background(), "2019")
	<-started

	require.NoError(t, controller.Refresh(context.Background(), "2020"))
	release()

	require.ErrorIs(t, <-older, core.ErrSuperseded)
	require.Equal(t, "<svg>2020-ndvi</svg>", fx.regions[0].get())
	require.Equal(t, 1, fx.ndvi.updates())
}

// Under LastCompleted the completion order decides, reproducing the
// lost update of overlapping refreshes.
func TestController_Overlap_LastCompletedWins(t *testing.T) {
	fx := newFixture()
	fetcher := newStubFetcher()

	controller, err := New(fetcher, fx.targets, WithPolicy(LastCompleted))
	require.NoError(t, err)

	started, release := fetcher.hold("2019")
	older := controller.RefreshAsync(context.Background(), "2019")
	<-started

	require.NoError(t, controller.Refresh(context.Background(), "2020"))
	require.Equal(t, "<svg>2020-ndvi</svg>", fx.regions[0].get())

	release()
	require.NoError(t, <-older)

	year, gen := controller.Current()
	require.Equal(t, "2019", year)
	require.Equal(t, uint64(1), gen)
	require.Equal(t, "<svg>2019-ndvi</svg>", fx.regions[0].get())
	require.Equal(t, []string{"2019-01", "2019-02"}, fx.ndvi.last().Categories())
	require.Equal(t, 2, fx.ndvi.updates())
}

func TestParsePolicy(t *testing.T) {
	policy, ok := ParsePolicy("last-completed")
	require.True(t, ok)
	require.Equal(t, LastCompleted, policy)
	require.Equal(t, "last-completed", policy.String())

	policy, ok = ParsePolicy("")
	require.True(t, ok)
	require.Equal(t, LatestInvocation, policy)

	_, ok = ParsePolicy("random")
	require.False(t, ok)
}

func TestController_Track_OlderGenerationArrivesLate(t *testing.T) {
	fx := newFixture()
	controller, err := New(newStubFetcher(), fx.targets)
	require.NoError(t, err)

	ctx := context.Background()
	newer, releaseNewer := controller.track(ctx, 2)
	defer releaseNewer()

	older, releaseOlder := controller.track(ctx, 1)
	defer releaseOlder()

	require.ErrorIs(t, older.Err(), context.Canceled)
	require.NoError(t, newer.Err())

	// the next refresh cancels the newest registered fetch
	_, releaseNext := controller.track(ctx, 3)
	defer releaseNext()
	require.ErrorIs(t, newer.Err(), context.Canceled)
}

type blockingNotifier struct {
	recordingNotifier
	gate chan struct{}
}

func (n *blockingNotifier) OnRefresh(year string) {
	<-n.gate
	n.recordingNotifier.OnRefresh(year)
}

func TestController_Refresh_BackgroundNotifier(t *testing.T) {
	fx := newFixture()
	inline := &recordingNotifier{}
	slow := &blockingNotifier{gate: make(chan struct{})}

	controller, err := New(newStubFetcher(), fx.targets,
		WithNotifier(inline),
		WithBackgroundNotifier(slow),
	)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- controller.Refresh(context.Background(), "2020") }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh waited on a background notifier")
	}
	require.Equal(t, []string{"2020"}, inline.refreshed)

	close(slow.gate)
	controller.Wait()

	slow.Lock()
	defer slow.Unlock()
	require.Equal(t, []string{"2020"}, slow.refreshed)
}
