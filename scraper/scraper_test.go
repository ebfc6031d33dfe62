package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"rnav-scraper/page"
	"rnav-scraper/parser"
	"rnav-scraper/snapshot"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	nextEnabled  = `<button dusk="nextPage.after">Siguiente</button>`
	nextDisabled = `<button dusk="nextPage.after" disabled>Siguiente</button>`
)

func card(name string, lines ...string) string {
	var b strings.Builder
	b.WriteString(`<div class="card"><div class="head"><h3 class="text-lg">` + name + `</h3></div>`)
	for _, l := range lines {
		b.WriteString(`<p class="leading-relaxed text-sm">` + l + `</p>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func listing(next string, cards ...string) string {
	return `<html><body><input placeholder="Ciudad o Provincia"><section>` +
		strings.Join(cards, "") + `</section>` + next + `</body></html>`
}

func testOptions() Options {
	o := DefaultOptions()
	o.URL = "https://directory.test/#buscador"
	o.NavigationTimeout = time.Second
	o.WaitTimeout = time.Second
	o.SearchSettle = 0
	o.ModalSettle = 0
	o.PageSettle = 0
	return o
}

func newTestController(t *testing.T, opts Options) *Controller {
	ext := parser.NewCardExtractor()
	n := 0
	ext.NewID = func() string {
		n++
		return fmt.Sprintf("rec-%d", n)
	}
	return NewController(opts, ext, zaptest.NewLogger(t).Sugar(), nil)
}

func newSnapshot(t *testing.T, pages ...string) *snapshot.Page {
	p, err := snapshot.FromHTML(DefaultOptions().NextSelector, pages...)
	require.NoError(t, err)
	return p
}

// scriptedPage injects failures into a snapshot page
type scriptedPage struct {
	*snapshot.Page
	waitTimeoutOnPage int
	evalErr           error
	clickErr          error
	onEvaluate        func()
}

func (s *scriptedPage) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if s.waitTimeoutOnPage > 0 && s.Current() == s.waitTimeoutOnPage {
		return fmt.Errorf("wait for %q: %w", selector, page.ErrTimeout)
	}
	return s.Page.WaitFor(ctx, selector, timeout)
}

func (s *scriptedPage) Evaluate(ctx context.Context, script string) error {
	if s.onEvaluate != nil {
		s.onEvaluate()
	}
	if s.evalErr != nil {
		return s.evalErr
	}
	return s.Page.Evaluate(ctx, script)
}

func (s *scriptedPage) Click(ctx context.Context, selector string) error {
	if s.clickErr != nil {
		return s.clickErr
	}
	return s.Page.Click(ctx, selector)
}

func countState(trace []State, want State) int {
	n := 0
	for _, s := range trace {
		if s == want {
			n++
		}
	}
	return n
}

func TestRunTwoPageListing(t *testing.T) {
	p := newSnapshot(t,
		listing(nextEnabled,
			card("Viajes Chaco", "Teléfono: 362 442-0000", "Correo electrónico: viajes(at)gmail", "Localidad: Resistencia"),
			card("Turismo Norte", "Teléfono: 362 400-1111", "Correo electrónico: sin correo!!"),
			card("Agencia Sin Mail", "Localidad: Sáenz Peña"),
		),
		listing(nextDisabled,
			card("Impenetrable Tours", "Correo electrónico: info@impenetrable.com.ar"),
		),
	)

	res, err := newTestController(t, testOptions()).Run(context.Background(), p, "Chaco")
	require.NoError(t, err)

	require.Len(t, res.Records, 4)
	require.Len(t, res.Rejections, 1)
	assert.Equal(t, Done, res.Final)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 1, countState(res.Trace, Done))
	assert.Equal(t, 0, countState(res.Trace, Failed))
	assert.Equal(t, []State{
		FetchingPage, Extracting, DismissingModal, CheckingNext,
		FetchingPage, Extracting, DismissingModal, CheckingNext,
		Done,
	}, res.Trace)

	assert.Equal(t, "viajes@gmail.com", res.Records[0].Email)
	assert.Empty(t, res.Records[1].Email)
	assert.Empty(t, res.Records[2].Email)
	assert.Equal(t, "Sáenz Peña", res.Records[2].Locality)
	assert.Equal(t, "info@impenetrable.com.ar", res.Records[3].Email)
	for _, r := range res.Records {
		assert.Equal(t, "Chaco", r.GroupKey)
	}

	rej := res.Rejections[0]
	assert.Equal(t, "Turismo Norte", rej.RecordName)
	assert.Equal(t, "rec-2", rej.RecordID)
	assert.Equal(t, "sin correo!!", rej.RawValue)

	assert.Equal(t, []string{"https://directory.test/#buscador"}, p.Navigations)
	assert.Equal(t, "Chaco", p.Fills[DefaultOptions().SearchInputSelector])
	assert.Len(t, p.Scripts, 2)
	assert.Empty(t, res.Recovered)
}

func TestRunZeroCardPage(t *testing.T) {
	p := newSnapshot(t,
		listing(nextEnabled, card("Agencia Uno", "Teléfono: 1")),
		listing(nextDisabled),
	)

	res, err := newTestController(t, testOptions()).Run(context.Background(), p, "Formosa")
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	assert.Equal(t, Done, res.Final)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, CheckingNext, res.Trace[len(res.Trace)-2])
}

func TestRunNextButtonAbsent(t *testing.T) {
	p := newSnapshot(t, listing("", card("Agencia Uno")))

	res, err := newTestController(t, testOptions()).Run(context.Background(), p, "Jujuy")
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	assert.Equal(t, Done, res.Final)
	assert.Empty(t, res.Recovered)
}

func TestRunPartialResultsOnPageThreeFailure(t *testing.T) {
	p := &scriptedPage{
		Page: newSnapshot(t,
			listing(nextEnabled, card("Uno"), card("Dos")),
			listing(nextEnabled, card("Tres")),
			listing(nextDisabled, card("Cuatro")),
		),
		waitTimeoutOnPage: 3,
	}

	res, err := newTestController(t, testOptions()).Run(context.Background(), p, "Salta")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPageTimeout))
	assert.False(t, errors.Is(err, ErrNavigationTimeout), "a later page timeout is not retryable")
	assert.Equal(t, Failed, res.Final)
	assert.Equal(t, err, res.Err)
	assert.Equal(t, 2, res.Pages)

	names := make([]string, 0, len(res.Records))
	for _, r := range res.Records {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"Uno", "Dos", "Tres"}, names)
	assert.Equal(t, 1, countState(res.Trace, Failed))
	assert.Equal(t, 0, countState(res.Trace, Done))
}

func TestRunNavigationTimeoutYieldsNoRecords(t *testing.T) {
	// no search input on the page
	p := newSnapshot(t, `<html><body><h3 class="text-lg">Agencia</h3></body></html>`)

	res, err := newTestController(t, testOptions()).Run(context.Background(), p, "Misiones")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNavigationTimeout))
	assert.Empty(t, res.Records)
	assert.Equal(t, []State{FetchingPage, Failed}, res.Trace)
}

func TestRunModalDismissalFailureIsRecovered(t *testing.T) {
	p := &scriptedPage{
		Page:    newSnapshot(t, listing(nextDisabled, card("Agencia"))),
		evalErr: errors.New("execution context was destroyed"),
	}

	res, err := newTestController(t, testOptions()).Run(context.Background(), p, "Neuquén")
	require.NoError(t, err)
	assert.Equal(t, Done, res.Final)
	require.Len(t, res.Recovered, 1)
	assert.Equal(t, ModalDismissalFailure, res.Recovered[0].Kind)
	assert.Equal(t, 1, res.Recovered[0].Page)
}

func TestRunClickFailureEndsAsDone(t *testing.T) {
	p := &scriptedPage{
		Page: newSnapshot(t,
			listing(nextEnabled, card("Uno")),
			listing(nextDisabled, card("Dos")),
		),
		clickErr: errors.New("element is covered by another element"),
	}

	res, err := newTestController(t, testOptions()).Run(context.Background(), p, "Corrientes")
	require.NoError(t, err)
	assert.Equal(t, Done, res.Final)
	assert.Len(t, res.Records, 1)
	require.Len(t, res.Recovered, 1)
	assert.Equal(t, PaginationAdvanceFailure, res.Recovered[0].Kind)
}

func TestRunHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := &scriptedPage{
		Page: newSnapshot(t,
			listing(nextEnabled, card("Uno")),
			listing(nextDisabled, card("Dos")),
		),
		onEvaluate: cancel,
	}

	res, err := newTestController(t, testOptions()).Run(ctx, p, "La Pampa")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, Failed, res.Final)
	assert.Len(t, res.Records, 1)
	assert.Equal(t, 1, res.Pages)
}

func TestRunCancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newSnapshot(t, listing(nextDisabled, card("Uno")))
	res, err := newTestController(t, testOptions()).Run(ctx, p, "Catamarca")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, p.Navigations)
	assert.Equal(t, []State{FetchingPage, Failed}, res.Trace)
}

func TestRunMaxPages(t *testing.T) {
	opts := testOptions()
	opts.MaxPages = 1
	p := newSnapshot(t,
		listing(nextEnabled, card("Uno")),
		listing(nextDisabled, card("Dos")),
	)

	res, err := newTestController(t, opts).Run(context.Background(), p, "Chubut")
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	assert.Empty(t, p.Clicks)
}

func TestRunDropsNamelessCards(t *testing.T) {
	p := newSnapshot(t, listing(nextDisabled, card("   "), card("Agencia")))

	res, err := newTestController(t, testOptions()).Run(context.Background(), p, "San Luis")
	require.NoError(t, err)
	assert.Len(t, res.Records, 1)
	assert.Equal(t, 1, res.Dropped)
}

func TestRunSavesSnapshots(t *testing.T) {
	opts := testOptions()
	opts.SnapshotDir = t.TempDir()
	p := newSnapshot(t,
		listing(nextEnabled, card("Uno")),
		listing(nextDisabled, card("Dos")),
	)

	_, err := newTestController(t, opts).Run(context.Background(), p, "Entre Ríos")
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(opts.SnapshotDir, "entre_ríos", "*.html"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	data, err := os.ReadFile(filepath.Join(opts.SnapshotDir, "entre_ríos", "page-002.html"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Dos")

	// saved snapshots replay through the same controller
	replay, err := snapshot.Load(filepath.Join(opts.SnapshotDir, "entre_ríos"), opts.NextSelector)
	require.NoError(t, err)
	opts.SnapshotDir = ""
	res, err := newTestController(t, opts).Run(context.Background(), replay, "Entre Ríos")
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "DONE", Done.String())
	assert.True(t, Failed.Terminal())
	assert.False(t, CheckingNext.Terminal())
	assert.Equal(t, "pagination_advance_failure", PaginationAdvanceFailure.String())
}
