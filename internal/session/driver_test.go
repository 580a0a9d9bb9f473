package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/local/sheetify/internal/retry"
	"github.com/local/sheetify/internal/sheet"
)

type fakeRenderer struct {
	pages    int
	failPage int
}

func (f *fakeRenderer) NumPages() int { return f.pages }

func (f *fakeRenderer) RenderPage(page int) ([]byte, error) {
	if page == f.failPage {
		return nil, errors.New("corrupt page stream")
	}
	return []byte(fmt.Sprintf("png-%d", page)), nil
}

type fakeUploader struct {
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *fakeUploader) Upload(ctx context.Context, data []byte, mimeType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return "", errors.New("upload refused")
	}
	return "files/" + string(data), nil
}

type fakeExtractor struct {
	pages     []int
	uris      []string
	rows      sheet.Sheet
	fail      bool
	emptyPage int
}

func (f *fakeExtractor) Extract(ctx context.Context, page int, imageURI string) ([]sheet.Row, error) {
	if f.fail {
		return nil, errors.New("model unreachable")
	}
	f.pages = append(f.pages, page)
	f.uris = append(f.uris, imageURI)
	if page == f.emptyPage {
		return nil, nil
	}
	row := sheet.Row{Fields: map[string]string{"النص": fmt.Sprintf("page %d", page)}, Page: page, Seq: 1}
	f.rows = append(f.rows, row)
	return []sheet.Row{row}, nil
}

func (f *fakeExtractor) Sheet() sheet.Sheet { return f.rows }

type fakePublisher struct {
	mu      sync.Mutex
	records []Progress
}

func (f *fakePublisher) SetProgress(ctx context.Context, sessionID string, p Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, p)
	return nil
}

func (f *fakePublisher) byStage(stage Stage) []Progress {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Progress
	for _, p := range f.records {
		if p.Stage == stage {
			out = append(out, p)
		}
	}
	return out
}

func testDriver(r Renderer, u Uploader, e Extractor, p Publisher) *Driver {
	return NewDriver("session-1", r, u, e, p, retry.New(3, time.Millisecond), 0)
}

func TestRunProcessesEveryPageInOrder(t *testing.T) {
	ex := &fakeExtractor{}
	pub := &fakePublisher{}
	d := testDriver(&fakeRenderer{pages: 10}, &fakeUploader{}, ex, pub)

	got, err := d.Run(context.Background(), 2, 4)
	require.NoError(t, err)
	require.Equal(t, []int{2, 3, 4}, ex.pages)
	require.Len(t, got, 3)

	// extraction runs against the uploaded references
	require.Equal(t, []string{"files/png-2", "files/png-3", "files/png-4"}, ex.uris)
}

func TestRunScanProgressReachesFullRange(t *testing.T) {
	pub := &fakePublisher{}
	d := testDriver(&fakeRenderer{pages: 5}, &fakeUploader{}, &fakeExtractor{}, pub)

	_, err := d.Run(context.Background(), 1, 5)
	require.NoError(t, err)

	scans := pub.byStage(StageScanning)
	require.Len(t, scans, 5)
	// pages complete in arbitrary order but the counter is monotonic
	for i, p := range scans {
		require.Equal(t, (i+1)*100/5, p.Percent)
	}
	require.Equal(t, 100, scans[len(scans)-1].Percent)

	extracts := pub.byStage(StageExtracting)
	require.Len(t, extracts, 5)
	require.Equal(t, 5, extracts[4].Cursor)
	require.Equal(t, 100, extracts[4].Percent)
}

func TestRunExtractionProgressUsesDocumentPageCount(t *testing.T) {
	pub := &fakePublisher{}
	d := testDriver(&fakeRenderer{pages: 10}, &fakeUploader{}, &fakeExtractor{}, pub)

	_, err := d.Run(context.Background(), 1, 3)
	require.NoError(t, err)

	extracts := pub.byStage(StageExtracting)
	require.Len(t, extracts, 3)
	require.Equal(t, 3, extracts[2].Cursor)
	require.Equal(t, 30, extracts[2].Percent)
	require.Contains(t, extracts[2].Details, "page 3")
}

func TestRunEmptyPagePublishesEmptyDetailsArray(t *testing.T) {
	ex := &fakeExtractor{emptyPage: 2}
	pub := &fakePublisher{}
	d := testDriver(&fakeRenderer{pages: 3}, &fakeUploader{}, ex, pub)

	_, err := d.Run(context.Background(), 1, 3)
	require.NoError(t, err)

	extracts := pub.byStage(StageExtracting)
	require.Len(t, extracts, 3)
	require.Equal(t, 2, extracts[1].Cursor)
	require.Equal(t, "[]", extracts[1].Details)
	require.Contains(t, extracts[2].Details, "page 3")
}

func TestRunSkipsPageWhoseRenderFailed(t *testing.T) {
	ex := &fakeExtractor{}
	pub := &fakePublisher{}
	d := testDriver(&fakeRenderer{pages: 3, failPage: 2}, &fakeUploader{}, ex, pub)

	got, err := d.Run(context.Background(), 1, 3)
	require.NoError(t, err)
	require.Equal(t, []int{1, 3}, ex.pages)
	require.Len(t, got, 2)

	// the failed page still advances the scan counter
	scans := pub.byStage(StageScanning)
	require.Len(t, scans, 3)
	require.Equal(t, 100, scans[len(scans)-1].Percent)
}

func TestRunUploadFailureEndsJobWithPartialSheet(t *testing.T) {
	// every upload fails, exhausting the retries on some page
	up := &fakeUploader{failures: 1 << 20}
	ex := &fakeExtractor{}
	d := testDriver(&fakeRenderer{pages: 3}, up, ex, &fakePublisher{})

	got, err := d.Run(context.Background(), 1, 3)
	require.Error(t, err)
	require.Contains(t, err.Error(), "upload page")
	require.Empty(t, got)
	require.Empty(t, ex.pages)
}

func TestRunExtractFailureReturnsPartialSheet(t *testing.T) {
	ex := &fakeExtractor{fail: true}
	d := testDriver(&fakeRenderer{pages: 3}, &fakeUploader{}, ex, &fakePublisher{})

	_, err := d.Run(context.Background(), 1, 3)
	require.Error(t, err)
	require.Contains(t, err.Error(), "model unreachable")
}

func TestRunRejectsInvalidRange(t *testing.T) {
	d := testDriver(&fakeRenderer{pages: 3}, &fakeUploader{}, &fakeExtractor{}, &fakePublisher{})

	_, err := d.Run(context.Background(), 0, 3)
	require.Error(t, err)

	_, err = d.Run(context.Background(), 5, 2)
	require.Error(t, err)
}

func TestImagesReturnsCopy(t *testing.T) {
	d := testDriver(&fakeRenderer{pages: 2}, &fakeUploader{}, &fakeExtractor{}, &fakePublisher{})

	_, err := d.Run(context.Background(), 1, 2)
	require.NoError(t, err)

	imgs := d.Images()
	require.Len(t, imgs, 2)
	delete(imgs, 1)
	require.Len(t, d.Images(), 2)
}

func TestPercent(t *testing.T) {
	require.Equal(t, 0, percent(1, 0))
	require.Equal(t, 50, percent(1, 2))
	require.Equal(t, 33, percent(1, 3))
	require.Equal(t, 100, percent(3, 3))
}
