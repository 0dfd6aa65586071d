package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gradwatch/internal/forum"
	"gradwatch/internal/notify"
	"gradwatch/internal/watermark"
	"gradwatch/pkg/logx"
)

type fakeStore struct {
	wm        int64
	readErr   error
	failAtTID int64
	writes    []int64
}

func (s *fakeStore) Read(ctx context.Context) (int64, error) {
	if s.readErr != nil {
		return watermark.Unknown, s.readErr
	}
	return s.wm, nil
}

func (s *fakeStore) Write(ctx context.Context, tid int64) error {
	if s.failAtTID != 0 && tid == s.failAtTID {
		return errors.New("persist failed")
	}
	s.writes = append(s.writes, tid)
	s.wm = tid
	return nil
}

type fakeFetcher struct {
	threads []forum.Thread
	err     error
	gotWM   int64
}

func (f *fakeFetcher) FetchNew(ctx context.Context, wm int64) ([]forum.Thread, error) {
	f.gotWM = wm
	return f.threads, f.err
}

type fakeSender struct {
	calls      int
	failOnCall int // 1-based; 0 never fails
	sent       []string
}

func (s *fakeSender) Send(ctx context.Context, text string) error {
	s.calls++
	if s.failOnCall != 0 && s.calls == s.failOnCall {
		return errors.New("send failed")
	}
	s.sent = append(s.sent, text)
	return nil
}

func ascendingThreads(first int64, n int) []forum.Thread {
	out := make([]forum.Thread, n)
	for i := range out {
		tid := first + int64(i)
		out[i] = forum.Thread{TID: tid, Subject: fmt.Sprintf("thread %d", tid), Author: "alice", Dateline: 1672531200}
	}
	return out
}

func okDetails(ctx context.Context, tid int64) (forum.Details, error) {
	return forum.Details{{Label: "学校", Value: fmt.Sprintf("school-%d", tid)}}, nil
}

func newTestRunner(t *testing.T, store *fakeStore, fetcher *fakeFetcher, details DetailFunc, sender *fakeSender) *Runner {
	t.Helper()
	format, err := notify.NewFormatter("UTC")
	if err != nil {
		t.Fatalf("NewFormatter error: %v", err)
	}
	return New(store, fetcher, details, sender, format, logx.Nop())
}

func TestRunDeliversAscendingAndAdvances(t *testing.T) {
	t.Parallel()
	store := &fakeStore{wm: 100}
	fetcher := &fakeFetcher{threads: ascendingThreads(101, 5)}
	sender := &fakeSender{}
	r := newTestRunner(t, store, fetcher, okDetails, sender)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if fetcher.gotWM != 100 {
		t.Fatalf("fetcher got watermark %d, want 100", fetcher.gotWM)
	}
	if len(sender.sent) != 5 {
		t.Fatalf("sent %d messages, want 5", len(sender.sent))
	}
	for i, tid := range []int64{101, 102, 103, 104, 105} {
		if !strings.Contains(sender.sent[i], fmt.Sprintf("thread-%d-1-1.html", tid)) {
			t.Fatalf("sent[%d] is not thread %d:\n%s", i, tid, sender.sent[i])
		}
		if store.writes[i] != tid {
			t.Fatalf("writes[%d] = %d, want %d", i, store.writes[i], tid)
		}
	}
	if store.wm != 105 {
		t.Fatalf("final watermark = %d, want 105", store.wm)
	}
}

func TestRunDeliveryFailureHaltsRemaining(t *testing.T) {
	t.Parallel()
	store := &fakeStore{wm: 100}
	fetcher := &fakeFetcher{threads: ascendingThreads(101, 5)}
	sender := &fakeSender{failOnCall: 3} // thread 103 fails
	r := newTestRunner(t, store, fetcher, okDetails, sender)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v (a halted run is not a process error)", err)
	}

	if sender.calls != 3 {
		t.Fatalf("send attempted %d times, want 3 (no skipping ahead)", sender.calls)
	}
	if want := []int64{101, 102}; len(store.writes) != 2 || store.writes[0] != want[0] || store.writes[1] != want[1] {
		t.Fatalf("writes = %v, want %v", store.writes, want)
	}
	if store.wm != 102 {
		t.Fatalf("final watermark = %d, want 102", store.wm)
	}
}

func TestRunWatermarkWriteFailureHaltsRemaining(t *testing.T) {
	t.Parallel()
	store := &fakeStore{wm: 100, failAtTID: 102}
	fetcher := &fakeFetcher{threads: ascendingThreads(101, 3)}
	sender := &fakeSender{}
	r := newTestRunner(t, store, fetcher, okDetails, sender)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	// 101 delivered+recorded, 102 delivered but not recorded, 103 untouched.
	if sender.calls != 2 {
		t.Fatalf("send attempted %d times, want 2", sender.calls)
	}
	if len(store.writes) != 1 || store.writes[0] != 101 {
		t.Fatalf("writes = %v, want [101]", store.writes)
	}
}

func TestRunEnrichmentFailureDoesNotAbort(t *testing.T) {
	t.Parallel()
	store := &fakeStore{wm: 100}
	fetcher := &fakeFetcher{threads: ascendingThreads(101, 3)}
	sender := &fakeSender{}
	details := func(ctx context.Context, tid int64) (forum.Details, error) {
		if tid == 102 {
			return nil, errors.New("cloudflare")
		}
		return okDetails(ctx, tid)
	}
	r := newTestRunner(t, store, fetcher, details, sender)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if len(sender.sent) != 3 {
		t.Fatalf("sent %d messages, want 3", len(sender.sent))
	}
	if strings.Contains(sender.sent[1], "school-102") {
		t.Fatalf("thread 102 should have gone out without details:\n%s", sender.sent[1])
	}
	if store.wm != 103 {
		t.Fatalf("final watermark = %d, want 103", store.wm)
	}
}

func TestRunNoNewThreads(t *testing.T) {
	t.Parallel()
	store := &fakeStore{wm: 105}
	fetcher := &fakeFetcher{}
	sender := &fakeSender{}
	r := newTestRunner(t, store, fetcher, okDetails, sender)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if sender.calls != 0 {
		t.Fatalf("send attempted %d times, want 0", sender.calls)
	}
	if store.wm != 105 {
		t.Fatalf("watermark moved to %d on an idle run", store.wm)
	}
}

func TestRunFetchErrorPropagates(t *testing.T) {
	t.Parallel()
	store := &fakeStore{wm: 100}
	fetcher := &fakeFetcher{err: forum.ErrEmptyPage}
	sender := &fakeSender{}
	r := newTestRunner(t, store, fetcher, okDetails, sender)

	if err := r.Run(context.Background()); !errors.Is(err, forum.ErrEmptyPage) {
		t.Fatalf("err = %v, want ErrEmptyPage", err)
	}
	if sender.calls != 0 {
		t.Fatalf("send attempted %d times after fatal fetch, want 0", sender.calls)
	}
}

func TestRunUnreadableWatermarkFetchesAsUnknown(t *testing.T) {
	t.Parallel()
	store := &fakeStore{readErr: errors.New("chat metadata unavailable")}
	fetcher := &fakeFetcher{threads: ascendingThreads(101, 1)}
	sender := &fakeSender{}
	r := newTestRunner(t, store, fetcher, okDetails, sender)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if fetcher.gotWM != watermark.Unknown {
		t.Fatalf("fetcher got watermark %d, want Unknown", fetcher.gotWM)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(sender.sent))
	}
}

// filteringFetcher honors the watermark like the real fetcher does, so a
// serialized second run sees nothing new.
type filteringFetcher struct {
	threads []forum.Thread
}

func (f *filteringFetcher) FetchNew(ctx context.Context, wm int64) ([]forum.Thread, error) {
	var out []forum.Thread
	for _, th := range f.threads {
		if th.TID > wm {
			out = append(out, th)
		}
	}
	return out, nil
}

// slowSender flags any concurrent Send, the symptom of two runs
// interleaving on the shared watermark state.
type slowSender struct {
	active  atomic.Int32
	overlap atomic.Bool
	sent    atomic.Int32
}

func (s *slowSender) Send(ctx context.Context, text string) error {
	if s.active.Add(1) > 1 {
		s.overlap.Store(true)
	}
	time.Sleep(time.Millisecond)
	s.active.Add(-1)
	s.sent.Add(1)
	return nil
}

func TestRunSerializesOverlappingInvocations(t *testing.T) {
	t.Parallel()
	store := &fakeStore{wm: 100}
	fetcher := &filteringFetcher{threads: ascendingThreads(101, 5)}
	sender := &slowSender{}
	format, err := notify.NewFormatter("UTC")
	if err != nil {
		t.Fatalf("NewFormatter error: %v", err)
	}
	r := New(store, fetcher, okDetails, sender, format, logx.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Run(context.Background()); err != nil {
				t.Errorf("Run error: %v", err)
			}
		}()
	}
	wg.Wait()

	if sender.overlap.Load() {
		t.Fatal("overlapping runs delivered concurrently")
	}
	// The later run must observe the earlier run's watermark: five threads
	// go out once, not twice.
	if got := sender.sent.Load(); got != 5 {
		t.Fatalf("sent %d messages across two runs, want 5", got)
	}
	if store.wm != 105 {
		t.Fatalf("final watermark = %d, want 105", store.wm)
	}
}

func TestRunRecoversFromPanic(t *testing.T) {
	t.Parallel()
	store := &fakeStore{wm: 100}
	fetcher := &fakeFetcher{threads: ascendingThreads(101, 1)}
	sender := &fakeSender{}
	details := func(ctx context.Context, tid int64) (forum.Details, error) {
		panic("unexpected")
	}
	r := newTestRunner(t, store, fetcher, details, sender)

	if err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run error after panic: %v", err)
	}
}
