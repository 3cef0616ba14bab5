package coordinator

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/clage-homeserver/internal/homeserver"
)

// fakeClient returns a fixed snapshot or error and counts calls.
type fakeClient struct {
	mu    sync.Mutex
	snap  homeserver.Snapshot
	err   error
	calls int
	delay time.Duration
}

func (f *fakeClient) RequestStatus(ctx context.Context) (homeserver.Snapshot, error) {
	f.mu.Lock()
	f.calls++
	snap, err, delay := f.snap, f.err, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return homeserver.Snapshot{}, ctx.Err()
		}
	}
	return snap.Clone(), err
}

func (f *fakeClient) SetTemperature(context.Context, int) error { return nil }

func (f *fakeClient) set(snap homeserver.Snapshot, err error) {
	f.mu.Lock()
	f.snap, f.err = snap, err
	f.mu.Unlock()
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeDevices is a minimal Devices implementation.
type fakeDevices struct {
	mu      sync.Mutex
	clients map[string]homeserver.Client
}

func newFakeDevices() *fakeDevices {
	return &fakeDevices{clients: make(map[string]homeserver.Client)}
}

func (d *fakeDevices) add(id string, c homeserver.Client) {
	d.mu.Lock()
	d.clients[id] = c
	d.mu.Unlock()
}

func (d *fakeDevices) remove(id string) {
	d.mu.Lock()
	delete(d.clients, id)
	d.mu.Unlock()
}

func (d *fakeDevices) IDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Sorted(maps.Keys(d.clients))
}

func (d *fakeDevices) Client(id string) (homeserver.Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.clients[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func snapshot(tOut float64) homeserver.Snapshot {
	return homeserver.Snapshot{
		Fields:  map[string]any{"heater_status_tOut": tOut, "homeserver_success": true},
		Success: true,
	}
}

func TestRefresh_PartialFailureIsolation(t *testing.T) {
	devs := newFakeDevices()
	a := &fakeClient{snap: snapshot(40)}
	b := &fakeClient{snap: snapshot(41)}
	c := &fakeClient{snap: snapshot(42)}
	devs.add("a", a)
	devs.add("b", b)
	devs.add("c", c)

	coord := New(devs, Config{})
	if _, err := coord.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	// b goes offline, the others change.
	a.set(snapshot(50), nil)
	b.set(homeserver.Snapshot{}, homeserver.ErrConnection)
	c.set(snapshot(52), nil)

	summary, err := coord.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if summary.Polled != 3 || summary.Succeeded != 2 || summary.Failed != 1 {
		t.Errorf("summary = %+v, want 3 polled, 2 ok, 1 failed", summary)
	}

	store := coord.Store()
	for id, want := range map[string]float64{"a": 50, "b": 41, "c": 52} {
		got, ok := store.Field(id, "heater_status_tOut")
		if !ok || got != want {
			t.Errorf("%s tOut = %v (%v), want %v", id, got, ok, want)
		}
	}

	h, _ := coord.Health("b")
	if h.ConsecutiveFailures != 1 || h.Available() {
		t.Errorf("b health = %+v, want one failure and unavailable", h)
	}
	if h, _ := coord.Health("a"); !h.Available() {
		t.Errorf("a health = %+v, want available", h)
	}
}

func TestRefresh_UnsuccessfulSnapshotIgnored(t *testing.T) {
	devs := newFakeDevices()
	a := &fakeClient{snap: snapshot(40)}
	devs.add("a", a)

	coord := New(devs, Config{})
	coord.Refresh(context.Background()) //nolint:errcheck // Checked via store

	a.set(homeserver.Snapshot{Fields: map[string]any{"homeserver_success": false}}, nil)
	coord.Refresh(context.Background()) //nolint:errcheck // Checked via store

	if got, _ := coord.Store().Field("a", "heater_status_tOut"); got != 40.0 {
		t.Errorf("tOut = %v, want previous 40", got)
	}
	if h, _ := coord.Health("a"); h.ConsecutiveFailures != 1 {
		t.Errorf("health = %+v, want one failure", h)
	}
}

func TestRefresh_Idempotent(t *testing.T) {
	devs := newFakeDevices()
	devs.add("a", &fakeClient{snap: snapshot(40)})
	devs.add("b", &fakeClient{snap: snapshot(41)})

	coord := New(devs, Config{})
	coord.Refresh(context.Background()) //nolint:errcheck // Checked via store
	first := coord.Store().Snapshot()
	coord.Refresh(context.Background()) //nolint:errcheck // Checked via store
	second := coord.Store().Snapshot()

	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("store sizes = %d, %d, want 2", len(first), len(second))
	}
	for id, snap := range first {
		if !maps.Equal(snap.Fields, second[id].Fields) || snap.Success != second[id].Success {
			t.Errorf("%s changed between refreshes: %v vs %v", id, snap, second[id])
		}
	}
}

func TestRefresh_PrunesRemovedDevices(t *testing.T) {
	devs := newFakeDevices()
	devs.add("a", &fakeClient{snap: snapshot(40)})
	devs.add("b", &fakeClient{snap: snapshot(41)})

	coord := New(devs, Config{})
	coord.Refresh(context.Background()) //nolint:errcheck // Checked via store
	devs.remove("b")
	coord.Refresh(context.Background()) //nolint:errcheck // Checked via store

	if _, ok := coord.Store().Get("b"); ok {
		t.Error("state of removed device b still present")
	}
	if _, ok := coord.Health("b"); ok {
		t.Error("health of removed device b still present")
	}
	if coord.Store().Len() != 1 {
		t.Errorf("Len() = %d, want 1", coord.Store().Len())
	}
}

// leavingClient unregisters its device while its request is in flight.
type leavingClient struct {
	fakeClient
	devs *fakeDevices
	id   string
}

func (l *leavingClient) RequestStatus(ctx context.Context) (homeserver.Snapshot, error) {
	l.devs.remove(l.id)
	return l.fakeClient.RequestStatus(ctx)
}

func TestRefresh_RemovedMidRefreshNotDelivered(t *testing.T) {
	devs := newFakeDevices()
	devs.add("a", &fakeClient{snap: snapshot(40)})
	devs.add("b", &leavingClient{fakeClient: fakeClient{snap: snapshot(41)}, devs: devs, id: "b"})

	coord := New(devs, Config{})
	var mu sync.Mutex
	var got []string
	coord.AddListener(func(_ context.Context, u Update) {
		mu.Lock()
		got = append(got, u.DeviceID)
		mu.Unlock()
	})

	summary, err := coord.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !slices.Equal(got, []string{"a"}) {
		t.Errorf("updates = %v, want [a]", got)
	}
	if _, ok := coord.Store().Get("b"); ok {
		t.Error("state of removed device b still present")
	}
	if _, ok := coord.Health("b"); ok {
		t.Error("health of removed device b still present")
	}
	if summary.Polled != 1 || summary.Succeeded != 1 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want 1 polled, 1 succeeded", summary)
	}
}

func TestReady_AfterFirstRefresh(t *testing.T) {
	devs := newFakeDevices()
	devs.add("a", &fakeClient{err: homeserver.ErrConnection})

	coord := New(devs, Config{})
	if coord.Ready() {
		t.Fatal("Ready() = true before any refresh")
	}
	coord.Refresh(context.Background()) //nolint:errcheck // Checked via Ready
	if !coord.Ready() {
		t.Error("Ready() = false after a refresh with only failures")
	}
}

func TestRefresh_Serialised(t *testing.T) {
	devs := newFakeDevices()
	a := &fakeClient{snap: snapshot(40), delay: 30 * time.Millisecond}
	devs.add("a", a)

	coord := New(devs, Config{})

	var inFlight, maxInFlight atomic.Int32
	coord.AddListener(func(context.Context, Update) {
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
	})

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coord.Refresh(context.Background()) //nolint:errcheck // Concurrency only
		}()
	}
	wg.Wait()

	if a.callCount() != 3 {
		t.Errorf("calls = %d, want 3 (each caller runs its own refresh)", a.callCount())
	}
	if maxInFlight.Load() != 1 {
		t.Errorf("max concurrent refreshes = %d, want 1", maxInFlight.Load())
	}
}

func TestRefresh_RequestTimeout(t *testing.T) {
	devs := newFakeDevices()
	slow := &fakeClient{snap: snapshot(40), delay: time.Second}
	devs.add("slow", slow)
	devs.add("fast", &fakeClient{snap: snapshot(41)})

	coord := New(devs, Config{RequestTimeout: 20 * time.Millisecond})
	start := time.Now()
	summary, _ := coord.Refresh(context.Background())

	if time.Since(start) > 500*time.Millisecond {
		t.Errorf("refresh took %v, request timeout not applied", time.Since(start))
	}
	if summary.Succeeded != 1 || summary.Failed != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRefresh_CancelledWhileWaiting(t *testing.T) {
	devs := newFakeDevices()
	devs.add("a", &fakeClient{snap: snapshot(40), delay: 200 * time.Millisecond})
	coord := New(devs, Config{})

	go coord.Refresh(context.Background()) //nolint:errcheck // Holds the refresh slot
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := coord.Refresh(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Refresh() error = %v, want DeadlineExceeded", err)
	}
}

func TestListeners_ReceiveStoredUpdates(t *testing.T) {
	devs := newFakeDevices()
	devs.add("a", &fakeClient{snap: snapshot(40)})
	devs.add("b", &fakeClient{err: homeserver.ErrDeviceReportedFailure})

	coord := New(devs, Config{})
	var mu sync.Mutex
	var got []Update
	coord.AddListener(func(_ context.Context, u Update) {
		// The update is visible in the store before listeners run.
		if _, ok := coord.Store().Get(u.DeviceID); !ok {
			t.Errorf("update for %s delivered before it was stored", u.DeviceID)
		}
		mu.Lock()
		got = append(got, u)
		mu.Unlock()
	})

	coord.Refresh(WithTrigger(context.Background(), TriggerCommand)) //nolint:errcheck // Checked via listener

	if len(got) != 1 || got[0].DeviceID != "a" {
		t.Fatalf("updates = %+v, want one for a", got)
	}
	if got[0].Trigger != TriggerCommand {
		t.Errorf("Trigger = %q, want command", got[0].Trigger)
	}
}

func TestRefreshListeners_SeeSummaryAndHealth(t *testing.T) {
	devs := newFakeDevices()
	devs.add("a", &fakeClient{snap: snapshot(40)})
	devs.add("b", &fakeClient{err: homeserver.ErrConnection})

	coord := New(devs, Config{})
	var got []Summary
	coord.AddRefreshListener(func(_ context.Context, s Summary) {
		if h, _ := coord.Health("b"); h.Available() {
			t.Error("health of b not recorded before refresh listeners")
		}
		got = append(got, s)
	})

	coord.Refresh(context.Background()) //nolint:errcheck // Checked via listener

	if len(got) != 1 {
		t.Fatalf("refresh listener calls = %d, want 1", len(got))
	}
	if got[0].Polled != 2 || got[0].Succeeded != 1 || got[0].Failed != 1 {
		t.Errorf("Summary = %+v", got[0])
	}
	if h, ok := coord.Health("a"); !ok || !h.Available() {
		t.Errorf("Health(a) = %+v, %v", h, ok)
	}
}

func TestStartStop(t *testing.T) {
	devs := newFakeDevices()
	a := &fakeClient{snap: snapshot(40)}
	devs.add("a", a)

	coord := New(devs, Config{Interval: time.Hour})
	if err := coord.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	// First refresh completes before Start returns.
	if _, ok := coord.Store().Get("a"); !ok {
		t.Error("store empty after Start")
	}
	if err := coord.Start(context.Background()); err != nil {
		t.Errorf("second Start() error = %v", err)
	}
	if a.callCount() != 1 {
		t.Errorf("calls = %d, want 1", a.callCount())
	}

	coord.Stop()
	coord.Stop()
}

func TestStart_StopsWithContext(t *testing.T) {
	devs := newFakeDevices()
	coord := New(devs, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := coord.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	done := make(chan struct{})
	go func() {
		coord.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after context cancellation")
	}
}

func TestEffectiveInterval(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, 20 * time.Second},
		{3 * time.Second, 10 * time.Second},
		{10 * time.Second, 10 * time.Second},
		{45 * time.Second, 45 * time.Second},
	}
	for _, tt := range tests {
		if got := EffectiveInterval(tt.in); got != tt.want {
			t.Errorf("EffectiveInterval(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if got := New(newFakeDevices(), Config{Interval: 3 * time.Second}).Interval(); got != 10*time.Second {
		t.Errorf("Interval() = %v, want 10s", got)
	}
}

func TestTriggerFrom_Default(t *testing.T) {
	if got := TriggerFrom(context.Background()); got != TriggerManual {
		t.Errorf("TriggerFrom() = %q, want manual", got)
	}
}
