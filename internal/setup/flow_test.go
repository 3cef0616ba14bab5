package setup

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nerrad567/clage-homeserver/internal/coordinator"
	"github.com/nerrad567/clage-homeserver/internal/device"
	"github.com/nerrad567/clage-homeserver/internal/homeserver"
	"github.com/nerrad567/clage-homeserver/internal/infrastructure/config"
)

type probeClient struct {
	snap homeserver.Snapshot
	err  error
}

func (p *probeClient) RequestStatus(context.Context) (homeserver.Snapshot, error) {
	return p.snap, p.err
}

func (p *probeClient) SetTemperature(context.Context, int) error { return nil }

func activeClient() *probeClient {
	return &probeClient{snap: homeserver.Snapshot{Success: true, Fields: map[string]any{"homeserver_success": true}}}
}

func factory(c homeserver.Client) device.ClientFactory {
	return func(device.Device) (homeserver.Client, error) { return c, nil }
}

type memRepo struct {
	mu      sync.Mutex
	entries map[string]device.Device
}

func newMemRepo() *memRepo {
	return &memRepo{entries: make(map[string]device.Device)}
}

func (r *memRepo) List(context.Context) ([]device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]device.Device, 0, len(r.entries))
	for _, d := range r.entries {
		out = append(out, d)
	}
	return out, nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.entries[id]
	if !ok {
		return device.Device{}, device.ErrDeviceNotFound
	}
	return d, nil
}

func (r *memRepo) GetByAddress(_ context.Context, addr string) (device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.entries {
		if d.Address == addr {
			return d, nil
		}
	}
	return device.Device{}, device.ErrDeviceNotFound
}

func (r *memRepo) Create(_ context.Context, d device.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[d.ID]; ok {
		return device.ErrDeviceExists
	}
	r.entries[d.ID] = d
	return nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return device.ErrDeviceNotFound
	}
	delete(r.entries, id)
	return nil
}

type countingRefresher struct {
	calls int
}

func (r *countingRefresher) Refresh(context.Context) (coordinator.Summary, error) {
	r.calls++
	return coordinator.Summary{}, nil
}

func validInput() EntryInput {
	return EntryInput{
		Name:         "Küche Oben",
		IPAddress:    "192.168.1.50",
		HomeserverID: "F8F005DA29C8",
		HeaterID:     "2049DB0CD7",
	}
}

func assertFlowError(t *testing.T, err error, field, code string) {
	t.Helper()
	var fe *FlowError
	if !errors.As(err, &fe) {
		t.Fatalf("error = %v, want *FlowError", err)
	}
	if fe.Field != field || fe.Code != code {
		t.Errorf("FlowError = %s/%s, want %s/%s", fe.Field, fe.Code, field, code)
	}
}

func TestAddEntry(t *testing.T) {
	reg := device.NewRegistry()
	repo := newMemRepo()
	ref := &countingRefresher{}
	flow := NewFlow(reg, repo, factory(activeClient()), ref)

	d, err := flow.AddEntry(context.Background(), validInput())
	if err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}
	if d.ID != "kuche_oben" {
		t.Errorf("ID = %q, want kuche_oben", d.ID)
	}
	if d.Source != device.SourceEntry || d.CreatedAt.IsZero() {
		t.Errorf("Source/CreatedAt = %q/%v", d.Source, d.CreatedAt)
	}
	if !reg.Has("kuche_oben") {
		t.Error("device not registered")
	}
	if _, err := repo.GetByID(context.Background(), "kuche_oben"); err != nil {
		t.Errorf("entry not persisted: %v", err)
	}
	if ref.calls != 1 {
		t.Errorf("refresh calls = %d, want 1", ref.calls)
	}
}

func TestCheck_Failures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EntryInput)
		client *probeClient
		field  string
		code   string
	}{
		{
			name:   "bad address",
			mutate: func(in *EntryInput) { in.IPAddress = "homeserver.local" },
			client: activeClient(),
			field:  FieldIPAddress,
			code:   CodeInvalidIP,
		},
		{
			name:   "missing name",
			mutate: func(in *EntryInput) { in.Name = "  " },
			client: activeClient(),
			field:  FieldName,
			code:   CodeInvalidInput,
		},
		{
			name:   "missing heater",
			mutate: func(in *EntryInput) { in.HeaterID = "" },
			client: activeClient(),
			field:  FieldHeaterID,
			code:   CodeInvalidInput,
		},
		{
			name:   "unreachable",
			client: &probeClient{err: homeserver.ErrConnection},
			field:  FieldIPAddress,
			code:   CodeCouldNotConnect,
		},
		{
			name:   "not active",
			client: &probeClient{snap: homeserver.Snapshot{Fields: map[string]any{}}, err: homeserver.ErrDeviceReportedFailure},
			field:  FieldIPAddress,
			code:   CodeHomeserverNotActive,
		},
		{
			name:   "unsuccessful without error",
			client: &probeClient{snap: homeserver.Snapshot{Fields: map[string]any{}}},
			field:  FieldIPAddress,
			code:   CodeHomeserverNotActive,
		},
		{
			name:   "not a homeserver",
			client: &probeClient{err: homeserver.ErrMalformedResponse},
			field:  FieldIPAddress,
			code:   CodeInvalidIP,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := device.NewRegistry()
			flow := NewFlow(reg, newMemRepo(), factory(tt.client), nil)

			in := validInput()
			if tt.mutate != nil {
				tt.mutate(&in)
			}
			_, err := flow.Check(context.Background(), in)
			assertFlowError(t, err, tt.field, tt.code)
			if reg.Count() != 0 {
				t.Error("Check registered a device")
			}
		})
	}
}

func TestAddEntry_AlreadyConfigured(t *testing.T) {
	reg := device.NewRegistry()
	repo := newMemRepo()
	flow := NewFlow(reg, repo, factory(activeClient()), nil)

	if _, err := flow.AddEntry(context.Background(), validInput()); err != nil {
		t.Fatal(err)
	}

	sameAddress := validInput()
	sameAddress.Name = "Bad"
	_, err := flow.AddEntry(context.Background(), sameAddress)
	assertFlowError(t, err, FieldIPAddress, CodeAlreadyConfigured)

	sameName := validInput()
	sameName.IPAddress = "192.168.1.51"
	_, err = flow.AddEntry(context.Background(), sameName)
	assertFlowError(t, err, FieldName, CodeAlreadyConfigured)

	if reg.Count() != 1 {
		t.Errorf("Count() = %d, want 1", reg.Count())
	}
}

func TestRemoveEntry(t *testing.T) {
	reg := device.NewRegistry()
	repo := newMemRepo()
	flow := NewFlow(reg, repo, factory(activeClient()), nil)

	d, err := flow.AddEntry(context.Background(), validInput())
	if err != nil {
		t.Fatal(err)
	}
	if err := flow.RemoveEntry(context.Background(), d.ID); err != nil {
		t.Fatalf("RemoveEntry() error = %v", err)
	}
	if reg.Has(d.ID) {
		t.Error("device still registered")
	}
	if _, err := repo.GetByID(context.Background(), d.ID); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("entry still persisted: %v", err)
	}

	if err := flow.RemoveEntry(context.Background(), "ghost"); !errors.Is(err, device.ErrDeviceNotFound) {
		t.Errorf("RemoveEntry(ghost) error = %v, want ErrDeviceNotFound", err)
	}
}

func TestRemoveEntry_ConfigManaged(t *testing.T) {
	reg := device.NewRegistry()
	flow := NewFlow(reg, newMemRepo(), factory(activeClient()), nil)

	n := flow.LoadConfigured([]config.DeviceConfig{{
		Name:         "Bath",
		IPAddress:    "192.168.1.60",
		HomeserverID: "F8F005DA29C8",
		HeaterID:     "2049DB0CD8",
	}})
	if n != 1 {
		t.Fatalf("LoadConfigured() = %d, want 1", n)
	}

	if err := flow.RemoveEntry(context.Background(), "bath"); !errors.Is(err, ErrConfigManaged) {
		t.Errorf("RemoveEntry() error = %v, want ErrConfigManaged", err)
	}
	if !reg.Has("bath") {
		t.Error("configured device was removed")
	}
}

func TestLoadConfigured_SkipsInvalid(t *testing.T) {
	reg := device.NewRegistry()
	flow := NewFlow(reg, newMemRepo(), factory(activeClient()), nil)

	n := flow.LoadConfigured([]config.DeviceConfig{
		{Name: "Bath", IPAddress: "192.168.1.60", HomeserverID: "hs", HeaterID: "h1"},
		{Name: "Cellar", IPAddress: "not-an-ip", HomeserverID: "hs", HeaterID: "h2"},
	})
	if n != 1 || reg.Count() != 1 {
		t.Errorf("loaded = %d, registered = %d, want 1/1", n, reg.Count())
	}
}

func TestRestoreEntries(t *testing.T) {
	repo := newMemRepo()
	stored := validInput().Device(device.SourceEntry)
	if err := repo.Create(context.Background(), stored); err != nil {
		t.Fatal(err)
	}

	reg := device.NewRegistry()
	flow := NewFlow(reg, repo, factory(activeClient()), nil)

	n, err := flow.RestoreEntries(context.Background())
	if err != nil {
		t.Fatalf("RestoreEntries() error = %v", err)
	}
	if n != 1 || !reg.Has(stored.ID) {
		t.Errorf("restored = %d, registered = %v", n, reg.IDs())
	}
}
