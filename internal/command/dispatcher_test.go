package command

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/nerrad567/clage-homeserver/internal/coordinator"
	"github.com/nerrad567/clage-homeserver/internal/device"
	"github.com/nerrad567/clage-homeserver/internal/homeserver"
)

type fakeHeater struct {
	mu   sync.Mutex
	sent []int
	err  error
}

func (f *fakeHeater) RequestStatus(context.Context) (homeserver.Snapshot, error) {
	return homeserver.Snapshot{Success: true, Fields: map[string]any{}}, nil
}

func (f *fakeHeater) SetTemperature(_ context.Context, celsius int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, celsius)
	return f.err
}

func (f *fakeHeater) calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.sent)
}

type fakeDevices map[string]*fakeHeater

func (d fakeDevices) IDs() []string {
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (d fakeDevices) Has(id string) bool {
	_, ok := d[id]
	return ok
}

func (d fakeDevices) Client(id string) (homeserver.Client, error) {
	h, ok := d[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return h, nil
}

type fakeRefresher struct {
	mu       sync.Mutex
	calls    int
	triggers []coordinator.Trigger
}

func (r *fakeRefresher) Refresh(ctx context.Context) (coordinator.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.triggers = append(r.triggers, coordinator.TriggerFrom(ctx))
	return coordinator.Summary{}, nil
}

type mapStates map[string]any

func (m mapStates) EntityValue(id string) (any, bool) {
	v, ok := m[id]
	return v, ok
}

func TestSetTemperature_Clamps(t *testing.T) {
	tests := []struct {
		name  string
		input TemperatureInput
		want  int
	}{
		{"below range", Literal(5), 10},
		{"above range", Literal(75), 60},
		{"in range", Literal(42), 42},
		{"numeric string", Numeric("38.6"), 39},
		{"default", TemperatureInput{}, 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			heater := &fakeHeater{}
			devices := fakeDevices{"kitchen": heater}
			ref := &fakeRefresher{}
			d := NewDispatcher(devices, ref, nil)

			res, err := d.SetTemperature(context.Background(), Command{DeviceID: "kitchen", Temperature: tt.input})
			if err != nil {
				t.Fatalf("SetTemperature() error = %v", err)
			}
			if res.Temperature != tt.want {
				t.Errorf("Temperature = %d, want %d", res.Temperature, tt.want)
			}
			if got := heater.calls(); len(got) != 1 || got[0] != tt.want {
				t.Errorf("sent = %v, want [%d]", got, tt.want)
			}
			if res.CommandID == "" {
				t.Error("CommandID is empty")
			}
			if !res.OK() {
				t.Errorf("OK() = false, failures %v", res.Failures)
			}
		})
	}
}

func TestSetTemperature_UnknownDevice(t *testing.T) {
	heater := &fakeHeater{}
	ref := &fakeRefresher{}
	d := NewDispatcher(fakeDevices{"kitchen": heater}, ref, nil)

	_, err := d.SetTemperature(context.Background(), Command{DeviceID: "ghost", Temperature: Literal(40)})
	if !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("error = %v, want ErrUnknownDevice", err)
	}
	if len(heater.calls()) != 0 {
		t.Error("device was called for an unknown target")
	}
	if ref.calls != 0 {
		t.Errorf("refresh calls = %d, want 0", ref.calls)
	}
}

func TestSetTemperature_InvalidValue(t *testing.T) {
	heater := &fakeHeater{}
	ref := &fakeRefresher{}
	d := NewDispatcher(fakeDevices{"kitchen": heater}, ref, mapStates{})

	_, err := d.SetTemperature(context.Background(), Command{
		DeviceID:    "kitchen",
		Temperature: Reference("sensor.clagehomeserver_kitchen_missing"),
	})
	if !errors.Is(err, ErrInvalidCommandValue) {
		t.Fatalf("error = %v, want ErrInvalidCommandValue", err)
	}
	if len(heater.calls()) != 0 || ref.calls != 0 {
		t.Error("invalid value reached a device or triggered a refresh")
	}
}

func TestSetTemperature_BroadcastContinuesPastFailure(t *testing.T) {
	devices := fakeDevices{
		"attic":  &fakeHeater{},
		"bath":   &fakeHeater{err: homeserver.ErrConnection},
		"cellar": &fakeHeater{},
	}
	ref := &fakeRefresher{}
	d := NewDispatcher(devices, ref, nil)

	res, err := d.SetTemperature(context.Background(), Command{Temperature: Literal(45)})
	if err != nil {
		t.Fatalf("broadcast error = %v, want nil", err)
	}
	for id, h := range devices {
		if got := h.calls(); len(got) != 1 || got[0] != 45 {
			t.Errorf("%s sent = %v, want [45]", id, got)
		}
	}
	if len(res.Targets) != 3 {
		t.Errorf("Targets = %v", res.Targets)
	}
	if len(res.Failures) != 1 || res.Failures[0].DeviceID != "bath" {
		t.Errorf("Failures = %+v, want bath only", res.Failures)
	}
	if res.OK() {
		t.Error("OK() = true with a failure")
	}
	if ref.calls != 1 {
		t.Errorf("refresh calls = %d, want 1", ref.calls)
	}
}

func TestSetTemperature_TargetFailureStillRefreshes(t *testing.T) {
	heater := &fakeHeater{err: homeserver.ErrDeviceReportedFailure}
	ref := &fakeRefresher{}
	d := NewDispatcher(fakeDevices{"kitchen": heater}, ref, nil)

	_, err := d.SetTemperature(context.Background(), Command{DeviceID: "kitchen", Temperature: Literal(40)})
	if !errors.Is(err, homeserver.ErrDeviceReportedFailure) {
		t.Errorf("error = %v, want ErrDeviceReportedFailure", err)
	}
	if ref.calls != 1 {
		t.Errorf("refresh calls = %d, want 1", ref.calls)
	}
}

func TestSetTemperature_RefreshCarriesCommandTrigger(t *testing.T) {
	ref := &fakeRefresher{}
	d := NewDispatcher(fakeDevices{"kitchen": &fakeHeater{}}, ref, nil)

	if _, err := d.SetTemperature(context.Background(), Command{Temperature: Literal(40)}); err != nil {
		t.Fatal(err)
	}
	if len(ref.triggers) != 1 || ref.triggers[0] != coordinator.TriggerCommand {
		t.Errorf("triggers = %v, want [command]", ref.triggers)
	}
}

func TestSetTemperature_NoDevicesNoRefresh(t *testing.T) {
	ref := &fakeRefresher{}
	d := NewDispatcher(fakeDevices{}, ref, nil)

	res, err := d.SetTemperature(context.Background(), Command{Temperature: Literal(40)})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Targets) != 0 || ref.calls != 0 {
		t.Errorf("Targets = %v refresh = %d, want none", res.Targets, ref.calls)
	}
}

func TestSetTemperature_ReferenceResolution(t *testing.T) {
	heater := &fakeHeater{}
	states := mapStates{"sensor.clagehomeserver_bath_heater_status_tOut": 47.6}
	d := NewDispatcher(fakeDevices{"kitchen": heater}, nil, states)

	res, err := d.SetTemperature(context.Background(), Command{
		DeviceID:    "kitchen",
		Temperature: Reference("sensor.clagehomeserver_bath_heater_status_tOut"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Requested != 48 || res.Temperature != 48 {
		t.Errorf("Requested/Temperature = %d/%d, want 48/48", res.Requested, res.Temperature)
	}
}

func TestCommand_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind InputKind
		wantDev  string
		wantErr  bool
	}{
		{"number", `{"device_id":"kitchen","temperature":41.4}`, KindLiteral, "kitchen", false},
		{"numeric string", `{"temperature":"42"}`, KindNumeric, "", false},
		{"reference", `{"temperature":"sensor.clagehomeserver_kitchen_heater_setpoint"}`, KindReference, "", false},
		{"absent", `{"device_id":"kitchen"}`, KindDefault, "kitchen", false},
		{"garbage string", `{"temperature":"warm please"}`, 0, "", true},
		{"object", `{"temperature":{"v":1}}`, 0, "", true},
		{"device id not a string", `{"device_id":5}`, 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			err := json.Unmarshal([]byte(tt.body), &cmd)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCommandValue) {
					t.Errorf("error = %v, want ErrInvalidCommandValue", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if cmd.Temperature.Kind() != tt.wantKind {
				t.Errorf("Kind() = %v, want %v", cmd.Temperature.Kind(), tt.wantKind)
			}
			if cmd.DeviceID != tt.wantDev {
				t.Errorf("DeviceID = %q, want %q", cmd.DeviceID, tt.wantDev)
			}
		})
	}
}

func TestCommand_UnmarshalJSON_Malformed(t *testing.T) {
	var cmd Command
	err := json.Unmarshal([]byte(`{`), &cmd)
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Errorf("error = %v (%T), want *json.SyntaxError", err, err)
	}
}

func TestCommand_OutOfRangeTemperatureClamps(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantRequested int
		wantClamped   int
	}{
		{"huge number", `{"temperature":1e20}`, requestLimit, MaxTemperature},
		{"huge numeric string", `{"temperature":"1e20"}`, requestLimit, MaxTemperature},
		{"just above int64", `{"temperature":9.3e18}`, requestLimit, MaxTemperature},
		{"huge negative", `{"temperature":-1e20}`, -requestLimit, MinTemperature},
		{"huge negative string", `{"temperature":"-1e20"}`, -requestLimit, MinTemperature},
		{"above range", `{"temperature":70}`, 70, MaxTemperature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cmd Command
			if err := json.Unmarshal([]byte(tt.body), &cmd); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			got, err := cmd.Temperature.Resolve(nil)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got != tt.wantRequested {
				t.Errorf("Resolve() = %d, want %d", got, tt.wantRequested)
			}
			if c := Clamp(got); c != tt.wantClamped {
				t.Errorf("Clamp(%d) = %d, want %d", got, c, tt.wantClamped)
			}
		})
	}
}

func TestResolve_HugeReferenceValue(t *testing.T) {
	states := mapStates{"sensor.outdoor_target": 1e20}
	got, err := Reference("sensor.outdoor_target").Resolve(states)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if Clamp(got) != MaxTemperature {
		t.Errorf("Clamp(Resolve()) = %d, want %d", Clamp(got), MaxTemperature)
	}
}

func TestCommand_LiteralRounding(t *testing.T) {
	var cmd Command
	if err := json.Unmarshal([]byte(`{"temperature":41.5}`), &cmd); err != nil {
		t.Fatal(err)
	}
	got, err := cmd.Temperature.Resolve(nil)
	if err != nil || got != 42 {
		t.Errorf("Resolve() = %d, %v, want 42", got, err)
	}
}

func TestSetTemperature_ListenersSeeEveryOutcome(t *testing.T) {
	d := NewDispatcher(fakeDevices{"kitchen": &fakeHeater{}}, nil, nil)

	var errs []error
	var ids []string
	d.AddListener(func(_ context.Context, res Result, err error) {
		ids = append(ids, res.CommandID)
		errs = append(errs, err)
	})

	d.SetTemperature(context.Background(), Command{DeviceID: "kitchen", Temperature: Literal(40)}) //nolint:errcheck // Checked via listener
	d.SetTemperature(context.Background(), Command{DeviceID: "ghost", Temperature: Literal(40)})   //nolint:errcheck // Checked via listener

	if len(errs) != 2 {
		t.Fatalf("listener calls = %d, want 2", len(errs))
	}
	if errs[0] != nil || !errors.Is(errs[1], ErrUnknownDevice) {
		t.Errorf("errors = %v", errs)
	}
	if ids[0] == "" || ids[0] == ids[1] {
		t.Errorf("command ids = %v, want two distinct", ids)
	}
}

func TestSetTemperature_CarriesOrigin(t *testing.T) {
	d := NewDispatcher(fakeDevices{"kitchen": &fakeHeater{}}, &fakeRefresher{}, nil)

	ctx := WithOrigin(context.Background(), Origin{Source: SourceAPI, Caller: "home-assistant"})
	res, err := d.SetTemperature(ctx, Command{DeviceID: "kitchen", Temperature: Literal(40)})
	if err != nil {
		t.Fatal(err)
	}
	if res.Source != SourceAPI || res.Caller != "home-assistant" {
		t.Errorf("Source/Caller = %q/%q, want api/home-assistant", res.Source, res.Caller)
	}

	res, _ = d.SetTemperature(context.Background(), Command{DeviceID: "ghost"})
	if res.Source != "" || res.Caller != "" {
		t.Errorf("untagged command has origin %q/%q", res.Source, res.Caller)
	}
}
