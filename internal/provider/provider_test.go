package provider

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/opencab/internal/broadcast"
	"github.com/danmuck/opencab/internal/contracts/hos"
	"github.com/danmuck/opencab/internal/contracts/identity"
	"github.com/danmuck/opencab/internal/contracts/vehicle"
	"github.com/danmuck/opencab/internal/host"
	"github.com/danmuck/opencab/internal/protocol"
	"github.com/danmuck/opencab/internal/testutil/testlog"
	"github.com/danmuck/opencab/internal/version"
)

var fixedNow = time.Date(2026, 3, 4, 10, 20, 30, 0, time.UTC)

type recorder struct {
	mu      sync.Mutex
	actions []string
	err     error
}

func (r *recorder) Broadcast(_ context.Context, e protocol.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, e.Action)
	return r.err
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.actions...)
}

func newApp(t *testing.T, mutate func(*Settings)) (*App, *recorder, *host.Device) {
	t.Helper()
	s := DefaultSettings()
	s.SigningKey = []byte("test-signing-key")
	if mutate != nil {
		mutate(&s)
	}
	rec := &recorder{}
	app, err := New(s, rec, WithClock(func() time.Time { return fixedNow }))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	pkg, err := app.HostApp()
	if err != nil {
		t.Fatalf("host app: %v", err)
	}
	d := host.NewDevice("test")
	if err := d.Install(pkg); err != nil {
		t.Fatalf("install: %v", err)
	}
	return app, rec, d
}

func hosClient(t *testing.T, d *host.Device, maxVersion version.Version) *hos.Client {
	t.Helper()
	c, err := hos.NewClient(d, host.Endpoint(DefaultIdentity, hos.Authority), maxVersion)
	if err != nil {
		t.Fatalf("hos client: %v", err)
	}
	return c
}

func identityClient(t *testing.T, d *host.Device) *identity.Client {
	t.Helper()
	c, err := identity.NewClient(d, host.Endpoint(DefaultIdentity, identity.Authority), identity.Latest)
	if err != nil {
		t.Fatalf("identity client: %v", err)
	}
	return c
}

func vehicleClient(t *testing.T, d *host.Device) *vehicle.Client {
	t.Helper()
	c, err := vehicle.NewClient(d, host.Endpoint(DefaultIdentity, vehicle.Authority), vehicle.Latest)
	if err != nil {
		t.Fatalf("vehicle client: %v", err)
	}
	return c
}

func TestClocksDriving(t *testing.T) {
	testlog.Start(t)
	clocks := Clocks(fixedNow, DutyDriving, "driver1")
	if len(clocks) != 6 {
		t.Fatalf("expected 6 clocks, got %d", len(clocks))
	}
	if clocks[0].Value != "D" || clocks[0].ValueType != hos.ValueString {
		t.Fatalf("unexpected duty clock: %+v", clocks[0])
	}
	remaining := clocks[1]
	if remaining.Label != "Drive Time Remaining" || !remaining.Important || !remaining.LimitsDrivingRange {
		t.Fatalf("unexpected remaining clock: %+v", remaining)
	}
	if remaining.Value != "2026-03-04T22:00:00.0000+0000" || remaining.ValueType != hos.ValueCountDown {
		t.Fatalf("unexpected deadline: %q", remaining.Value)
	}
	if clocks[2].Value != "driver1" {
		t.Fatalf("unexpected user clock: %+v", clocks[2])
	}
	if clocks[3].Value != "2026-03-04T00:00:00.0000+0000" || clocks[3].ValueType != hos.ValueCountUp {
		t.Fatalf("unexpected rest clock: %+v", clocks[3])
	}
	duration := clocks[4]
	if duration.Label != DurationClockLabel || duration.Value != "11:39" || duration.LimitsDrivingRange {
		t.Fatalf("unexpected duration clock: %+v", duration)
	}
	if duration.DurationSeconds == nil || *duration.DurationSeconds != 41970 {
		t.Fatalf("unexpected duration seconds: %v", duration.DurationSeconds)
	}
	if clocks[5].Value != "2026-03-04T10:20:30.0000+0000" || clocks[5].ValueType != hos.ValueDate {
		t.Fatalf("unexpected date clock: %+v", clocks[5])
	}
}

func TestClocksOnDutyLimitsByDuration(t *testing.T) {
	testlog.Start(t)
	clocks := Clocks(fixedNow, DutyOnDuty, "driver1")
	if clocks[0].Value != "ON" || clocks[1].Label != "On Duty Time Remaining" {
		t.Fatalf("unexpected on-duty clocks: %+v", clocks[:2])
	}
	if clocks[1].LimitsDrivingRange || !clocks[4].LimitsDrivingRange {
		t.Fatalf("on duty limits driving by the duration clock")
	}
	if clocks[4].Value != "07:39" {
		t.Fatalf("unexpected duration: %q", clocks[4].Value)
	}
	off := Clocks(fixedNow, DutyOff, "driver1")
	if off[0].Value != "OFF" || off[1].Value != "2026-03-04T20:00:00.0000+0000" {
		t.Fatalf("unexpected off-duty clocks: %+v", off[:2])
	}
}

func TestHOSUnavailableUntilLogin(t *testing.T) {
	testlog.Start(t)
	app, rec, d := newApp(t, nil)
	c := hosClient(t, d, hos.Latest)
	ctx := context.Background()

	if _, err := c.GetHOS(ctx); !errors.Is(err, protocol.ErrDataUnavailable) {
		t.Fatalf("expected data unavailable before login, got %v", err)
	}
	if err := app.Login(ctx, "driver1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	p, err := c.GetHOS(ctx)
	if err != nil {
		t.Fatalf("get hos: %v", err)
	}
	if _, ok := p.(hos.PayloadV04); !ok {
		t.Fatalf("expected PayloadV04, got %T", p)
	}
	st := p.Primary()
	if st.Clocks[0].Value != "OFF" || st.Clocks[2].Value != "driver1" {
		t.Fatalf("unexpected status after login: %+v", st.Clocks[:3])
	}
	if st.ManageAction != ManageActionURI(DefaultIdentity) {
		t.Fatalf("unexpected manage action: %q", st.ManageAction)
	}
	if got := rec.seen(); !slices.Equal(got, []string{broadcast.ActionDriverLogin}) {
		t.Fatalf("unexpected broadcasts: %v", got)
	}
}

func TestForcedHOSVersionsAndLogoutToggle(t *testing.T) {
	testlog.Start(t)
	app, _, d := newApp(t, func(s *Settings) {
		s.HOSVersions = []version.Version{hos.V02, hos.V03}
		s.ToggleLogoutAction = true
	})
	ctx := context.Background()
	if err := app.Login(ctx, "driver1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	p, err := hosClient(t, d, hos.Latest).GetHOS(ctx)
	if err != nil {
		t.Fatalf("get hos: %v", err)
	}
	v3, ok := p.(hos.PayloadV03)
	if !ok {
		t.Fatalf("expected downgrade to PayloadV03, got %T", p)
	}
	if v3.Status.LogoutAction != BrowserLogout {
		t.Fatalf("unexpected logout action: %q", v3.Status.LogoutAction)
	}

	if err := app.Configure(func(s *Settings) { s.ManageAction = false }); err != nil {
		t.Fatalf("configure: %v", err)
	}
	p, err = hosClient(t, d, hos.V03).GetHOS(ctx)
	if err != nil {
		t.Fatalf("get hos: %v", err)
	}
	if st := p.Primary(); st.ManageAction != "" || st.LogoutAction != "" {
		t.Fatalf("actions should be off: %+v", st)
	}
}

func TestTeamDrivingAddsTeamClocks(t *testing.T) {
	testlog.Start(t)
	app, _, d := newApp(t, func(s *Settings) { s.TeamDriving = true })
	ctx := context.Background()
	if err := app.Login(ctx, "driver1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	p, err := hosClient(t, d, hos.Latest).GetHOS(ctx)
	if err != nil {
		t.Fatalf("get hos: %v", err)
	}
	team := p.TeamClocks()
	if len(team) != 2 {
		t.Fatalf("expected two team drivers, got %d", len(team))
	}
	if team[1][2].Value != "OPENCAB_TEAM_DRIVER_2" {
		t.Fatalf("unexpected team user clock: %+v", team[1][2])
	}
}

func TestLoginCredentialsCarryVerifiableToken(t *testing.T) {
	testlog.Start(t)
	app, _, d := newApp(t, nil)
	ctx := context.Background()
	c := identityClient(t, d)

	if _, err := c.GetLoginCredentials(ctx); !errors.Is(err, protocol.ErrDataUnavailable) {
		t.Fatalf("expected data unavailable before login, got %v", err)
	}
	if err := app.Login(ctx, "driver1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	p, err := c.GetLoginCredentials(ctx)
	if err != nil {
		t.Fatalf("get credentials: %v", err)
	}
	creds := p.Current()
	if creds == nil || creds.Provider != DefaultIdentity || creds.Authority != identity.Authority {
		t.Fatalf("unexpected credentials: %+v", creds)
	}
	user, err := VerifyToken(creds.Token, app.Settings().SigningKey, fixedNow)
	if err != nil || user != "driver1" {
		t.Fatalf("token did not verify: user=%q err=%v", user, err)
	}
	v3, ok := p.(identity.CredentialsV03)
	if !ok || len(v3.Sessions) != 1 || v3.Sessions[0].Username != "driver1" {
		t.Fatalf("unexpected sessions: %+v", p)
	}
}

func TestStaticTokenAnnouncesIdentityChange(t *testing.T) {
	testlog.Start(t)
	app, rec, d := newApp(t, nil)
	ctx := context.Background()
	if err := app.Login(ctx, "driver1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := app.SetToken(ctx, TokenStatic, "static-token"); err != nil {
		t.Fatalf("set token: %v", err)
	}
	p, err := identityClient(t, d).GetLoginCredentials(ctx)
	if err != nil {
		t.Fatalf("get credentials: %v", err)
	}
	if p.Current().Token != "static-token" {
		t.Fatalf("unexpected token: %q", p.Current().Token)
	}
	want := []string{broadcast.ActionDriverLogin, broadcast.ActionIdentityInformationChanged}
	if got := rec.seen(); !slices.Equal(got, want) {
		t.Fatalf("unexpected broadcasts: %v", got)
	}
	if err := app.SetToken(ctx, TokenMode("bogus"), ""); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected invalid settings, got %v", err)
	}
}

func TestLogoutClearsSession(t *testing.T) {
	testlog.Start(t)
	app, rec, d := newApp(t, nil)
	ctx := context.Background()
	if err := app.Login(ctx, "driver1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := app.Logout(ctx); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if st := app.State(); st.Username != "" || len(st.ActiveDrivers) != 0 || st.Navigating {
		t.Fatalf("session not cleared: %+v", st)
	}
	if _, err := identityClient(t, d).GetActiveDrivers(ctx); !errors.Is(err, protocol.ErrDataUnavailable) {
		t.Fatalf("expected no active drivers, got %v", err)
	}
	if err := app.Logout(ctx); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected not logged in, got %v", err)
	}
	want := []string{broadcast.ActionDriverLogin, broadcast.ActionDriverLogout}
	if got := rec.seen(); !slices.Equal(got, want) {
		t.Fatalf("unexpected broadcasts: %v", got)
	}
}

func TestSwitchDriverLogsInCoDriver(t *testing.T) {
	testlog.Start(t)
	app, rec, _ := newApp(t, nil)
	ctx := context.Background()
	if err := app.SwitchDriver(ctx); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected not logged in, got %v", err)
	}
	if err := app.Login(ctx, "driver1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := app.SwitchDriver(ctx); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if got := app.State().Username; got != CoDriver {
		t.Fatalf("expected co-driver, got %q", got)
	}
	want := []string{broadcast.ActionDriverLogin, broadcast.ActionDriverLogout, broadcast.ActionDriverLogin}
	if got := rec.seen(); !slices.Equal(got, want) {
		t.Fatalf("unexpected broadcasts: %v", got)
	}
}

func TestDrivingDutyMarksActiveDriver(t *testing.T) {
	testlog.Start(t)
	app, _, d := newApp(t, nil)
	ctx := context.Background()
	if err := app.SetDutyStatus(ctx, DutyDriving); !errors.Is(err, ErrNotLoggedIn) {
		t.Fatalf("expected not logged in, got %v", err)
	}
	if err := app.Login(ctx, "driver1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := app.SetDutyStatus(ctx, "bogus"); !errors.Is(err, ErrInvalidDuty) {
		t.Fatalf("expected invalid duty, got %v", err)
	}
	if err := app.SetDutyStatus(ctx, "D"); err != nil {
		t.Fatalf("set duty: %v", err)
	}
	drivers, err := identityClient(t, d).GetActiveDrivers(ctx)
	if err != nil {
		t.Fatalf("active drivers: %v", err)
	}
	if len(drivers) != 1 || !drivers[0].Driving {
		t.Fatalf("driver should be driving: %+v", drivers)
	}
	p, err := hosClient(t, d, hos.V02).GetHOS(ctx)
	if err != nil {
		t.Fatalf("get hos: %v", err)
	}
	if got := p.Primary().Clocks[0].Value; got != "D" {
		t.Fatalf("unexpected duty clock: %q", got)
	}
}

func TestSetVehicleAnnouncesChange(t *testing.T) {
	testlog.Start(t)
	app, rec, d := newApp(t, nil)
	ctx := context.Background()
	c := vehicleClient(t, d)

	p, err := c.GetVehicleInformation(ctx)
	if err != nil {
		t.Fatalf("get vehicle: %v", err)
	}
	if info := p.Information(); info.VIN != "QWERRTYUIOP12345" || info.VehicleID != "Great Vehicle ID 1" || !info.InGear {
		t.Fatalf("unexpected default vehicle: %+v", info)
	}

	if err := app.SetVehicle(ctx, &vehicle.Information{VIN: "1FUJGLDR0CLBP8834", VehicleID: "truck-7"}); err != nil {
		t.Fatalf("set vehicle: %v", err)
	}
	p, err = c.GetVehicleInformation(ctx)
	if err != nil {
		t.Fatalf("get vehicle: %v", err)
	}
	if info := p.Information(); info.VIN != "1FUJGLDR0CLBP8834" || info.InGear {
		t.Fatalf("unexpected vehicle: %+v", info)
	}

	if err := app.SetVehicle(ctx, nil); err != nil {
		t.Fatalf("detach vehicle: %v", err)
	}
	if _, err := c.GetVehicleInformation(ctx); !errors.Is(err, protocol.ErrDataUnavailable) {
		t.Fatalf("expected data unavailable, got %v", err)
	}
	want := []string{broadcast.ActionVehicleInformationChanged, broadcast.ActionVehicleInformationChanged}
	if got := rec.seen(); !slices.Equal(got, want) {
		t.Fatalf("unexpected broadcasts: %v", got)
	}
}

func TestNavigationState(t *testing.T) {
	testlog.Start(t)
	app, _, d := newApp(t, nil)
	ctx := context.Background()
	c := hosClient(t, d, hos.Latest)
	ok, err := c.StartNavigation(ctx)
	if err != nil || !ok {
		t.Fatalf("start navigation: ok=%v err=%v", ok, err)
	}
	if !app.State().Navigating {
		t.Fatalf("expected navigating")
	}
	if ok, err := c.EndNavigation(ctx); err != nil || !ok {
		t.Fatalf("end navigation: ok=%v err=%v", ok, err)
	}
	if app.State().Navigating {
		t.Fatalf("expected navigation ended")
	}
}

func TestHOSDelayHonorsCancellation(t *testing.T) {
	testlog.Start(t)
	app, _, _ := newApp(t, func(s *Settings) { s.HOSDelay = time.Hour })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (hosSource{app}).Status(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
}

func TestBroadcastErrorsSurface(t *testing.T) {
	testlog.Start(t)
	app, rec, _ := newApp(t, nil)
	rec.err = broadcast.ErrUnknownEvent
	if err := app.Broadcast(context.Background(), "com.example.NOPE"); !errors.Is(err, broadcast.ErrUnknownEvent) {
		t.Fatalf("expected unknown event, got %v", err)
	}
}

func TestTokenRejectsExpiredAndForeignKeys(t *testing.T) {
	testlog.Start(t)
	key := []byte("k1")
	token, err := MintToken("driver1", key, fixedNow, time.Hour)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := VerifyToken(token, []byte("k2"), fixedNow); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for foreign key, got %v", err)
	}
	if _, err := VerifyToken(token, key, fixedNow.Add(2*time.Hour)); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token once expired, got %v", err)
	}
	if _, err := MintToken("driver1", nil, fixedNow, time.Hour); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected empty key rejected, got %v", err)
	}
}

func TestSettingsValidate(t *testing.T) {
	testlog.Start(t)
	cases := map[string]func(*Settings){
		"identity": func(s *Settings) { s.Identity = " " },
		"duty":     func(s *Settings) { s.Duty = "sleeper" },
		"token":    func(s *Settings) { s.TokenMode = "oauth" },
		"ttl":      func(s *Settings) { s.TokenTTL = 0 },
		"delay":    func(s *Settings) { s.HOSDelay = -time.Second },
		"team":     func(s *Settings) { s.TeamDriving = true; s.TeamDrivers = nil },
	}
	for name, mutate := range cases {
		s := DefaultSettings()
		mutate(&s)
		if err := s.Validate(); !errors.Is(err, ErrInvalidSettings) {
			t.Fatalf("%s: expected invalid settings, got %v", name, err)
		}
	}
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if _, err := New(DefaultSettings(), nil); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected broadcaster required, got %v", err)
	}
}
