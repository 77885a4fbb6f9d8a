package firewall

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CyberHygiene/internal/model"
)

type fakeRunner struct {
	out   string
	err   error
	block bool
	name  string
	args  []string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.name = name
	f.args = args
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []byte(f.out), f.err
}

func TestCheckEnabledWindows(t *testing.T) {
	r := &fakeRunner{out: "Domain Profile Settings:\r\nState                                 ON\r\n" +
		"Private Profile Settings:\r\nState                                 OFF\r\n"}
	state := NewProbeFor("windows", r, time.Second).Check(context.Background())

	assert.Equal(t, model.FirewallEnabled, state.Status)
	assert.Equal(t, "netsh", r.name)
	assert.Equal(t, []string{"advfirewall", "show", "allprofiles"}, r.args)
}

func TestCheckDisabledLinux(t *testing.T) {
	r := &fakeRunner{out: "Status: inactive\n"}
	state := NewProbeFor("linux", r, time.Second).Check(context.Background())

	assert.Equal(t, model.FirewallDisabled, state.Status)
	assert.Empty(t, state.Reason)
}

func TestCheckEnabledDarwin(t *testing.T) {
	r := &fakeRunner{out: "Firewall is enabled. (State = 1)"}
	state := NewProbeFor("darwin", r, time.Second).Check(context.Background())
	assert.Equal(t, model.FirewallEnabled, state.Status)
}

func TestCheckUnknownOnFailure(t *testing.T) {
	cases := map[string]*fakeRunner{
		"not found": {err: &exec.Error{Name: "ufw", Err: exec.ErrNotFound}},
		"exit code": {err: errors.New("exit status 1: ERROR: You need to be root to run this script")},
		"empty":     {out: "  \n"},
	}
	for name, r := range cases {
		state := NewProbeFor("linux", r, time.Second).Check(context.Background())
		require.Equal(t, model.FirewallUnknown, state.Status, name)
		assert.NotEmpty(t, state.Reason, name)
	}
}

func TestCheckUnknownOnTimeout(t *testing.T) {
	state := NewProbeFor("linux", &fakeRunner{block: true}, 20*time.Millisecond).Check(context.Background())
	assert.Equal(t, model.FirewallUnknown, state.Status)
	assert.Contains(t, state.Reason, "超时")
}

func TestCheckUnsupportedOS(t *testing.T) {
	r := &fakeRunner{}
	state := NewProbeFor("plan9", r, time.Second).Check(context.Background())
	assert.Equal(t, model.FirewallUnknown, state.Status)
	assert.Empty(t, r.name)
}
