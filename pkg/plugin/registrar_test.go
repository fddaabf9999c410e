package plugin

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/desktop-embedding/pkg/channel"
	"github.com/morezero/desktop-embedding/pkg/codec"
	"github.com/morezero/desktop-embedding/pkg/dispatcher"
	"github.com/morezero/desktop-embedding/pkg/engine"
	"github.com/morezero/desktop-embedding/pkg/events"
	"github.com/morezero/desktop-embedding/pkg/messenger"
)

type echoPlugin struct {
	channel  string
	blocking bool
	version  string
	codec    codec.MethodCodec[any]
}

func (p *echoPlugin) Channel() string { return p.channel }

func (p *echoPlugin) HandleMethodCall(call codec.MethodCall[any], result channel.MethodResult[any]) {
	result.Success(call.Arguments())
}

func (p *echoPlugin) InputBlocking() bool { return p.blocking }

func (p *echoPlugin) APIVersion() string { return p.version }

func (p *echoPlugin) Codec() codec.MethodCodec[any] { return p.codec }

// extraChannelPlugin installs extra channels from Register and then returns
// err.
type extraChannelPlugin struct {
	echoPlugin
	extras []string
	err    error
}

func (p *extraChannelPlugin) Register(m *PluginMessenger) error {
	for _, ch := range p.extras {
		m.SetMessageHandler(ch, func(_ []byte, reply messenger.Reply) { reply([]byte(`"extra"`)) })
	}
	return p.err
}

func newRegistrar(t *testing.T, opts Options) (*engine.Loopback, *dispatcher.Dispatcher, *Registrar) {
	t.Helper()
	eng := engine.NewLoopback()
	d := dispatcher.New(eng)
	eng.Attach(d)
	r, err := NewRegistrar(d, opts)
	require.NoError(t, err)
	return eng, d, r
}

func TestRegistrar_AddPluginRoutesCalls(t *testing.T) {
	eng, _, r := newRegistrar(t, Options{})
	require.NoError(t, r.AddPlugin(&echoPlugin{channel: "echo"}))

	handle := eng.Deliver("echo", []byte(`{"method":"ping","args":"hi"}`))

	responses := eng.Responses(handle)
	require.Len(t, responses, 1)
	assert.JSONEq(t, `["hi"]`, string(responses[0].Payload))
}

func TestRegistrar_RejectsDuplicateChannel(t *testing.T) {
	_, _, r := newRegistrar(t, Options{})
	require.NoError(t, r.AddPlugin(&echoPlugin{channel: "dup"}))

	err := r.AddPlugin(&echoPlugin{channel: "dup"})
	assert.ErrorIs(t, err, ErrChannelInUse)
	assert.Len(t, r.Plugins(), 1)
}

func TestRegistrar_RejectsChannelWithRawHandler(t *testing.T) {
	_, d, r := newRegistrar(t, Options{})
	d.SetMessageHandler("taken", func(_ []byte, reply messenger.Reply) { reply(nil) })

	assert.ErrorIs(t, r.AddPlugin(&echoPlugin{channel: "taken"}), ErrChannelInUse)
}

func TestRegistrar_RejectsInvalidPlugin(t *testing.T) {
	_, _, r := newRegistrar(t, Options{})
	assert.ErrorIs(t, r.AddPlugin(nil), ErrInvalidPlugin)
	assert.ErrorIs(t, r.AddPlugin(&echoPlugin{}), ErrInvalidPlugin)
}

func TestRegistrar_InputBlockingEnabledAfterInstall(t *testing.T) {
	eng, d, r := newRegistrar(t, Options{})
	var order []string
	eng.InputBlock = func() { order = append(order, "block") }
	eng.InputUnblock = func() { order = append(order, "unblock") }

	require.NoError(t, r.AddPlugin(&echoPlugin{channel: "modal", blocking: true}))
	assert.True(t, d.IsInputBlocking("modal"))

	eng.Deliver("modal", []byte(`{"method":"open"}`))
	assert.Equal(t, []string{"block", "unblock"}, order)
}

func TestRegistrar_VersionGate(t *testing.T) {
	_, _, r := newRegistrar(t, Options{APIConstraint: "^1.0.0"})

	require.NoError(t, r.AddPlugin(&echoPlugin{channel: "ok", version: "1.3.0"}))

	err := r.AddPlugin(&echoPlugin{channel: "new", version: "2.0.0"})
	assert.ErrorIs(t, err, ErrIncompatibleVersion)

	err = r.AddPlugin(&echoPlugin{channel: "garbage", version: "not-a-version"})
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}

func TestNewRegistrar_BadConstraint(t *testing.T) {
	eng := engine.NewLoopback()
	_, err := NewRegistrar(dispatcher.New(eng), Options{APIConstraint: "^^"})
	assert.Error(t, err)
}

func TestRegistrar_CustomCodec(t *testing.T) {
	eng, _, r := newRegistrar(t, Options{})
	require.NoError(t, r.AddPlugin(&echoPlugin{channel: "binary", codec: codec.CBORMethod()}))

	payload, err := codec.CBORMethod().EncodeMethodCall(codec.NewMethodCall[any]("echo", "x"))
	require.NoError(t, err)
	handle := eng.Deliver("binary", payload)

	responses := eng.Responses(handle)
	require.Len(t, responses, 1)
	result, _, _, err := codec.DecodeEnvelope(codec.CBORMessage(), responses[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, "x", result)
}

func TestRegistrar_FailedRegisterRollsBack(t *testing.T) {
	_, d, r := newRegistrar(t, Options{})

	err := r.AddPlugin(&extraChannelPlugin{
		echoPlugin: echoPlugin{channel: "main"},
		extras:     []string{"main/events", "main/status"},
		err:        errors.New("no extra channels"),
	})
	require.Error(t, err)
	assert.Empty(t, d.Channels(), "main and extra channels must be cleared")
	assert.Empty(t, r.Plugins())
}

func TestRegistrar_RemovePluginClearsExtraChannels(t *testing.T) {
	eng, d, r := newRegistrar(t, Options{})
	require.NoError(t, r.AddPlugin(&extraChannelPlugin{
		echoPlugin: echoPlugin{channel: "main"},
		extras:     []string{"main/events"},
	}))
	d.SetMessageHandler("unrelated", func(_ []byte, reply messenger.Reply) { reply(nil) })
	assert.Equal(t, []string{"main", "main/events", "unrelated"}, d.Channels())

	handle := eng.Deliver("main/events", nil)
	responses := eng.Responses(handle)
	require.Len(t, responses, 1)
	assert.Equal(t, `"extra"`, string(responses[0].Payload))

	assert.True(t, r.RemovePlugin("main"))
	assert.Equal(t, []string{"unrelated"}, d.Channels())
}

func TestPluginMessenger_ClearedChannelIsForgotten(t *testing.T) {
	_, d, r := newRegistrar(t, Options{})
	require.NoError(t, r.AddPlugin(&extraChannelPlugin{
		echoPlugin: echoPlugin{channel: "main"},
		extras:     []string{"main/once"},
	}))

	m := &PluginMessenger{r: r, owner: "main"}
	m.SetMessageHandler("main/once", nil)
	d.SetMessageHandler("main/once", func(_ []byte, reply messenger.Reply) { reply(nil) })

	assert.True(t, r.RemovePlugin("main"))
	assert.True(t, d.HasHandler("main/once"), "a channel the plugin released is no longer its to clear")
}

func TestRegistrar_ConcurrentAddPluginSameChannel(t *testing.T) {
	_, d, r := newRegistrar(t, Options{})

	const workers = 16
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.AddPlugin(&echoPlugin{channel: "contested"})
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrChannelInUse)
	}
	assert.Equal(t, 1, succeeded)
	assert.True(t, d.HasHandler("contested"))
	assert.Len(t, r.Plugins(), 1)
}

func TestRegistrar_Plugins(t *testing.T) {
	_, _, r := newRegistrar(t, Options{})
	require.NoError(t, r.AddPlugin(&echoPlugin{channel: "b", blocking: true, version: "1.0.0"}))
	require.NoError(t, r.AddPlugin(&echoPlugin{channel: "a"}))

	assert.Equal(t, []Info{
		{Channel: "a"},
		{Channel: "b", InputBlocking: true, APIVersion: "1.0.0"},
	}, r.Plugins())
	assert.NotNil(t, r.Messenger())
}

func TestRegistrar_PublishesChannelEvents(t *testing.T) {
	var got []*events.ChannelChangedEvent
	pub := events.NewCallbackPublisher(func(_ context.Context, e *events.ChannelChangedEvent) error {
		got = append(got, e)
		return nil
	})
	_, d, r := newRegistrar(t, Options{Events: pub, HostID: "host-1"})

	require.NoError(t, r.AddPlugin(&echoPlugin{channel: "modal", blocking: true}))
	assert.True(t, r.RemovePlugin("modal"))
	assert.False(t, r.RemovePlugin("modal"))
	assert.False(t, d.HasHandler("modal"))

	require.Len(t, got, 2)
	assert.Equal(t, events.ChangeRegistered, got[0].Change)
	assert.True(t, got[0].InputBlocking)
	assert.Equal(t, "host-1", got[0].HostID)
	assert.NotEmpty(t, got[0].Timestamp)
	assert.Equal(t, events.ChangeUnregistered, got[1].Change)
}

func TestRegistrar_PublishFailureDoesNotFailAdd(t *testing.T) {
	pub := events.NewCallbackPublisher(func(context.Context, *events.ChannelChangedEvent) error {
		return errors.New("comms down")
	})
	_, _, r := newRegistrar(t, Options{Events: pub})

	assert.NoError(t, r.AddPlugin(&echoPlugin{channel: "echo"}))
}

func TestRegistrar_DefaultCodec(t *testing.T) {
	eng, _, r := newRegistrar(t, Options{DefaultCodec: codec.CBORMethod()})
	require.NoError(t, r.AddPlugin(&echoPlugin{channel: "binary-default"}))

	payload, err := codec.CBORMethod().EncodeMethodCall(codec.NewMethodCall[any]("echo", int64(5)))
	require.NoError(t, err)
	handle := eng.Deliver("binary-default", payload)

	responses := eng.Responses(handle)
	require.Len(t, responses, 1)
	result, _, _, err := codec.DecodeEnvelope(codec.CBORMessage(), responses[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(5), result)
}
