package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
)

func TestRunDispatchesEachLine(t *testing.T) {
	var out bytes.Buffer
	c := New(&out, "alice", "Alice")

	p := botcore.NewPlugin("greet")
	_, err := p.Handle(botcore.Literal("hi"), func(ctx context.Context, e *botcore.Event) (*botcore.Result, error) {
		name, _ := botcore.Property[string](e, "nickname")
		return botcore.Text("hello " + name), nil
	}, botcore.WithProperties("nickname"))
	require.NoError(t, err)
	_, err = p.Handle(botcore.Literal("md"), func(ctx context.Context, e *botcore.Event) (*botcore.Result, error) {
		return &botcore.Result{SendMethod: "markdown", Payload: "*x*"}, nil
	})
	require.NoError(t, err)

	d := botcore.NewDispatcher(c.Adapter())
	require.NoError(t, d.AddPlugin(p))
	require.NoError(t, d.Startup(context.Background()))

	err = c.Run(context.Background(), strings.NewReader("hi\n\n  \nmd\nunknown\n"), d)
	require.NoError(t, err)
	assert.Equal(t, "hello Alice\n[markdown]\n*x*\n(no response)\n", out.String())
}

func TestRunStopsOnCancel(t *testing.T) {
	var out bytes.Buffer
	c := New(&out, "", "")
	assert.Equal(t, "console", c.UserID)
	assert.False(t, c.Adapter().HasProperty("nickname"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := botcore.NewDispatcher(c.Adapter())
	err := c.Run(ctx, strings.NewReader("hi\n"), d)
	assert.ErrorIs(t, err, context.Canceled)
}
