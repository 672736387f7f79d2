package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"

	"github.com/IMBotPlatform/Clovers/pkg/botcore"
)

type fakeLLM struct{}

func (fakeLLM) Complete(ctx context.Context, sessionID, prompt string) (string, error) {
	return sessionID + ">" + prompt, nil
}

func testFactory() *cobra.Command {
	root := &cobra.Command{Use: "bot"}
	root.AddCommand(&cobra.Command{
		Use: "echo",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(strings.Join(args, " "))
		},
	})
	root.AddCommand(&cobra.Command{
		Use: "fail",
		RunE: func(cmd *cobra.Command, args []string) error {
			return errors.New("boom")
		},
	})
	root.AddCommand(&cobra.Command{
		Use: "quiet",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("should not be sent")
			FromContext(cmd.Context()).SetNoResponse()
		},
	})
	root.AddCommand(&cobra.Command{
		Use: "md",
		Run: func(cmd *cobra.Command, args []string) {
			FromContext(cmd.Context()).SetResult(&botcore.Result{SendMethod: "markdown", Payload: "**bold**"})
		},
	})
	root.AddCommand(&cobra.Command{
		Use: "remember",
		Run: func(cmd *cobra.Command, args []string) {
			ec := FromContext(cmd.Context())
			if len(args) == 2 {
				_ = ec.Store.Save(ec.ConversationKey(), ContextValues{args[0]: args[1]})
				return
			}
			cmd.Printf("%s=%s", args[0], ec.Values[args[0]])
		},
	})
	root.AddCommand(&cobra.Command{
		Use: "ask",
		RunE: func(cmd *cobra.Command, args []string) error {
			ec := FromContext(cmd.Context())
			answer, err := ec.LLM().Complete(cmd.Context(), ec.ConversationKey(), ec.Parsed.ArgumentRaw)
			if err != nil {
				return err
			}
			cmd.Print(answer)
			return nil
		},
	})
	return root
}

func eventWith(message string, props map[string]any) *botcore.Event {
	e := commandEvent(DefaultPrefix, message)
	if len(props) == 0 {
		return e
	}
	a := botcore.NewAdapter("props")
	names := make([]string, 0, len(props))
	for name, value := range props {
		a.Property(name, func(ctx context.Context, extras botcore.Extras) (any, error) { return value, nil })
		names = append(names, name)
	}
	a.Send("text", func(ctx context.Context, payload any, extras botcore.Extras) error { return nil })
	p := botcore.NewPlugin("props")
	_, _ = p.Handle(botcore.CatchAll(), func(ctx context.Context, e *botcore.Event) (*botcore.Result, error) {
		return botcore.Text(""), nil
	}, botcore.WithProperties(names...))
	p.Ready()
	for _, tr := range p.Match(message) {
		a.Response(context.Background(), tr.Handle, e, nil)
	}
	return e
}

func TestManagerHandle(t *testing.T) {
	m := NewManager(testFactory)
	cases := []struct {
		text string
		want *botcore.Result
	}{
		{"/echo hello world", botcore.Text("hello world")},
		{"/bot echo hi", botcore.Text("hi")},
		{"/fail", botcore.Text("执行出错: boom")},
		{"/quiet", nil},
		{"/md", &botcore.Result{SendMethod: "markdown", Payload: "**bold**"}},
		{"/unknown", nil},
		{"echo hi", nil},
	}
	for _, tc := range cases {
		got, err := m.Handle(context.Background(), commandEvent(DefaultPrefix, tc.text))
		if err != nil {
			t.Fatalf("Handle(%q) error: %v", tc.text, err)
		}
		if fmt.Sprint(got) != fmt.Sprint(tc.want) {
			t.Fatalf("Handle(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestManagerHelp(t *testing.T) {
	m := NewManager(testFactory)
	got, err := m.Handle(context.Background(), commandEvent(DefaultPrefix, "/help"))
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if got == nil || !strings.Contains(got.Payload.(string), "echo") {
		t.Fatalf("help output should list commands, got %v", got)
	}
}

func TestManagerStoreAndLLM(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(testFactory, WithStore(store), WithLLM(fakeLLM{}))
	props := map[string]any{"user_id": "u1", "chat_id": "c1"}

	if _, err := m.Handle(context.Background(), eventWith("/remember color blue", props)); err != nil {
		t.Fatalf("remember: %v", err)
	}
	got, err := m.Handle(context.Background(), eventWith("/remember color", props))
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if got == nil || got.Payload != "color=blue" {
		t.Fatalf("recall = %v", got)
	}

	got, err = m.Handle(context.Background(), eventWith("/ask what  now", props))
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if got == nil || got.Payload != "c1:u1>what  now" {
		t.Fatalf("ask = %v", got)
	}
}

func TestManagerConcurrentFlags(t *testing.T) {
	factory := func() *cobra.Command {
		var name string
		root := &cobra.Command{
			Use: "greet",
			Run: func(cmd *cobra.Command, args []string) {
				cmd.Print("hi " + name)
			},
		}
		root.Flags().StringVar(&name, "name", "", "")
		return root
	}
	m := NewManager(factory, WithPrefix("!"))

	var wg sync.WaitGroup
	errs := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			want := fmt.Sprintf("hi n%d", i)
			got, err := m.Handle(context.Background(), commandEvent("!", fmt.Sprintf("!greet --name n%d", i)))
			if err != nil || got == nil || got.Payload != want {
				errs <- fmt.Sprintf("got %v err %v, want %q", got, err, want)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Fatal(e)
	}
}

func TestManagerPluginDispatch(t *testing.T) {
	var sent []any
	adapter := botcore.NewAdapter("test").Send("text", func(ctx context.Context, payload any, extras botcore.Extras) error {
		sent = append(sent, payload)
		return nil
	})
	p := NewManager(testFactory).Plugin("command")
	d := botcore.NewDispatcher(adapter)
	if err := d.AddPlugin(p); err != nil {
		t.Fatalf("AddPlugin: %v", err)
	}
	if err := d.Startup(context.Background()); err != nil {
		t.Fatalf("Startup: %v", err)
	}
	if n := d.Dispatch(context.Background(), "/echo hi there", nil); n != 1 {
		t.Fatalf("Dispatch count = %d, want 1", n)
	}
	if n := d.Dispatch(context.Background(), "/nope", nil); n != 0 {
		t.Fatalf("unknown command count = %d, want 0", n)
	}
	if len(sent) != 1 || sent[0] != "hi there" {
		t.Fatalf("sent = %v", sent)
	}
}
