package cmd

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/iksnae/chat-session/internal"
	"github.com/iksnae/chat-session/testutil"
	"github.com/spf13/pflag"
)

const waitFor = 3 * time.Second

// syncBuffer lets a test read command output while the command is still writing
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testEnv is an isolated data directory wired to a fake Session Store and gateway
type testEnv struct {
	dir     string
	config  string
	store   *testutil.FakeStore
	gateway *testutil.FakeGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	for _, key := range []string{"CHAT_SESSION_SERVER", "CHAT_SESSION_GATEWAY", "CHAT_SESSION_DATA_DIR", "CHAT_SESSION_MAX_ATTEMPTS"} {
		t.Setenv(key, "")
	}

	dir := t.TempDir()
	env := &testEnv{
		dir:     dir,
		store:   testutil.NewFakeStore(t),
		gateway: testutil.NewFakeGateway(t),
	}
	env.config = testutil.WriteConfigFixture(t, dir, fmt.Sprintf(`server_url = %q
gateway_url = %q
data_dir = %q

[reconnect]
base_delay = "10ms"
max_delay = "40ms"
max_attempts = 1

[gateway]
handshake_timeout = "2s"
write_timeout = "2s"
`, env.store.URL(), env.gateway.URL(), dir))
	return env
}

func (e *testEnv) login(t *testing.T, nickname string) {
	t.Helper()
	if _, err := internal.Login(internal.NewIdentityStore(e.dir), nickname); err != nil {
		t.Fatalf("login failed: %v", err)
	}
}

// run executes the root command with the env's config and returns its output
func (e *testEnv) run(args ...string) (string, error) {
	out, errc := e.start(args...)
	err := <-errc
	return out.String(), err
}

// start executes the root command in the background
func (e *testEnv) start(args ...string) (*syncBuffer, <-chan error) {
	resetFlags()
	out := &syncBuffer{}
	rootCmd.SetArgs(append([]string{"--config", e.config}, args...))
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	errc := make(chan error, 1)
	go func() {
		errc <- rootCmd.Execute()
	}()
	return out, errc
}

// resetFlags restores every flag to its default, since cobra keeps values between runs
func resetFlags() {
	reset := func(fs *pflag.FlagSet) {
		fs.VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
	reset(rootCmd.PersistentFlags())
	reset(rootCmd.Flags())
	for _, c := range rootCmd.Commands() {
		reset(c.Flags())
	}
}

// scriptedReader feeds prompt input from a channel; closing it ends the chat
type scriptedReader struct {
	lines chan string
}

func (r *scriptedReader) Prompt(string) (string, error) {
	line, ok := <-r.lines
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

// useScriptedReader replaces the interactive prompt for the rest of the test
func useScriptedReader(t *testing.T) *scriptedReader {
	t.Helper()
	reader := &scriptedReader{lines: make(chan string, 8)}
	saved := newLineReader
	newLineReader = func() (lineReader, func()) {
		return reader, func() {}
	}
	t.Cleanup(func() { newLineReader = saved })
	return reader
}

func waitResult(t *testing.T, errc <-chan error) error {
	t.Helper()
	select {
	case err := <-errc:
		return err
	case <-time.After(waitFor):
		t.Fatal("command did not finish")
		return nil
	}
}
