package cargo

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cochaviz/dinghy/internal/build"
	"github.com/cochaviz/dinghy/internal/buildenv"
	"github.com/cochaviz/dinghy/internal/command/commandtest"
)

const sampleOutput = `{"reason":"compiler-artifact","manifest_path":"/ws/lib/Cargo.toml","target":{"name":"helper","kind":["cdylib"]},"executable":null,"filenames":["/ws/target/t/debug/libhelper.so"]}
   Compiling app v0.1.0
{"reason":"compiler-artifact","manifest_path":"/ws/app/Cargo.toml","target":{"name":"app","kind":["bin"]},"executable":"/ws/target/t/debug/app","filenames":["/ws/target/t/debug/app"]}
{"reason":"compiler-artifact","manifest_path":"/ws/app/Cargo.toml","target":{"name":"app","kind":["lib"]},"executable":null,"filenames":["/ws/target/t/debug/libapp.rlib"]}
{"reason":"build-finished","success":true}
`

func TestParseMessages(t *testing.T) {
	t.Parallel()

	got, err := ParseMessages(strings.NewReader(sampleOutput))
	if err != nil {
		t.Fatalf("ParseMessages() error = %v", err)
	}
	if len(got.Runnables) != 1 {
		t.Fatalf("Runnables = %+v, want one", got.Runnables)
	}
	r := got.Runnables[0]
	if r.ID != "app" || r.Exe != "/ws/target/t/debug/app" || r.Source != filepath.Dir("/ws/app/Cargo.toml") {
		t.Fatalf("Runnable = %+v", r)
	}
	if len(got.DynamicLibraries) != 1 || got.DynamicLibraries[0] != "/ws/target/t/debug/libhelper.so" {
		t.Fatalf("DynamicLibraries = %v", got.DynamicLibraries)
	}
}

func TestArguments(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		request build.CompileRequest
		want    string
	}{
		{
			name:    "host build",
			request: build.CompileRequest{Args: build.Args{Mode: build.ModeBuild}},
			want:    "build --message-format=json-render-diagnostics",
		},
		{
			name: "cross test release",
			request: build.CompileRequest{
				Triple: "aarch64-linux-android",
				Args:   build.Args{Mode: build.ModeTest, Release: true, Packages: []string{"core"}},
			},
			want: "test --no-run --target aarch64-linux-android --message-format=json-render-diagnostics --release -p core",
		},
		{
			name:    "bench verbose",
			request: build.CompileRequest{Args: build.Args{Mode: build.ModeBench, Verbose: true, Extra: []string{"--features", "simd"}}},
			want:    "bench --no-run --message-format=json-render-diagnostics -v --features simd",
		},
	}

	for _, tc := range cases {
		if got := strings.Join(Arguments(tc.request), " "); got != tc.want {
			t.Fatalf("%s: Arguments() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestBuildPassesEnvironment(t *testing.T) {
	t.Parallel()

	recorder := &commandtest.Recorder{Replies: map[string]commandtest.Reply{
		"cargo build": {Stdout: sampleOutput},
	}}
	compiler := New(recorder, nil)

	env := buildenv.New([]string{"TARGET_CC=/shim/cc"})
	got, err := compiler.Build(context.Background(), build.CompileRequest{
		ProjectRoot: "/ws",
		Triple:      "armv7-unknown-linux-gnueabihf",
		Args:        build.Args{Mode: build.ModeBuild},
		Env:         env,
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	calls := recorder.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %v", recorder.Lines())
	}
	if calls[0].Dir != "/ws" || strings.Join(calls[0].Env, ",") != "TARGET_CC=/shim/cc" {
		t.Fatalf("command = %+v", calls[0])
	}
	if want := filepath.Join("/ws", "target", "armv7-unknown-linux-gnueabihf", "debug"); got.TargetDir != want {
		t.Fatalf("TargetDir = %q, want %q", got.TargetDir, want)
	}
}

func TestBuildFailure(t *testing.T) {
	t.Parallel()

	recorder := &commandtest.Recorder{Replies: map[string]commandtest.Reply{
		"cargo": {ExitCode: 101},
	}}
	if _, err := New(recorder, nil).Build(context.Background(), build.CompileRequest{Args: build.Args{Mode: build.ModeTest}}); err == nil {
		t.Fatalf("Build() error = nil, want failure")
	}
}
