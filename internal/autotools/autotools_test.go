package autotools

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

const makefile = "include config.mk\n" +
	"\n" +
	"all:\n" +
	"\techo built > built.txt\n" +
	"\n" +
	"install:\n" +
	"\tmkdir -p $(PREFIX)/include $(PREFIX)/lib\n" +
	"\tcp built.txt $(PREFIX)/lib/built.txt\n" +
	"\techo '#define DUMMY 1' > $(PREFIX)/include/dummy.h\n"

const configure = `#!/bin/sh
for a in "$@"; do
	case "$a" in
	--prefix=*) echo "PREFIX=${a#--prefix=}" > config.mk ;;
	esac
done
echo "CUSTOM=$CUSTOM" >> config.log
echo "ARGS=$*" >> config.log
echo configured
`

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"bootstrap": "#!/bin/sh\necho bootstrapped > bootstrapped\n",
		"configure": configure,
		"Makefile":  makefile,
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o755); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

func requireTools(t *testing.T, bins ...string) {
	t.Helper()
	for _, bin := range bins {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH", bin)
		}
	}
}

func TestBootstrapConfigureBuildInstall(t *testing.T) {
	requireTools(t, "sh", "make")
	ctx := context.Background()

	src := writeProject(t)
	tmp := t.TempDir()
	installDir := filepath.Join(tmp, "install")
	logDir := filepath.Join(tmp, "log")

	a := New(Tools{}, src, installDir, logDir)
	env := map[string]string{"CUSTOM": "VAL", "PATH": os.Getenv("PATH")}
	a.SetEnv(env)

	if err := a.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if err := a.Configure(ctx, "--enable-foo"); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := a.Build(ctx, Jobs()); err != nil {
		t.Fatalf("Build: %v", err)
	}
	if err := a.Install(ctx); err != nil {
		t.Fatalf("Install: %v", err)
	}
	if err := a.WriteEnv("configure", env); err != nil {
		t.Fatalf("WriteEnv: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(src, "config.log"))
	if err != nil {
		t.Fatalf("read config.log: %v", err)
	}
	for _, want := range []string{"CUSTOM=VAL", "--prefix=" + installDir, "--enable-foo"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("config.log missing %q:\n%s", want, data)
		}
	}

	for _, path := range []string{
		filepath.Join(src, "bootstrapped"),
		filepath.Join(installDir, "lib", "built.txt"),
		filepath.Join(installDir, "include", "dummy.h"),
		filepath.Join(logDir, "bootstrap.out"),
		filepath.Join(logDir, "configure.err"),
		filepath.Join(logDir, "build.out"),
		filepath.Join(logDir, "install.out"),
		filepath.Join(logDir, "configure.env"),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("missing %s", path)
		}
	}

	out, err := os.ReadFile(a.LogFile("configure", "out"))
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(out)) != "configured" {
		t.Errorf("configure.out = %q", out)
	}
}

func TestRunFailureKeepsLogs(t *testing.T) {
	requireTools(t, "sh")
	src := t.TempDir()
	logDir := filepath.Join(t.TempDir(), "log")
	script := "#!/bin/sh\necho 'no such header' >&2\nexit 3\n"
	if err := os.WriteFile(filepath.Join(src, "configure"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}

	a := New(Tools{}, src, "/prefix", logDir)
	err := a.Configure(context.Background())
	if err == nil {
		t.Fatal("expected configure failure")
	}
	if !strings.Contains(err.Error(), "./configure --prefix=/prefix") {
		t.Errorf("error %q does not name the command", err)
	}
	data, readErr := os.ReadFile(filepath.Join(logDir, "configure.err"))
	if readErr != nil {
		t.Fatalf("read configure.err: %v", readErr)
	}
	if !strings.Contains(string(data), "no such header") {
		t.Errorf("configure.err = %q", data)
	}
}

func TestAppend(t *testing.T) {
	requireTools(t, "sh")
	logDir := t.TempDir()
	a := New(Tools{}, t.TempDir(), "", logDir)
	ctx := context.Background()
	for _, word := range []string{"one", "two"} {
		if err := a.Append(ctx, "strip", "sh", "-c", "echo "+word); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	data, err := os.ReadFile(filepath.Join(logDir, "strip.out"))
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	for _, want := range []string{"Running sh -c echo one", "one\n", "two\n"} {
		if !strings.Contains(got, want) {
			t.Errorf("strip.out missing %q:\n%s", want, got)
		}
	}
}

func TestDefaults(t *testing.T) {
	a := New(Tools{Make: "gmake"}, "", "", "")
	tools := a.Tools()
	if tools.Make != "gmake" {
		t.Errorf("Make = %q, want gmake", tools.Make)
	}
	if tools.Configure != "./configure" || tools.Depmod != "depmod" || tools.Chrpath != "chrpath" {
		t.Errorf("defaults not applied: %+v", tools)
	}
}

func TestEnviron(t *testing.T) {
	got := Environ(map[string]string{"B": "2", "A": "1", "C": "x=y"})
	want := []string{"A=1", "B=2", "C=x=y"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Environ() = %v, want %v", got, want)
	}
}

func TestJobs(t *testing.T) {
	if n := Jobs(); n < 1 {
		t.Errorf("Jobs() = %d, want >= 1", n)
	}
}
