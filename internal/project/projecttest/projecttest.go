// Package projecttest provides autotools-shaped source repositories for
// tests. The native build steps are shell scripts and a Makefile, so only
// git, sh and make are needed.
package projecttest

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Options describes a stub source tree.
type Options struct {
	// Name is used for the installed header, library and tool names.
	Name string

	// Counter, when set, is a file receiving one line per configure run.
	Counter string

	// FailBuild makes make fail.
	FailBuild bool

	// Files are extra files committed in the tree, keyed by relative path.
	Files map[string]string
}

// RequireTools skips t unless git, sh and make are available.
func RequireTools(t testing.TB) {
	t.Helper()
	for _, bin := range []string{"git", "sh", "make"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH", bin)
		}
	}
}

// Git runs git in dir and returns its trimmed output.
func Git(t testing.TB, dir string, args ...string) string {
	t.Helper()
	args = append([]string{"-c", "user.name=ivc", "-c", "user.email=ivc@example.org"}, args...)
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

func configure(counter string) string {
	var b strings.Builder
	b.WriteString(`#!/bin/sh
for a in "$@"; do
	case "$a" in
	--prefix=*) echo "PREFIX=${a#--prefix=}" > config.mk ;;
	esac
done
echo "ARGS=$*" > configure.seen
echo "CPPFLAGS=$CPPFLAGS" >> configure.seen
echo "LDFLAGS=$LDFLAGS" >> configure.seen
echo "LD_LIBRARY_PATH=$LD_LIBRARY_PATH" >> configure.seen
`)
	if counter != "" {
		fmt.Fprintf(&b, "echo configure >> '%s'\n", counter)
	}
	return b.String()
}

func makefile(name string, fail bool) string {
	build := "\techo built > built.txt\n"
	if fail {
		build = "\techo build failure >&2\n\tfalse\n"
	}
	return "-include config.mk\n\n" +
		"all:\n" + build + "\n" +
		"install:\n" +
		"\tmkdir -p $(PREFIX)/include $(PREFIX)/lib $(PREFIX)/bin\n" +
		"\techo '#define " + strings.ToUpper(strings.ReplaceAll(name, "-", "_")) + " 1' > $(PREFIX)/include/" + name + ".h\n" +
		"\tcp built.txt $(PREFIX)/lib/lib" + name + ".txt\n" +
		"\techo 'echo " + name + "' > $(PREFIX)/bin/" + name + "-tool\n" +
		"\n" +
		"modules_install:\n" +
		"\tmkdir -p $(INSTALL_MOD_PATH)/lib/modules\n" +
		"\tcp built.txt $(INSTALL_MOD_PATH)/lib/modules/" + name + ".ko\n"
}

// Repo creates a git repository holding the stub tree and returns its
// directory and the full id of its only commit.
func Repo(t testing.TB, o Options) (dir, rev string) {
	t.Helper()
	if o.Name == "" {
		o.Name = "stub"
	}
	dir = t.TempDir()
	files := map[string]string{
		"bootstrap": "#!/bin/sh\necho bootstrapped > bootstrapped\n",
		"configure": configure(o.Counter),
		"Makefile":  makefile(o.Name, o.FailBuild),
	}
	for name, content := range o.Files {
		files[name] = content
	}
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	Git(t, dir, "init", "-q")
	Git(t, dir, "add", "-A")
	Git(t, dir, "commit", "-q", "-m", "stub "+o.Name)
	return dir, Git(t, dir, "rev-parse", "HEAD")
}

// Lines returns the number of lines of the file at path, 0 if it does not
// exist.
func Lines(t testing.TB, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return 0
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Count(string(data), "\n")
}
