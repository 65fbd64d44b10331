package project

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"

	"golang.org/x/mod/semver"
)

// initKind seeds the kind specific build flags and special variables.
func (p *Project) initKind() error {
	switch p.Kind {
	case KindControlDaemon:
		return p.AddSpecialEnv("LTTNG_SESSION_CONFIG_XSD_PATH",
			filepath.Join(p.InstallPath, "share", "xml", "lttng")+string(filepath.Separator))
	case KindTracingLibrary:
		p.BuildFlags = append(p.BuildFlags,
			"--disable-man-pages",
			"--enable-python-agent",
			"--enable-java-agent-jul",
		)
		return p.AddSpecialEnv("CLASSPATH",
			filepath.Join(p.InstallPath, "share", "java", "liblttng-ust-agent.jar")+":.")
	case KindKernelModules:
		return p.AddSpecialEnv("MODPROBE_OPTIONS", "-v -d "+p.InstallPath)
	case KindGeneric:
		return nil
	}
	return fmt.Errorf("%w: %v", ErrUnknownKind, p.Kind)
}

func (p *Project) afterCheckout() error {
	switch p.Kind {
	case KindControlDaemon:
		path, err := findSchema(p.SourcePath, p.opts.candidates)
		if err != nil {
			return fmt.Errorf("%s: %w", p.Label, err)
		}
		p.SchemaPath = path
	}
	return nil
}

func (p *Project) afterInstall() error {
	switch p.Kind {
	case KindTracingLibrary:
		dir, err := findDir(p.InstallPath, "lttngust")
		if err != nil {
			return err
		}
		if dir != "" {
			return p.AddSpecialEnv("PYTHONPATH", filepath.Dir(dir))
		}
	}
	return nil
}

var schemaVersionRE = regexp.MustCompile(`(\d+(?:\.\d+)*)\.xsd$`)

// schemaVersion returns the semantic version embedded in a schema file name,
// "v0.0.0" when it has none.
func schemaVersion(name string) string {
	m := schemaVersionRE.FindStringSubmatch(name)
	if m == nil {
		return "v0.0.0"
	}
	if v := "v" + m[1]; semver.IsValid(v) {
		return v
	}
	return "v0.0.0"
}

// findSchema returns the path of the highest versioned candidate present
// below root.
func findSchema(root string, candidates []string) (string, error) {
	want := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		want[c] = true
	}
	var found []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == ".git" {
			return filepath.SkipDir
		}
		if !d.IsDir() && want[d.Name()] {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if len(found) == 0 {
		return "", fmt.Errorf("%w in %s", ErrSchemaNotFound, root)
	}
	sort.SliceStable(found, func(i, j int) bool {
		return semver.Compare(schemaVersion(filepath.Base(found[i])), schemaVersion(filepath.Base(found[j]))) > 0
	})
	return found[0], nil
}

// findDir returns the first directory named name below root, or "".
func findDir(root, name string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && d.Name() == name {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	return found, err
}
