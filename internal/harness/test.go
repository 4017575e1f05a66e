package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

// Test is one loaded test definition. The body of the test (its interface
// description) is opaque to the driver; the manifest only declares what the
// driver needs for enumeration.
type Test struct {
	// Name uniquely identifies the test. Normalized to NFC on load so
	// manifest-authored names compare canonically.
	Name string `yaml:"name"`

	// Conventions lists the calling conventions the test supports. A
	// combination is skipped early when the requested convention is not
	// declared here.
	Conventions []CallingConvention `yaml:"conventions"`
}

// HasConvention reports whether the test declares support for c.
func (t *Test) HasConvention(c CallingConvention) bool {
	for _, have := range t.Conventions {
		if have == c {
			return true
		}
	}
	return false
}

// LoadTest reads and validates one test manifest. Malformed manifests are
// hard errors: they indicate a harness authoring problem, not a test
// outcome, and must stop the whole run.
func LoadTest(path string) (*Test, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read test manifest: %w", err)
	}

	var test Test
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&test); err != nil {
		return nil, fmt.Errorf("failed to parse test manifest %s: %w", path, err)
	}

	if test.Name == "" {
		return nil, fmt.Errorf("test manifest %s: missing name", path)
	}
	test.Name = norm.NFC.String(test.Name)
	if len(test.Conventions) == 0 {
		return nil, fmt.Errorf("test manifest %s: no conventions declared", path)
	}
	for _, c := range test.Conventions {
		if _, err := ParseConvention(string(c)); err != nil {
			return nil, fmt.Errorf("test manifest %s: %w", path, err)
		}
	}
	return &test, nil
}

// FindTests loads every .yaml manifest under dir, keyed by test name. Any
// load failure aborts the walk: a broken definition halts the harness.
func FindTests(dir string) (map[string]*Test, error) {
	tests := make(map[string]*Test)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		test, err := LoadTest(path)
		if err != nil {
			return err
		}
		if _, dup := tests[test.Name]; dup {
			return fmt.Errorf("duplicate test name %q (second definition in %s)", test.Name, path)
		}
		tests[test.Name] = test
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tests, nil
}

// sortedTestNames gives enumeration a deterministic test order.
func sortedTestNames(tests map[string]*Test) []string {
	names := make([]string, 0, len(tests))
	for name := range tests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
