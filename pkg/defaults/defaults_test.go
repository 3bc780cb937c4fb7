package defaults_test

import (
	"net/netip"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanguard/scanguard/pkg/defaults"
	"github.com/scanguard/scanguard/pkg/ui"
)

// TestVersionConsistency ensures all version references match defaults.Version
func TestVersionConsistency(t *testing.T) {
	// Verify ui.Version matches defaults.Version
	if ui.Version != defaults.Version {
		t.Errorf("ui.Version (%s) != defaults.Version (%s)", ui.Version, defaults.Version)
	}

	semverPattern := regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9]+)?$`)
	if !semverPattern.MatchString(defaults.Version) {
		t.Errorf("defaults.Version (%s) is not valid semver", defaults.Version)
	}

	// Scan for hardcoded version strings that should use defaults.Version
	root := findProjectRoot(t)
	versionPattern := regexp.MustCompile(`(?m)Version\s*[:=]\s*"(\d+\.\d+\.\d+)"`)
	var violations []string

	for _, dir := range []string{"pkg", "cmd"} {
		dirPath := filepath.Join(root, dir)
		if _, err := os.Stat(dirPath); os.IsNotExist(err) {
			continue
		}

		_ = filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() || !strings.HasSuffix(path, ".go") {
				return nil
			}
			if strings.HasSuffix(path, "_test.go") || strings.HasSuffix(path, "defaults.go") {
				return nil
			}

			content, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			for i, line := range strings.Split(string(content), "\n") {
				if matches := versionPattern.FindStringSubmatch(line); len(matches) > 1 {
					relPath, _ := filepath.Rel(root, path)
					violations = append(violations, relPath+":"+strconv.Itoa(i+1)+": hardcoded Version = \""+matches[1]+"\"")
				}
			}
			return nil
		})
	}

	if len(violations) > 0 {
		t.Errorf("Found %d hardcoded version strings. Use defaults.Version instead:", len(violations))
		for _, v := range violations {
			t.Errorf("  %s", v)
		}
	}
}

func TestPrivateBlocksParse(t *testing.T) {
	for _, block := range defaults.PrivateBlocks {
		p, err := netip.ParsePrefix(block)
		require.NoError(t, err, block)
		assert.True(t, p.Addr().Is4(), "%s should be IPv4", block)
		assert.Equal(t, p.Masked(), p, "%s should be canonical", block)
	}
}

func TestBinDirsAbsolute(t *testing.T) {
	require.NotEmpty(t, defaults.BinDirs)
	for _, dir := range defaults.BinDirs {
		assert.True(t, filepath.IsAbs(dir), dir)
	}
}

func TestLabDomainSuffix(t *testing.T) {
	assert.True(t, strings.HasPrefix(defaults.LabDomainSuffix, "."))
	assert.Equal(t, strings.ToLower(defaults.LabDomainSuffix), defaults.LabDomainSuffix)
}

func TestUserAgent(t *testing.T) {
	assert.Equal(t, "scanguard/"+defaults.Version, defaults.UserAgent(""))
	assert.Equal(t, "scanguard/"+defaults.Version+" (mcp)", defaults.UserAgent("mcp"))
}

func TestSyntheticExitCodesDistinct(t *testing.T) {
	codes := map[int]string{}
	for name, code := range map[string]int{
		"timeout":   defaults.ExitCodeTimeout,
		"not-found": defaults.ExitCodeNotFound,
		"unknown":   defaults.ExitCodeUnknown,
	} {
		prev, dup := codes[code]
		assert.False(t, dup, "%s and %s share exit code %d", name, prev, code)
		codes[code] = name
	}
}

// findProjectRoot finds the project root by looking for go.mod
func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("Failed to get working directory: %v", err)
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("Could not find project root (go.mod)")
		}
		dir = parent
	}
}
