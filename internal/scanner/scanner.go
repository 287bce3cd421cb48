// Package scanner drafts an application descriptor from a source checkout by
// looking at the marker files it contains.
package scanner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"opsagent/internal/descriptor"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort    = 8000
	defaultVersion = "1.0.0"
	defaultLogPath = "./logs/app.log"
)

var (
	frontendMarkers = []string{"package.json", "index.html", "src"}
	backendMarkers  = []string{"requirements.txt", "app.py", "server.js", "main.py"}

	packagePortRe = regexp.MustCompile(`port.*?(\d{4})`)
	pythonPortRe  = regexp.MustCompile(`port=(\d{4})`)
)

// Commands are the lifecycle commands inferred for a checkout.
type Commands struct {
	Build   string
	Start   string
	Install string
}

// DetectType classifies root as frontend, backend, fullstack or unknown.
func DetectType(root string) (string, error) {
	names, err := listDir(root)
	if err != nil {
		return "", err
	}
	front := containsAny(names, frontendMarkers)
	back := containsAny(names, backendMarkers)
	switch {
	case front && back:
		return "fullstack", nil
	case front:
		return "frontend", nil
	case back:
		return "backend", nil
	default:
		return "unknown", nil
	}
}

// DetectCommands prefers package.json scripts, then requirements.txt, then a
// Dockerfile. A checkout with none of them gets empty commands.
func DetectCommands(root string) (Commands, error) {
	var cmds Commands
	pkgPath := filepath.Join(root, "package.json")
	if data, err := os.ReadFile(pkgPath); err == nil {
		if !gjson.ValidBytes(data) {
			return cmds, fmt.Errorf("scan %s: package.json is not valid JSON", root)
		}
		scripts := gjson.GetBytes(data, "scripts")
		cmds.Build = stringOr(scripts.Get("build"), "npm run build")
		cmds.Start = stringOr(scripts.Get("start"), "npm start")
		cmds.Install = "npm install"
		return cmds, nil
	}
	if exists(filepath.Join(root, "requirements.txt")) {
		names, err := listDir(root)
		if err != nil {
			return cmds, err
		}
		cmds.Install = "pip install -r requirements.txt"
		cmds.Build = "pip install -r requirements.txt"
		cmds.Start = "python " + pythonEntry(names)
		return cmds, nil
	}
	if exists(filepath.Join(root, "Dockerfile")) {
		cmds.Build = "docker build -t app ."
		cmds.Start = "docker run -p 8000:8000 app"
		cmds.Install = "docker build -t app ."
	}
	return cmds, nil
}

// DetectPort reads the first four-digit port mentioned in package.json, then
// lets an explicit port= in a Python file override it.
func DetectPort(root string) (int, error) {
	port := DefaultPort
	if data, err := os.ReadFile(filepath.Join(root, "package.json")); err == nil {
		if m := packagePortRe.FindSubmatch(data); m != nil {
			port, _ = strconv.Atoi(string(m[1]))
		}
	}
	names, err := listDir(root)
	if err != nil {
		return 0, err
	}
	for _, name := range names {
		if !strings.HasSuffix(name, ".py") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, name))
		if err != nil {
			continue
		}
		if m := pythonPortRe.FindSubmatch(data); m != nil {
			port, _ = strconv.Atoi(string(m[1]))
			break
		}
	}
	return port, nil
}

// Scan builds a validated descriptor for the checkout at root.
func Scan(root string) (*descriptor.Descriptor, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	st, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	if !st.IsDir() {
		return nil, fmt.Errorf("scan %s: not a directory", root)
	}
	appType, err := DetectType(abs)
	if err != nil {
		return nil, err
	}
	cmds, err := DetectCommands(abs)
	if err != nil {
		return nil, err
	}
	port, err := DetectPort(abs)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(abs)
	local := fmt.Sprintf("http://localhost:%d", port)

	d := &descriptor.Descriptor{
		Name:           name,
		Type:           appType,
		Version:        defaultVersion,
		BuildCommand:   cmds.Build,
		StartCommand:   cmds.Start,
		InstallCommand: cmds.Install,
		HealthEndpoint: local + "/health",
		LogLocation:    defaultLogPath,
		Port:           port,
		Envs: []descriptor.Environment{
			{Name: "dev", URL: local, ConfigFile: ".env"},
		},
		ErrorPatterns: []descriptor.ErrorPattern{
			{Pattern: "ERROR", Severity: descriptor.SeverityHigh, Description: "General error pattern"},
			{Pattern: "CRITICAL|FATAL", Severity: descriptor.SeverityCritical, Description: "Critical system error"},
		},
		AvailableActions: []descriptor.ActionDefinition{
			{
				Name:      descriptor.DefaultRestartAction,
				Command:   restartCommand(name, cmds.Start),
				RiskLevel: descriptor.RiskMedium,
			},
			{
				Name:      "health_check",
				Command:   fmt.Sprintf("curl -fsS %s/health", local),
				RiskLevel: descriptor.RiskSafe,
			},
		},
	}
	if err := descriptor.Validate(d); err != nil {
		return nil, err
	}
	return d, nil
}

// Encode renders d as indented JSON or as YAML.
func Encode(d *descriptor.Descriptor, format descriptor.Format) ([]byte, error) {
	switch format {
	case descriptor.FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return nil, err
		}
		if err := enc.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	}
}

func restartCommand(name, start string) string {
	if strings.TrimSpace(start) == "" {
		return "pkill -f " + name
	}
	return fmt.Sprintf("pkill -f %s && %s &", name, start)
}

func pythonEntry(names []string) string {
	var py []string
	for _, n := range names {
		if strings.HasSuffix(n, ".py") {
			py = append(py, n)
		}
	}
	for _, n := range py {
		if strings.Contains(n, "app") || strings.Contains(n, "main") {
			return n
		}
	}
	if len(py) > 0 {
		return py[0]
	}
	return "app.py"
}

func listDir(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func containsAny(names, markers []string) bool {
	for _, m := range markers {
		i := sort.SearchStrings(names, m)
		if i < len(names) && names[i] == m {
			return true
		}
	}
	return false
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func stringOr(r gjson.Result, def string) string {
	if r.Exists() && r.Type == gjson.String && strings.TrimSpace(r.String()) != "" {
		return r.String()
	}
	return def
}
