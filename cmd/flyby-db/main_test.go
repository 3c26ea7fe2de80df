package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/goleak"
	"gopkg.in/yaml.v3"
)

const (
	ao7Line1  = "1 07530U 74089B   24100.50000000 -.00000030  00000-0  10000-3 0  9993"
	ao7Line2  = "2 07530 101.9000 100.0000 0012000 200.0000 160.0000 12.53690000000007"
	cubeLine1 = "1 43017U 17073E   24100.50000000  .00000100  00000-0  20000-4 0  9992"
	cubeLine2 = "2 43017  97.6000  50.0000 0010000  90.0000 270.0000 14.80000000000006"
)

const systemDB = `AO-7
7530
15.0, 30.0
Mode B
432.125, 432.175
145.975, 145.925
No
No
end
end
`

type env struct {
	root      string
	dataHome  string
	sharedDir string
}

func (e env) primaryDB() string { return filepath.Join(e.dataHome, "flyby", "flyby.db") }

func setupEnv(t *testing.T) env {
	t.Helper()
	root := t.TempDir()
	e := env{
		root:      root,
		dataHome:  filepath.Join(root, "home"),
		sharedDir: filepath.Join(root, "system"),
	}
	t.Setenv("HOME", root)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_DATA_HOME", e.dataHome)
	t.Setenv("XDG_DATA_DIRS", e.sharedDir)
	t.Setenv("FLYBY_LOG_FORMAT", "text")
	t.Setenv("FLYBY_LOG_LEVEL", "warn")
	t.Setenv("FLYBY_TLE_FILE", "")
	t.Setenv("FLYBY_METRICS_ADDR", "")
	t.Setenv("FLYBY_TRACING_ENABLED", "false")

	writeFile(t, filepath.Join(e.sharedDir, "flyby", "tles", "amateur.tle"),
		"AO-7\n"+ao7Line1+"\n"+ao7Line2+"\nCUBE\n"+cubeLine1+"\n"+cubeLine2+"\n")
	writeFile(t, filepath.Join(e.sharedDir, "flyby", "flyby.db"), systemDB)
	return e
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestPathsCommand(t *testing.T) {
	e := setupEnv(t)
	code, out, errOut := runCLI(t, "paths")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "primary: "+e.primaryDB()) {
		t.Fatalf("primary path missing:\n%s", out)
	}
	if !strings.Contains(out, "shared:  "+filepath.Join(e.sharedDir, "flyby", "flyby.db")) {
		t.Fatalf("shared path missing:\n%s", out)
	}
}

func TestListShowsSystemData(t *testing.T) {
	setupEnv(t)
	code, out, errOut := runCLI(t, "list")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "AO-7") || !strings.Contains(out, "shared") {
		t.Fatalf("list output:\n%s", out)
	}
	if strings.Contains(out, "CUBE") {
		t.Fatalf("empty entry listed without --all:\n%s", out)
	}

	_, out, _ = runCLI(t, "list", "--all")
	if !strings.Contains(out, "CUBE") {
		t.Fatalf("--all should include empty entries:\n%s", out)
	}
}

func TestSetSavesOnlyUserChanges(t *testing.T) {
	e := setupEnv(t)

	code, _, errOut := runCLI(t, "set", "43017", "--attitude", "0,180", "-t", "name=FM,uplink=145.85,downlink=436.795")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	data, err := os.ReadFile(e.primaryDB())
	if err != nil {
		t.Fatalf("read primary: %v", err)
	}
	want := `CUBE
43017
0.000000, 180.000000
FM
145.850000, 145.850000
436.795000, 436.795000
No
No
end
end
`
	if string(data) != want {
		t.Fatalf("primary file:\n%s\nwant:\n%s", data, want)
	}

	code, out, errOut := runCLI(t, "show", "43017")
	if code != 0 {
		t.Fatalf("show exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "FM") || !strings.Contains(out, "primary") {
		t.Fatalf("show output:\n%s", out)
	}
}

func TestSetWithoutChangesDoesNotWrite(t *testing.T) {
	e := setupEnv(t)
	code, out, errOut := runCLI(t, "set", "7530", "--attitude", "15,30")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "no changes") {
		t.Fatalf("output:\n%s", out)
	}
	if _, err := os.Stat(e.primaryDB()); !os.IsNotExist(err) {
		t.Fatalf("primary file should not exist, stat err = %v", err)
	}
}

func TestRestoreDropsOverride(t *testing.T) {
	e := setupEnv(t)
	if code, _, errOut := runCLI(t, "set", "7530", "--no-squint", "--clear-transponders"); code != 0 {
		t.Fatalf("set exit %d: %s", code, errOut)
	}
	data, _ := os.ReadFile(e.primaryDB())
	if !strings.Contains(string(data), "7530\nNo\nend\n") {
		t.Fatalf("empty override not written:\n%s", data)
	}

	if code, _, errOut := runCLI(t, "restore", "7530"); code != 0 {
		t.Fatalf("restore exit %d: %s", code, errOut)
	}
	data, _ = os.ReadFile(e.primaryDB())
	if string(data) != "end\n" {
		t.Fatalf("primary after restore = %q", data)
	}
}

func TestExportJSONAndYAML(t *testing.T) {
	setupEnv(t)

	code, out, errOut := runCLI(t, "export", "--format", "json")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	var doc exportDoc
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode json: %v\n%s", err, out)
	}
	if len(doc.Satellites) != 1 {
		t.Fatalf("satellites = %+v", doc.Satellites)
	}
	sat := doc.Satellites[0]
	if sat.Number != 7530 || sat.Origin != "shared" || sat.Attitude == nil || sat.Attitude.Lon != 30 {
		t.Fatalf("entry = %+v", sat)
	}
	if len(sat.Transponders) != 1 || sat.Transponders[0].Name != "Mode B" || sat.Transponders[0].DownlinkEnd != 145.925 {
		t.Fatalf("transponders = %+v", sat.Transponders)
	}

	code, out, errOut = runCLI(t, "export", "--all")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	var ydoc exportDoc
	if err := yaml.Unmarshal([]byte(out), &ydoc); err != nil {
		t.Fatalf("decode yaml: %v\n%s", err, out)
	}
	if len(ydoc.Satellites) != 2 || ydoc.Satellites[1].Name != "CUBE" || ydoc.Satellites[1].Origin != "none" {
		t.Fatalf("yaml satellites = %+v", ydoc.Satellites)
	}
}

func TestSquintCommand(t *testing.T) {
	setupEnv(t)
	code, out, errOut := runCLI(t, "squint", "7530", "--lat", "52.2", "--lon", "0.1", "--at", "2024-04-09T12:00:00Z")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.HasPrefix(out, "squint ") || !strings.Contains(out, "2024-04-09T12:00:00Z") {
		t.Fatalf("output: %q", out)
	}

	code, _, errOut = runCLI(t, "squint", "43017")
	if code == 0 || !strings.Contains(errOut, "attitude") {
		t.Fatalf("squint without attitude: exit %d, stderr %q", code, errOut)
	}
}

func TestUnknownSatellite(t *testing.T) {
	setupEnv(t)
	code, _, errOut := runCLI(t, "show", "99999")
	if code != 1 || !strings.Contains(errOut, "not in TLE database") {
		t.Fatalf("exit %d, stderr %q", code, errOut)
	}
}

func TestSaveFailureExitCode(t *testing.T) {
	e := setupEnv(t)
	tle := filepath.Join(e.root, "amateur.tle")
	writeFile(t, tle, "CUBE\n"+cubeLine1+"\n"+cubeLine2+"\n")
	t.Setenv("FLYBY_TLE_FILE", tle)
	writeFile(t, filepath.Join(e.dataHome, "flyby"), "not a directory")

	code, _, errOut := runCLI(t, "set", "43017", "--attitude", "1,2")
	if code != 3 {
		t.Fatalf("exit %d, want 3; stderr %q", code, errOut)
	}
}

func TestSetRejectsNonFiniteAttitude(t *testing.T) {
	e := setupEnv(t)
	code, _, errOut := runCLI(t, "set", "43017", "--attitude", "NaN,0")
	if code != 1 || !strings.Contains(errOut, "finite") {
		t.Fatalf("exit %d, stderr %q", code, errOut)
	}
	if _, err := os.Stat(e.primaryDB()); !os.IsNotExist(err) {
		t.Fatalf("primary file should not exist, stat err = %v", err)
	}
}

func TestSetTransponderNamedEndKeepsLaterSatellites(t *testing.T) {
	e := setupEnv(t)
	if code, _, errOut := runCLI(t, "set", "7530", "-t", "name=end,uplink=145.8"); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if code, _, errOut := runCLI(t, "set", "43017", "--attitude", "1,2"); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	data, _ := os.ReadFile(e.primaryDB())
	if !strings.Contains(string(data), "\nEnd\n") || !strings.Contains(string(data), "43017") {
		t.Fatalf("primary file:\n%s", data)
	}

	code, out, errOut := runCLI(t, "show", "43017")
	if code != 0 || !strings.Contains(out, "primary") {
		t.Fatalf("show exit %d: %s%s", code, out, errOut)
	}
}

func TestSetLogsEditWithSessionID(t *testing.T) {
	setupEnv(t)
	t.Setenv("FLYBY_LOG_LEVEL", "info")
	t.Setenv("FLYBY_LOG_FORMAT", "json")

	code, _, errOut := runCLI(t, "set", "43017", "--attitude", "1,2")
	if code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	var found bool
	for _, line := range strings.Split(strings.TrimSpace(errOut), "\n") {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if rec["msg"] == "entry edited" {
			found = true
			if rec["session_id"] == nil || rec["number"] != float64(43017) || rec["attitude_lon"] != float64(2) {
				t.Fatalf("edit record = %v", rec)
			}
		}
	}
	if !found {
		t.Fatalf("no edit record in stderr:\n%s", errOut)
	}
}

func TestMetricsServerStopsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	setupEnv(t)
	t.Setenv("FLYBY_METRICS_ADDR", "127.0.0.1:0")

	if code, _, errOut := runCLI(t, "paths"); code != 0 {
		t.Fatalf("exit %d: %s", code, errOut)
	}
}

func TestParseTransponder(t *testing.T) {
	got, err := parseTransponder("name=Mode U/V, uplink=435.03:435.06, downlink=145.9:145.93, day=3, phase=10:200")
	if err != nil {
		t.Fatalf("parseTransponder: %v", err)
	}
	if got.Name != "Mode U/V" || got.UplinkEnd != 435.06 || got.DownlinkStart != 145.9 || got.DayOfWeek != 3 || got.PhaseEnd != 200 {
		t.Fatalf("record = %+v", got)
	}

	for _, bad := range []string{"name=only", "uplink=abc", "colour=red", "downlink=1,phase=3", "uplink=NaN", "downlink=435:+Inf"} {
		if _, err := parseTransponder(bad); err == nil {
			t.Fatalf("%q should fail", bad)
		}
	}
}
