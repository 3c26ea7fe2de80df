package tledb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/signalsfoundry/flyby/model"
)

const (
	issLine1 = "1 25544U 98067A   08264.51782528 -.00002182  00000-0 -11606-4 0  2927"
	issLine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391563537"

	oscar7Line1 = "1 07530U 74089B   24100.50000000 -.00000030  00000-0  10000-3 0  9993"
	oscar7Line2 = "2 07530 101.9000 100.0000 0012000 200.0000 160.0000 12.53690000000007"

	cubeLine1 = "1 43017U 17073E   24100.50000000  .00000100  00000-0  20000-4 0  9992"
	cubeLine2 = "2 43017  97.6000  50.0000 0010000  90.0000 270.0000 14.80000000000006"
)

func tle(name, l1, l2 string) string { return name + "\n" + l1 + "\n" + l2 + "\n" }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestParseValidElements(t *testing.T) {
	data := tle("ISS (ZARYA)", issLine1, issLine2) + "\n" + tle("0 AO-7", oscar7Line1, oscar7Line2)
	elems, problems, err := Parse(strings.NewReader(data), "amateur.tle")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(problems) != 0 {
		t.Fatalf("unexpected problems %v", problems)
	}
	got := []model.SatelliteIdentity{elems[0].SatelliteIdentity, elems[1].SatelliteIdentity}
	want := []model.SatelliteIdentity{{Number: 25544, Name: "ISS (ZARYA)"}, {Number: 7530, Name: "AO-7"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("identities mismatch (-want +got):\n%s", diff)
	}
	if elems[1].Line2 != oscar7Line2 || elems[1].Source != "amateur.tle" {
		t.Fatalf("element = %+v", elems[1])
	}
}

func TestParseRejectsBadChecksumAndResyncs(t *testing.T) {
	broken := issLine1[:68] + "0"
	data := tle("ISS", broken, issLine2) + tle("AO-7", oscar7Line1, oscar7Line2)
	elems, problems, err := Parse(strings.NewReader(data), "x.tle")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(elems) != 1 || elems[0].Number != 7530 {
		t.Fatalf("elements = %+v, want only AO-7", elems)
	}
	if len(problems) == 0 || !strings.Contains(problems[0].Reason, "checksum") {
		t.Fatalf("problems = %v, want checksum problem", problems)
	}
}

func TestParseReportsTruncatedSet(t *testing.T) {
	_, problems, err := Parse(strings.NewReader("ISS\n"+issLine1+"\n"), "x.tle")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(problems) != 1 || problems[0].Reason != "truncated element set" || problems[0].Line != 1 {
		t.Fatalf("problems = %v", problems)
	}
}

func TestChecksum(t *testing.T) {
	if got := checksum(issLine1[:68]); got != 7 {
		t.Fatalf("checksum = %d, want 7", got)
	}
	if got := checksum("1-1"); got != 3 {
		t.Fatalf("minus sign should count as one, got %d", got)
	}
}

func TestLoadDiscoversInSearchOrder(t *testing.T) {
	root := t.TempDir()
	primary := filepath.Join(root, "home", "flyby", "tles")
	shared := filepath.Join(root, "shared", "flyby", "tles")
	writeFile(t, filepath.Join(primary, "mine.tle"), tle("MY ISS", issLine1, issLine2))
	writeFile(t, filepath.Join(shared, "b", "cubesats.txt"), tle("CUBE", cubeLine1, cubeLine2))
	writeFile(t, filepath.Join(shared, "a.tle"), tle("ISS", issLine1, issLine2)+tle("AO-7", oscar7Line1, oscar7Line2))
	writeFile(t, filepath.Join(shared, "README.md"), "ignored")

	db, err := Load(context.Background(), []string{primary, filepath.Join(root, "missing"), shared}, "", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []model.SatelliteIdentity{
		{Number: 25544, Name: "MY ISS"},
		{Number: 7530, Name: "AO-7"},
		{Number: 43017, Name: "CUBE"},
	}
	if diff := cmp.Diff(want, db.Identities()); diff != "" {
		t.Fatalf("identities mismatch (-want +got):\n%s", diff)
	}
	if e, ok := db.Lookup(43017); !ok || e.Line1 != cubeLine1 {
		t.Fatalf("Lookup(43017) = %+v, %v", e, ok)
	}
}

func TestLoadExplicitFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "one.tle")
	writeFile(t, path, tle("AO-7", oscar7Line1, oscar7Line2))

	db, err := Load(context.Background(), []string{"/does/not/matter"}, path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if db.Len() != 1 || db.Element(0).Number != 7530 {
		t.Fatalf("unexpected database %+v", db.Identities())
	}

	if _, err := Load(context.Background(), nil, filepath.Join(t.TempDir(), "gone.tle"), nil); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not exist", err)
	}
}

func TestLoadWithoutElements(t *testing.T) {
	if _, err := Load(context.Background(), []string{t.TempDir()}, "", nil); !errors.Is(err, ErrNoElements) {
		t.Fatalf("err = %v, want ErrNoElements", err)
	}
}
