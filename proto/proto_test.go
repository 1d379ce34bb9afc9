package proto

import (
	"testing"

	"github.com/Xpolo29/torrent/swarm"
)

func TestParseGetFile(t *testing.T) {
	cmd, err := Parse("getfile abcdef0123\n")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if cmd.GetFile == nil || cmd.GetFile.Hash != "abcdef0123" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestParseGetFileMalformed(t *testing.T) {
	table := []string{
		"getfile",
		"getfile a b",
		"getfil abcdef",
	}
	for _, line := range table {
		if _, err := Parse(line); err == nil {
			t.Errorf("expected error parsing %q", line)
		}
	}
}

func TestParseAnnounce(t *testing.T) {
	cmd, err := Parse("announce listen 4444 seed [filename1.dat 12 12 azerds filename2.dat 13 13 azerty] leech [aqwzsx edcrfv]\n")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if cmd.Announce == nil {
		t.Fatal("expected an announce command")
	}
	a := cmd.Announce
	if a.Port != 4444 {
		t.Errorf("expected port 4444, got %d", a.Port)
	}
	if len(a.Seeds) != 2 {
		t.Fatalf("expected 2 seeds, got %d", len(a.Seeds))
	}
	if a.Seeds[0] != (SeedEntry{Filename: "filename1.dat", Size: 12, ChunkSize: 12, Hash: "azerds"}) {
		t.Errorf("unexpected first seed: %+v", a.Seeds[0])
	}
	if len(a.Leeches) != 2 || a.Leeches[0] != "aqwzsx" || a.Leeches[1] != "edcrfv" {
		t.Errorf("unexpected leeches: %+v", a.Leeches)
	}
}

func TestParseAnnounceMinimal(t *testing.T) {
	cmd, err := Parse("announce listen 4444\n")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if cmd.Announce.Port != 4444 {
		t.Errorf("unexpected port: %d", cmd.Announce.Port)
	}
	if len(cmd.Announce.Seeds) != 0 || len(cmd.Announce.Leeches) != 0 {
		t.Errorf("expected no seeds/leeches, got %+v", cmd.Announce)
	}
}

func TestParseLook(t *testing.T) {
	cmd, err := Parse(`look [filename="file_a.dat" filesize>"1048576"]` + "\n")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	l := cmd.Look
	if l == nil || !l.HasFilename || l.Filename != "file_a.dat" {
		t.Fatalf("unexpected look command: %+v", l)
	}
	if !l.HasFileSize || l.FileSize != 1048576 || l.Op != swarm.OpGreater {
		t.Fatalf("unexpected filesize clause: %+v", l)
	}
}

func TestParseLookEmpty(t *testing.T) {
	cmd, err := Parse("look []\n")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if cmd.Look.HasFilename || cmd.Look.HasFileSize {
		t.Fatalf("expected no clauses, got %+v", cmd.Look)
	}
}

func TestParseUpdate(t *testing.T) {
	cmd, err := Parse("update seed [abc def] leech [ghi]\n")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	u := cmd.Update
	if len(u.Seeds) != 2 || u.Seeds[0] != "abc" || u.Seeds[1] != "def" {
		t.Errorf("unexpected seeds: %+v", u.Seeds)
	}
	if len(u.Leeches) != 1 || u.Leeches[0] != "ghi" {
		t.Errorf("unexpected leeches: %+v", u.Leeches)
	}
}

func TestParseUnknownVerb(t *testing.T) {
	if _, err := Parse("delete abc\n"); err != ErrMalformed {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestWritePeers(t *testing.T) {
	got := WritePeers("abc", []swarm.Host{{IP: "10.0.0.1", Port: 4444}, {IP: "10.0.0.2", Port: 5555}})
	want := "peers abc [10.0.0.1:4444 10.0.0.2:5555]\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestWriteList(t *testing.T) {
	got := WriteList([]swarm.Record{
		{Filename: "a.dat", Size: 10, ChunkSize: 2, Hash: "h1"},
	})
	want := "list [a.dat 10 2 h1]\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
