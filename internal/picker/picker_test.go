package picker

import "testing"

var classes = []string{
	"Lcom/app/MainActivity;",
	"Lcom/app/SettingsActivity;",
	"Lcom/app/net/HttpClient;",
	"Lokhttp3/OkHttpClient;",
}

func TestRank(t *testing.T) {
	ranked := Rank("MainAct", classes)
	if len(ranked) == 0 || ranked[0] != "Lcom/app/MainActivity;" {
		t.Errorf("ranked = %v", ranked)
	}
	if got := Rank("", classes); len(got) != len(classes) {
		t.Errorf("empty query = %v", got)
	}
	if got := Rank("zzzzzz", classes); len(got) != 0 {
		t.Errorf("no match = %v", got)
	}
}

func TestPickExact(t *testing.T) {
	got, err := Pick("", "Lokhttp3/OkHttpClient;", classes, false)
	if err != nil || got != "Lokhttp3/OkHttpClient;" {
		t.Errorf("exact pick = %q, %v", got, err)
	}
}

func TestPickSingleFuzzy(t *testing.T) {
	got, err := Pick("", "Settings", classes, false)
	if err != nil || got != "Lcom/app/SettingsActivity;" {
		t.Errorf("fuzzy pick = %q, %v", got, err)
	}
}

func TestPickAmbiguousNonInteractive(t *testing.T) {
	got, err := Pick("", "Activity", classes, false)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Lcom/app/MainActivity;" && got != "Lcom/app/SettingsActivity;" {
		t.Errorf("ambiguous pick = %q", got)
	}
}

func TestPickNoMatch(t *testing.T) {
	if _, err := Pick("", "nothinglikeit999", classes, false); err == nil {
		t.Error("no match should fail")
	}
}
