package domain

import (
	"encoding/json"
	"strings"
	"testing"
)

func sampleRecord() EmployeeRecord {
	return EmployeeRecord{
		ID:   1700000000000,
		Name: "ali",
		Periods: []Period{
			{DateRange: "2024-01-01/2024-01-07", TotalHours: 40, DailyHours: map[string]float64{"pazartesi": 8}},
			{DateRange: "2024-01-08/2024-01-14", TotalHours: 38.5, DailyHours: map[string]float64{}},
		},
		Vector: []float32{0.1, 0.2},
	}
}

func TestEmployeeRecord_MarshalJSON_ColumnLayout(t *testing.T) {
	b, err := json.Marshal(sampleRecord())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if raw["isim"] != "ali" {
		t.Errorf("isim = %v", raw["isim"])
	}
	hours, ok := raw["toplam_mesai"].([]any)
	if !ok || len(hours) != 2 || hours[1].(float64) != 38.5 {
		t.Errorf("toplam_mesai = %v", raw["toplam_mesai"])
	}
	if _, ok := raw["vector"]; ok {
		t.Error("vector must not be serialized")
	}
	if _, ok := raw["score"]; ok {
		t.Error("score must be absent on a plain record")
	}
}

func TestEmployeeRecord_UnmarshalJSON_Scalars(t *testing.T) {
	body := `{"isim":"Veli","toplam_mesai":45,"tarih_araligi":"2024-02-01/2024-02-07","gunluk_mesai":{"sali":9}}`
	var r EmployeeRecord
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r.Name != "Veli" || len(r.Periods) != 1 {
		t.Fatalf("unexpected record: %+v", r)
	}
	p := r.Periods[0]
	if p.TotalHours != 45 || p.DateRange != "2024-02-01/2024-02-07" || p.DailyHours["sali"] != 9 {
		t.Errorf("unexpected period: %+v", p)
	}
}

func TestEmployeeRecord_UnmarshalJSON_UnevenColumns(t *testing.T) {
	body := `{"isim":"ayse","toplam_mesai":[10,20],"tarih_araligi":["a"]}`
	var r EmployeeRecord
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(r.Periods) != 2 {
		t.Fatalf("expected 2 periods, got %d", len(r.Periods))
	}
	if r.Periods[1].DateRange != "" || r.Periods[1].DailyHours == nil {
		t.Errorf("missing cells should be zero with empty map: %+v", r.Periods[1])
	}
}

func TestEmployeeRecord_UnmarshalJSON_BadType(t *testing.T) {
	var r EmployeeRecord
	if err := json.Unmarshal([]byte(`{"isim":"x","toplam_mesai":"many"}`), &r); err == nil {
		t.Fatal("expected error for non-numeric hours")
	}
}

func TestSearchResult_MarshalJSON_Score(t *testing.T) {
	score := float32(0.91)
	b, err := json.Marshal(SearchResult{EmployeeRecord: sampleRecord(), Score: &score})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(b), `"score":0.91`) {
		t.Errorf("score missing: %s", b)
	}

	b, _ = json.Marshal(SearchResult{EmployeeRecord: sampleRecord()})
	if strings.Contains(string(b), "score") {
		t.Errorf("nil score must be omitted: %s", b)
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	rec := sampleRecord()
	payload := rec.Payload()
	if payload["isim"] != "ali" {
		t.Fatalf("payload isim = %v", payload["isim"])
	}
	// Qdrant returns whole numbers as integers.
	payload["toplam_mesai"] = []any{int64(40), 38.5}

	got, err := RecordFromPayload(rec.ID, payload)
	if err != nil {
		t.Fatalf("RecordFromPayload: %v", err)
	}
	if got.ID != rec.ID || got.Name != rec.Name {
		t.Errorf("identity mismatch: %+v", got)
	}
	if len(got.Periods) != 2 || got.Periods[0].TotalHours != 40 || got.Periods[0].DailyHours["pazartesi"] != 8 {
		t.Errorf("periods mismatch: %+v", got.Periods)
	}
}

func TestRecordFromPayload_LegacyScalar(t *testing.T) {
	got, err := RecordFromPayload(7, map[string]any{
		"isim":          "zeynep",
		"toplam_mesai":  int64(42),
		"tarih_araligi": "2024-03-01/2024-03-07",
		"gunluk_mesai":  map[string]any{},
	})
	if err != nil {
		t.Fatalf("RecordFromPayload: %v", err)
	}
	if len(got.Periods) != 1 || got.Periods[0].TotalHours != 42 {
		t.Errorf("unexpected periods: %+v", got.Periods)
	}
}

func TestTotalHours(t *testing.T) {
	if got := sampleRecord().TotalHours(); got != 78.5 {
		t.Errorf("TotalHours = %v, want 78.5", got)
	}
	if got := (EmployeeRecord{}).TotalHours(); got != 0 {
		t.Errorf("empty TotalHours = %v", got)
	}
}
