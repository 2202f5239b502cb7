package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseFileType(t *testing.T) {
	cases := map[string]FileType{
		"upload":    FileTypeUpload,
		"VIDEO":     FileTypeVideo,
		" audio ":   FileTypeAudio,
		"text":      FileTypeText,
		"id_verify": FileTypeIDVerify,
	}
	for raw, want := range cases {
		got, ok := ParseFileType(raw)
		if !ok || got != want {
			t.Errorf("ParseFileType(%q) = %q, %v; want %q", raw, got, ok, want)
		}
	}

	if _, ok := ParseFileType("pdf"); ok {
		t.Error("未知类型不应被识别")
	}
}

func TestScanResultJSONFieldNames(t *testing.T) {
	req := ScanRequest{UserID: "u1", FileType: FileTypeText, FileName: "Text Sample", Title: "T", Author: "A", Language: "English"}
	out := ScanOutcome{Result: VerdictFake, ConfidenceScore: 91, Details: "d", Source: SourceSimulator}
	res := NewScanResult("abc", req, out, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	raw, err := json.Marshal(res)
	if err != nil {
		t.Fatalf("序列化失败: %v", err)
	}
	body := string(raw)

	for _, key := range []string{`"_id":"abc"`, `"fileName":"Text Sample"`, `"confidenceScore":91`, `"comparative_analysis":[]`, `"aiProbability"`, `"scanDate"`} {
		if !strings.Contains(body, key) {
			t.Errorf("JSON 缺少 %s: %s", key, body)
		}
	}
	if strings.Contains(body, "simulator") {
		t.Errorf("来源字段不应被序列化: %s", body)
	}
}

func TestNewScanResultCopiesComparative(t *testing.T) {
	out := ScanOutcome{ComparativeAnalysis: []ComparativeMetric{{Metric: "m", Status: StatusNormal}}}
	res := NewScanResult("id", ScanRequest{}, out, time.Now())

	out.ComparativeAnalysis[0].Metric = "changed"
	if res.ComparativeAnalysis[0].Metric != "m" {
		t.Fatal("结果不应与原 outcome 共享切片")
	}
}

func TestIsEphemeral(t *testing.T) {
	if !(ScanResult{ID: OfflineIDPrefix + "1700000000000"}).IsEphemeral() {
		t.Error("offline_ 前缀应视为临时记录")
	}
	if (ScanResult{ID: "2f1c9a4e-0000-0000-0000-000000000000"}).IsEphemeral() {
		t.Error("uuid 不应视为临时记录")
	}
}

func TestAccountPassword(t *testing.T) {
	var a Account
	if err := a.SetPassword("correct horse"); err != nil {
		t.Fatalf("SetPassword 失败: %v", err)
	}
	if a.PasswordHash == "correct horse" {
		t.Fatal("密码不应以明文保存")
	}
	if !a.CheckPassword("correct horse") {
		t.Error("正确密码校验失败")
	}
	if a.CheckPassword("wrong horse") {
		t.Error("错误密码不应通过校验")
	}
}
