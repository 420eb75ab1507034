package rules

import (
	"os"
	"path/filepath"
	"testing"

	"threatrelay/pkg/models"
)

const ransomwareRule = `
title: Ransomware Execution Result
id: tr-0001
level: critical
tags:
  - attack.t1486
detection:
  selection:
    Type: ransomware
  condition: selection
`

const complexRule = `
title: Aggregated Rule
detection:
  timeframe: 5m
  selection:
    Type: probe
  condition: selection
`

func writeRule(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
		t.Fatalf("write rule file: %v", err)
	}
}

func TestSigmaEngineTagsMatchingResults(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "ransomware.yml", ransomwareRule)

	engine, stats, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("NewSigmaEngine failed: %v", err)
	}
	if stats.Loaded != 1 {
		t.Fatalf("loaded %d rules, want 1", stats.Loaded)
	}

	tags := engine.Apply(&models.ExecutionResult{Type: "ransomware", ThreatLevel: 5})
	if len(tags) != 1 {
		t.Fatalf("got %d tags, want 1", len(tags))
	}
	if tags[0].ID != "tr-0001" || tags[0].Severity != "critical" {
		t.Fatalf("unexpected tag: %+v", tags[0])
	}
	if tags[0].Technique != "T1486" {
		t.Fatalf("Technique = %q, want T1486", tags[0].Technique)
	}
}

func TestSigmaEngineNoMatchNoTags(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "ransomware.yml", ransomwareRule)

	engine, _, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("NewSigmaEngine failed: %v", err)
	}

	if tags := engine.Apply(&models.ExecutionResult{Type: "port_scan"}); tags != nil {
		t.Fatalf("expected no tags, got %v", tags)
	}
}

func TestSigmaEngineSkipsComplexRules(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "complex.yml", complexRule)
	writeRule(t, dir, "notes.txt", "not a rule")

	_, stats, err := NewSigmaEngine(dir)
	if err != nil {
		t.Fatalf("NewSigmaEngine failed: %v", err)
	}
	if stats.TotalFiles != 1 {
		t.Fatalf("TotalFiles = %d, want 1 (txt ignored)", stats.TotalFiles)
	}
	if stats.SkippedComplex != 1 || stats.Loaded != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
