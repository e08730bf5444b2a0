package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/cwbudde/swarmviz/internal/expression"
)

func TestEvaluate_AtPoint(t *testing.T) {
	var buf bytes.Buffer
	if err := evaluate(&buf, "x^2 + y", []string{"3", "1"}); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Dimension: 2") {
		t.Errorf("Expected dimension 2 in %q", out)
	}
	if !strings.Contains(out, "Valid: true") {
		t.Errorf("Expected valid in %q", out)
	}
	if !strings.Contains(out, "= 10\n") {
		t.Errorf("Expected value 10 in %q", out)
	}
}

func TestEvaluate_DefaultsToOrigin(t *testing.T) {
	var buf bytes.Buffer
	if err := evaluate(&buf, "cos(x)", nil); err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if !strings.Contains(buf.String(), "f[0] = 1\n") {
		t.Errorf("Expected f[0] = 1 in %q", buf.String())
	}
}

func TestEvaluate_DomainErrorIsReported(t *testing.T) {
	var buf bytes.Buffer
	if err := evaluate(&buf, "log(x)", nil); err != nil {
		t.Fatalf("Domain errors should be printed, got %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Valid: false") || !strings.Contains(out, "undefined") {
		t.Errorf("Expected undefined at the origin in %q", out)
	}
}

func TestEvaluate_ParseError(t *testing.T) {
	var buf bytes.Buffer
	err := evaluate(&buf, "x +", nil)
	if !errors.Is(err, expression.ErrParse) {
		t.Errorf("Expected ErrParse, got %v", err)
	}
}

func TestEvaluate_BadCoordinate(t *testing.T) {
	var buf bytes.Buffer
	if err := evaluate(&buf, "x", []string{"abc"}); err == nil {
		t.Error("Expected error for non-numeric coordinate")
	}
}
