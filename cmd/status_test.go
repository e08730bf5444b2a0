package main

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/cwbudde/swarmviz/internal/server"
)

func TestStatus_ListAndDetail(t *testing.T) {
	srv := server.NewServer(":0", nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	entry := srv.Sessions().CreateSession(1)
	err := srv.Sessions().UpdateSession(entry.ID, func(e *server.Entry) error {
		e.Session.SetExpression("x^2")
		if _, err := e.Session.SetHyperparameter("populationSize", "10"); err != nil {
			return err
		}
		_, err := e.Session.Step()
		return err
	})
	if err != nil {
		t.Fatalf("Failed to prepare session: %v", err)
	}

	var list bytes.Buffer
	if err := listSessions(&list, ts.URL+"/api/v1/sessions"); err != nil {
		t.Fatalf("listSessions failed: %v", err)
	}
	if !strings.Contains(list.String(), "Found 1 session(s)") || !strings.Contains(list.String(), entry.ID) {
		t.Errorf("Unexpected list output: %q", list.String())
	}

	var detail bytes.Buffer
	url := fmt.Sprintf("%s/api/v1/sessions/%s", ts.URL, entry.ID)
	if err := getSessionStatus(&detail, url, entry.ID); err != nil {
		t.Fatalf("getSessionStatus failed: %v", err)
	}
	out := detail.String()
	for _, want := range []string{"State: idle", "Expression: x^2 (dimension 1)", "populationSize: 10", "Generation: 1", "Population: 10"} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected %q in output:\n%s", want, out)
		}
	}
}

func TestStatus_EmptyServer(t *testing.T) {
	srv := server.NewServer(":0", nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	var buf bytes.Buffer
	if err := listSessions(&buf, ts.URL+"/api/v1/sessions"); err != nil {
		t.Fatalf("listSessions failed: %v", err)
	}
	if !strings.Contains(buf.String(), "No sessions found") {
		t.Errorf("Unexpected output: %q", buf.String())
	}
}

func TestStatus_UnknownSession(t *testing.T) {
	srv := server.NewServer(":0", nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	var buf bytes.Buffer
	err := getSessionStatus(&buf, ts.URL+"/api/v1/sessions/missing", "missing")
	if err == nil || !strings.Contains(err.Error(), "session not found") {
		t.Errorf("Expected not-found error, got %v", err)
	}
}
