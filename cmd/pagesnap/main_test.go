package main

import (
	"testing"

	"github.com/hazyhaar/pagesnap/capture"
)

func TestEnv(t *testing.T) {
	t.Setenv("PAGESNAP_TEST_VALUE", "x")
	if v := env("PAGESNAP_TEST_VALUE", "def"); v != "x" {
		t.Fatalf("set: got %q", v)
	}
	if v := env("PAGESNAP_TEST_UNSET", "def"); v != "def" {
		t.Fatalf("unset: got %q", v)
	}
}

func TestNewMCPServer(t *testing.T) {
	// WHAT: The MCP server builds without launching a browser.
	cfg := capture.DefaultConfig()
	cfg.Browser.Host = "local"
	svc, err := capture.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer svc.Close()
	if srv := newMCPServer(svc, cfg); srv == nil {
		t.Fatal("nil server")
	}
}
