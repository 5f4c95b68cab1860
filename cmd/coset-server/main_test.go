// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/coset/lib/config"
	"github.com/bureau-foundation/coset/lib/testutil"
	"github.com/bureau-foundation/coset/lib/wire"
	"github.com/bureau-foundation/coset/transport"
)

type idleSocket struct{}

func (idleSocket) Start(transport.SocketHandler) {}
func (idleSocket) WriteText([]byte) error        { return nil }
func (idleSocket) Ping() error                   { return nil }
func (idleSocket) Close() error                  { return nil }

type idlePeer struct{}

func (idlePeer) OnDataChannel(func(transport.DataChannel))            {}
func (idlePeer) OnICECandidate(func(*webrtc.ICECandidateInit))        {}
func (idlePeer) SetRemoteDescription(webrtc.SessionDescription) error { return nil }
func (idlePeer) SetLocalDescription(webrtc.SessionDescription) error  { return nil }
func (idlePeer) AddICECandidate(webrtc.ICECandidateInit) error        { return nil }
func (idlePeer) Close() error                                         { return nil }
func (idlePeer) CreateAnswer() (webrtc.SessionDescription, error)     { return webrtc.SessionDescription{}, nil }

const catalogSource = `
schemas:
  - type: 2
    name: position
    fields:
      x: Float
      y: Float
  - type: 7
    name: chat
`

func TestEchoCatalogRegistersEveryType(t *testing.T) {
	catalog, err := wire.ParseCatalogYAML([]byte(catalogSource))
	if err != nil {
		t.Fatalf("ParseCatalogYAML: %v", err)
	}
	connection, err := transport.NewConnection(testutil.UniqueID("echo"), idleSocket{}, transport.Config{
		Logger:  testutil.DiscardLogger(),
		NewPeer: func() (transport.PeerConnection, error) { return idlePeer{}, nil },
	})
	if err != nil {
		t.Fatalf("NewConnection: %v", err)
	}
	defer connection.Close()

	prepare := echoCatalog(catalog, testutil.DiscardLogger())
	if err := prepare(connection); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	for _, typeID := range []transport.TypeID{2, 7} {
		if err := connection.RegisterSchema(typeID, wire.MustSchema()); !errors.Is(err, transport.ErrDuplicateSchema) {
			t.Errorf("type %d: schema not registered (error %v)", typeID, err)
		}
	}

	// Running it twice reports every duplicate.
	err = prepare(connection)
	if !errors.Is(err, transport.ErrDuplicateSchema) {
		t.Errorf("second prepare error = %v, want ErrDuplicateSchema", err)
	}
}

func TestNewLogger(t *testing.T) {
	var output bytes.Buffer
	logger, err := newLogger(config.LoggingConfig{Level: "warn", Format: "json"}, &output)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "connection", "c1")

	text := output.String()
	if strings.Contains(text, "hidden") {
		t.Errorf("info record written at warn level: %s", text)
	}
	if !strings.Contains(text, `"connection":"c1"`) {
		t.Errorf("output is not JSON with attributes: %s", text)
	}

	if _, err := newLogger(config.LoggingConfig{Level: "info", Format: "xml"}, &output); err == nil {
		t.Error("unknown format accepted")
	}
	if _, err := newLogger(config.LoggingConfig{Level: "loud"}, &output); err == nil {
		t.Error("unknown level accepted")
	}
}

func TestMuxRoutes(t *testing.T) {
	signaled := false
	signaling := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { signaled = true })
	mux := newMux(config.Default().Server, signaling, &wire.Catalog{})

	for _, path := range []string{"/signal", "/metrics", "/version", "/schemas"} {
		recorder := httptest.NewRecorder()
		mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, nil))
		if recorder.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, recorder.Code)
		}
	}
	if !signaled {
		t.Error("signaling handler not mounted")
	}
}

func TestSchemasRoute(t *testing.T) {
	catalog, err := wire.ParseCatalogYAML([]byte(catalogSource))
	if err != nil {
		t.Fatalf("ParseCatalogYAML: %v", err)
	}
	mux := newMux(config.Default().Server, http.NotFoundHandler(), catalog)

	recorder := httptest.NewRecorder()
	mux.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/schemas", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("GET /schemas = %d, want 200", recorder.Code)
	}
	var listing []schemaDescription
	if err := json.Unmarshal(recorder.Body.Bytes(), &listing); err != nil {
		t.Fatalf("decoding listing: %v", err)
	}
	if len(listing) != 2 {
		t.Fatalf("listing has %d entries, want 2", len(listing))
	}

	position, _ := catalog.Lookup(2)
	if listing[0].Type != 2 || listing[0].Name != "position" || listing[0].Length != 8 {
		t.Errorf("first entry = %+v, want type 2 position of 8 bytes", listing[0])
	}
	if listing[0].Fingerprint != position.Schema.Fingerprint() {
		t.Errorf("position fingerprint = %s, want %s", listing[0].Fingerprint, position.Schema.Fingerprint())
	}
	if listing[1].Type != 7 || listing[1].Length != 0 {
		t.Errorf("second entry = %+v, want the empty chat layout", listing[1])
	}
	if listing[0].Fingerprint == listing[1].Fingerprint {
		t.Error("distinct layouts share a fingerprint")
	}
}

func TestLoadConfigSources(t *testing.T) {
	t.Setenv("COSET_CONFIG", "")
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig(defaults): %v", err)
	}
	if cfg.Server.ListenAddress != config.Default().Server.ListenAddress {
		t.Errorf("ListenAddress = %q, want the default", cfg.Server.ListenAddress)
	}

	path := filepath.Join(t.TempDir(), "coset.yaml")
	if err := os.WriteFile(path, []byte("server:\n  listen_address: \"127.0.0.1:9999\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	cfg, err = loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig(%s): %v", path, err)
	}
	if cfg.Server.ListenAddress != "127.0.0.1:9999" {
		t.Errorf("ListenAddress = %q, want 127.0.0.1:9999", cfg.Server.ListenAddress)
	}

	t.Setenv("COSET_CONFIG", path)
	cfg, err = loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig(COSET_CONFIG): %v", err)
	}
	if cfg.Server.ListenAddress != "127.0.0.1:9999" {
		t.Errorf("ListenAddress from COSET_CONFIG = %q", cfg.Server.ListenAddress)
	}
}

func TestLoadCatalogEmptyPath(t *testing.T) {
	catalog, err := loadCatalog("")
	if err != nil {
		t.Fatalf("loadCatalog: %v", err)
	}
	if catalog.Len() != 0 || len(catalog.Entries()) != 0 {
		t.Errorf("catalog has %d entries, want 0", catalog.Len())
	}
	if _, err := loadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing catalog file accepted")
	}
}

func TestRunVersion(t *testing.T) {
	if err := run([]string{"--version"}); err != nil {
		t.Errorf("run --version: %v", err)
	}
	if err := run([]string{"--no-such-flag"}); err == nil {
		t.Error("unknown flag accepted")
	}
}
