// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bureau-foundation/coset/lib/config"
	"github.com/bureau-foundation/coset/lib/version"
	"github.com/bureau-foundation/coset/lib/wire"
	"github.com/bureau-foundation/coset/transport"
)

func newLogger(logging config.LoggingConfig, output io.Writer) (*slog.Logger, error) {
	level, err := logging.SlogLevel()
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch logging.Format {
	case "json":
		handler = slog.NewJSONHandler(output, options)
	case "text", "":
		handler = slog.NewTextHandler(output, options)
	default:
		return nil, fmt.Errorf("unknown log format %q", logging.Format)
	}
	return slog.New(handler), nil
}

func newMux(server config.ServerConfig, signaling http.Handler, catalog *wire.Catalog) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(server.SignalingPath, signaling)
	if server.MetricsPath != "" {
		mux.Handle(server.MetricsPath, promhttp.Handler())
	}
	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, version.Full())
	})
	listing := describeCatalog(catalog)
	mux.HandleFunc("/schemas", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(listing)
	})
	return mux
}

// schemaDescription is one entry of the /schemas listing. Clients
// compare Fingerprint with their own copy of the layout before sending.
type schemaDescription struct {
	Type        uint32 `json:"type"`
	Name        string `json:"name"`
	Length      int    `json:"length"`
	Fingerprint string `json:"fingerprint"`
}

// describeCatalog lists the catalog in ascending type order.
func describeCatalog(catalog *wire.Catalog) []schemaDescription {
	listing := make([]schemaDescription, 0, catalog.Len())
	for _, typeID := range catalog.Types() {
		entry, _ := catalog.Lookup(typeID)
		listing = append(listing, schemaDescription{
			Type:        entry.Type,
			Name:        entry.Name,
			Length:      wire.StaticLength(entry.Schema),
			Fingerprint: entry.Schema.Fingerprint(),
		})
	}
	return listing
}

// echoCatalog registers every catalog schema on a new connection, with
// a handler that sends each message straight back.
func echoCatalog(catalog *wire.Catalog, logger *slog.Logger) func(*transport.Connection) error {
	return func(connection *transport.Connection) error {
		var errs []error
		for _, entry := range catalog.Entries() {
			typeID := transport.TypeID(entry.Type)
			if err := connection.RegisterSchema(typeID, entry.Schema); err != nil {
				errs = append(errs, fmt.Errorf("schema %s (%d): %w", entry.Name, entry.Type, err))
				continue
			}
			_, err := connection.HandleFunc(typeID, func(message transport.Message) {
				if err := connection.Send(message.Type, message.Payload); err != nil {
					logger.Debug("echo failed", "connection", connection.ID(), "type", message.Type, "error", err)
				}
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("handler %s (%d): %w", entry.Name, entry.Type, err))
			}
		}
		return errors.Join(errs...)
	}
}
