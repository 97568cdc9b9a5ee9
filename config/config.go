// Package config defines the on-disk persisted state of §6 "Persisted
// state": the set of filesystem and server declarations the daemon
// reads at startup, encoded as plain JSON the way the ambient stack
// section of the expanded specification calls for.
package config

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"

	"github.com/winmount/winmount/vfserrors"
)

// FilesystemDecl is one persisted filesystem entry: enough to reconstruct
// the registry.CreateFS call that originally produced it.
type FilesystemDecl struct {
	ID     uuid.UUID       `json:"id"`
	Name   string          `json:"name"`
	KindID uuid.UUID       `json:"kind_id"`
	Config json.RawMessage `json:"config"`
}

// ServerDecl is one persisted server entry.
type ServerDecl struct {
	ID      uuid.UUID       `json:"id"`
	Name    string          `json:"name"`
	KindID  uuid.UUID       `json:"kind_id"`
	InputFS uuid.UUID       `json:"input_fs"`
	Config  json.RawMessage `json:"config"`
}

// Document is the full persisted document: every filesystem and server
// declaration, kept in document order by Load and Save.
type Document struct {
	Filesystems []FilesystemDecl `json:"filesystems"`
	Servers     []ServerDecl     `json:"servers"`
}

// Load reads and parses a Document from path. A missing file is not an
// error: it is treated as an empty document, matching a fresh install.
func Load(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, nil
		}
		return Document{}, vfserrors.Wrap(vfserrors.Other, err, "reading config file")
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, vfserrors.Wrap(vfserrors.FileCorrupt, err, "parsing config file")
	}
	return doc, nil
}

// Save writes doc to path as indented JSON.
func Save(path string, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return vfserrors.Wrap(vfserrors.Other, err, "encoding config file")
	}
	return os.WriteFile(path, data, 0o644)
}
