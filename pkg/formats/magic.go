package formats

import (
	"bytes"
	"path/filepath"
	"strings"
)

// magicTable is the per-extension magic-byte table of spec §6, promoted
// from the (excluded) upload API into the core per SPEC_FULL.md §3.
// Nothing in this repository calls SniffMagic; the orchestrator does not
// sniff its inputs before extraction.
var magicTable = map[string][]byte{
	".zip":     {'P', 'K', 0x03, 0x04},
	".gpkg":    []byte("SQLite format 3"),
	".geojson": []byte("{"),
	".json":    []byte("{"),
	".kml":     []byte("<?xml"),
}

// SniffMagic reports whether data's leading bytes match the magic
// expected for ext (case-insensitive, leading dot optional). Extensions
// absent from magicTable are unchecked and always report true (spec §6:
// "others unchecked").
func SniffMagic(ext string, data []byte) bool {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	magic, ok := magicTable[ext]
	if !ok {
		return true
	}
	trimmed := bytes.TrimLeft(data, " \t\r\n﻿")
	return bytes.HasPrefix(trimmed, magic)
}

// ExtOf returns the lowercased extension of path, including the dot.
func ExtOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
