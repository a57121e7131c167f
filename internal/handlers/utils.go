package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gobbledegook/creevey/internal/logging"
)

// maxBodySize bounds JSON request bodies.
const maxBodySize = 1 << 20

var (
	errPathRequired = errors.New("path is required")
	errOutsideRoot  = errors.New("path is outside the root directory")
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONCode writes v with the given status code.
func writeJSONCode(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONCode(w, statusCode, map[string]string{"error": message})
}

// writeJSONStatus writes a simple status response as JSON.
func writeJSONStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": status})
}

// readJSON decodes a request body into v, rejecting unknown fields.
func readJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// resolvePath maps a root-relative path from a request onto the
// filesystem. An empty path is the root itself when allowRoot is set.
func (h *Handlers) resolvePath(rel string, allowRoot bool) (string, error) {
	if rel == "" && !allowRoot {
		return "", errPathRequired
	}
	abs := filepath.Join(h.root, filepath.FromSlash(rel))
	if !isSubPath(h.root, abs) {
		return "", errOutsideRoot
	}
	return abs, nil
}

func isSubPath(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// relPath is the inverse of resolvePath, for responses.
func (h *Handlers) relPath(abs string) string {
	rel, err := filepath.Rel(h.root, abs)
	if err != nil {
		return abs
	}
	return filepath.ToSlash(rel)
}
