package handlers

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/gobbledegook/creevey/internal/jpegfile"
	"github.com/gobbledegook/creevey/internal/jpegtran"
	"github.com/gobbledegook/creevey/internal/logging"
	"github.com/gobbledegook/creevey/internal/media"
)

// TransformRequest is the body of POST /api/transform. ReplaceThumb is
// base64 encoded, as encoding/json does for byte slices.
type TransformRequest struct {
	Path      string `json:"path"`
	Transform string `json:"transform"`

	Grayscale   bool `json:"grayscale"`
	Optimize    bool `json:"optimize"`
	Progressive bool `json:"progressive"`
	Trim        bool `json:"trim"`

	PreserveModTime  bool `json:"preserveModTime"`
	ResetOrientation bool `json:"resetOrientation"`
	AutoRotate       bool `json:"autoRotate"`

	ReplaceThumb []byte `json:"replaceThumb"`
	ThumbWidth   int    `json:"thumbWidth"`
	ThumbHeight  int    `json:"thumbHeight"`
	DeleteThumb  bool   `json:"deleteThumb"`

	Copy string `json:"copy"`
}

// TransformResponse reports the outcome of a transform.
type TransformResponse struct {
	Path      string `json:"path"`
	Transform string `json:"transform"`
	Modified  bool   `json:"modified"`
}

// spec converts the request into a jpegtran spec.
func (req *TransformRequest) spec() (jpegtran.Spec, error) {
	op, err := jpegtran.ParseOp(req.Transform)
	if err != nil {
		return jpegtran.Spec{}, err
	}
	policy, err := jpegtran.ParseCopyPolicy(req.Copy)
	if err != nil {
		return jpegtran.Spec{}, err
	}
	if req.DeleteThumb && req.ReplaceThumb != nil {
		return jpegtran.Spec{}, errors.New("deleteThumb and replaceThumb are mutually exclusive")
	}
	return jpegtran.Spec{
		Transform:        op,
		Grayscale:        req.Grayscale,
		Optimize:         req.Optimize,
		Progressive:      req.Progressive,
		Trim:             req.Trim,
		PreserveModTime:  req.PreserveModTime,
		ResetOrientation: req.ResetOrientation,
		AutoRotate:       req.AutoRotate,
		ReplaceThumb:     req.ReplaceThumb,
		ThumbWidth:       req.ThumbWidth,
		ThumbHeight:      req.ThumbHeight,
		DeleteThumb:      req.DeleteThumb,
		Copy:             policy,
	}, nil
}

// Transform rewrites a JPEG losslessly and refreshes its cached thumbnail.
func (h *Handlers) Transform(w http.ResponseWriter, r *http.Request) {
	var req TransformRequest
	if err := readJSON(r, &req); err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	abs, err := h.resolvePath(req.Path, false)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	spec, err := req.spec()
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !media.IsJPEG(abs) {
		writeJSONError(w, "Only JPEG files can be transformed", http.StatusBadRequest)
		return
	}

	h.transformMu.Lock()
	modified, err := jpegtran.Transform(r.Context(), abs, spec)
	h.transformMu.Unlock()

	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		writeJSONError(w, "File not found", http.StatusNotFound)
		return
	case errors.Is(err, jpegtran.ErrUnsupportedTransform),
		errors.Is(err, jpegfile.ErrNotJPEG),
		errors.Is(err, jpegfile.ErrSyntax),
		errors.Is(err, jpegfile.ErrUnsupported),
		errors.Is(err, jpegfile.ErrTruncated):
		writeJSONError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	default:
		logging.Error("Transform: %s: %v", abs, err)
		writeJSONError(w, "Failed to transform file", http.StatusInternalServerError)
		return
	}

	if modified {
		h.cache.Invalidate(abs)
	}

	writeJSONCode(w, http.StatusOK, TransformResponse{
		Path:      h.relPath(abs),
		Transform: spec.Transform.String(),
		Modified:  modified,
	})
}
