package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"screenflow/internal/apierr"
	"screenflow/internal/logger"
	"screenflow/internal/transport/rest/middleware"
)

// HeaderScreenETag mirrors ETag under a domain-specific name
const HeaderScreenETag = "Screen-ETag"

const maxBodyBytes = 1 << 20

type problem struct {
	Status int    `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeRaw sends an already encoded JSON body
func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func setETag(w http.ResponseWriter, etag string) {
	if etag == "" {
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set(HeaderScreenETag, etag)
}

// writeError renders err as application/problem+json
func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	e := apierr.As(err)
	if e.Status >= http.StatusInternalServerError {
		log.Error("request failed", "code", e.Code, "request_id", middleware.GetRequestID(r.Context()), "error", err)
	}
	setETag(w, e.ETag)
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(e.Status)
	json.NewEncoder(w).Encode(problem{
		Status: e.Status,
		Code:   e.Code,
		Title:  e.Title,
		Detail: e.Detail,
	})
}

// decodeJSON decodes a bounded request body. allowEmpty accepts an absent body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return apierr.BadRequest(err)
	}
	return nil
}
