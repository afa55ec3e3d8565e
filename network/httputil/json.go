// Package httputil defines helpers for reading and writing JSON over the
// relay node's HTTP surfaces.
package httputil

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("prefix", "httputil")

const jsonMediaType = "application/json"

// WriteJson writes the response message in JSON format.
func WriteJson(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", jsonMediaType)
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Could not write response message")
	}
}

// WriteJsonWithStatus writes the response message in JSON format with the
// supplied status code.
func WriteJsonWithStatus(w http.ResponseWriter, v interface{}, code int) {
	w.Header().Set("Content-Type", jsonMediaType)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithError(err).Error("Could not write response message")
	}
}

// ReadJson decodes the request body into the destination value, rejecting
// bodies with fields that do not map onto it.
func ReadJson(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if err == io.EOF {
			return errors.New("no data submitted")
		}
		return errors.Wrap(err, "could not decode request body")
	}
	return nil
}
