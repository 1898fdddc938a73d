package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"reflect"
)

// maxJSONBody caps request bodies read by BindJSON.
const maxJSONBody = 1 << 20

// BindJSON decodes an application/json body into v, rejecting unknown
// fields and trailing data. Requests without a body are left untouched.
func BindJSON() Bind {
	return func(r *http.Request, v any) error {
		if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
			return nil
		}

		ct := r.Header.Get("Content-Type")
		if ct == "" {
			return errors.Join(ErrUnsupportedMediaType, ErrMissingContentType)
		}
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return errors.Join(ErrUnsupportedMediaType, fmt.Errorf("%w: got %s", ErrInvalidContentType, ct))
		}

		dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			if errors.Is(err, io.EOF) {
				return errors.Join(ErrBadRequest, fmt.Errorf("%w: empty body", ErrInvalidJSON))
			}
			return errors.Join(ErrBadRequest, fmt.Errorf("%w: %v", ErrInvalidJSON, err))
		}
		var extra json.RawMessage
		if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
			return errors.Join(ErrBadRequest, fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidJSON))
		}
		return nil
	}
}

// BindPath fills string fields tagged `path:"name"` using extractor, for
// example chi.URLParam.
func BindPath(extractor func(r *http.Request, name string) string) Bind {
	return func(r *http.Request, v any) error {
		rv := reflect.ValueOf(v)
		if extractor == nil || rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
			return ErrInvalidPath
		}
		rv = rv.Elem()
		rt := rv.Type()
		for i := range rt.NumField() {
			name := rt.Field(i).Tag.Get("path")
			if name == "" || name == "-" {
				continue
			}
			f := rv.Field(i)
			if f.Kind() != reflect.String || !f.CanSet() {
				return fmt.Errorf("%w: field %s must be a string", ErrInvalidPath, rt.Field(i).Name)
			}
			f.SetString(extractor(r, name))
		}
		return nil
	}
}
