package responseformat

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

type payload struct {
	Name  string    `json:"name"`
	Sizes []float64 `json:"sizes"`
}

func TestWriteResponse(t *testing.T) {
	f := NewFormatter()
	data := payload{Name: "ladder", Sizes: []float64{35, 50}}

	tests := []struct {
		name        string
		target      string
		accept      string
		contentType string
	}{
		{name: "default json", target: "/x", contentType: ContentTypeJSON},
		{name: "query msgpack", target: "/x?format=msgpack", contentType: ContentTypeMsgPack},
		{name: "accept msgpack", target: "/x", accept: ContentTypeMsgPack, contentType: ContentTypeMsgPack},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.accept != "" {
				req.Header.Set("Accept", tt.accept)
			}
			rec := httptest.NewRecorder()

			if err := f.WriteResponse(rec, req, http.StatusCreated, data); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != http.StatusCreated {
				t.Errorf("expected 201, got %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != tt.contentType {
				t.Errorf("expected %s, got %s", tt.contentType, ct)
			}

			var got payload
			var err error
			if tt.contentType == ContentTypeMsgPack {
				dec := msgpack.NewDecoder(rec.Body)
				dec.SetCustomStructTag("json")
				err = dec.Decode(&got)
			} else {
				err = json.NewDecoder(rec.Body).Decode(&got)
			}
			if err != nil || got.Name != "ladder" || len(got.Sizes) != 2 {
				t.Errorf("unexpected body %+v (%v)", got, err)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	if err := NewFormatter().WriteError(rec, req, http.StatusBadRequest, errors.New("bad input")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), `"error":"bad input"`) {
		t.Errorf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestDecodeRequest(t *testing.T) {
	f := NewFormatter()

	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"name":"a","sizes":[1,2]}`))
	var got payload
	if err := f.DecodeRequest(req, &got); err != nil || got.Name != "a" {
		t.Errorf("json decode: %+v, %v", got, err)
	}

	req = httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"nope":1}`))
	if err := f.DecodeRequest(req, &got); err == nil {
		t.Errorf("expected error for unknown field")
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(payload{Name: "b", Sizes: []float64{3}}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/x", &buf)
	req.Header.Set("Content-Type", ContentTypeMsgPack)
	got = payload{}
	if err := f.DecodeRequest(req, &got); err != nil || got.Name != "b" || got.Sizes[0] != 3 {
		t.Errorf("msgpack decode: %+v, %v", got, err)
	}
}
