package proxy

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/pario-ai/cachegate/pkg/models"
)

const maxBodyBytes = 1 << 20

func jsonType(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	switch {
	case s == "null":
		return "null"
	case strings.HasPrefix(s, `"`):
		return "string"
	case strings.HasPrefix(s, "{"):
		return "object"
	case strings.HasPrefix(s, "["):
		return "array"
	case s == "true" || s == "false":
		return "boolean"
	default:
		return "number"
	}
}

// stringField extracts a string member. present is false when the
// member is absent; msg is set when it is present but not a string.
func stringField(body map[string]json.RawMessage, name string) (value string, present bool, msg string) {
	raw, ok := body[name]
	if !ok {
		return "", false, ""
	}
	if err := json.Unmarshal(raw, &value); err != nil || jsonType(raw) != "string" {
		return "", true, "Expected string, received " + jsonType(raw)
	}
	return value, true, ""
}

func serviceChoices() string {
	quoted := make([]string, len(models.Services))
	for i, s := range models.Services {
		quoted[i] = "'" + string(s) + "'"
	}
	return strings.Join(quoted, " | ")
}

// decodeProxyRequest validates the request body and collects every
// field error rather than stopping at the first.
func decodeProxyRequest(r io.Reader) (models.ProxyRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return models.ProxyRequest{}, &Error{Kind: KindValidation, Message: "Invalid JSON body.", Err: err}
	}

	var body map[string]json.RawMessage
	if err := json.Unmarshal(data, &body); err != nil || body == nil {
		return models.ProxyRequest{}, &Error{Kind: KindValidation, Message: "Invalid JSON body.", Err: err}
	}

	var req models.ProxyRequest
	fields := make(map[string][]string)

	if v, present, msg := stringField(body, "service"); !present {
		fields["service"] = []string{"Required"}
	} else if msg != "" {
		fields["service"] = []string{fmt.Sprintf("Expected %s, received %s", serviceChoices(), jsonType(body["service"]))}
	} else if !models.Service(v).Valid() {
		fields["service"] = []string{fmt.Sprintf("Invalid enum value. Expected %s, received '%s'", serviceChoices(), v)}
	} else {
		req.Service = models.Service(v)
	}

	if v, present, msg := stringField(body, "model"); present && msg != "" {
		fields["model"] = []string{msg}
	} else {
		req.Model = v
	}

	if v, present, msg := stringField(body, "prompt"); !present {
		fields["prompt"] = []string{"Required"}
	} else if msg != "" {
		fields["prompt"] = []string{msg}
	} else if v == "" {
		fields["prompt"] = []string{"Prompt cannot be empty."}
	} else {
		req.Prompt = v
	}

	if v, present, msg := stringField(body, "keyId"); !present {
		fields["keyId"] = []string{"Required"}
	} else if msg != "" {
		fields["keyId"] = []string{msg}
	} else if v == "" {
		fields["keyId"] = []string{"keyId cannot be empty."}
	} else {
		req.KeyID = v
	}

	if len(fields) > 0 {
		return models.ProxyRequest{}, invalidFields(fields)
	}
	return req, nil
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	req, err := decodeProxyRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.pipeline.Process(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.cache.Stats(r.Context())
	if err != nil {
		s.logger.Error("load stats failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to load cache statistics")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	entries, err := s.cache.RecentActivity(r.Context())
	if err != nil {
		s.logger.Error("load activity failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "failed to load recent activity")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
