package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	apperrors "github.com/copyleftdev/warpbench/internal/errors"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type studyRef struct {
	ID string `json:"id"`
}

type rpcSuggestParams struct {
	ID string `json:"id"`
	suggestRequest
}

type rpcObserveParams struct {
	ID string `json:"id"`
	observeRequest
}

// handleJSONRPC handles JSON-RPC 2.0 requests. Errors are reported in the
// response body with HTTP 200.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&request); err != nil {
		s.respondWithError(w, apperrors.Protocol(apperrors.CodeParseError, "Parse error"), nil)
		return
	}

	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, apperrors.Protocol(apperrors.CodeInvalidRequest, "Invalid Request"), request.ID)
		return
	}

	result, err := s.dispatch(request.Method, request.Params)
	if err != nil {
		s.respondWithError(w, err, request.ID)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

func (s *Server) dispatch(method string, params json.RawMessage) (interface{}, error) {
	switch method {
	case "study.create":
		var p CreateStudyRequest
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return s.createFromRequest(p)

	case "study.suggest":
		var p rpcSuggestParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		ts, err := s.Suggest(p.ID, p.count())
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"trials": ts}, nil

	case "study.observe":
		var p rpcObserveParams
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return s.Observe(p.ID, p.Observations)

	case "study.status":
		var p studyRef
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return s.Status(p.ID)

	case "study.delete":
		var p studyRef
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		if err := s.DeleteStudy(p.ID); err != nil {
			return nil, err
		}
		return map[string]interface{}{"deleted": p.ID}, nil

	case "optimizers.list":
		return map[string]interface{}{"optimizers": s.Optimizers()}, nil

	default:
		return nil, apperrors.Protocol(apperrors.CodeMethodNotFound, "Method not found")
	}
}

// decodeParams accepts params as an object or as an array whose first
// element is the object.
func decodeParams(raw json.RawMessage, v interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return apperrors.Protocol(apperrors.CodeInvalidParams, "missing required parameters")
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
			return apperrors.Protocol(apperrors.CodeInvalidParams, "missing required parameters")
		}
		raw = list[0]
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperrors.Protocol(apperrors.CodeInvalidParams, "invalid parameter format: "+err.Error())
	}
	return nil
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, err error, id interface{}) {
	e := apperrors.FromError(err)
	fields := map[string]interface{}{
		"code":    e.Code,
		"message": e.Error(),
	}
	if e.Status >= http.StatusInternalServerError {
		s.logger.Error("rpc error", fields)
	} else {
		s.logger.Debug("rpc error", fields)
	}

	response := map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    e.Code,
			"message": e.Public(),
			"data":    map[string]interface{}{"status": e.Status},
		},
		"id": id,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
