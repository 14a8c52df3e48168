package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/sokinpui/gpt2bot.go/internal/bot"
	"github.com/sokinpui/gpt2bot.go/internal/color"
	"github.com/sokinpui/gpt2bot.go/internal/command"
	"github.com/sokinpui/gpt2bot.go/internal/metrics"
	"github.com/sokinpui/gpt2bot.go/internal/store"
	"github.com/sokinpui/gpt2bot.go/model"
)

type HTTPServer struct {
	state      *bot.State
	dispatcher *command.Dispatcher
}

func NewHTTPServer(state *bot.State, d *command.Dispatcher) *HTTPServer {
	return &HTTPServer{
		state:      state,
		dispatcher: d,
	}
}

func (s *HTTPServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /models", s.handleListModels)
	mux.HandleFunc("GET /config", s.handleGetConfig)
	mux.HandleFunc("PUT /config", s.handleUpdateConfig)
	mux.HandleFunc("DELETE /config", s.handleResetConfig)
	mux.HandleFunc("GET /prompts", s.handleListPrompts)
	mux.HandleFunc("POST /generate", s.handleGenerate)
	mux.HandleFunc("POST /commands", s.handleCommand)
	mux.Handle("GET /metrics", metrics.Handler())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code, _ := classify(err)
	writeJSON(w, code, map[string]string{"error": bot.UserMessage(err)})
}

func (s *HTTPServer) handleListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"models":   s.state.Models(),
		"backends": model.Backends(),
	})
}

func (s *HTTPServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Config())
}

func (s *HTTPServer) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.DefaultPrompts())
}

// handleUpdateConfig takes a JSON object of key to value. Members are applied
// in document order, so a repeated key takes its last value.
func (s *HTTPServer) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	b, err := decodeBatch(r.Body)
	if err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	cfg, err := s.state.UpdateConfig(r.Context(), b)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *HTTPServer) handleResetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.state.ResetConfig(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

func (s *HTTPServer) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	log.Printf("-> %s (HTTP)", color.BlueString("Received generate request"))

	var (
		text string
		err  error
	)
	if req.Model != "" {
		text, err = s.state.Custom(r.Context(), req.Model, req.Prompt, nil)
	} else {
		text, err = s.state.Generate(r.Context(), req.Prompt, nil)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

type commandRequest struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

func (s *HTTPServer) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	replies, handled := s.dispatcher.Collect(r.Context(), command.Message{
		Author: req.Author,
		Text:   req.Text,
		SentAt: time.Now(),
	})
	if replies == nil {
		replies = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"handled": handled, "replies": replies})
}

// decodeBatch reads a flat JSON object keeping member order. Numbers keep
// their literal text and booleans become True or False.
func decodeBatch(r io.Reader) (store.Batch, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("expected a JSON object")
	}

	var b store.Batch
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key := tok.(string)

		tok, err = dec.Token()
		if err != nil {
			return nil, err
		}
		var value string
		switch v := tok.(type) {
		case string:
			value = v
		case json.Number:
			value = v.String()
		case bool:
			value = "False"
			if v {
				value = "True"
			}
		default:
			return nil, fmt.Errorf("unsupported value for %s", key)
		}
		b = append(b, store.Change{Key: key, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return b, nil
}
