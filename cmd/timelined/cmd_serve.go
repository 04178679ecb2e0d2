package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"timelined/internal/llm"
	"timelined/internal/timeline"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat endpoint over HTTP",
	Long: `Serve exposes POST /api/chat on the given address.

The endpoint accepts {"message", "allowOriginals", "advisorMode",
"synthesisMode"} and returns the engine reply. This is local tooling: there is
no authentication; put it behind your own session layer if you expose it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		mux := http.NewServeMux()
		mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
			handleChat(a, w, r)
		})

		srv := &http.Server{
			Addr:              serveAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		logger.Info("serving chat endpoint", zap.String("addr", serveAddr))

		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-cmd.Context().Done():
			return srv.Close()
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "127.0.0.1:8787", "listen address")
	rootCmd.AddCommand(serveCmd)
}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func handleChat(a *app, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, string(llm.CodeInvalidRequest), "POST required")
		return
	}

	var req timeline.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, string(llm.CodeInvalidRequest), "malformed request body")
		return
	}
	req.Admin = r.Header.Get("X-Timelined-Admin") == "true"

	reply, err := a.engine.Answer(r.Context(), req)
	if err != nil {
		if pe, ok := llm.AsProviderError(err); ok {
			if pe.Code == llm.CodeRateLimited && pe.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(pe.RetryAfter.Seconds())))
			}
			writeError(w, pe.Code.HTTPStatus(), string(pe.Code), pe.Message)
			return
		}
		logger.Error("chat request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(reply)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	var env errorEnvelope
	env.Error.Code = code
	env.Error.Message = message
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
