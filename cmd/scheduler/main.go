// Command scheduler invokes one trigger operation against the server, the
// way a cron entry would. It exits nonzero on hard failure so cron-level
// alerting fires, and zero (with a logged warning) on partial failure.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultServer = "http://localhost:8080"

// init configures the logger with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

type tokenPayload struct {
	Token string `json:"jwt_token"`
}

type triggerPayload struct {
	Operation string `json:"operation"`
	Message   string `json:"message"`
	Failures  int    `json:"failures"`
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func main() {
	var (
		server    = flag.String("server", defaultServer, "base URL of the API server")
		op        = flag.String("op", "refresh", "trigger operation: refresh, expectedMoves, testAccessTokens, processOrders")
		apiKey    = flag.String("api-key", os.Getenv("API_KEY"), "API key for token issuance")
		apiSecret = flag.String("api-secret", os.Getenv("API_SECRET"), "API secret for token issuance")
	)
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Minute}

	token, err := fetchToken(client, *server, *apiKey, *apiSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to obtain API token")
	}

	result, err := trigger(client, *server, token, *op)
	if err != nil {
		log.Fatal().Err(err).Str("operation", *op).Msg("trigger operation failed")
	}

	event := log.Info()
	if result.Failures > 0 {
		event = log.Warn()
	}
	event.
		Str("operation", result.Operation).
		Int("failures", result.Failures).
		Msg(result.Message)
}

func fetchToken(client *http.Client, server, apiKey, apiSecret string) (string, error) {
	body, err := json.Marshal(map[string]string{
		"api_key":    apiKey,
		"api_secret": apiSecret,
	})
	if err != nil {
		return "", err
	}

	resp, err := client.Post(server+"/api/v1/auth/token", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var env envelope
	if err := decode(resp, &env); err != nil {
		return "", err
	}

	var payload tokenPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return "", err
	}
	if payload.Token == "" {
		return "", fmt.Errorf("token response was empty")
	}
	return payload.Token, nil
}

func trigger(client *http.Client, server, token, op string) (*triggerPayload, error) {
	req, err := http.NewRequest(http.MethodPost, server+"/api/v1/internal/trigger?op="+op, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env envelope
	if err := decode(resp, &env); err != nil {
		return nil, err
	}

	var payload triggerPayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func decode(resp *http.Response, env *envelope) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, env); err != nil {
		return fmt.Errorf("bad response (status %d): %s", resp.StatusCode, string(raw))
	}
	if !env.Success {
		msg := "unknown error"
		if env.Error != nil {
			msg = env.Error.Message
		}
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, msg)
	}
	return nil
}
