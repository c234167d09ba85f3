// Command nnfix-stub is a tiny stand-in for the translation services used
// in local development and smoke tests. It answers the Apertium APy
// endpoints (/identifyLang, /translate) and the OpenAI-compatible ones
// (/v1/models, /v1/chat/completions) with a fixed word list.
package main

import (
	"encoding/json"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// words maps common Nynorsk forms to Bokmål.
var words = map[string]string{
	"eg": "jeg", "ikkje": "ikke", "kva": "hva", "kvar": "hver", "korleis": "hvordan",
	"mykje": "mye", "heile": "hele", "berre": "bare", "noko": "noe", "nokon": "noen",
	"frå": "fra", "heim": "hjem", "skulen": "skolen", "morgon": "morgen", "vere": "være",
	"vore": "vært", "dei": "de", "desse": "disse", "eit": "et", "ein": "en", "ho": "hun",
	"òg": "også", "sjølv": "selv", "saman": "sammen", "veke": "uke", "aukar": "øker",
}

var nynorskMarkers = []string{"ikkje", "eg", "kva", "korleis", "mykje", "berre", "frå", "sjølv", "òg", "eit"}

var wordRe = regexp.MustCompile(`[\p{L}]+`)

func translate(s string) string {
	return wordRe.ReplaceAllStringFunc(s, func(w string) string {
		out, ok := words[strings.ToLower(w)]
		if !ok {
			return w
		}
		if w[0] >= 'A' && w[0] <= 'Z' {
			return strings.ToUpper(out[:1]) + out[1:]
		}
		return out
	})
}

// identify scores Nynorsk by the share of marker words in the text.
func identify(s string) map[string]float64 {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	if len(tokens) == 0 {
		return map[string]float64{"nob": 1}
	}
	hits := 0
	for _, t := range tokens {
		for _, m := range nynorskMarkers {
			if t == m {
				hits++
				break
			}
		}
	}
	nno := min(1, float64(hits)*8/float64(len(tokens)))
	return map[string]float64{"nno": nno, "nob": 1 - nno}
}

func newMux(model string) *http.ServeMux {
	mux := http.NewServeMux()
	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}
	mux.HandleFunc("/identifyLang", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("q") == "" {
			http.Error(w, "missing q", http.StatusBadRequest)
			return
		}
		writeJSON(w, identify(r.Form.Get("q")))
	})
	mux.HandleFunc("/translate", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("langpair") != "nno|nob" {
			writeJSON(w, map[string]any{"responseData": nil, "responseStatus": http.StatusBadRequest, "responseDetails": "unsupported pair"})
			return
		}
		writeJSON(w, map[string]any{
			"responseData":   map[string]string{"translatedText": translate(q.Get("q"))},
			"responseStatus": http.StatusOK,
		})
	})
	mux.HandleFunc("/v1/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"object": "list", "data": []map[string]any{{"id": model, "object": "model"}}})
	})
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Messages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		user := req.Messages[len(req.Messages)-1].Content
		writeJSON(w, map[string]any{
			"id":      "stub-1",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]string{"role": "assistant", "content": translate(user)},
				"finish_reason": "stop",
			}},
		})
	})
	return mux
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	model := strings.TrimSpace(os.Getenv("MODEL_ID"))
	if model == "" {
		model = "nn-nb-stub"
	}
	addr := strings.TrimSpace(os.Getenv("ADDR"))
	if addr == "" {
		addr = ":2737"
	}
	log.Info().Str("addr", addr).Str("model", model).Msg("stub listening")
	srv := &http.Server{Addr: addr, Handler: newMux(model), ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		log.Fatal().Err(err).Msg("stub server")
	}
}
