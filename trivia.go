// Weakest-link trivia game.
//
// A leader creates a room and moderates from their own screen: marking
// answers correct or incorrect, banking winnings, opening votes, and
// running the final duel. Contestants join from their phones via a room
// code or QR link.
//
// Features:
// - Random 6-char room codes via crypto/rand, with server-side collision check
// - One leader per room, up to eight contestants
// - Eight-rung money ladder, chain broken on any incorrect answer
// - Per-round countdown that forces an incorrect answer on expiry
// - Leader-tallied voting rounds and a two-player sudden-death duel
// - Reconnection by display name within a grace period
// - QR code to share the current room, backed by go-qrcode

package main

import (
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
)

// newRoomCode generates a crypto-random room code and ensures it doesn't
// collide with an existing room. Ambiguous characters are left out of the
// alphabet since codes get read out loud.
func newRoomCode(reg *Registry) string {
	const letters = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

	for {
		buf := make([]byte, 6)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}

		out := make([]byte, 6)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		code := string(out)

		if !reg.Exists(code) {
			return code
		}
	}
}

// redirectNewRoom handles GET /path by generating a fresh room code and
// redirecting to /path/:roomid. The room itself is only created once the
// leader's websocket join arrives.
func redirectNewRoom(cfg *Config, path string, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		roomCode := newRoomCode(reg)

		log.Info().Str("room", roomCode).Msg("room code issued")

		http.Redirect(w, r, cfg.prefix+path+"/"+roomCode, http.StatusTemporaryRedirect)
	}
}

func serveRoomPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = io.WriteString(w, newPage("weakestlink", fmt.Sprintf("Room code: %s", roomID)))
	}
}

// qrHandler generates a PNG QR code for the current room URL.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomID := ps.ByName("roomid")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:roomid/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// registerTriviaGame sets up routes so that:
//   - $path                  → redirects to a new room code
//   - $path/:roomid          → HTML client
//   - $path/:roomid/ws       → WebSocket for that room
//   - $path/:roomid/qr       → PNG QR code for that room URL
func registerTriviaGame(cfg *Config, path string, mux *httprouter.Router, questions []Question) *Gateway {
	gw := newTriviaGateway(cfg, clockwork.NewRealClock(), questions)

	mux.GET(cfg.prefix+path, redirectNewRoom(cfg, path, gw.registry))

	mux.GET(cfg.prefix+path+"/:roomid", serveRoomPage(cfg))

	mux.GET(cfg.prefix+path+"/:roomid/ws", gw.serveWS())

	mux.GET(cfg.prefix+path+"/:roomid/qr", qrHandler)

	if cfg.sessionTimeout > 0 {
		go gw.reaperLoop()
	}

	return gw
}
