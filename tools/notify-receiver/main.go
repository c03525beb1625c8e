// notify-receiver is a development endpoint for pagesched deployment
// notifications. It verifies the X-Pagesched-Signature header when SECRET is
// set and keeps the last deliveries for inspection via /stats.
package main

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sync"
	"time"
)

type delivery struct {
	Timestamp  string `json:"timestamp"`
	Event      string `json:"event"`
	DeliveryID string `json:"delivery_id"`
	Signed     bool   `json:"signed"`
	Body       string `json:"body"`
}

type stats struct {
	Count          int64      `json:"count"`
	BadSignatures  int64      `json:"bad_signatures"`
	LastDeliveries []delivery `json:"last_deliveries"`
	Since          string     `json:"since"`
}

var (
	mu             sync.Mutex
	count          int64
	badSignatures  int64
	lastDeliveries []delivery
	since          time.Time
	maxStored      = 50

	secret = os.Getenv("SECRET")
)

func main() {
	since = time.Now().UTC()

	addr := ":8080"
	if v := os.Getenv("ADDR"); v != "" {
		addr = v
	}

	if secret == "" {
		log.Println("notify-receiver: SECRET not set; signatures are recorded but not verified")
	}

	http.HandleFunc("/hook", hookHandler)
	http.HandleFunc("/stats", statsHandler)
	http.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	http.HandleFunc("/reset", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		count = 0
		badSignatures = 0
		lastDeliveries = nil
		since = time.Now().UTC()
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "reset")
	})

	log.Printf("notify-receiver listening on %s", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}

func hookHandler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	defer r.Body.Close()

	signed := true
	if secret != "" {
		signed = verifySignature(body, r.Header.Get("X-Pagesched-Signature"))
	}

	d := delivery{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Event:      r.Header.Get("X-Pagesched-Event"),
		DeliveryID: r.Header.Get("X-Pagesched-Delivery"),
		Signed:     signed,
		Body:       string(body),
	}

	mu.Lock()
	count++
	if !signed {
		badSignatures++
	}
	lastDeliveries = append(lastDeliveries, d)
	if len(lastDeliveries) > maxStored {
		lastDeliveries = lastDeliveries[len(lastDeliveries)-maxStored:]
	}
	current := count
	mu.Unlock()

	if !signed {
		log.Printf("hook #%d: BAD SIGNATURE: %s", current, string(body))
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprintln(w, `{"error":"signature mismatch"}`)
		return
	}

	log.Printf("hook #%d (%s): %s", current, d.Event, string(body))
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"received":%d}`, current)
}

func verifySignature(body []byte, header string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}

func statsHandler(w http.ResponseWriter, _ *http.Request) {
	mu.Lock()
	s := stats{
		Count:          count,
		BadSignatures:  badSignatures,
		LastDeliveries: lastDeliveries,
		Since:          since.Format(time.RFC3339),
	}
	mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s)
}
