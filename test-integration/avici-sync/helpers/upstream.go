// Package helpers provides fake upstream servers and configuration helpers
// for the avici-sync integration tests.
package helpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// FeedUser is one record served by FeedServer
type FeedUser struct {
	UserID         string  `json:"user_id"`
	Email          string  `json:"email"`
	IPAddress      *string `json:"ipAddress"`
	IdentifierType string  `json:"identifierType,omitempty"`
	CreatedAt      string  `json:"createdAt,omitempty"`
}

// FeedServer serves a newest-first user feed split into fixed-size pages
type FeedServer struct {
	*httptest.Server

	mu       sync.Mutex
	users    []FeedUser
	pageSize int
	requests []int
}

// NewFeedServer starts a feed server with the given page size
func NewFeedServer(pageSize int) *FeedServer {
	f := &FeedServer{pageSize: pageSize}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	f.Config.SetKeepAlivesEnabled(false)
	return f
}

// SetUsers replaces the feed contents, newest first
func (f *FeedServer) SetUsers(users []FeedUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append([]FeedUser(nil), users...)
}

// Prepend adds users to the head of the feed, as new signups do
func (f *FeedServer) Prepend(users ...FeedUser) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users = append(append([]FeedUser(nil), users...), f.users...)
}

// Requests returns the page numbers requested so far and resets the log
func (f *FeedServer) Requests() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.requests
	f.requests = nil
	return out
}

func (f *FeedServer) handle(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			writeJSON(w, map[string]any{"status": 0, "message": "invalid page"})
			return
		}
		page = n
	}

	f.mu.Lock()
	f.requests = append(f.requests, page)
	start := min((page-1)*f.pageSize, len(f.users))
	end := min(start+f.pageSize, len(f.users))
	users := append([]FeedUser{}, f.users[start:end]...)
	hasNext := end < len(f.users)
	f.mu.Unlock()

	writeJSON(w, map[string]any{
		"status":  1,
		"message": "ok",
		"data": map[string]any{
			"users":      users,
			"pagination": map[string]any{"page": page, "hasNextPage": hasNext},
		},
	})
}

// Location is the geolocation answer for one IP
type Location struct {
	CountryNameOfficial string `json:"country_name_official,omitempty"`
	StateProv           string `json:"state_prov,omitempty"`
	City                string `json:"city,omitempty"`
	District            string `json:"district,omitempty"`
	CountryCode2        string `json:"country_code2,omitempty"`
}

// GeoServer answers geolocation lookups from a fixed table
type GeoServer struct {
	*httptest.Server

	apiKey    string
	locations map[string]Location

	mu      sync.Mutex
	lookups []string
}

// NewGeoServer starts a geolocation server that requires apiKey
func NewGeoServer(apiKey string, locations map[string]Location) *GeoServer {
	g := &GeoServer{apiKey: apiKey, locations: locations}
	g.Server = httptest.NewServer(http.HandlerFunc(g.handle))
	g.Config.SetKeepAlivesEnabled(false)
	return g
}

// Lookups returns the IPs looked up so far
func (g *GeoServer) Lookups() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.lookups...)
}

func (g *GeoServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("apiKey") != g.apiKey {
		w.WriteHeader(http.StatusUnauthorized)
		writeJSON(w, map[string]any{"message": "invalid api key"})
		return
	}

	ip := r.URL.Query().Get("ip")
	g.mu.Lock()
	g.lookups = append(g.lookups, ip)
	g.mu.Unlock()

	loc, ok := g.locations[ip]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]any{"message": "unknown ip"})
		return
	}
	writeJSON(w, map[string]any{"ip": ip, "location": loc})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// IP returns a pointer to ip for FeedUser literals
func IP(ip string) *string {
	return &ip
}
