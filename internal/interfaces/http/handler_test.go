package http

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"supportbridge/internal/entities"
	"supportbridge/internal/infrastructure"
	"supportbridge/internal/logutil"
	"supportbridge/internal/usecases"
)

const (
	testAPIKey    = "stream-key"
	testAPISecret = "stream-secret"
	transcriptKey = "chat_transcript"
)

// hubspotFake is an in-memory stand-in for the HubSpot contacts API.
type hubspotFake struct {
	mu       sync.Mutex
	nextID   int
	byEmail  map[string]string
	contacts map[string]map[string]string
	creates  int
	patches  int
}

func newHubspotFake() *hubspotFake {
	return &hubspotFake{nextID: 500, byEmail: map[string]string{}, contacts: map[string]map[string]string{}}
}

func (f *hubspotFake) seed(id string, props map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contacts[id] = props
}

func (f *hubspotFake) idFor(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byEmail[email]
}

func (f *hubspotFake) prop(id, key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.contacts[id][key]
}

func (f *hubspotFake) counts() (creates, patches int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.patches
}

func (f *hubspotFake) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /crm/v3/objects/contacts", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Properties map[string]string `json:"properties"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.creates++
		f.nextID++
		id := strconv.Itoa(f.nextID)
		f.contacts[id] = body.Properties
		f.byEmail[body.Properties["email"]] = id
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": id, "properties": body.Properties})
	})
	mux.HandleFunc("GET /crm/v3/objects/contacts/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.PathValue("id")
		if r.URL.Query().Get("idProperty") == "email" {
			id = f.byEmail[id]
		}
		props, ok := f.contacts[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"status":"error","message":"resource not found"}`))
			return
		}
		out := map[string]any{}
		for _, p := range strings.Split(r.URL.Query().Get("properties"), ",") {
			if p == "" {
				continue
			}
			if v, ok := props[p]; ok {
				out[p] = v
			} else {
				out[p] = nil
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"id": id, "properties": out})
	})
	mux.HandleFunc("PATCH /crm/v3/objects/contacts/{id}", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Properties map[string]string `json:"properties"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		f.patches++
		props, ok := f.contacts[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		for k, v := range body.Properties {
			props[k] = v
		}
		w.Write([]byte(`{}`))
	})
	return mux
}

// streamFake is an in-memory stand-in for the Stream Chat server API.
type streamFake struct {
	mu       sync.Mutex
	users    map[string]entities.ChatUser
	channels map[string][]string
}

func newStreamFake() *streamFake {
	return &streamFake{users: map[string]entities.ChatUser{}, channels: map[string][]string{}}
}

func (f *streamFake) counts() (users, channels int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.users), len(f.channels)
}

func (f *streamFake) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /users", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Users map[string]entities.ChatUser `json:"users"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		for id, u := range body.Users {
			f.users[id] = u
		}
		w.Write([]byte(`{"users":{}}`))
	})
	mux.HandleFunc("POST /channels/{type}/{id}/query", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data struct {
				Members []string `json:"members"`
			} `json:"data"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		id := r.PathValue("id")
		if _, ok := f.channels[id]; !ok {
			f.channels[id] = body.Data.Members
		}
		members := []map[string]string{}
		for _, m := range f.channels[id] {
			members = append(members, map[string]string{"user_id": m})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"channel": map[string]string{"id": id, "type": r.PathValue("type")},
			"members": members,
		})
	})
	return mux
}

type testEnv struct {
	router  *gin.Engine
	hubspot *hubspotFake
	stream  *streamFake
}

func newTestEnv(t *testing.T, verify bool) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	hub, str := newHubspotFake(), newStreamFake()
	hubSrv := httptest.NewServer(hub.handler())
	strSrv := httptest.NewServer(str.handler())
	t.Cleanup(hubSrv.Close)
	t.Cleanup(strSrv.Close)

	log := logutil.Discard()
	crm := infrastructure.NewHubSpotClient(hubSrv.Client(), hubSrv.URL, "hub-token")
	chat := infrastructure.NewStreamClient(strSrv.Client(), strSrv.URL, testAPIKey, testAPISecret, 0)

	registrations := usecases.NewRegistrationUsecase(
		usecases.NewContactDirectory(crm, log),
		usecases.NewIdentityProvisioner(chat, "admin-id", "Support Admin"),
		usecases.NewChannelProvisioner(chat),
		usecases.NewCredentialIssuer(chat),
		chat.APIKey(),
		log,
	)
	transcripts := usecases.NewTranscriptSynchronizer(crm, transcriptKey, log)

	var verifier WebhookVerifier
	if verify {
		verifier = chat
	}
	r, err := NewEngine(nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	SetupRoutes(r, NewHandler(registrations, transcripts, log), NewMiddleware(verifier, log), RouteOptions{
		RegistrationRate:  rate.Inf,
		RegistrationBurst: 1,
	})
	return &testEnv{router: r, hubspot: hub, stream: str}
}

func (e *testEnv) post(path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testAPISecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestRegistrationThenWebhookEndToEnd(t *testing.T) {
	env := newTestEnv(t, true)

	w := env.post("/registrations", []byte(`{"firstName":"Ann","lastName":"Lee","email":"ann@x.com"}`), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("register status = %d body = %s", w.Code, w.Body.String())
	}
	var reg entities.Registration
	if err := json.Unmarshal(w.Body.Bytes(), &reg); err != nil {
		t.Fatalf("decode registration: %v", err)
	}
	if reg.CustomerID != "ann-lee" || reg.CustomerToken == "" || reg.APIKey != testAPIKey {
		t.Fatalf("registration = %+v", reg)
	}
	if contactID := env.hubspot.idFor("ann@x.com"); reg.ChannelID == "" || reg.ChannelID != contactID {
		t.Fatalf("channelId %q is not the contact id %q", reg.ChannelID, contactID)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatalf("missing X-Request-ID")
	}

	event := []byte(`{"type":"message.new","channel_id":"` + reg.ChannelID + `","message":{"id":"m1","user":{"id":"ann-lee"},"created_at":"2024-01-01T00:00:00Z","text":"Hi"}}`)
	w = env.post("/webhooks", event, map[string]string{"X-Signature": sign(event)})
	if w.Code != http.StatusOK {
		t.Fatalf("webhook status = %d", w.Code)
	}

	transcript := env.hubspot.prop(reg.ChannelID, transcriptKey)
	for _, want := range []string{"FROM: ann-lee", "SENT AT: 2024-01-01T00:00:00Z", "MESSAGE: Hi"} {
		if !strings.Contains(transcript, want) {
			t.Fatalf("transcript %q missing %q", transcript, want)
		}
	}
}

func TestRegistrationReplayKeepsIdentities(t *testing.T) {
	env := newTestEnv(t, false)
	body := []byte(`{"firstName":"Ann","lastName":"Lee","email":"ann@x.com"}`)

	var regs [2]entities.Registration
	for i := range regs {
		w := env.post("/registrations", body, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("register #%d status = %d", i, w.Code)
		}
		json.Unmarshal(w.Body.Bytes(), &regs[i])
	}
	if regs[0].ChannelID != regs[1].ChannelID || regs[0].CustomerID != regs[1].CustomerID {
		t.Fatalf("replay changed identities: %+v vs %+v", regs[0], regs[1])
	}
	creates, _ := env.hubspot.counts()
	users, channels := env.stream.counts()
	if creates != 1 || users != 2 || channels != 1 {
		t.Fatalf("creates=%d users=%d channels=%d", creates, users, channels)
	}
}

func TestRegistrationFailures(t *testing.T) {
	env := newTestEnv(t, false)
	cases := []string{
		`{"firstName":"Ann","lastName":"","email":"ann@x.com"}`,
		`{"firstName":"Ann","lastName":"Lee","email":"nope"}`,
		`{"firstName":"Ann"`,
	}
	for _, body := range cases {
		w := env.post("/registrations", []byte(body), nil)
		if w.Code != http.StatusInternalServerError {
			t.Fatalf("%s: status = %d", body, w.Code)
		}
		var payload map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil || payload["error"] == "" {
			t.Fatalf("%s: body = %s", body, w.Body.String())
		}
		if strings.Contains(w.Body.String(), "customerToken") {
			t.Fatalf("%s: partial result leaked", body)
		}
	}
	if creates, _ := env.hubspot.counts(); creates != 0 {
		t.Fatalf("invalid input reached the CRM")
	}
}

func TestWebhookNonMessageEventIsNoop(t *testing.T) {
	env := newTestEnv(t, false)
	env.hubspot.seed("42", map[string]string{transcriptKey: "A"})

	w := env.post("/webhooks", []byte(`{"type":"message.read","channel_id":"42"}`), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if _, patches := env.hubspot.counts(); patches != 0 {
		t.Fatalf("patches = %d, want 0", patches)
	}
}

func TestWebhookAcknowledgesFailures(t *testing.T) {
	env := newTestEnv(t, false)

	for _, body := range []string{
		`{"type":"message.new","channel_id":"unknown","message":{"user":{"id":"u"},"text":"x"}}`,
		`not json`,
	} {
		if w := env.post("/webhooks", []byte(body), nil); w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", body, w.Code)
		}
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t, true)
	env.hubspot.seed("42", map[string]string{})
	body := []byte(`{"type":"message.new","channel_id":"42","message":{"user":{"id":"u"},"text":"x"}}`)

	w := env.post("/webhooks", body, map[string]string{"X-Signature": sign([]byte("other"))})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if _, patches := env.hubspot.counts(); patches != 0 {
		t.Fatalf("forged webhook reached the CRM")
	}
}

func TestRegistrationRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMiddleware(nil, logutil.Discard())
	r := newLimitedRouter(t, m)

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/registrations", nil))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func newLimitedRouter(t *testing.T, m *Middleware) *gin.Engine {
	t.Helper()
	r, err := NewEngine(nil)
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	r.POST("/registrations", m.RateLimitPerIP(rate.Limit(0.001), 1), func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRegistrationRateLimitIgnoresForwardedFor(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMiddleware(nil, logutil.Discard())
	r := newLimitedRouter(t, m)

	accepted := 0
	for i := 0; i < 50; i++ {
		req := httptest.NewRequest(http.MethodPost, "/registrations", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113."+strconv.Itoa(i))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code == http.StatusOK {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted = %d, want 1", accepted)
	}
	if n := m.limiterCount(); n != 1 {
		t.Fatalf("limiters = %d, want 1", n)
	}
}

func TestRegistrationRateLimitEvictsIdle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMiddleware(nil, logutil.Discard())
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	r := newLimitedRouter(t, m)

	send := func(remote string) {
		req := httptest.NewRequest(http.MethodPost, "/registrations", nil)
		req.RemoteAddr = remote
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	send("198.51.100.1:1000")
	send("198.51.100.2:1000")
	if n := m.limiterCount(); n != 2 {
		t.Fatalf("limiters = %d, want 2", n)
	}

	now = now.Add(limiterIdleTTL + time.Minute)
	send("198.51.100.3:1000")
	if n := m.limiterCount(); n != 1 {
		t.Fatalf("limiters after idle sweep = %d, want 1", n)
	}
}

func TestNewEngineRejectsBadProxy(t *testing.T) {
	if _, err := NewEngine([]string{"not-an-ip"}); err == nil {
		t.Fatalf("NewEngine() accepted an invalid proxy")
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, false)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("An\x00n\x07 Lee"); got != "Ann Lee" {
		t.Fatalf("SanitizeString() = %q", got)
	}
}
