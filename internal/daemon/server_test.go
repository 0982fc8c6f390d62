package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/felixgeelhaar/socratic/internal/app"
	"github.com/felixgeelhaar/socratic/internal/domain"
	"github.com/felixgeelhaar/socratic/internal/llm"
	"github.com/felixgeelhaar/socratic/internal/storage/sqlite"
	"github.com/felixgeelhaar/socratic/internal/tutor"
)

// stubProvider answers every prompt with a fixed reply.
type stubProvider struct {
	mu    sync.Mutex
	reply string
	calls int
}

func (p *stubProvider) Name() string { return "stub" }

func (p *stubProvider) Generate(_ context.Context, _ *llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return &llm.Response{Content: p.reply}, nil
}

func (p *stubProvider) setReply(reply string) {
	p.mu.Lock()
	p.reply = reply
	p.mu.Unlock()
}

// setupTestServer creates a server over a temp SQLite database with an
// indexed seed corpus and a stub LLM.
func setupTestServer(t *testing.T) (*Server, *stubProvider) {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "socratic.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	provider := &stubProvider{reply: "Think about the loop bounds."}
	registry := llm.NewRegistry()
	registry.Add("stub", provider)

	a, err := app.New(app.Options{
		Stores: app.Stores{
			Auth:     sqlite.NewAuthStore(db),
			Progress: sqlite.NewProgressStore(db),
			Vectors:  sqlite.NewVectorStore(db),
			States:   tutor.NewMemoryStateStore(),
		},
		LLM: registry,
	})
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	if err := a.EnsureIndexed(context.Background()); err != nil {
		t.Fatalf("index corpus: %v", err)
	}

	server, err := NewServer(ServerConfig{App: a, Addr: "127.0.0.1:0", Version: "test"})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	t.Cleanup(func() { server.Shutdown(context.Background()) })
	return server, provider
}

func do(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

// login registers a learner and returns a session token.
func login(t *testing.T, s *Server, username string) string {
	t.Helper()
	creds := map[string]string{"username": username, "password": "hunter22"}
	if rec := do(t, s, http.MethodPost, "/v1/auth/register", "", creds); rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body.String())
	}
	rec := do(t, s, http.MethodPost, "/v1/auth/login", "", creds)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	decodeBody(t, rec, &resp)
	if resp.Token == "" {
		t.Fatal("login returned an empty token")
	}
	return resp.Token
}

func TestNewServer_RequiresApp(t *testing.T) {
	if _, err := NewServer(ServerConfig{}); err == nil {
		t.Error("NewServer() without app should fail")
	}
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := do(t, server, http.MethodGet, "/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
	}
	var resp map[string]interface{}
	decodeBody(t, rec, &resp)
	if resp["status"] != "healthy" {
		t.Errorf("status = %v; want healthy", resp["status"])
	}
	if rec.Header().Get(CorrelationIDHeader) == "" {
		t.Error("response should carry a correlation ID")
	}
}

func TestStatusEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := do(t, server, http.MethodGet, "/v1/status", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Version        string   `json:"version"`
		Providers      []string `json:"llm_providers"`
		TutorOnline    bool     `json:"tutor_online"`
		Embedder       string   `json:"embedder"`
		CorpusSnippets int      `json:"corpus_snippets"`
		IndexReady     bool     `json:"index_ready"`
	}
	decodeBody(t, rec, &resp)

	if resp.Version != "test" {
		t.Errorf("version = %q; want test", resp.Version)
	}
	if len(resp.Providers) != 1 || resp.Providers[0] != "stub" {
		t.Errorf("llm_providers = %v; want [stub]", resp.Providers)
	}
	if !resp.TutorOnline {
		t.Error("tutor should be online with a provider")
	}
	if resp.CorpusSnippets == 0 || !resp.IndexReady {
		t.Errorf("corpus_snippets = %d, index_ready = %v; want an indexed corpus", resp.CorpusSnippets, resp.IndexReady)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	server, _ := setupTestServer(t)

	do(t, server, http.MethodGet, "/v1/health", "", nil)
	rec := do(t, server, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "socratic_http_requests_total") {
		t.Error("metrics should expose socratic_http_requests_total")
	}
	if !strings.Contains(body, `path="/v1/health"`) {
		t.Error("request metrics should be labelled with the route pattern")
	}
}

func TestRegister(t *testing.T) {
	server, _ := setupTestServer(t)

	tests := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{"valid", map[string]string{"username": "ada", "password": "secret"}, http.StatusCreated},
		{"duplicate", map[string]string{"username": "ada", "password": "other"}, http.StatusConflict},
		{"missing username", map[string]string{"password": "secret"}, http.StatusBadRequest},
		{"missing password", map[string]string{"username": "grace"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, server, http.MethodPost, "/v1/auth/register", "", tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d; want %d: %s", rec.Code, tt.status, rec.Body.String())
			}
		})
	}
}

func TestRegister_DuplicateMessage(t *testing.T) {
	server, _ := setupTestServer(t)
	login(t, server, "ada")

	rec := do(t, server, http.MethodPost, "/v1/auth/register", "",
		map[string]string{"username": "ada", "password": "x"})
	var resp map[string]interface{}
	decodeBody(t, rec, &resp)
	if resp["error"] != domain.ErrUsernameTaken.Error() {
		t.Errorf("error = %v; want %q", resp["error"], domain.ErrUsernameTaken.Error())
	}
}

func TestRegister_InvalidJSON(t *testing.T) {
	server, _ := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/register", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	server, _ := setupTestServer(t)
	login(t, server, "ada")

	rec := do(t, server, http.MethodPost, "/v1/auth/login", "",
		map[string]string{"username": "ada", "password": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d; want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	server, _ := setupTestServer(t)

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/v1/me/skills"},
		{http.MethodGet, "/v1/me/profile"},
		{http.MethodGet, "/v1/me/calibration"},
		{http.MethodPost, "/v1/sessions"},
		{http.MethodPost, "/v1/sessions/abc/fix"},
		{http.MethodGet, "/v1/training/Loops"},
		{http.MethodPost, "/v1/corpus/reindex"},
	}

	for _, rt := range routes {
		t.Run(rt.method+" "+rt.path, func(t *testing.T) {
			if rec := do(t, server, rt.method, rt.path, "", nil); rec.Code != http.StatusUnauthorized {
				t.Errorf("no token: status = %d; want %d", rec.Code, http.StatusUnauthorized)
			}
			if rec := do(t, server, rt.method, rt.path, "bogus", nil); rec.Code != http.StatusUnauthorized {
				t.Errorf("bad token: status = %d; want %d", rec.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestLogout_InvalidatesToken(t *testing.T) {
	server, _ := setupTestServer(t)
	token := login(t, server, "ada")

	if rec := do(t, server, http.MethodPost, "/v1/auth/logout", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("logout status = %d; want %d", rec.Code, http.StatusOK)
	}
	if rec := do(t, server, http.MethodGet, "/v1/me/skills", token, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("status after logout = %d; want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestSkills_NewLearnerNeedsCalibration(t *testing.T) {
	server, _ := setupTestServer(t)
	token := login(t, server, "ada")

	rec := do(t, server, http.MethodGet, "/v1/me/skills", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; want %d", rec.Code, http.StatusOK)
	}
	var resp struct {
		Skills           map[string]float64 `json:"skills"`
		NeedsCalibration bool               `json:"needs_calibration"`
	}
	decodeBody(t, rec, &resp)
	if !resp.NeedsCalibration {
		t.Error("a new learner should need calibration")
	}
	if len(resp.Skills) != len(domain.AllSkills) {
		t.Errorf("skills = %v; want all %d dimensions", resp.Skills, len(domain.AllSkills))
	}
}

func TestCalibration_SkipAll(t *testing.T) {
	server, _ := setupTestServer(t)
	token := login(t, server, "ada")

	rec := do(t, server, http.MethodGet, "/v1/me/calibration", token, nil)
	var first struct {
		Needed bool            `json:"needed"`
		Item   json.RawMessage `json:"item"`
	}
	decodeBody(t, rec, &first)
	if !first.Needed || len(first.Item) == 0 {
		t.Fatalf("calibration = %s; want a first question", rec.Body.String())
	}

	if rec := do(t, server, http.MethodPost, "/v1/me/calibration/skip-all", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("skip-all status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, server, http.MethodGet, "/v1/me/calibration", token, nil)
	var after struct {
		Needed bool `json:"needed"`
	}
	decodeBody(t, rec, &after)
	if after.Needed {
		t.Error("calibration should not be needed after skip-all")
	}
}

func TestCalibration_AnswerPass(t *testing.T) {
	server, provider := setupTestServer(t)
	provider.setReply("YES: well spotted")
	token := login(t, server, "ada")

	do(t, server, http.MethodGet, "/v1/me/calibration", token, nil)
	rec := do(t, server, http.MethodPost, "/v1/me/calibration/answer", token,
		map[string]string{"code": "for i in range(3):\n    print(i)\n"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Verdict *tutor.Verdict `json:"verdict"`
	}
	decodeBody(t, rec, &resp)
	if resp.Verdict == nil || !resp.Verdict.Passed {
		t.Errorf("verdict = %+v; want a pass", resp.Verdict)
	}
}

func TestTutoringFlow(t *testing.T) {
	server, provider := setupTestServer(t)
	token := login(t, server, "ada")

	code := "def total(xs):\n    s = 0\n    for i in range(len(xs) + 1):\n        s += xs[i]\n    return s\n"
	rec := do(t, server, http.MethodPost, "/v1/sessions", token, map[string]string{"code": code})
	if rec.Code != http.StatusCreated {
		t.Fatalf("analyze status = %d: %s", rec.Code, rec.Body.String())
	}
	var sess tutor.Session
	decodeBody(t, rec, &sess)
	if sess.ID == "" || sess.Phase != tutor.PhaseWarmup {
		t.Fatalf("session = %+v; want a warm-up session", sess)
	}
	base := "/v1/sessions/" + sess.ID

	rec = do(t, server, http.MethodGet, base+"/warmup", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("warmup status = %d: %s", rec.Code, rec.Body.String())
	}
	var warmup tutor.Warmup
	decodeBody(t, rec, &warmup)
	if warmup.Example == nil {
		t.Error("warm-up should always offer an example")
	}

	if rec := do(t, server, http.MethodPost, base+"/warmup/next", token, nil); rec.Code != http.StatusOK {
		t.Errorf("next example status = %d", rec.Code)
	}

	rec = do(t, server, http.MethodPost, base+"/chat", token, map[string]string{"message": "what is wrong?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d: %s", rec.Code, rec.Body.String())
	}
	var chat struct {
		Reply string `json:"reply"`
	}
	decodeBody(t, rec, &chat)
	if chat.Reply != "Think about the loop bounds." {
		t.Errorf("reply = %q", chat.Reply)
	}

	if rec := do(t, server, http.MethodPost, base+"/begin-fix", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("begin-fix status = %d", rec.Code)
	}

	provider.setReply("NO: the loop still overruns")
	rec = do(t, server, http.MethodPost, base+"/fix", token, map[string]string{"code": code})
	var failed tutor.FixResult
	decodeBody(t, rec, &failed)
	if failed.Verdict.Passed {
		t.Error("judge said NO; fix should fail")
	}

	provider.setReply("YES: bounds fixed")
	fixed := strings.Replace(code, "len(xs) + 1", "len(xs)", 1)
	rec = do(t, server, http.MethodPost, base+"/fix", token, map[string]string{"code": fixed})
	if rec.Code != http.StatusOK {
		t.Fatalf("fix status = %d: %s", rec.Code, rec.Body.String())
	}
	var passed tutor.FixResult
	decodeBody(t, rec, &passed)
	if !passed.Verdict.Passed || !passed.Session.Solved {
		t.Fatalf("fix result = %+v; want solved", passed.Verdict)
	}
	if passed.Skills.Sum() <= 0 {
		t.Errorf("skills = %v; want rewards applied", passed.Skills)
	}

	rec = do(t, server, http.MethodGet, "/v1/me/sessions", token, nil)
	var list struct {
		Count int `json:"count"`
	}
	decodeBody(t, rec, &list)
	if list.Count != 1 {
		t.Errorf("session count = %d; want 1", list.Count)
	}

	if rec := do(t, server, http.MethodPost, base+"/resume", token, nil); rec.Code != http.StatusConflict {
		t.Errorf("resume solved session status = %d; want %d", rec.Code, http.StatusConflict)
	}
}

func TestAnalyze_EmptyCode(t *testing.T) {
	server, _ := setupTestServer(t)
	token := login(t, server, "ada")

	rec := do(t, server, http.MethodPost, "/v1/sessions", token, map[string]string{"code": "   "})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestSession_OtherLearnerNotFound(t *testing.T) {
	server, _ := setupTestServer(t)
	owner := login(t, server, "ada")
	other := login(t, server, "grace")

	rec := do(t, server, http.MethodPost, "/v1/sessions", owner, map[string]string{"code": "print('hi'"})
	var sess tutor.Session
	decodeBody(t, rec, &sess)

	if rec := do(t, server, http.MethodGet, "/v1/sessions/"+sess.ID, other, nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d; want %d", rec.Code, http.StatusNotFound)
	}
	if rec := do(t, server, http.MethodGet, "/v1/sessions/"+sess.ID, owner, nil); rec.Code != http.StatusOK {
		t.Errorf("owner status = %d; want %d", rec.Code, http.StatusOK)
	}
}

func TestHistory_Limit(t *testing.T) {
	server, _ := setupTestServer(t)
	token := login(t, server, "ada")

	for i := 0; i < 3; i++ {
		do(t, server, http.MethodPost, "/v1/sessions", token, map[string]string{"code": fmt.Sprintf("x = %d\n", i)})
	}

	tests := []struct {
		query  string
		status int
		count  int
	}{
		{"", http.StatusOK, 3},
		{"?limit=2", http.StatusOK, 2},
		{"?limit=0", http.StatusBadRequest, 0},
		{"?limit=abc", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, server, http.MethodGet, "/v1/me/history"+tt.query, token, nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d; want %d", rec.Code, tt.status)
			}
			if tt.status != http.StatusOK {
				return
			}
			var resp struct {
				Count int `json:"count"`
			}
			decodeBody(t, rec, &resp)
			if resp.Count != tt.count {
				t.Errorf("count = %d; want %d", resp.Count, tt.count)
			}
		})
	}
}

func TestTraining(t *testing.T) {
	server, _ := setupTestServer(t)
	token := login(t, server, "ada")

	rec := do(t, server, http.MethodGet, "/v1/training/Loops", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var set tutor.TrainingSet
	decodeBody(t, rec, &set)
	if len(set.Problems) == 0 {
		t.Fatal("training set should not be empty")
	}

	rec = do(t, server, http.MethodPost, "/v1/training/Loops/start", token,
		map[string]string{"snippet_id": set.Problems[0].Snippet.ID})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(t, server, http.MethodPost, "/v1/training/Loops/start", token,
		map[string]string{"snippet_id": "no-such-snippet"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown snippet status = %d; want %d", rec.Code, http.StatusNotFound)
	}
}

func TestRetrieve(t *testing.T) {
	server, _ := setupTestServer(t)

	rec := do(t, server, http.MethodPost, "/v1/retrieve", "", map[string]string{"code": "while True:\n    pass\n"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status string `json:"status"`
	}
	decodeBody(t, rec, &resp)
	if resp.Status != "success" && resp.Status != "low_confidence" {
		t.Errorf("status = %q; want success or low_confidence", resp.Status)
	}

	if rec := do(t, server, http.MethodPost, "/v1/retrieve", "", map[string]string{}); rec.Code != http.StatusBadRequest {
		t.Errorf("empty code status = %d; want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestReindex_Inline(t *testing.T) {
	base, _ := setupTestServer(t)
	server, err := NewServer(ServerConfig{App: base.app, Admins: []string{"ada"}})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	defer server.Shutdown(context.Background())
	token := login(t, server, "ada")

	rec := do(t, server, http.MethodPost, "/v1/corpus/reindex", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var status app.ReindexStatus
	decodeBody(t, rec, &status)
	if status.Queued || status.Result == nil || status.Result.Snippets == 0 {
		t.Errorf("reindex = %+v; want an inline result", status)
	}
}

func TestReindex_AdminsOnly(t *testing.T) {
	base, _ := setupTestServer(t)
	server, err := NewServer(ServerConfig{App: base.app, Admins: []string{"root"}})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	defer server.Shutdown(context.Background())
	token := login(t, server, "learner")

	if rec := do(t, server, http.MethodPost, "/v1/corpus/reindex", token, nil); rec.Code != http.StatusForbidden {
		t.Errorf("learner status = %d; want %d", rec.Code, http.StatusForbidden)
	}
	// Without configured admins nobody may reindex over HTTP.
	if rec := do(t, base, http.MethodPost, "/v1/corpus/reindex", token, nil); rec.Code != http.StatusForbidden {
		t.Errorf("no admins status = %d; want %d", rec.Code, http.StatusForbidden)
	}
}

func TestRetrieveRateLimit(t *testing.T) {
	base, _ := setupTestServer(t)
	server, err := NewServer(ServerConfig{App: base.app, RetrieveRatePerMinute: 2})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	defer server.Shutdown(context.Background())

	body := map[string]string{"code": "while True: pass"}
	var codes []int
	for range 4 {
		codes = append(codes, do(t, server, http.MethodPost, "/v1/retrieve", "", body).Code)
	}
	if codes[0] != http.StatusOK {
		t.Errorf("first call status = %d; want %d", codes[0], http.StatusOK)
	}
	if last := codes[len(codes)-1]; last != http.StatusTooManyRequests {
		t.Errorf("status after burst = %d; want %d", last, http.StatusTooManyRequests)
	}
}

func TestAuthRateLimit(t *testing.T) {
	server, _ := setupTestServer(t)
	limited, err := NewServer(ServerConfig{App: server.app, AuthRatePerMinute: 2})
	if err != nil {
		t.Fatalf("create server: %v", err)
	}
	defer limited.Shutdown(context.Background())

	creds := map[string]string{"username": "nobody", "password": "x"}
	var last int
	for i := 0; i < 5; i++ {
		last = do(t, limited, http.MethodPost, "/v1/auth/login", "", creds).Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status after burst = %d; want %d", last, http.StatusTooManyRequests)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidUsername, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", tutor.ErrEmptyCode), http.StatusBadRequest},
		{domain.ErrInvalidCredentials, http.StatusUnauthorized},
		{domain.ErrAuthSessionExpired, http.StatusUnauthorized},
		{tutor.ErrSessionNotFound, http.StatusNotFound},
		{domain.ErrSnippetNotFound, http.StatusNotFound},
		{fmt.Errorf("create user: %w", domain.ErrUsernameTaken), http.StatusConflict},
		{tutor.ErrCalibrationComplete, http.StatusConflict},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor(%v) = %d; want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestRootMessage(t *testing.T) {
	err := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", domain.ErrUsernameTaken))
	if got := rootMessage(err); got != domain.ErrUsernameTaken.Error() {
		t.Errorf("rootMessage() = %q; want %q", got, domain.ErrUsernameTaken.Error())
	}
}
