package handlers_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mwinata/crm-web-ui/internal/handlers"
	"github.com/mwinata/crm-web-ui/internal/models"
)

type mockBot struct {
	chunks []string
	err    error
}

func (b mockBot) Reply(_ context.Context, _ []models.ChatMessage) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if b.err != nil {
			yield("", b.err)
			return
		}
		for _, c := range b.chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

type mockStore struct {
	companies     []models.Company
	contacts      []models.Contact
	opportunities []models.Opportunity
	tasks         []models.Task
	err           error

	// failDeleteID makes DeleteEntity fail with a non-NotFound error for one id.
	failDeleteID string

	// mu guards chats, which the socket handler mutates from its own goroutine.
	mu    sync.Mutex
	chats map[string][]models.ChatMessage
}

func newMockStore() *mockStore {
	return &mockStore{chats: map[string][]models.ChatMessage{}}
}

func (s *mockStore) Companies(context.Context) ([]models.Company, error) {
	return s.companies, s.err
}

func (s *mockStore) Contacts(context.Context) ([]models.Contact, error) {
	return s.contacts, s.err
}

func (s *mockStore) Opportunities(context.Context) ([]models.Opportunity, error) {
	return s.opportunities, s.err
}

func (s *mockStore) Tasks(context.Context) ([]models.Task, error) {
	return s.tasks, s.err
}

func (s *mockStore) Task(_ context.Context, id string) (models.Task, error) {
	for _, t := range s.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return models.Task{}, models.ErrNotFound
}

func (s *mockStore) UpdateTask(_ context.Context, task models.Task) error {
	for i, t := range s.tasks {
		if t.ID == task.ID {
			s.tasks[i] = task
			return nil
		}
	}
	return models.ErrNotFound
}

func (s *mockStore) DeleteEntity(_ context.Context, kind models.EntityKind, id string) error {
	if id == s.failDeleteID {
		return errors.New("store offline")
	}
	switch kind {
	case models.KindCompany:
		for i, c := range s.companies {
			if c.ID == id {
				s.companies = append(s.companies[:i], s.companies[i+1:]...)
				return nil
			}
		}
	case models.KindTask:
		for i, t := range s.tasks {
			if t.ID == id {
				s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
				return nil
			}
		}
	}
	return models.ErrNotFound
}

func (s *mockStore) ChatMessages(_ context.Context, sessionID string) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ChatMessage(nil), s.chats[sessionID]...), s.err
}

func (s *mockStore) AddChatMessage(_ context.Context, sessionID string, msg models.ChatMessage) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chats[sessionID] = append(s.chats[sessionID], msg)
	return msg.ID, nil
}

// waitForChatLog polls until the session log reaches n entries. The socket handler stores
// the bot side of a turn after writing the final event, so tests that just read one
// cannot assume the log is settled.
func waitForChatLog(t *testing.T, s *mockStore, sessionID string, n int) []models.ChatMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		log, _ := s.ChatMessages(context.Background(), sessionID)
		if len(log) >= n {
			return log
		}
		if time.Now().After(deadline) {
			t.Fatalf("chat log len = %d, want %d", len(log), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

type mockIcons struct {
	body []byte
}

func (i mockIcons) Icon(context.Context, string) ([]byte, error) {
	return i.body, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMain(t *testing.T, store handlers.Store, bot handlers.Bot, streaming bool) handlers.Main {
	t.Helper()
	m, err := handlers.NewMain(bot, store, mockIcons{body: []byte("<svg/>")}, streaming, testLogger())
	if err != nil {
		t.Fatalf("NewMain() error = %v", err)
	}
	return m
}

func TestNewMain(t *testing.T) {
	m := newTestMain(t, newMockStore(), mockBot{}, true)

	if m.Shutdown(context.Background()) != nil {
		t.Error("Shutdown() should not return error")
	}
}

func TestHandleHome(t *testing.T) {
	store := newMockStore()
	store.companies = []models.Company{{ID: "1", Name: "Acme Corp"}}
	store.tasks = []models.Task{{ID: "t1", Title: "Call back"}, {ID: "t2", Title: "Done one", Done: true}}
	store.opportunities = []models.Opportunity{
		{ID: "o1", Name: "Deal", Stage: models.StageProposal, Amount: 1000},
		{ID: "o2", Name: "Lost deal", Stage: models.StageLost, Amount: 9999},
	}
	m := newTestMain(t, store, mockBot{}, true)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	m.HandleHome(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("HandleHome() status = %v, want %v", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	// One open task, and only the live opportunity counts toward the pipeline.
	for _, want := range []string{">1<", "$1000"} {
		if !strings.Contains(body, want) {
			t.Errorf("HandleHome() body missing %q", want)
		}
	}
}

func TestHandleCompanies(t *testing.T) {
	store := newMockStore()
	store.companies = []models.Company{
		{ID: "1", Name: "Acme Corp", Industry: "manufacturing", City: "Detroit"},
		{ID: "2", Name: "Globex", Industry: "energy", City: "Austin"},
	}
	m := newTestMain(t, store, mockBot{}, true)

	tests := []struct {
		name     string
		url      string
		wantBody string
		skipBody string
	}{
		{
			name:     "all companies",
			url:      "/companies",
			wantBody: "Globex",
		},
		{
			name:     "search filters",
			url:      "/companies?q=acme",
			wantBody: "Acme Corp",
			skipBody: "Globex",
		},
		{
			name:     "grouped by industry",
			url:      "/companies?group=industry",
			wantBody: "energy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			w := httptest.NewRecorder()

			m.HandleCompanies(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("HandleCompanies() status = %v, want %v", w.Code, http.StatusOK)
			}
			body := w.Body.String()
			if !strings.Contains(body, tt.wantBody) {
				t.Errorf("HandleCompanies() body missing %q", tt.wantBody)
			}
			if tt.skipBody != "" && strings.Contains(body, tt.skipBody) {
				t.Errorf("HandleCompanies() body should not contain %q", tt.skipBody)
			}
		})
	}
}

func TestHandleDeleteEntity(t *testing.T) {
	tests := []struct {
		name       string
		entity     string
		id         string
		wantStatus int
		wantLeft   int
	}{
		{name: "delete existing", entity: "companies", id: "1", wantStatus: http.StatusNoContent, wantLeft: 1},
		{name: "unknown id", entity: "companies", id: "nope", wantStatus: http.StatusNotFound, wantLeft: 2},
		{name: "unknown collection", entity: "gadgets", id: "1", wantStatus: http.StatusNotFound, wantLeft: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			store.companies = []models.Company{
				{ID: "1", Name: "Acme Corp"},
				{ID: "2", Name: "Globex"},
			}
			m := newTestMain(t, store, mockBot{}, true)

			req := httptest.NewRequest(http.MethodDelete, "/api/"+tt.entity+"/"+tt.id, nil)
			req.SetPathValue("entity", tt.entity)
			req.SetPathValue("id", tt.id)
			w := httptest.NewRecorder()

			m.HandleDeleteEntity(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("HandleDeleteEntity() status = %v, want %v", w.Code, tt.wantStatus)
			}
			if len(store.companies) != tt.wantLeft {
				t.Errorf("companies left = %d, want %d", len(store.companies), tt.wantLeft)
			}
		})
	}
}

func TestHandleBulkDelete(t *testing.T) {
	store := newMockStore()
	store.companies = []models.Company{
		{ID: "1", Name: "Acme Corp"},
		{ID: "2", Name: "Globex"},
		{ID: "3", Name: "Initech"},
	}
	m := newTestMain(t, store, mockBot{}, true)

	payload, _ := json.Marshal(map[string][]string{"ids": {"1", "3", "nope"}})
	req := httptest.NewRequest(http.MethodPost, "/api/companies/bulk-delete", bytes.NewReader(payload))
	req.SetPathValue("entity", "companies")
	w := httptest.NewRecorder()

	m.HandleBulkDelete(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("HandleBulkDelete() status = %v, want %v", w.Code, http.StatusOK)
	}

	var res struct {
		Deleted int `json:"deleted"`
	}
	if err := json.NewDecoder(w.Body).Decode(&res); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if res.Deleted != 2 {
		t.Errorf("deleted = %d, want 2", res.Deleted)
	}
	if len(store.companies) != 1 || store.companies[0].ID != "2" {
		t.Errorf("remaining companies = %+v, want only id 2", store.companies)
	}
}

func TestHandleBulkDeletePartialFailureStillRefreshes(t *testing.T) {
	store := newMockStore()
	store.companies = []models.Company{
		{ID: "1", Name: "Acme Corp"},
		{ID: "2", Name: "Globex"},
		{ID: "3", Name: "Initech"},
	}
	store.failDeleteID = "2"
	m := newTestMain(t, store, mockBot{}, true)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /sse/entities", m.HandleSSE)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sseReq, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/sse/entities", nil)
	if err != nil {
		t.Fatal(err)
	}
	stream, err := http.DefaultClient.Do(sseReq)
	if err != nil {
		t.Fatalf("failed to open event stream: %v", err)
	}
	t.Cleanup(func() { stream.Body.Close() })

	payload, _ := json.Marshal(map[string][]string{"ids": {"1", "2"}})
	req := httptest.NewRequest(http.MethodPost, "/api/companies/bulk-delete", bytes.NewReader(payload))
	req.SetPathValue("entity", "companies")
	w := httptest.NewRecorder()

	m.HandleBulkDelete(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("HandleBulkDelete() status = %v, want %v", w.Code, http.StatusInternalServerError)
	}
	if len(store.companies) != 2 {
		t.Errorf("companies left = %d, want 2 (row before the failure is gone)", len(store.companies))
	}

	// The row deleted before the failure must still reach open pages.
	scanner := bufio.NewScanner(stream.Body)
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "event: companies") {
			return
		}
	}
	t.Error("no companies refresh event arrived after the partial failure")
}

func TestHandleUpdateTask(t *testing.T) {
	store := newMockStore()
	store.tasks = []models.Task{{ID: "t1", Title: "Call back", Due: time.Now()}}
	m := newTestMain(t, store, mockBot{}, true)

	payload := strings.NewReader(`{"done": true}`)
	req := httptest.NewRequest(http.MethodPatch, "/api/tasks/t1", payload)
	req.SetPathValue("id", "t1")
	w := httptest.NewRecorder()

	m.HandleUpdateTask(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("HandleUpdateTask() status = %v, want %v", w.Code, http.StatusOK)
	}
	if !store.tasks[0].Done {
		t.Error("task was not marked done")
	}

	// Unknown task answers 404.
	req = httptest.NewRequest(http.MethodPatch, "/api/tasks/nope", strings.NewReader(`{"done": true}`))
	req.SetPathValue("id", "nope")
	w = httptest.NewRecorder()

	m.HandleUpdateTask(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("HandleUpdateTask() status = %v, want %v", w.Code, http.StatusNotFound)
	}
}

func TestHandleIcon(t *testing.T) {
	m := newTestMain(t, newMockStore(), mockBot{}, true)

	req := httptest.NewRequest(http.MethodGet, "/icons/home", nil)
	req.SetPathValue("name", "home")
	w := httptest.NewRecorder()

	m.HandleIcon(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("HandleIcon() status = %v, want %v", w.Code, http.StatusOK)
	}
	if got := w.Header().Get("Content-Type"); got != "image/svg+xml" {
		t.Errorf("Content-Type = %q, want image/svg+xml", got)
	}
	if w.Body.String() != "<svg/>" {
		t.Errorf("body = %q, want <svg/>", w.Body.String())
	}
}

func TestHandleChatHistory(t *testing.T) {
	store := newMockStore()
	store.chats["s1"] = []models.ChatMessage{
		{ID: "1", Role: models.RoleUser, Content: "hi there"},
		{ID: "2", Role: models.RoleBot, Content: "**hello**"},
	}
	m := newTestMain(t, store, mockBot{}, true)

	req := httptest.NewRequest(http.MethodGet, "/chat/s1/history", nil)
	req.SetPathValue("sessionID", "s1")
	w := httptest.NewRecorder()

	m.HandleChatHistory(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("HandleChatHistory() status = %v, want %v", w.Code, http.StatusOK)
	}
	body := w.Body.String()
	if !strings.Contains(body, "hi there") {
		t.Error("history missing user message")
	}
	// Bot markdown is rendered to HTML.
	if !strings.Contains(body, "<strong>hello</strong>") {
		t.Errorf("history did not render bot markdown, body = %q", body)
	}
}
