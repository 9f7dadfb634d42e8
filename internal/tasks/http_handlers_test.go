package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testAPI struct {
	store  *SQLStore
	router *mux.Router
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store := newTestStore(t)
	return &testAPI{store: store, router: NewRouter(store, discardLogger())}
}

func (a *testAPI) do(t *testing.T, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	request := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		request.Header.Set(k, v)
	}

	recorder := httptest.NewRecorder()
	a.router.ServeHTTP(recorder, request)
	return recorder
}

var jsonBody = map[string]string{"Content-Type": "application/json"}

func decodeObject(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var obj map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &obj); err != nil {
		t.Fatalf("response is not a JSON object: %v (%q)", err, recorder.Body.String())
	}
	return obj
}

func assertStatus(t *testing.T, recorder *httptest.ResponseRecorder, want int) {
	t.Helper()
	if recorder.Code != want {
		t.Fatalf("status = %d, want %d (body %q)", recorder.Code, want, recorder.Body.String())
	}
}

func assertBody(t *testing.T, recorder *httptest.ResponseRecorder, want string) {
	t.Helper()
	if got := strings.TrimSpace(recorder.Body.String()); got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
}

// --- get ---

func TestGetMissingTask(t *testing.T) {
	api := newTestAPI(t)

	recorder := api.do(t, http.MethodGet, "/tasks/999", "", nil)
	assertStatus(t, recorder, http.StatusNotFound)
	assertBody(t, recorder, `{"error":"Tarea no encontrada."}`)
	if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestGetTask(t *testing.T) {
	api := newTestAPI(t)
	seedTasks(t, api.store, Task{Title: "a", Description: "b", Completed: true})

	recorder := api.do(t, http.MethodGet, "/tasks/1", "", nil)
	assertStatus(t, recorder, http.StatusOK)
	assertBody(t, recorder, `{"id":1,"title":"a","description":"b","completed":true}`)

	recorder = api.do(t, http.MethodGet, "/tasks/1", "", map[string]string{"Accept": "application/xml"})
	assertStatus(t, recorder, http.StatusOK)
	assertBody(t, recorder, "<task><id>1</id><title>a</title><description>b</description><completed>true</completed></task>")
	if ct := recorder.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestGetNotFoundNegotiatesFormat(t *testing.T) {
	api := newTestAPI(t)

	recorder := api.do(t, http.MethodGet, "/tasks/5", "", map[string]string{"Accept": "application/xml"})
	assertStatus(t, recorder, http.StatusNotFound)
	assertBody(t, recorder, "<task><error>Tarea no encontrada.</error></task>")
}

// --- create ---

func TestCreateTaskJSON(t *testing.T) {
	api := newTestAPI(t)

	recorder := api.do(t, http.MethodPost, "/tasks", `{"title":"a","description":"b","completed":true}`, jsonBody)
	assertStatus(t, recorder, http.StatusCreated)

	obj := decodeObject(t, recorder)
	if id, ok := obj["id"].(float64); !ok || id < 1 {
		t.Errorf("id = %#v, want a store-assigned id", obj["id"])
	}
	if obj["title"] != "a" || obj["description"] != "b" || obj["completed"] != true {
		t.Errorf("created = %v", obj)
	}
}

func TestCreateTaskXMLMatchesJSON(t *testing.T) {
	api := newTestAPI(t)

	fromJSON := api.do(t, http.MethodPost, "/tasks", `{"title":"a","description":"b","completed":true}`, jsonBody)
	assertStatus(t, fromJSON, http.StatusCreated)

	fromXML := api.do(t, http.MethodPost, "/tasks",
		"<task><title>a</title><description>b</description><completed>true</completed></task>",
		map[string]string{"Content-Type": "application/xml"})
	assertStatus(t, fromXML, http.StatusCreated)

	jsonTask := decodeObject(t, fromJSON)
	xmlTask := decodeObject(t, fromXML)
	for _, field := range []string{"title", "description", "completed"} {
		if jsonTask[field] != xmlTask[field] {
			t.Errorf("%s: JSON create gave %#v, XML create gave %#v", field, jsonTask[field], xmlTask[field])
		}
	}
	if jsonTask["id"] == xmlTask["id"] {
		t.Errorf("both creates got id %v", jsonTask["id"])
	}
}

func TestCreateTaskXMLInXMLOut(t *testing.T) {
	api := newTestAPI(t)

	recorder := api.do(t, http.MethodPost, "/tasks",
		"<task><title>a</title><description>b</description><completed>no</completed></task>",
		map[string]string{"Content-Type": "application/xml", "Accept": "application/xml"})
	assertStatus(t, recorder, http.StatusCreated)
	assertBody(t, recorder, "<task><id>1</id><title>a</title><description>b</description><completed>false</completed></task>")
}

func TestCreateTaskCBOR(t *testing.T) {
	api := newTestAPI(t)
	c := mustCodec(t, FormatCBOR)

	payload, err := c.Encode(Record{"title": "a", "description": "b", "completed": true})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	recorder := api.do(t, http.MethodPost, "/tasks", string(payload),
		map[string]string{"Content-Type": "application/cbor", "Accept": "application/cbor"})
	assertStatus(t, recorder, http.StatusCreated)

	rec, ok := c.Decode(recorder.Body.Bytes())
	if !ok {
		t.Fatalf("response is not CBOR: % x", recorder.Body.Bytes())
	}
	if got := rec.Task(); got != (Task{Title: "a", Description: "b", Completed: true}) {
		t.Errorf("created = %+v", got)
	}
}

func TestCreateTaskRejected(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantError   string
	}{
		{"malformed json", "application/json", `{"title":`, msgBadPayload},
		{"empty object", "application/json", `{}`, msgBadPayload},
		{"json array", "application/json", `[]`, msgBadPayload},
		{"unsupported type", "text/plain", `{"title":"a","description":"b","completed":true}`, msgBadPayload},
		{"no content type", "", `{"title":"a","description":"b","completed":true}`, msgBadPayload},
		{"malformed xml", "application/xml", `<task><title>a</task>`, msgBadPayload},
		{"empty xml", "application/xml", `<task/>`, msgBadPayload},
		{"missing title", "application/json", `{"description":"b","completed":true}`, msgTitleRequired},
		{"missing description", "application/json", `{"title":"a","completed":true}`, msgDescriptionMissing},
		{"missing completed", "application/json", `{"title":"a","description":"b"}`, msgCompletedRequired},
		{"completed as text", "application/json", `{"title":"a","description":"b","completed":"true"}`, msgCompletedNotBool},
		{"completed as number", "application/json", `{"title":"a","description":"b","completed":1}`, msgCompletedNotBool},
		{"xml missing completed", "application/xml", `<task><title>a</title><description>b</description></task>`, msgCompletedRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)

			headers := map[string]string{}
			if tt.contentType != "" {
				headers["Content-Type"] = tt.contentType
			}
			recorder := api.do(t, http.MethodPost, "/tasks", tt.body, headers)
			assertStatus(t, recorder, http.StatusBadRequest)

			if got := decodeObject(t, recorder)["error"]; got != tt.wantError {
				t.Errorf("error = %#v, want %q", got, tt.wantError)
			}

			list, err := api.store.List(context.Background(), ListFilter{})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != 0 {
				t.Errorf("rejected create stored %d tasks", len(list))
			}
		})
	}
}

// --- list ---

func TestListTasksEmpty(t *testing.T) {
	api := newTestAPI(t)

	recorder := api.do(t, http.MethodGet, "/tasks", "", nil)
	assertStatus(t, recorder, http.StatusOK)
	assertBody(t, recorder, `[]`)

	recorder = api.do(t, http.MethodGet, "/tasks", "", map[string]string{"Accept": "application/xml"})
	assertStatus(t, recorder, http.StatusOK)
	assertBody(t, recorder, `<tasks></tasks>`)
}

func TestListTasksFilters(t *testing.T) {
	api := newTestAPI(t)
	seedTasks(t, api.store,
		Task{Title: "Buy milk", Description: "2 liters", Completed: false},
		Task{Title: "Walk dog", Description: "past the mill", Completed: true},
		Task{Title: "Read", Description: "a book", Completed: true},
	)

	tests := []struct {
		target string
		want   []string
	}{
		{"/tasks", []string{"Buy milk", "Walk dog", "Read"}},
		{"/tasks?completed=true", []string{"Walk dog", "Read"}},
		{"/tasks?completed=TRUE", []string{"Walk dog", "Read"}},
		{"/tasks?completed=false", []string{"Buy milk"}},
		{"/tasks?completed=", []string{"Buy milk"}},
		{"/tasks?search=MIL", []string{"Buy milk", "Walk dog"}},
		{"/tasks?search=", []string{"Buy milk", "Walk dog", "Read"}},
		{"/tasks?completed=true&search=mil", []string{"Walk dog"}},
		{"/tasks?search=%27%20OR%201%3D1%20--", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			recorder := api.do(t, http.MethodGet, tt.target, "", nil)
			assertStatus(t, recorder, http.StatusOK)

			var list []map[string]any
			if err := json.Unmarshal(recorder.Body.Bytes(), &list); err != nil {
				t.Fatalf("response is not a JSON array: %v", err)
			}
			if len(list) != len(tt.want) {
				t.Fatalf("got %d tasks, want %d (%s)", len(list), len(tt.want), recorder.Body.String())
			}
			for i, title := range tt.want {
				if list[i]["title"] != title {
					t.Errorf("task %d title = %v, want %q", i, list[i]["title"], title)
				}
			}
		})
	}
}

func TestListTasksXML(t *testing.T) {
	api := newTestAPI(t)
	seedTasks(t, api.store, Task{Title: "Buy milk", Description: "2 liters"})

	recorder := api.do(t, http.MethodGet, "/tasks", "", map[string]string{"Accept": "text/html, application/xml;q=0.9"})
	assertStatus(t, recorder, http.StatusOK)
	assertBody(t, recorder, "<tasks><task><id>1</id><title>Buy milk</title><description>2 liters</description><completed>false</completed></task></tasks>")
}

// --- update ---

func TestUpdateTask(t *testing.T) {
	api := newTestAPI(t)
	seedTasks(t, api.store, Task{Title: "a", Description: "b"})

	recorder := api.do(t, http.MethodPut, "/tasks/1",
		"<task><title>c</title><description>d</description><completed>true</completed></task>",
		map[string]string{"Content-Type": "application/xml"})
	assertStatus(t, recorder, http.StatusOK)
	assertBody(t, recorder, `{"id":1,"title":"c","description":"d","completed":true}`)
}

func TestUpdateMissingTaskDoesNotMutate(t *testing.T) {
	api := newTestAPI(t)
	seedTasks(t, api.store, Task{Title: "a", Description: "b"})

	before := api.do(t, http.MethodGet, "/tasks", "", nil).Body.String()

	recorder := api.do(t, http.MethodPut, "/tasks/999", `{"title":"x","description":"y","completed":true}`, jsonBody)
	assertStatus(t, recorder, http.StatusNotFound)
	assertBody(t, recorder, `{"error":"Tarea no encontrada."}`)

	after := api.do(t, http.MethodGet, "/tasks", "", nil).Body.String()
	if before != after {
		t.Errorf("list changed:\nbefore %s\nafter  %s", before, after)
	}
}

func TestUpdateTaskRejected(t *testing.T) {
	api := newTestAPI(t)
	seedTasks(t, api.store, Task{Title: "a", Description: "b"})

	recorder := api.do(t, http.MethodPut, "/tasks/1", `{"title":"x"}`, jsonBody)
	assertStatus(t, recorder, http.StatusBadRequest)
	if got := decodeObject(t, recorder)["error"]; got != msgDescriptionMissing {
		t.Errorf("error = %#v", got)
	}

	// Validation runs before the existence check.
	recorder = api.do(t, http.MethodPut, "/tasks/999", `not json`, jsonBody)
	assertStatus(t, recorder, http.StatusBadRequest)

	got, err := api.store.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != "a" {
		t.Errorf("rejected update changed title to %q", got.Title)
	}
}

// --- delete ---

func TestDeleteTask(t *testing.T) {
	api := newTestAPI(t)
	seedTasks(t, api.store,
		Task{Title: "keep", Description: ""},
		Task{Title: "drop", Description: ""},
	)

	recorder := api.do(t, http.MethodDelete, "/tasks/2", "", nil)
	assertStatus(t, recorder, http.StatusOK)
	assertBody(t, recorder, `{"message":"Tarea eliminada correctamente."}`)

	recorder = api.do(t, http.MethodGet, "/tasks/2", "", nil)
	assertStatus(t, recorder, http.StatusNotFound)

	recorder = api.do(t, http.MethodGet, "/tasks/1", "", nil)
	assertStatus(t, recorder, http.StatusOK)

	recorder = api.do(t, http.MethodDelete, "/tasks/2", "", nil)
	assertStatus(t, recorder, http.StatusNotFound)
	assertBody(t, recorder, `{"error":"Tarea no encontrada."}`)
}

func TestDeleteTaskXML(t *testing.T) {
	api := newTestAPI(t)
	seedTasks(t, api.store, Task{Title: "a", Description: "b"})

	recorder := api.do(t, http.MethodDelete, "/tasks/1", "", map[string]string{"Accept": "application/xml"})
	assertStatus(t, recorder, http.StatusOK)
	assertBody(t, recorder, "<task><message>Tarea eliminada correctamente.</message></task>")
}

// --- routing and generic failures ---

func TestUnknownRoutesAreJSON(t *testing.T) {
	api := newTestAPI(t)

	for _, target := range []string{"/nope", "/tasks/abc", "/tasks/1/extra", "/tasks/99999999999999999999"} {
		recorder := api.do(t, http.MethodGet, target, "", map[string]string{"Accept": "application/xml"})
		assertStatus(t, recorder, http.StatusNotFound)
		assertBody(t, recorder, `{"error":"Endpoint no encontrado."}`)
		if ct := recorder.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("%s: Content-Type = %q", target, ct)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	api := newTestAPI(t)

	recorder := api.do(t, http.MethodPatch, "/tasks/1", `{}`, jsonBody)
	assertStatus(t, recorder, http.StatusMethodNotAllowed)
	assertBody(t, recorder, `{"error":"Método no permitido."}`)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	recorder := api.do(t, http.MethodGet, "/health", "", nil)
	assertStatus(t, recorder, http.StatusOK)
	assertBody(t, recorder, "OK")
}

// failingStore fails every call, the way an unreachable database would.
type failingStore struct{}

var errStoreDown = errors.New("connection refused: secret-host:5432")

func (failingStore) List(context.Context, ListFilter) ([]Task, error)  { return nil, errStoreDown }
func (failingStore) Get(context.Context, int64) (Task, error)          { return Task{}, errStoreDown }
func (failingStore) Create(context.Context, Task) (Task, error)        { return Task{}, errStoreDown }
func (failingStore) Update(context.Context, int64, Task) (Task, error) { return Task{}, errStoreDown }
func (failingStore) Delete(context.Context, int64) (Task, error)       { return Task{}, errStoreDown }
func (failingStore) Ping(context.Context) error                        { return errStoreDown }

func TestStoreFailuresAreGeneric500(t *testing.T) {
	router := NewRouter(failingStore{}, discardLogger())
	valid := `{"title":"a","description":"b","completed":true}`

	tests := []struct {
		method, target, body string
	}{
		{http.MethodGet, "/tasks", ""},
		{http.MethodGet, "/tasks/1", ""},
		{http.MethodPost, "/tasks", valid},
		{http.MethodPut, "/tasks/1", valid},
		{http.MethodDelete, "/tasks/1", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			request := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			request.Header.Set("Content-Type", "application/json")
			request.Header.Set("Accept", "application/xml")
			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, request)

			assertStatus(t, recorder, http.StatusInternalServerError)
			assertBody(t, recorder, `{"error":"Error interno del servidor."}`)
			if strings.Contains(recorder.Body.String(), "secret-host") {
				t.Error("internal error detail leaked to the client")
			}
		})
	}

	request := httptest.NewRequest(http.MethodGet, "/health", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	assertStatus(t, recorder, http.StatusServiceUnavailable)
}

func TestInternalErrorHandler(t *testing.T) {
	recorder := httptest.NewRecorder()
	InternalErrorHandler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assertStatus(t, recorder, http.StatusInternalServerError)
	assertBody(t, recorder, `{"error":"Error interno del servidor."}`)
}
