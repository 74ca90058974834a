package web

import (
	"encoding/json"
	"net/http"
	"reflect"
	"testing"

	"lightnode/internal/automation"
	"lightnode/internal/node"
)

func setupAutomationServer(t *testing.T) (*Server, *automation.Engine) {
	t.Helper()
	mgr, err := automation.NewManager(t.TempDir(), testLogger())
	if err != nil {
		t.Fatal(err)
	}
	ctrl := &stubController{events: node.NewEventBus(testLogger())}
	engine := automation.NewEngine(ctrl, mgr, testLogger())
	t.Cleanup(engine.Stop)
	srv := NewServer(ctrl, testLogger(), WithAutomation(engine, mgr))
	t.Cleanup(srv.Stop)
	return srv, engine
}

func TestAutomationViewShowsSubscriptions(t *testing.T) {
	srv, _ := setupAutomationServer(t)

	body := `{"name":"Hall motion","enabled":true,"lua_code":"node.on(\"motion\", function(ev) node.send(\"ADLADON\") end)"}`
	w := doRequest(srv, "POST", "/api/automations", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d (%s)", w.Code, w.Body.String())
	}
	var v automationView
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	if v.Script == nil || v.ID != "hall_motion" {
		t.Fatalf("view = %+v", v)
	}
	if !v.Running {
		t.Error("enabled script should be running")
	}
	if !reflect.DeepEqual(v.Events, []string{"motion"}) {
		t.Errorf("events = %v", v.Events)
	}
	if !reflect.DeepEqual(v.Commands, []string{"ADLADON"}) {
		t.Errorf("commands = %v", v.Commands)
	}

	w = doRequest(srv, "GET", "/api/automations/hall_motion", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	v = automationView{}
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(v.Events, []string{"motion"}) || v.LuaCode == "" {
		t.Errorf("view = %+v", v)
	}
}

func TestAutomationRejectsSyntaxError(t *testing.T) {
	srv, _ := setupAutomationServer(t)

	w := doRequest(srv, "POST", "/api/automations", `{"name":"Broken","lua_code":"node.on(\"motion\", function("}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("create status = %d, want 400", w.Code)
	}

	w = doRequest(srv, "POST", "/api/automations", `{"name":"Ok","lua_code":"node.log(\"x\")"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	w = doRequest(srv, "PUT", "/api/automations/ok", `{"lua_code":"end end"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("update status = %d, want 400", w.Code)
	}
	if w := doRequest(srv, "PUT", "/api/automations/missing", `{"lua_code":""}`); w.Code != http.StatusNotFound {
		t.Errorf("update missing status = %d, want 404", w.Code)
	}
}

func TestAutomationCheck(t *testing.T) {
	srv, _ := setupAutomationServer(t)

	w := doRequest(srv, "POST", "/api/automations/_check",
		`{"lua_code":"node.on(\"device_joined\", function() end)\nnode.toggle()\nnode.set_level(30)"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("check status = %d (%s)", w.Code, w.Body.String())
	}
	var a automation.Analysis
	if err := json.Unmarshal(w.Body.Bytes(), &a); err != nil {
		t.Fatal(err)
	}
	if len(a.Issues) != 2 {
		t.Errorf("issues = %+v, want 2", a.Issues)
	}
	if !reflect.DeepEqual(a.Commands, []string{"ADSPL30"}) {
		t.Errorf("commands = %v", a.Commands)
	}

	if w := doRequest(srv, "POST", "/api/automations/_check", `{"lua_code":"if"}`); w.Code != http.StatusBadRequest {
		t.Errorf("syntax error status = %d, want 400", w.Code)
	}
}

func TestAutomationEventSubscribers(t *testing.T) {
	srv, _ := setupAutomationServer(t)

	create := func(body string) {
		t.Helper()
		if w := doRequest(srv, "POST", "/api/automations", body); w.Code != http.StatusCreated {
			t.Fatalf("create status = %d (%s)", w.Code, w.Body.String())
		}
	}
	create(`{"name":"a","enabled":true,"lua_code":"node.on(\"motion\", function() end)"}`)
	create(`{"name":"b","enabled":true,"lua_code":"node.on(\"*\", function() end)"}`)
	create(`{"name":"c","enabled":false,"lua_code":"node.on(\"motion\", function() end)"}`)

	w := doRequest(srv, "GET", "/api/automations/_events", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var subs []eventSubscribers
	if err := json.Unmarshal(w.Body.Bytes(), &subs); err != nil {
		t.Fatal(err)
	}
	if len(subs) != len(node.EventTypes()) {
		t.Fatalf("types = %d, want %d", len(subs), len(node.EventTypes()))
	}
	byType := make(map[string][]string)
	for _, s := range subs {
		byType[s.Type] = s.Scripts
	}
	if !reflect.DeepEqual(byType[node.EventMotion], []string{"a", "b"}) {
		t.Errorf("motion = %v, want [a b]", byType[node.EventMotion])
	}
	if !reflect.DeepEqual(byType[node.EventLevel], []string{"b"}) {
		t.Errorf("level_changed = %v, want [b]", byType[node.EventLevel])
	}
}

func TestAutomationsUnavailable(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := doRequest(srv, "GET", "/api/automations", "")
	if w.Code != http.StatusOK || w.Body.String() != "[]\n" {
		t.Errorf("list = %d %q", w.Code, w.Body.String())
	}
	if w := doRequest(srv, "GET", "/api/automations/x", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("get status = %d, want 503", w.Code)
	}
	if w := doRequest(srv, "POST", "/api/automations/x/run", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("run status = %d, want 503", w.Code)
	}
}
