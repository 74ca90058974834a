//go:build !no_automation

package automation

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	lua "github.com/yuin/gopher-lua"
)

func TestCheckCollectsEventsAndCommands(t *testing.T) {
	code := `
node.on("motion", function(ev)
  node.send("ADLADON")
end)
node.on("level_changed", {percentage = 0}, function(ev)
  if ev.data.percentage == 0 then
    node.after(5, function() node.set_level(40) end)
  end
end)
local function dim()
  node.set_level(150)
end
node.on("*", function(ev) node.log(ev.type) end)
`
	a, err := Check(code)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"*", "level_changed", "motion"}; !reflect.DeepEqual(a.Events, want) {
		t.Errorf("events = %v, want %v", a.Events, want)
	}
	if want := []string{"ADLADON", "ADSPL40", "ADSPL99"}; !reflect.DeepEqual(a.Commands, want) {
		t.Errorf("commands = %v, want %v", a.Commands, want)
	}
	if len(a.Issues) != 1 || a.Issues[0].Line != 11 || !strings.Contains(a.Issues[0].Message, "clamped") {
		t.Errorf("issues = %+v", a.Issues)
	}
}

func TestCheckIssues(t *testing.T) {
	tests := []struct {
		name string
		code string
		want string
	}{
		{"unknown event", `node.on("device_joined", function() end)`, "never emits"},
		{"unknown function", `node.toggle()`, "node.toggle is not a node function"},
		{"unknown command", `node.send("ADXXXXX")`, "unknown command"},
		{"bad body", `node.send("ADSPL")`, "ADSPL"},
		{"nested", `for i = 1, 3 do local t = {f = function() node.blink() end} end`, "node.blink"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := Check(tt.code)
			if err != nil {
				t.Fatal(err)
			}
			if len(a.Issues) != 1 || !strings.Contains(a.Issues[0].Message, tt.want) {
				t.Errorf("issues = %+v, want one containing %q", a.Issues, tt.want)
			}
		})
	}
}

func TestCheckDynamicArgumentsIgnored(t *testing.T) {
	a, err := Check(`local t = "motion"; node.on(t, function() end); node.send(body)`)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Events) != 0 || len(a.Commands) != 0 || len(a.Issues) != 0 {
		t.Errorf("analysis = %+v", a)
	}
}

func TestCheckSyntaxError(t *testing.T) {
	_, err := Check(`node.on("motion", function(`)
	if !errors.Is(err, ErrSyntax) {
		t.Errorf("err = %v, want ErrSyntax", err)
	}
}

func TestNodeModuleMatchesCheckedSurface(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	e := &Engine{ctrl: newFakeController(), logger: testLogger()}
	vm := &scriptVM{logf: func(string) {}}
	registerNodeModule(L, vm, e)

	mod, ok := L.GetGlobal("node").(*lua.LTable)
	if !ok {
		t.Fatal("node module not registered")
	}
	got := make(map[string]bool)
	mod.ForEach(func(k, _ lua.LValue) { got[k.String()] = true })
	if !reflect.DeepEqual(got, nodeFunctions) {
		t.Errorf("module functions = %v, want %v", got, nodeFunctions)
	}
}
