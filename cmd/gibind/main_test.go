package main

import (
	"bytes"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wippyai/gibind/gir"
	"github.com/wippyai/gibind/plan"
)

func testUnits() []*plan.Unit {
	return []*plan.Unit{
		{
			Namespace: "Demo",
			Name:      "Widget",
			Kind:      "class",
			Platforms: gir.PlatformAll,
			Plans: []*plan.Plan{
				{Name: "show", Owner: "Widget", Symbol: "demo_widget_show", Return: plan.ReturnPlan{Void: true}},
				{Name: "hide", Owner: "Widget", Symbol: "demo_widget_hide", Return: plan.ReturnPlan{Void: true}},
			},
		},
		{
			Namespace: "Demo",
			Name:      plan.FunctionsUnit,
			Kind:      plan.FunctionsUnit,
			Platforms: gir.PlatformLinux,
			Plans: []*plan.Plan{
				{Name: "init", Symbol: "demo_init", Return: plan.ReturnPlan{Void: true}},
			},
		},
	}
}

func TestPrintPlans(t *testing.T) {
	var buf bytes.Buffer
	printPlans(&buf, testUnits(), "", false)
	out := buf.String()
	for _, want := range []string{"Demo.Widget (class, all)", "Widget.show()", "demo_init () -> void"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	buf.Reset()
	printPlans(&buf, testUnits(), "hide", false)
	out = buf.String()
	if strings.Contains(out, "show") || strings.Contains(out, "functions") {
		t.Errorf("filter should drop unmatched plans and units:\n%s", out)
	}
	if !strings.Contains(out, "demo_widget_hide") {
		t.Errorf("filter dropped the matching plan:\n%s", out)
	}
}

func TestInteractiveModel(t *testing.T) {
	m := newInteractiveModel("plans.cbor", testUnits(), "")
	if len(m.visible) != 3 {
		t.Fatalf("visible = %d, want 3", len(m.visible))
	}

	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	if m.selected != 1 {
		t.Errorf("selected = %d after down", m.selected)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.state != stateDetail {
		t.Fatalf("enter should open details, state %d", m.state)
	}
	if !strings.Contains(m.View(), "demo_widget_hide") {
		t.Error("detail view should show the selected symbol")
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.state != stateList {
		t.Errorf("esc should return to the list, state %d", m.state)
	}

	m = newInteractiveModel("plans.cbor", testUnits(), "init")
	if len(m.visible) != 1 || m.visible[0].plan.Symbol != "demo_init" {
		t.Errorf("initial filter not applied: %d visible", len(m.visible))
	}
}

func TestSelectNamespace(t *testing.T) {
	glib := gir.New(gir.KindNamespace, map[string]string{"name": "GLib"})
	gio := gir.New(gir.KindNamespace, map[string]string{"name": "Gio"})
	repo := gir.New(gir.KindRepository, nil, glib, gio)

	got, err := selectNamespace(repo, "Gio")
	if err != nil || got.Name() != "Gio" {
		t.Fatalf("selectNamespace(Gio) = %v, %v", got, err)
	}
	if _, err := selectNamespace(repo, ""); err == nil {
		t.Error("expected error for an ambiguous repository")
	}
	if _, err := selectNamespace(repo, "Gtk"); err == nil {
		t.Error("expected error for an absent namespace")
	}
	if got, err := selectNamespace(glib, ""); err != nil || got != glib {
		t.Errorf("namespace root should be returned as is: %v", err)
	}
	if _, err := selectNamespace(glib, "Gio"); err == nil {
		t.Error("expected error for a mismatched namespace root")
	}
}
