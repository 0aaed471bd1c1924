package tools

import (
	"context"
	"strings"
	"testing"
)

func TestPersonaTool_KeepsUnderscoreFields(t *testing.T) {
	ctx := context.Background()
	tc := testContext(t)
	tc.Persona = &PersonaSnapshot{Name: "Ann", Role: "helper", Tone: "polite"}
	snap := tc.Persona

	res := NewPersonaTool(nil).TryExecute(ctx, "[PERSONA:Jay,_,casual]", tc)
	if res == nil || res.Stop {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Text, "- Name: Jay") || strings.Contains(res.Text, "Role") {
		t.Errorf("text = %q", res.Text)
	}

	want := PersonaSnapshot{Name: "Jay", Role: "helper", Tone: "casual"}
	if *snap != want {
		t.Errorf("snapshot = %+v, want %+v (mutated in place)", *snap, want)
	}

	stored, err := tc.Store.Personas.Get(ctx, "u1")
	if err != nil || stored == nil {
		t.Fatalf("Get: %v %v", stored, err)
	}
	if stored.Name != "Jay" || stored.Role != "helper" || stored.Tone != "casual" {
		t.Errorf("stored = %+v", stored)
	}
}

func TestPersonaTool_DefaultsWithoutSnapshot(t *testing.T) {
	tc := testContext(t)
	res := NewPersonaTool(nil).TryExecute(context.Background(), "[PERSONA:_,_,formal]", tc)
	if res == nil {
		t.Fatal("no result")
	}
	if tc.Persona == nil || tc.Persona.Name != DefaultPersona.Name || tc.Persona.Tone != "formal" {
		t.Errorf("persona = %+v", tc.Persona)
	}
}

func TestPersonaTool_NoTag(t *testing.T) {
	if res := NewPersonaTool(nil).TryExecute(context.Background(), "hello", testContext(t)); res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
}
