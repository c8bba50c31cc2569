package brand

import (
	"reflect"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		title string
		want  string
	}{
		{"Nike: Just Do It - Super Bowl LX", "Nike"},
		{"Coca-Cola - Share a Coke", "Coca-Cola"},
		{"Wegovy", "Wegovy"},
		{"Doritos Super Bowl 2026: Crash the Game", "Doritos"},
		{"Budweiser - Clydesdales: The Return", "Budweiser - Clydesdales"},
		{"Super Bowl LX teaser", Unknown},
		{"  ", Unknown},
		{" : subtitle", Unknown},
		{"Pepsi-Cola Refresh", "Pepsi-Cola Refresh"},
	}
	for _, tt := range tests {
		if got := Extract(tt.title); got != tt.want {
			t.Errorf("Extract(%q) = %q, want %q", tt.title, got, tt.want)
		}
	}
}

func TestIsKnown(t *testing.T) {
	if IsKnown(Unknown) || IsKnown(" ") {
		t.Error("placeholder brands should not be known")
	}
	if !IsKnown("Nike") {
		t.Error("Nike should be known")
	}
}

func TestDefaultRules_Infer(t *testing.T) {
	tests := []struct {
		title    string
		selector string
		want     []string
	}{
		{"Nike: Dream - Super Bowl LX", "", []string{"2026 Super Bowl LX"}},
		{"Nike SuperBowl ad", "2026-super-bowl-commercials", []string{"2026 Super Bowl LX"}},
		{"Nike Super Bowl ad", "cannes-lions", nil},
		{"Nike 2026 spot", "2026-super-bowl", nil},
	}
	for _, tt := range tests {
		got := DefaultRules.Infer(tt.title, tt.selector)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Infer(%q, %q) = %v, want %v", tt.title, tt.selector, got, tt.want)
		}
	}
}

func TestNewRule(t *testing.T) {
	r, err := NewRule("Cannes Lions", `cannes`, "")
	if err != nil {
		t.Fatalf("NewRule() error = %v", err)
	}
	rules := Rules{r, r}
	if got := rules.Infer("CANNES winner", ""); !reflect.DeepEqual(got, []string{"Cannes Lions"}) {
		t.Errorf("Infer() = %v", got)
	}

	bad := []struct{ label, title, marker string }{
		{"", "x", ""},
		{"L", "", ""},
		{"L", "(", ""},
		{"L", "x", "["},
	}
	for _, b := range bad {
		if _, err := NewRule(b.label, b.title, b.marker); err == nil {
			t.Errorf("NewRule(%q, %q, %q) should fail", b.label, b.title, b.marker)
		}
	}
}
