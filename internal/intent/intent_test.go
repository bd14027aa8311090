package intent

import "testing"

func TestKindJSONRoundTrip(t *testing.T) {
	for _, k := range []Kind{None, SuggestHelp, Remind, Info} {
		data, err := k.MarshalJSON()
		if err != nil {
			t.Fatalf("MarshalJSON(%v): %v", k, err)
		}
		var got Kind
		if err := got.UnmarshalJSON(data); err != nil {
			t.Fatalf("UnmarshalJSON(%s): %v", data, err)
		}
		if got != k {
			t.Errorf("round trip %v -> %s -> %v", k, data, got)
		}
	}
}

func TestUnmarshalJSONUnknownFallsBackToNone(t *testing.T) {
	var k Kind
	if err := k.UnmarshalJSON([]byte(`"bogus"`)); err != nil {
		t.Fatalf("UnmarshalJSON: %v", err)
	}
	if k != None {
		t.Errorf("k = %v, want None", k)
	}
}

func TestKindFromStringLocksOutReservedKinds(t *testing.T) {
	cases := map[string]Kind{
		"suggest_help": SuggestHelp,
		"none":         None,
		"remind":       None,
		"info":         None,
		"garbage":      None,
	}
	for s, want := range cases {
		if got := KindFromString(s); got != want {
			t.Errorf("KindFromString(%q) = %v, want %v", s, got, want)
		}
	}
}

func TestStrippedClearsReasoning(t *testing.T) {
	in := Intent{Kind: SuggestHelp, Reasoning: "internal chain of thought"}
	out := in.Stripped()
	if out.Reasoning != "" {
		t.Errorf("Stripped().Reasoning = %q, want empty", out.Reasoning)
	}
	if in.Reasoning == "" {
		t.Errorf("Stripped should not mutate the receiver")
	}
}
