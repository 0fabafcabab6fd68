package validate

import (
	"strings"
	"testing"
)

const validSession = "6ba7b810-9dad-11d1-80b4-00c04fd430c8"

func TestTransformAcceptsDataURLAndPrompt(t *testing.T) {
	in := TransformInput{
		ImageURL: "data:image/jpeg;base64,/9j/4AAQSkZJRg==",
		Prompt:   "Give me a wizard hat 🎨",
	}
	if errs := Transform(in); len(errs) != 0 {
		t.Fatalf("Transform() errors = %v, want none", errs)
	}
}

func TestTransformRejectsBadPrompts(t *testing.T) {
	cases := []struct {
		name   string
		prompt string
	}{
		{"empty", ""},
		{"control characters", "hat\x00here"},
		{"script injection", "<script>alert(1)</script>"},
		{"too long", strings.Repeat("a", 501)},
		{"disallowed emoji", "make me a 🦄"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := TransformInput{
				ImageURL: "https://example.com/photo.jpg",
				Prompt:   tc.prompt,
			}
			errs := Transform(in)
			if len(errs) == 0 {
				t.Fatalf("Transform() accepted prompt %q", tc.prompt)
			}
			for _, e := range errs {
				if e.Field != "prompt" {
					t.Fatalf("unexpected field error %v", e)
				}
			}
		})
	}
}

func TestTransformRejectsBadImageURL(t *testing.T) {
	cases := []struct {
		name string
		url  string
	}{
		{"missing", ""},
		{"not a url", "just words"},
		{"too long", "https://example.com/" + strings.Repeat("x", 2048)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := TransformInput{ImageURL: tc.url, Prompt: "wizard hat"}
			if errs := Transform(in); len(errs) == 0 {
				t.Fatalf("Transform() accepted imageUrl %q", tc.url)
			}
		})
	}
}

func TestTransformCollectsAllViolations(t *testing.T) {
	in := TransformInput{
		ImageURL:  "nope",
		Prompt:    strings.Repeat("<", 600),
		SessionID: "not-a-uuid",
	}
	errs := Transform(in)
	fields := map[string]int{}
	for _, e := range errs {
		fields[e.Field]++
	}
	if fields["imageUrl"] == 0 || fields["prompt"] < 2 || fields["sessionId"] == 0 {
		t.Fatalf("expected complete violation list, got %v", errs)
	}
}

func TestDeliverHappyPath(t *testing.T) {
	in := DeliverInput{
		SessionID:    validSession,
		Email:        "a@b.com",
		Name:         "Alex",
		Message:      "check this out",
		Prompt:       "wizard hat",
		ImageURL:     "data:image/png;base64,iVBORw0KGgo=",
		ConsentGiven: true,
	}
	if errs := Deliver(in); len(errs) != 0 {
		t.Fatalf("Deliver() errors = %v, want none", errs)
	}
}

func TestDeliverRejectsUnrecognizedImagePrefix(t *testing.T) {
	in := DeliverInput{
		SessionID: validSession,
		Email:     "a@b.com",
		ImageURL:  "ftp://example.com/photo.jpg",
	}
	errs := Deliver(in)
	found := false
	for _, e := range errs {
		if e.Field == "imageUrl" {
			found = true
		}
	}
	if !found {
		t.Fatalf("Deliver() should reject imageUrl without data:image/ or http prefix, got %v", errs)
	}
}

func TestDeliverRejectsBadEmailAndSession(t *testing.T) {
	in := DeliverInput{
		SessionID: "nope",
		Email:     "not-an-email",
		ImageURL:  "https://example.com/photo.jpg",
	}
	errs := Deliver(in)
	fields := map[string]bool{}
	for _, e := range errs {
		fields[e.Field] = true
	}
	if !fields["sessionId"] || !fields["email"] {
		t.Fatalf("expected sessionId and email violations together, got %v", errs)
	}
}

func TestDeliverRequiresEmail(t *testing.T) {
	in := DeliverInput{
		SessionID: validSession,
		ImageURL:  "https://example.com/photo.jpg",
	}
	errs := Deliver(in)
	found := false
	for _, e := range errs {
		if e.Field == "email" && e.Reason == "is required" {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing required-email violation, got %v", errs)
	}
}

func TestDeliverOptionalOriginalImageURL(t *testing.T) {
	in := DeliverInput{
		SessionID:        validSession,
		Email:            "a@b.com",
		ImageURL:         "https://example.com/edited.jpg",
		OriginalImageURL: "gopher://bad",
	}
	errs := Deliver(in)
	found := false
	for _, e := range errs {
		if e.Field == "originalImageUrl" {
			found = true
		}
	}
	if !found {
		t.Fatalf("bad originalImageUrl should be rejected, got %v", errs)
	}
}
