package extract

import "testing"

func TestTestimonialHints(t *testing.T) {
	text := `Coffee consumption rose by ten percent in 2023 across Europe. I switched to decaf last year and my sleep improved a lot. ` +
		`The survey covered 5,000 adults in twelve countries. We noticed our energy levels dropped in the afternoons.`

	hints := TestimonialHints(text)
	if len(hints) != 2 {
		t.Fatalf("Expected 2 first-person sentences, got %d: %v", len(hints), hints)
	}
	if hints[0] != "I switched to decaf last year and my sleep improved a lot." {
		t.Errorf("Unexpected first hint %q", hints[0])
	}
}

func TestSplitSentences_LengthBounds(t *testing.T) {
	sentences := splitSentences("Too short. This sentence is long enough to be kept by the splitter. Ok.")
	if len(sentences) != 1 {
		t.Errorf("Expected 1 sentence, got %d: %v", len(sentences), sentences)
	}
}
