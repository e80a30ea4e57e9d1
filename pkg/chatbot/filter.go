package chatbot

import (
	"errors"
	"log/slog"
)

// ErrNoMatchingVariants is returned when the frontend's edit hint cannot be
// aligned with the stored conversation at all.
var ErrNoMatchingVariants = errors.New("no matching variants found")

// FilterVariants aligns the frontend's variant hint with the stored
// conversation and returns the prefix the frontend wants to continue from.
// This is what makes editing and branching past conversations work: the
// frontend sends the variant names it kept, and the backend replays exactly
// that much history.
//
// Matching is attempted with escalating leniency: exact from the start, then
// ignoring Prompt and ServerHint (the frontend may drop them), then also
// ignoring the error and end variants, and finally the same three strategies
// from an arbitrary starting offset.
func FilterVariants(frontendHint string, stored Conversation) (Conversation, error) {
	wanted := ParseVariantList(frontendHint)

	// The stored conversation may contain the prompt; the frontend never
	// sees it, so it cannot be part of the hint.
	var storage Conversation
	for _, f := range stored {
		if f.Variant != VariantPrompt {
			storage = append(storage, f)
		}
	}

	ignoreHints := []string{VariantPrompt, VariantServerHint}
	ignoreAll := []string{
		VariantPrompt, VariantServerHint,
		VariantServerError, VariantOpenAIError, VariantCodeError, VariantStreamEnd,
	}

	attempts := []struct {
		fromStart bool
		ignore    []string
	}{
		{true, nil},
		{true, ignoreHints},
		{true, ignoreAll},
		{false, nil},
		{false, ignoreHints},
		{false, ignoreAll},
	}

	for _, attempt := range attempts {
		if matched, ok := matchVariants(wanted, storage, attempt.fromStart, attempt.ignore); ok {
			return matched, nil
		}
	}

	slog.Warn("No matching variants found after all iterations; the frontend sent an edit-input that doesn't match the current conversation")
	return nil, ErrNoMatchingVariants
}

// matchVariants tries to align the wanted variant names with the storage
// frames, optionally skipping ignorable variants on both sides and
// optionally trying every starting offset.
func matchVariants(wanted []string, storage Conversation, fromStart bool, ignore []string) (Conversation, bool) {
	ignored := make(map[string]bool, len(ignore))
	for _, v := range ignore {
		ignored[v] = true
	}

	starts := []int{0}
	if !fromStart {
		starts = make([]int, len(storage))
		for i := range storage {
			starts[i] = i
		}
	}

	var filteredWanted []string
	for _, w := range wanted {
		if !ignored[w] {
			filteredWanted = append(filteredWanted, w)
		}
	}

	for _, start := range starts {
		var candidates Conversation
		for _, f := range storage[start:] {
			if !ignored[f.Variant] {
				candidates = append(candidates, f)
			}
		}

		if len(candidates) < len(filteredWanted) {
			slog.Info("Ran out of storage variants while matching; the frontend likely sent an edit before streaming was done")
			continue
		}

		matched := true
		for i, w := range filteredWanted {
			if candidates[i].Variant != w {
				slog.Debug("Variant mismatch", "expected", w, "got", candidates[i].Variant)
				matched = false
				break
			}
		}
		if matched {
			return candidates[:len(filteredWanted)], true
		}
	}

	return nil, false
}
