package services

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	types "github.com/yungbote/casestudy-backend/internal/domain"
)

// resolveSpeakerMapping turns a label → reference mapping into label → participant. References may
// be a participant id, name or role code. Participants with an operator-assigned speaker label
// fill in labels the caller did not send. Unresolved labels are dropped.
func resolveSpeakerMapping(mapping map[string]string, participants []types.Participant) map[string]types.Participant {
	out := map[string]types.Participant{}
	for _, p := range participants {
		if l := strings.TrimSpace(p.SpeakerLabel); l != "" {
			out[l] = p
		}
	}
	for label, ref := range mapping {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		if p, ok := matchParticipant(ref, participants); ok {
			out[label] = p
		}
	}
	return out
}

func matchParticipant(ref string, participants []types.Participant) (types.Participant, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return types.Participant{}, false
	}
	if id, err := uuid.Parse(ref); err == nil {
		for _, p := range participants {
			if p.ID == id {
				return p, true
			}
		}
	}
	for _, p := range participants {
		if strings.EqualFold(strings.TrimSpace(p.Name), ref) {
			return p, true
		}
	}
	for _, p := range participants {
		if strings.EqualFold(p.RoleCode, ref) {
			return p, true
		}
	}
	return types.Participant{}, false
}

// consolidateTranscript replaces every whole-token occurrence of a label with the participant's
// display name in one left-to-right pass. Replaced text is never rescanned, and label "1" does not
// match inside "10". Longer labels are tried first.
func consolidateTranscript(raw string, resolved map[string]types.Participant) string {
	if len(resolved) == 0 || raw == "" {
		return raw
	}
	labels := make([]string, 0, len(resolved))
	for l := range resolved {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if len(labels[i]) != len(labels[j]) {
			return len(labels[i]) > len(labels[j])
		}
		return labels[i] < labels[j]
	})

	var b strings.Builder
	b.Grow(len(raw))
	prev := rune(-1)
	for i := 0; i < len(raw); {
		if !isWordRune(prev) {
			if label, ok := matchLabelAt(raw, i, labels); ok {
				b.WriteString(resolved[label].DisplayName())
				i += len(label)
				prev, _ = utf8.DecodeLastRuneInString(label)
				continue
			}
		}
		r, size := utf8.DecodeRuneInString(raw[i:])
		b.WriteRune(r)
		prev = r
		i += size
	}
	return b.String()
}

func matchLabelAt(s string, i int, labels []string) (string, bool) {
	for _, l := range labels {
		if !strings.HasPrefix(s[i:], l) {
			continue
		}
		next, _ := utf8.DecodeRuneInString(s[i+len(l):])
		if i+len(l) < len(s) && isWordRune(next) {
			continue
		}
		return l, true
	}
	return "", false
}

func isWordRune(r rune) bool {
	if r < 0 {
		return false
	}
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
